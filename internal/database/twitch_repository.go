package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mukliesthethird-lab/dashboard-bot-sub001/internal/domain"
)

type TwitchRepo struct {
	pool *pgxpool.Pool
}

func NewTwitchRepo(pool *pgxpool.Pool) *TwitchRepo {
	return &TwitchRepo{pool: pool}
}

// UpsertSubscription inserts or refreshes the subscription row for a
// (broadcaster, type) pair. Re-subscription and the verification handshake
// both land here, so neither can create a duplicate row.
func (r *TwitchRepo) UpsertSubscription(ctx context.Context, sub domain.TwitchSubscription) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO twitch_subscriptions (subscription_id, broadcaster_id, subscription_type, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (broadcaster_id, subscription_type) DO UPDATE SET
			subscription_id = EXCLUDED.subscription_id,
			status = EXCLUDED.status,
			updated_at = NOW()
	`, sub.SubscriptionID, sub.BroadcasterID, string(sub.Type), sub.Status)
	if err != nil {
		return fmt.Errorf("failed to upsert twitch subscription: %w", err)
	}
	return nil
}

// SetSubscriptionStatus updates the status of a subscription by its
// Twitch-assigned ID. Used for revocations.
func (r *TwitchRepo) SetSubscriptionStatus(ctx context.Context, subscriptionID, status string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE twitch_subscriptions SET status = $1, updated_at = NOW()
		WHERE subscription_id = $2
	`, status, subscriptionID)
	if err != nil {
		return fmt.Errorf("failed to update twitch subscription status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSubscriptionNotFound
	}
	return nil
}

// DeleteSubscription removes the row for an explicitly unsubscribed
// subscription.
func (r *TwitchRepo) DeleteSubscription(ctx context.Context, subscriptionID string) error {
	if _, err := r.pool.Exec(ctx, `
		DELETE FROM twitch_subscriptions WHERE subscription_id = $1
	`, subscriptionID); err != nil {
		return fmt.Errorf("failed to delete twitch subscription: %w", err)
	}
	return nil
}

func (r *TwitchRepo) GetSubscription(ctx context.Context, broadcasterID string, subType domain.TwitchEventType) (*domain.TwitchSubscription, error) {
	var sub domain.TwitchSubscription
	err := r.pool.QueryRow(ctx, `
		SELECT subscription_id, broadcaster_id, subscription_type, status, created_at, updated_at
		FROM twitch_subscriptions
		WHERE broadcaster_id = $1 AND subscription_type = $2
	`, broadcasterID, string(subType)).Scan(
		&sub.SubscriptionID, &sub.BroadcasterID, &sub.Type, &sub.Status, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get twitch subscription: %w", err)
	}
	return &sub, nil
}

func (r *TwitchRepo) ListSubscriptions(ctx context.Context) ([]domain.TwitchSubscription, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT subscription_id, broadcaster_id, subscription_type, status, created_at, updated_at
		FROM twitch_subscriptions
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list twitch subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []domain.TwitchSubscription
	for rows.Next() {
		var sub domain.TwitchSubscription
		if err := rows.Scan(&sub.SubscriptionID, &sub.BroadcasterID, &sub.Type, &sub.Status, &sub.CreatedAt, &sub.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan twitch subscription: %w", err)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// RecordEvent persists a live event, deduplicated by the natural key
// (broadcaster, event type, start time). Redelivery updates the mutable
// fields only; is_processed is never touched here.
func (r *TwitchRepo) RecordEvent(ctx context.Context, ev domain.TwitchLiveEvent) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO twitch_live_events
			(broadcaster_id, broadcaster_login, broadcaster_name, event_type, started_at, raw_payload)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (broadcaster_id, event_type, started_at) DO UPDATE SET
			broadcaster_login = EXCLUDED.broadcaster_login,
			broadcaster_name = EXCLUDED.broadcaster_name,
			raw_payload = EXCLUDED.raw_payload
		RETURNING id
	`, ev.BroadcasterID, ev.BroadcasterLogin, ev.BroadcasterName, string(ev.Type), ev.StartedAt, ev.RawPayload).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to record twitch live event: %w", err)
	}
	return id, nil
}

func (r *TwitchRepo) ListUnprocessedEvents(ctx context.Context, limit int) ([]domain.TwitchLiveEvent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, broadcaster_id, broadcaster_login, broadcaster_name, event_type,
			started_at, raw_payload, is_processed, processed_at, created_at
		FROM twitch_live_events
		WHERE NOT is_processed
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list unprocessed twitch events: %w", err)
	}
	defer rows.Close()

	var events []domain.TwitchLiveEvent
	for rows.Next() {
		var ev domain.TwitchLiveEvent
		if err := rows.Scan(&ev.ID, &ev.BroadcasterID, &ev.BroadcasterLogin, &ev.BroadcasterName,
			&ev.Type, &ev.StartedAt, &ev.RawPayload, &ev.IsProcessed, &ev.ProcessedAt, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan twitch live event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// MarkEventProcessed transitions is_processed false→true. Marking an
// already-processed event is a no-op, not an error.
func (r *TwitchRepo) MarkEventProcessed(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE twitch_live_events
		SET is_processed = TRUE, processed_at = COALESCE(processed_at, NOW())
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("failed to mark twitch event processed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrEventNotFound
	}
	return nil
}
