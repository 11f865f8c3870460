package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mukliesthethird-lab/dashboard-bot-sub001/internal/domain"
)

type YouTubeRepo struct {
	pool *pgxpool.Pool
}

func NewYouTubeRepo(pool *pgxpool.Pool) *YouTubeRepo {
	return &YouTubeRepo{pool: pool}
}

// MarkSubscriptionPending records that a subscribe request was accepted by
// the hub and verification is outstanding.
func (r *YouTubeRepo) MarkSubscriptionPending(ctx context.Context, channelID, hubTopic string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO youtube_subscriptions (channel_id, hub_topic, status)
		VALUES ($1, $2, $3)
		ON CONFLICT (channel_id) DO UPDATE SET
			hub_topic = EXCLUDED.hub_topic,
			status = EXCLUDED.status,
			updated_at = NOW()
	`, channelID, hubTopic, domain.YouTubeStatusPending)
	if err != nil {
		return fmt.Errorf("failed to mark youtube subscription pending: %w", err)
	}
	return nil
}

// ConfirmSubscription records a verified hub handshake: active with lease
// bounds on subscribe, unsubscribed on unsubscribe confirmation. Upsert, so
// a handshake for an unknown channel still lands (the hub is authoritative).
func (r *YouTubeRepo) ConfirmSubscription(ctx context.Context, channelID, hubTopic string, leaseSeconds int64, subscribedAt, expiresAt time.Time, status string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO youtube_subscriptions
			(channel_id, hub_topic, lease_seconds, subscribed_at, expires_at, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (channel_id) DO UPDATE SET
			hub_topic = EXCLUDED.hub_topic,
			lease_seconds = EXCLUDED.lease_seconds,
			subscribed_at = EXCLUDED.subscribed_at,
			expires_at = EXCLUDED.expires_at,
			status = EXCLUDED.status,
			updated_at = NOW()
	`, channelID, hubTopic, leaseSeconds, subscribedAt, expiresAt, status)
	if err != nil {
		return fmt.Errorf("failed to confirm youtube subscription: %w", err)
	}
	return nil
}

// MarkUnsubscribed flags the subscription without deleting it, so a final
// async confirmation from the hub updates rather than resurrects the row.
func (r *YouTubeRepo) MarkUnsubscribed(ctx context.Context, channelID string) error {
	if _, err := r.pool.Exec(ctx, `
		UPDATE youtube_subscriptions SET status = $1, updated_at = NOW()
		WHERE channel_id = $2
	`, domain.YouTubeStatusUnsubscribed, channelID); err != nil {
		return fmt.Errorf("failed to mark youtube subscription unsubscribed: %w", err)
	}
	return nil
}

func (r *YouTubeRepo) GetSubscription(ctx context.Context, channelID string) (*domain.YouTubeSubscription, error) {
	var sub domain.YouTubeSubscription
	err := r.pool.QueryRow(ctx, `
		SELECT channel_id, hub_topic, lease_seconds, subscribed_at, expires_at, status, created_at, updated_at
		FROM youtube_subscriptions
		WHERE channel_id = $1
	`, channelID).Scan(
		&sub.ChannelID, &sub.HubTopic, &sub.LeaseSeconds, &sub.SubscribedAt,
		&sub.ExpiresAt, &sub.Status, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get youtube subscription: %w", err)
	}
	return &sub, nil
}

func (r *YouTubeRepo) ListActiveSubscriptions(ctx context.Context) ([]domain.YouTubeSubscription, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT channel_id, hub_topic, lease_seconds, subscribed_at, expires_at, status, created_at, updated_at
		FROM youtube_subscriptions
		WHERE status = $1
		ORDER BY subscribed_at DESC NULLS LAST
	`, domain.YouTubeStatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to list active youtube subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []domain.YouTubeSubscription
	for rows.Next() {
		var sub domain.YouTubeSubscription
		if err := rows.Scan(&sub.ChannelID, &sub.HubTopic, &sub.LeaseSeconds, &sub.SubscribedAt,
			&sub.ExpiresAt, &sub.Status, &sub.CreatedAt, &sub.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan youtube subscription: %w", err)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// RecordEvent persists a feed notification, deduplicated by video ID.
// Redelivery updates title, channel name, classification, and payload
// snapshot; is_processed is never reset.
func (r *YouTubeRepo) RecordEvent(ctx context.Context, ev domain.YouTubeLiveEvent) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO youtube_live_events
			(video_id, channel_id, video_title, channel_name, published_at, event_type, raw_payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (video_id) DO UPDATE SET
			video_title = EXCLUDED.video_title,
			channel_name = EXCLUDED.channel_name,
			event_type = EXCLUDED.event_type,
			raw_payload = EXCLUDED.raw_payload
		RETURNING id
	`, ev.VideoID, ev.ChannelID, ev.VideoTitle, ev.ChannelName, ev.PublishedAt, string(ev.Type), ev.RawPayload).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to record youtube live event: %w", err)
	}
	return id, nil
}

func (r *YouTubeRepo) ListUnprocessedEvents(ctx context.Context, limit int) ([]domain.YouTubeLiveEvent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, channel_id, video_id, video_title, channel_name, published_at,
			event_type, raw_payload, is_processed, processed_at, created_at
		FROM youtube_live_events
		WHERE NOT is_processed
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list unprocessed youtube events: %w", err)
	}
	defer rows.Close()

	var events []domain.YouTubeLiveEvent
	for rows.Next() {
		var ev domain.YouTubeLiveEvent
		if err := rows.Scan(&ev.ID, &ev.ChannelID, &ev.VideoID, &ev.VideoTitle, &ev.ChannelName,
			&ev.PublishedAt, &ev.Type, &ev.RawPayload, &ev.IsProcessed, &ev.ProcessedAt, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan youtube live event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// MarkEventProcessed transitions is_processed false→true by video ID, the
// identifier the bot consumer already holds.
func (r *YouTubeRepo) MarkEventProcessed(ctx context.Context, videoID string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE youtube_live_events
		SET is_processed = TRUE, processed_at = COALESCE(processed_at, NOW())
		WHERE video_id = $1
	`, videoID)
	if err != nil {
		return fmt.Errorf("failed to mark youtube event processed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrEventNotFound
	}
	return nil
}
