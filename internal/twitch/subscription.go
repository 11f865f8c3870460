package twitch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mukliesthethird-lab/dashboard-bot-sub001/internal/domain"
	"github.com/mukliesthethird-lab/dashboard-bot-sub001/internal/metrics"
	"github.com/mukliesthethird-lab/dashboard-bot-sub001/internal/platform/retry"
)

// subscriptionStore is the subset of database operations needed for
// subscription management.
type subscriptionStore interface {
	UpsertSubscription(ctx context.Context, sub domain.TwitchSubscription) error
	DeleteSubscription(ctx context.Context, subscriptionID string) error
	GetSubscription(ctx context.Context, broadcasterID string, subType domain.TwitchEventType) (*domain.TwitchSubscription, error)
	ListSubscriptions(ctx context.Context) ([]domain.TwitchSubscription, error)
}

// subscriptionAPIClient is the subset of the helix client used by Manager.
type subscriptionAPIClient interface {
	CreateSubscription(ctx context.Context, req CreateSubscriptionRequest) (*CreatedSubscription, error)
	DeleteSubscription(ctx context.Context, subscriptionID string) error
}

// Manager drives the EventSub subscription lifecycle: create with webhook
// transport, persist the pending row, delete on unsubscribe. Twitch confirms
// creation asynchronously through the verification handshake on the webhook
// endpoint, which flips the row to enabled.
type Manager struct {
	client      subscriptionAPIClient
	store       subscriptionStore
	callbackURL string
	secret      string
	policy      retry.Policy
}

// NewManager creates a subscription manager. callbackURL and secret go into
// the webhook transport of every subscription it creates.
func NewManager(client subscriptionAPIClient, store subscriptionStore, callbackURL, secret string) *Manager {
	return &Manager{
		client:      client,
		store:       store,
		callbackURL: callbackURL,
		secret:      secret,
		policy: retry.Policy{
			MaxAttempts:      3,
			InitialBackoff:   500 * time.Millisecond,
			RateLimitBackoff: 5 * time.Second,
			OnRetry: func(attempt int, err error, backoff time.Duration) {
				slog.Warn("Retrying EventSub subscription request",
					"attempt", attempt, "backoff", backoff, "error", err)
			},
		},
	}
}

// classifyAPIError maps helix failures to retry actions: rate limits back
// off longer, server errors retry, everything else is permanent.
func classifyAPIError(err error) retry.Action {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return retry.Retry // network-level failure
	}
	switch {
	case apiErr.StatusCode == http.StatusTooManyRequests:
		return retry.After
	case apiErr.StatusCode >= 500:
		return retry.Retry
	default:
		return retry.Stop
	}
}

// Subscribe registers an EventSub subscription for a broadcaster and
// persists it in pending state. A 409 conflict means Twitch already has the
// subscription (the local row was lost or never confirmed) and is treated
// as success.
func (m *Manager) Subscribe(ctx context.Context, broadcasterID string, subType domain.TwitchEventType) (*domain.TwitchSubscription, error) {
	req := CreateSubscriptionRequest{
		Type:      string(subType),
		Version:   "1",
		Condition: SubscriptionCondition{BroadcasterUserID: broadcasterID},
		Transport: SubscriptionTransport{
			Method:   "webhook",
			Callback: m.callbackURL,
			Secret:   m.secret,
		},
	}

	created, err := retry.Do(ctx, m.policy, classifyAPIError, func() (*CreatedSubscription, error) {
		return m.client.CreateSubscription(ctx, req)
	})
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict {
			slog.Info("EventSub subscription already exists on Twitch, treating as success",
				"broadcaster_id", broadcasterID, "type", subType)
			metrics.SubscriptionRequestsTotal.WithLabelValues("twitch", "subscribe", "conflict").Inc()
			return m.store.GetSubscription(ctx, broadcasterID, subType)
		}
		metrics.SubscriptionRequestsTotal.WithLabelValues("twitch", "subscribe", "failure").Inc()
		return nil, fmt.Errorf("failed to create EventSub subscription: %w", err)
	}

	sub := domain.TwitchSubscription{
		SubscriptionID: created.ID,
		BroadcasterID:  broadcasterID,
		Type:           subType,
		Status:         created.Status,
	}
	if err := m.store.UpsertSubscription(ctx, sub); err != nil {
		// Best effort: remove the Twitch-side subscription so it does not
		// leak when we have no record of it.
		if cleanupErr := m.client.DeleteSubscription(ctx, created.ID); cleanupErr != nil {
			slog.Warn("Failed to clean up Twitch subscription after persist failure",
				"subscription_id", created.ID, "error", cleanupErr)
		}
		metrics.SubscriptionRequestsTotal.WithLabelValues("twitch", "subscribe", "failure").Inc()
		return nil, fmt.Errorf("failed to persist subscription: %w", err)
	}

	metrics.SubscriptionRequestsTotal.WithLabelValues("twitch", "subscribe", "success").Inc()
	slog.Info("EventSub subscription created",
		"broadcaster_id", broadcasterID, "type", subType, "subscription_id", created.ID, "status", created.Status)
	return &sub, nil
}

// Unsubscribe deletes an EventSub subscription from Twitch and removes the
// local row. A subscription Twitch no longer knows about still gets its row
// removed.
func (m *Manager) Unsubscribe(ctx context.Context, subscriptionID string) error {
	err := retry.DoVoid(ctx, m.policy, classifyAPIError, func() error {
		return m.client.DeleteSubscription(ctx, subscriptionID)
	})
	if err != nil {
		metrics.SubscriptionRequestsTotal.WithLabelValues("twitch", "unsubscribe", "failure").Inc()
		return fmt.Errorf("failed to delete EventSub subscription: %w", err)
	}

	if err := m.store.DeleteSubscription(ctx, subscriptionID); err != nil {
		return fmt.Errorf("failed to delete subscription row: %w", err)
	}

	metrics.SubscriptionRequestsTotal.WithLabelValues("twitch", "unsubscribe", "success").Inc()
	slog.Info("EventSub subscription deleted", "subscription_id", subscriptionID)
	return nil
}

// List returns all locally known subscriptions.
func (m *Manager) List(ctx context.Context) ([]domain.TwitchSubscription, error) {
	return m.store.ListSubscriptions(ctx)
}
