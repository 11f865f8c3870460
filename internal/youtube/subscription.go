package youtube

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mukliesthethird-lab/dashboard-bot-sub001/internal/domain"
	"github.com/mukliesthethird-lab/dashboard-bot-sub001/internal/metrics"
)

// subscriptionStore is the subset of database operations needed for
// subscription management.
type subscriptionStore interface {
	MarkSubscriptionPending(ctx context.Context, channelID, hubTopic string) error
	MarkUnsubscribed(ctx context.Context, channelID string) error
	GetSubscription(ctx context.Context, channelID string) (*domain.YouTubeSubscription, error)
	ListActiveSubscriptions(ctx context.Context) ([]domain.YouTubeSubscription, error)
}

// hubClient is the subset of HubClient used by Manager.
type hubClient interface {
	Subscribe(ctx context.Context, channelID string) error
	Unsubscribe(ctx context.Context, channelID string) error
}

// Manager drives the WebSub subscription lifecycle. The hub accepts
// requests asynchronously; the verification GET on the webhook endpoint is
// what flips a subscription to active or unsubscribed.
type Manager struct {
	hub   hubClient
	store subscriptionStore
}

// NewManager creates a subscription manager.
func NewManager(hub hubClient, store subscriptionStore) *Manager {
	return &Manager{hub: hub, store: store}
}

// Subscribe asks the hub for a channel subscription and records it pending.
// Re-subscribing an already active channel renews the lease: the hub
// re-verifies and the handshake refreshes the row.
func (m *Manager) Subscribe(ctx context.Context, channelID string) (*domain.YouTubeSubscription, error) {
	if err := m.hub.Subscribe(ctx, channelID); err != nil {
		metrics.SubscriptionRequestsTotal.WithLabelValues("youtube", "subscribe", "failure").Inc()
		return nil, fmt.Errorf("hub subscribe failed: %w", err)
	}

	if err := m.store.MarkSubscriptionPending(ctx, channelID, TopicURL(channelID)); err != nil {
		return nil, fmt.Errorf("failed to persist pending subscription: %w", err)
	}

	metrics.SubscriptionRequestsTotal.WithLabelValues("youtube", "subscribe", "success").Inc()
	slog.Info("WebSub subscription requested", "channel_id", channelID)
	return m.store.GetSubscription(ctx, channelID)
}

// Unsubscribe asks the hub to cancel and marks the row unsubscribed. The
// row is kept so the hub's final async confirmation updates it instead of
// resurrecting a deleted channel.
func (m *Manager) Unsubscribe(ctx context.Context, channelID string) error {
	if err := m.hub.Unsubscribe(ctx, channelID); err != nil {
		metrics.SubscriptionRequestsTotal.WithLabelValues("youtube", "unsubscribe", "failure").Inc()
		return fmt.Errorf("hub unsubscribe failed: %w", err)
	}

	if err := m.store.MarkUnsubscribed(ctx, channelID); err != nil {
		return fmt.Errorf("failed to mark subscription unsubscribed: %w", err)
	}

	metrics.SubscriptionRequestsTotal.WithLabelValues("youtube", "unsubscribe", "success").Inc()
	slog.Info("WebSub unsubscribe requested", "channel_id", channelID)
	return nil
}

// Status returns the lease state for a channel.
func (m *Manager) Status(ctx context.Context, channelID string) (*domain.YouTubeSubscription, error) {
	return m.store.GetSubscription(ctx, channelID)
}

// ListActive returns all subscriptions with a verified lease.
func (m *Manager) ListActive(ctx context.Context) ([]domain.YouTubeSubscription, error) {
	return m.store.ListActiveSubscriptions(ctx)
}
