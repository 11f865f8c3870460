package youtube

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	defaultRenewInterval = 1 * time.Hour
	// renewWindow is how far ahead of lease expiry renewal kicks in. Wide
	// enough to survive a day of failed renewal attempts.
	renewWindow = 24 * time.Hour
)

// LeaseRenewer periodically re-subscribes channels whose hub lease is
// about to expire. The hub re-verifies through the normal handshake, which
// refreshes the lease bounds on the row.
type LeaseRenewer struct {
	manager  *Manager
	store    subscriptionStore
	interval time.Duration
	clock    clockwork.Clock
	stopCh   chan struct{}
}

// NewLeaseRenewer creates a lease renewal background job.
func NewLeaseRenewer(manager *Manager, store subscriptionStore, clock clockwork.Clock) *LeaseRenewer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &LeaseRenewer{
		manager:  manager,
		store:    store,
		interval: defaultRenewInterval,
		clock:    clock,
		stopCh:   make(chan struct{}),
	}
}

// Start runs the renewal loop until Stop is called.
func (r *LeaseRenewer) Start(ctx context.Context) {
	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			if err := r.renewExpiring(ctx); err != nil {
				slog.Error("Lease renewal sweep failed", "error", err)
			}
		case <-r.stopCh:
			slog.Info("Lease renewer stopped")
			return
		case <-ctx.Done():
			slog.Info("Lease renewer context cancelled")
			return
		}
	}
}

// Stop terminates the renewal loop.
func (r *LeaseRenewer) Stop() {
	close(r.stopCh)
}

// renewExpiring re-subscribes every active channel whose lease ends within
// the renewal window. Failures are logged per channel; one bad channel
// must not starve the rest.
func (r *LeaseRenewer) renewExpiring(ctx context.Context) error {
	subs, err := r.store.ListActiveSubscriptions(ctx)
	if err != nil {
		return err
	}

	cutoff := r.clock.Now().Add(renewWindow)
	for _, sub := range subs {
		if sub.ExpiresAt == nil || sub.ExpiresAt.After(cutoff) {
			continue
		}
		if _, err := r.manager.Subscribe(ctx, sub.ChannelID); err != nil {
			slog.Warn("Lease renewal failed", "channel_id", sub.ChannelID, "error", err)
			continue
		}
		slog.Info("Lease renewal requested", "channel_id", sub.ChannelID, "expires_at", sub.ExpiresAt)
	}
	return nil
}
