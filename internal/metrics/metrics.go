// Package metrics defines the Prometheus instruments for webhook ingestion
// and subscription management.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebhookDeliveriesTotal counts inbound webhook calls by provider and
	// outcome (received, ignored, acknowledged, rejected, malformed).
	WebhookDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_deliveries_total",
			Help: "Inbound webhook deliveries by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	// SubscriptionRequestsTotal counts outbound subscribe/unsubscribe calls
	// by provider and result.
	SubscriptionRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscription_requests_total",
			Help: "Outbound hub subscription requests by provider, operation, and result",
		},
		[]string{"provider", "operation", "result"},
	)

	// TokenRefreshesTotal counts app access token exchanges.
	TokenRefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "token_refreshes_total",
			Help: "App access token exchanges by result",
		},
		[]string{"result"},
	)

	// ProfileCacheHits counts Twitch profile lookups served from Redis.
	ProfileCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "profile_cache_hits_total",
			Help: "Twitch profile lookups served from the Redis cache",
		},
	)

	// ProfileCacheMisses counts Twitch profile lookups that fell through to
	// the helix API.
	ProfileCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "profile_cache_misses_total",
			Help: "Twitch profile lookups that fell through to the helix API",
		},
	)
)
