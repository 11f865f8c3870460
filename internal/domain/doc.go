// Package domain holds the core types shared across the service:
// provider subscriptions, live events, and the sentinel errors
// repositories and controllers agree on.
package domain
