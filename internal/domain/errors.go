package domain

import "errors"

var (
	// ErrSubscriptionNotFound is returned by repositories when no
	// subscription row matches the lookup.
	ErrSubscriptionNotFound = errors.New("subscription not found")

	// ErrEventNotFound is returned when marking a live event processed
	// that does not exist.
	ErrEventNotFound = errors.New("live event not found")

	// ErrUserNotFound is returned when a Twitch login resolves to no user.
	ErrUserNotFound = errors.New("twitch user not found")

	// ErrNotConfigured is returned when an operation requires provider
	// credentials that are missing from the environment. It fails fast:
	// no network call is attempted.
	ErrNotConfigured = errors.New("provider credentials not configured")
)
