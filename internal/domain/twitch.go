package domain

import "time"

// Twitch EventSub subscription statuses. Enabled and the pending
// verification status come from Twitch verbatim; disabled is set locally
// when Twitch revokes a subscription.
const (
	TwitchStatusPending  = "webhook_callback_verification_pending"
	TwitchStatusEnabled  = "enabled"
	TwitchStatusDisabled = "disabled"
)

// TwitchEventType is the EventSub subscription type an event came from.
type TwitchEventType string

const (
	TwitchStreamOnline  TwitchEventType = "stream.online"
	TwitchStreamOffline TwitchEventType = "stream.offline"
)

// TwitchSubscription is one EventSub subscription registered with Twitch.
// At most one row exists per (broadcaster, subscription type); re-subscribing
// upserts in place.
type TwitchSubscription struct {
	SubscriptionID string          `json:"subscription_id"`
	BroadcasterID  string          `json:"broadcaster_id"`
	Type           TwitchEventType `json:"type"`
	Status         string          `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// TwitchLiveEvent is one received stream.online/stream.offline notification.
// The natural key (BroadcasterID, Type, StartedAt) makes hub redelivery
// idempotent: the same notification upserts into the same row.
type TwitchLiveEvent struct {
	ID               int64           `json:"id"`
	BroadcasterID    string          `json:"broadcaster_id"`
	BroadcasterLogin string          `json:"broadcaster_login"`
	BroadcasterName  string          `json:"broadcaster_name"`
	Type             TwitchEventType `json:"event_type"`
	StartedAt        time.Time       `json:"started_at"`
	RawPayload       string          `json:"raw_payload"`
	IsProcessed      bool            `json:"is_processed"`
	ProcessedAt      *time.Time      `json:"processed_at"`
	CreatedAt        time.Time       `json:"created_at"`
}

// TwitchUser is the subset of a helix user record the dashboard needs to
// resolve a login name to a broadcaster ID.
type TwitchUser struct {
	ID              string `json:"id"`
	Login           string `json:"login"`
	DisplayName     string `json:"display_name"`
	ProfileImageURL string `json:"profile_image_url"`
}
