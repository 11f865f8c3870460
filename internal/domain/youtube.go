package domain

import "time"

// YouTube WebSub subscription statuses. A subscription is created pending,
// flips to active when the hub verifies the callback, and is marked
// unsubscribed (never deleted) so a late async unsubscribe confirmation
// updates the row instead of resurrecting it.
const (
	YouTubeStatusPending      = "pending"
	YouTubeStatusActive       = "active"
	YouTubeStatusUnsubscribed = "unsubscribed"
)

// YouTubeEventType classifies a feed notification: an actual live broadcast,
// a scheduled one, or a plain video upload. The YouTube Data API reports the
// same three values in snippet.liveBroadcastContent.
type YouTubeEventType string

const (
	YouTubeEventLive     YouTubeEventType = "live"
	YouTubeEventUpcoming YouTubeEventType = "upcoming"
	YouTubeEventNone     YouTubeEventType = "none"
)

// YouTubeSubscription is the WebSub lease state for one channel.
type YouTubeSubscription struct {
	ChannelID    string     `json:"channel_id"`
	HubTopic     string     `json:"hub_topic"`
	LeaseSeconds int64      `json:"lease_seconds"`
	SubscribedAt *time.Time `json:"subscribed_at"`
	ExpiresAt    *time.Time `json:"expires_at"`
	Status       string     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// YouTubeLiveEvent is one received feed notification, deduplicated by
// VideoID across hub redeliveries.
type YouTubeLiveEvent struct {
	ID          int64            `json:"id"`
	ChannelID   string           `json:"channel_id"`
	VideoID     string           `json:"video_id"`
	VideoTitle  string           `json:"video_title"`
	ChannelName string           `json:"channel_name"`
	PublishedAt time.Time        `json:"published_at"`
	Type        YouTubeEventType `json:"event_type"`
	RawPayload  string           `json:"raw_payload"`
	IsProcessed bool             `json:"is_processed"`
	ProcessedAt *time.Time       `json:"processed_at"`
	CreatedAt   time.Time        `json:"created_at"`
}
