package youtube

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"

	"github.com/mukliesthethird-lab/dashboard-bot-sub001/internal/domain"
	apperrors "github.com/mukliesthethird-lab/dashboard-bot-sub001/internal/errors"
	"github.com/mukliesthethird-lab/dashboard-bot-sub001/internal/metrics"
)

// maxPayloadSnapshot bounds the raw feed XML stored with each event row.
const maxPayloadSnapshot = 10000

// webhookStore is the subset of database operations the webhook needs.
type webhookStore interface {
	ConfirmSubscription(ctx context.Context, channelID, hubTopic string, leaseSeconds int64, subscribedAt, expiresAt time.Time, status string) error
	RecordEvent(ctx context.Context, ev domain.YouTubeLiveEvent) (int64, error)
}

// classifier resolves the broadcast type of a pushed video.
type classifier interface {
	Classify(ctx context.Context, videoID string) (domain.YouTubeEventType, error)
}

// WebhookHandler handles the WebSub callback: the GET verification
// handshake and POSTed Atom feed notifications.
type WebhookHandler struct {
	store      webhookStore
	classifier classifier
	clock      clockwork.Clock
}

// NewWebhookHandler creates a webhook handler.
func NewWebhookHandler(store webhookStore, classifier classifier, clock clockwork.Clock) *WebhookHandler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &WebhookHandler{store: store, classifier: classifier, clock: clock}
}

// HandleVerification answers the hub's subscribe/unsubscribe handshake.
// The challenge must be echoed back byte-for-byte as plain text; the lease
// bookkeeping is best-effort because failing the handshake kills the
// subscription on the hub side.
func (h *WebhookHandler) HandleVerification(c echo.Context) error {
	mode := c.QueryParam("hub.mode")
	if mode != "subscribe" && mode != "unsubscribe" {
		metrics.WebhookDeliveriesTotal.WithLabelValues("youtube", "rejected").Inc()
		return apperrors.ValidationError("invalid hub.mode")
	}

	challenge := c.QueryParam("hub.challenge")
	if challenge == "" {
		metrics.WebhookDeliveriesTotal.WithLabelValues("youtube", "malformed").Inc()
		return apperrors.ValidationError("verification request without challenge")
	}

	topic := c.QueryParam("hub.topic")
	ctx := c.Request().Context()
	if channelID := channelIDFromTopic(topic); channelID != "" {
		lease := int64(DefaultLeaseSeconds)
		if v, err := strconv.ParseInt(c.QueryParam("hub.lease_seconds"), 10, 64); err == nil && v > 0 {
			lease = v
		}

		status := domain.YouTubeStatusActive
		if mode == "unsubscribe" {
			status = domain.YouTubeStatusUnsubscribed
		}

		now := h.clock.Now().UTC()
		expiresAt := now.Add(time.Duration(lease) * time.Second)
		if err := h.store.ConfirmSubscription(ctx, channelID, topic, lease, now, expiresAt, status); err != nil {
			slog.ErrorContext(ctx, "Failed to persist verified lease",
				"channel_id", channelID, "mode", mode, "error", err)
		} else {
			slog.InfoContext(ctx, "WebSub handshake verified",
				"channel_id", channelID, "mode", mode, "lease_seconds", lease)
		}
	}

	metrics.WebhookDeliveriesTotal.WithLabelValues("youtube", "verified").Inc()
	return c.Blob(http.StatusOK, "text/plain", []byte(challenge))
}

// HandleNotification records a pushed feed entry. Deletion notices are
// acknowledged and dropped; unparseable payloads are acknowledged with 200
// so the hub does not retry a permanently malformed resource.
func (h *WebhookHandler) HandleNotification(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		metrics.WebhookDeliveriesTotal.WithLabelValues("youtube", "malformed").Inc()
		return apperrors.ValidationError("failed to read request body")
	}

	ctx := c.Request().Context()
	if IsDeletionNotice(body) {
		slog.InfoContext(ctx, "Deletion notice received, ignoring")
		metrics.WebhookDeliveriesTotal.WithLabelValues("youtube", "ignored").Inc()
		return c.JSON(http.StatusOK, map[string]string{"status": "ignored", "reason": "deleted"})
	}

	notification, err := ParseNotification(body)
	if err != nil {
		slog.WarnContext(ctx, "Could not parse video data from feed", "error", err)
		metrics.WebhookDeliveriesTotal.WithLabelValues("youtube", "malformed").Inc()
		return c.JSON(http.StatusOK, map[string]string{"status": "parsed", "message": "No video data found"})
	}

	eventType := h.classify(ctx, notification.VideoID)

	published := notification.Published
	if published.IsZero() {
		published = h.clock.Now().UTC()
	}

	id, err := h.store.RecordEvent(ctx, domain.YouTubeLiveEvent{
		ChannelID:   notification.ChannelID,
		VideoID:     notification.VideoID,
		VideoTitle:  notification.Title,
		ChannelName: notification.ChannelName,
		PublishedAt: published,
		Type:        eventType,
		RawPayload:  truncate(body, maxPayloadSnapshot),
	})
	if err != nil {
		metrics.WebhookDeliveriesTotal.WithLabelValues("youtube", "failed").Inc()
		return apperrors.InternalError("failed to record live event", err)
	}

	slog.InfoContext(ctx, "Feed event recorded",
		"event_id", id, "video_id", notification.VideoID, "channel_id", notification.ChannelID, "event_type", eventType)
	metrics.WebhookDeliveriesTotal.WithLabelValues("youtube", "received").Inc()
	return c.JSON(http.StatusOK, map[string]string{
		"status":     "received",
		"video_id":   notification.VideoID,
		"event_type": string(eventType),
	})
}

// classify degrades to the plain-upload type when the Data API is not
// configured or unavailable; classification never blocks ingestion.
func (h *WebhookHandler) classify(ctx context.Context, videoID string) domain.YouTubeEventType {
	eventType, err := h.classifier.Classify(ctx, videoID)
	if err != nil {
		if errors.Is(err, domain.ErrNotConfigured) {
			slog.DebugContext(ctx, "No Data API key, skipping broadcast classification", "video_id", videoID)
		} else {
			slog.WarnContext(ctx, "Broadcast classification failed, defaulting",
				"video_id", videoID, "error", err)
		}
		return domain.YouTubeEventNone
	}
	return eventType
}

// channelIDFromTopic extracts the channel_id query parameter from a feed
// topic URL.
func channelIDFromTopic(topic string) string {
	u, err := url.Parse(topic)
	if err != nil {
		return ""
	}
	return u.Query().Get("channel_id")
}

func truncate(b []byte, limit int) string {
	if len(b) <= limit {
		return string(b)
	}
	return string(b[:limit])
}
