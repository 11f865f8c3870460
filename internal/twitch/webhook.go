package twitch

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"

	"github.com/mukliesthethird-lab/dashboard-bot-sub001/internal/domain"
	apperrors "github.com/mukliesthethird-lab/dashboard-bot-sub001/internal/errors"
	"github.com/mukliesthethird-lab/dashboard-bot-sub001/internal/metrics"
)

// EventSub message headers.
const (
	headerMessageID        = "Twitch-Eventsub-Message-Id"
	headerMessageTimestamp = "Twitch-Eventsub-Message-Timestamp"
	headerMessageSignature = "Twitch-Eventsub-Message-Signature"
	headerMessageType      = "Twitch-Eventsub-Message-Type"
)

// EventSub message types.
const (
	messageTypeVerification = "webhook_callback_verification"
	messageTypeNotification = "notification"
	messageTypeRevocation   = "revocation"
)

// maxPayloadSnapshot bounds the raw payload stored with each event row.
const maxPayloadSnapshot = 10000

// webhookStore is the subset of database operations the webhook needs.
type webhookStore interface {
	UpsertSubscription(ctx context.Context, sub domain.TwitchSubscription) error
	SetSubscriptionStatus(ctx context.Context, subscriptionID, status string) error
	RecordEvent(ctx context.Context, ev domain.TwitchLiveEvent) (int64, error)
}

// WebhookHandler handles the EventSub webhook callback: the verification
// handshake, live-event notifications, and revocations. Every request must
// carry a valid HMAC signature; unsigned requests are rejected.
type WebhookHandler struct {
	secret string
	store  webhookStore
	clock  clockwork.Clock
}

// NewWebhookHandler creates a webhook handler verifying against secret.
func NewWebhookHandler(secret string, store webhookStore, clock clockwork.Clock) *WebhookHandler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &WebhookHandler{secret: secret, store: store, clock: clock}
}

type eventSubPayload struct {
	Challenge    string `json:"challenge"`
	Subscription struct {
		ID        string `json:"id"`
		Type      string `json:"type"`
		Status    string `json:"status"`
		Condition struct {
			BroadcasterUserID string `json:"broadcaster_user_id"`
		} `json:"condition"`
	} `json:"subscription"`
	Event struct {
		BroadcasterUserID    string `json:"broadcaster_user_id"`
		BroadcasterUserLogin string `json:"broadcaster_user_login"`
		BroadcasterUserName  string `json:"broadcaster_user_name"`
		StartedAt            string `json:"started_at"`
	} `json:"event"`
}

// Handle processes one EventSub delivery.
func (h *WebhookHandler) Handle(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		metrics.WebhookDeliveriesTotal.WithLabelValues("twitch", "malformed").Inc()
		return apperrors.ValidationError("failed to read request body")
	}

	if !h.verifySignature(c.Request().Header, body) {
		metrics.WebhookDeliveriesTotal.WithLabelValues("twitch", "rejected").Inc()
		return apperrors.ForbiddenError("invalid webhook signature")
	}

	// A signed-but-unparseable body means Twitch sent something this code
	// cannot handle, not that the caller is at fault: answer 500 so the
	// delivery is retried.
	var payload eventSubPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		metrics.WebhookDeliveriesTotal.WithLabelValues("twitch", "malformed").Inc()
		return apperrors.InternalError("failed to parse webhook payload", err)
	}

	ctx := c.Request().Context()
	switch c.Request().Header.Get(headerMessageType) {
	case messageTypeVerification:
		return h.handleVerification(c, ctx, &payload)
	case messageTypeNotification:
		return h.handleNotification(c, ctx, &payload, body)
	case messageTypeRevocation:
		return h.handleRevocation(c, ctx, &payload)
	default:
		metrics.WebhookDeliveriesTotal.WithLabelValues("twitch", "unknown").Inc()
		return c.JSON(http.StatusOK, map[string]string{"status": "unknown_message_type"})
	}
}

// verifySignature checks the HMAC-SHA256 over message ID + timestamp + body.
func (h *WebhookHandler) verifySignature(header http.Header, body []byte) bool {
	signature := header.Get(headerMessageSignature)
	if signature == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(h.secret))
	mac.Write([]byte(header.Get(headerMessageID)))
	mac.Write([]byte(header.Get(headerMessageTimestamp)))
	mac.Write(body)
	expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}

// handleVerification answers the challenge handshake and marks the
// subscription enabled. The challenge must be echoed back byte-for-byte as
// plain text.
func (h *WebhookHandler) handleVerification(c echo.Context, ctx context.Context, payload *eventSubPayload) error {
	if payload.Challenge == "" {
		metrics.WebhookDeliveriesTotal.WithLabelValues("twitch", "malformed").Inc()
		return apperrors.ValidationError("verification request without challenge")
	}

	err := h.store.UpsertSubscription(ctx, domain.TwitchSubscription{
		SubscriptionID: payload.Subscription.ID,
		BroadcasterID:  payload.Subscription.Condition.BroadcasterUserID,
		Type:           domain.TwitchEventType(payload.Subscription.Type),
		Status:         domain.TwitchStatusEnabled,
	})
	if err != nil {
		// The handshake still has to succeed or Twitch drops the
		// subscription; the pending row from Subscribe stays as-is.
		slog.ErrorContext(ctx, "Failed to persist verified subscription",
			"subscription_id", payload.Subscription.ID, "error", err)
	}

	slog.InfoContext(ctx, "EventSub webhook verified",
		"subscription_id", payload.Subscription.ID, "type", payload.Subscription.Type)
	metrics.WebhookDeliveriesTotal.WithLabelValues("twitch", "verified").Inc()
	return c.Blob(http.StatusOK, "text/plain", []byte(payload.Challenge))
}

// handleNotification records a stream.online/stream.offline event. Other
// subscription types are acknowledged and ignored.
func (h *WebhookHandler) handleNotification(c echo.Context, ctx context.Context, payload *eventSubPayload, body []byte) error {
	subType := domain.TwitchEventType(payload.Subscription.Type)
	if subType != domain.TwitchStreamOnline && subType != domain.TwitchStreamOffline {
		metrics.WebhookDeliveriesTotal.WithLabelValues("twitch", "ignored").Inc()
		return c.JSON(http.StatusOK, map[string]string{"status": "ignored"})
	}

	ev := domain.TwitchLiveEvent{
		BroadcasterID:    payload.Event.BroadcasterUserID,
		BroadcasterLogin: payload.Event.BroadcasterUserLogin,
		BroadcasterName:  payload.Event.BroadcasterUserName,
		Type:             subType,
		StartedAt:        h.eventTime(c.Request().Header, payload.Event.StartedAt),
		RawPayload:       truncate(body, maxPayloadSnapshot),
	}

	id, err := h.store.RecordEvent(ctx, ev)
	if err != nil {
		metrics.WebhookDeliveriesTotal.WithLabelValues("twitch", "failed").Inc()
		return apperrors.InternalError("failed to record live event", err)
	}

	slog.InfoContext(ctx, "Live event recorded",
		"event_id", id, "broadcaster_id", ev.BroadcasterID, "type", ev.Type)
	metrics.WebhookDeliveriesTotal.WithLabelValues("twitch", "received").Inc()
	return c.JSON(http.StatusOK, map[string]string{"status": "received"})
}

// handleRevocation marks the subscription disabled. The row is kept so the
// dashboard can show why notifications stopped.
func (h *WebhookHandler) handleRevocation(c echo.Context, ctx context.Context, payload *eventSubPayload) error {
	err := h.store.SetSubscriptionStatus(ctx, payload.Subscription.ID, domain.TwitchStatusDisabled)
	if err != nil {
		slog.WarnContext(ctx, "Revocation for unknown subscription",
			"subscription_id", payload.Subscription.ID, "status", payload.Subscription.Status, "error", err)
	} else {
		slog.InfoContext(ctx, "EventSub subscription revoked",
			"subscription_id", payload.Subscription.ID, "twitch_status", payload.Subscription.Status)
	}
	metrics.WebhookDeliveriesTotal.WithLabelValues("twitch", "acknowledged").Inc()
	return c.JSON(http.StatusOK, map[string]string{"status": "acknowledged"})
}

// eventTime resolves the event timestamp: the event's own started_at, then
// the message timestamp header, then the current time. stream.offline
// events carry no started_at.
func (h *WebhookHandler) eventTime(header http.Header, startedAt string) time.Time {
	if t, err := time.Parse(time.RFC3339Nano, startedAt); err == nil {
		return t.UTC()
	}
	if t, err := time.Parse(time.RFC3339Nano, header.Get(headerMessageTimestamp)); err == nil {
		return t.UTC()
	}
	return h.clock.Now().UTC()
}

func truncate(b []byte, limit int) string {
	if len(b) <= limit {
		return string(b)
	}
	return string(b[:limit])
}
