package youtube

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mukliesthethird-lab/dashboard-bot-sub001/internal/domain"
	apperrors "github.com/mukliesthethird-lab/dashboard-bot-sub001/internal/errors"
)

// fakeStore is an in-memory store backing both the webhook and the
// subscription manager, deduplicating events by video ID like the real
// schema.
type fakeStore struct {
	mu            sync.Mutex
	subscriptions map[string]domain.YouTubeSubscription
	events        map[string]domain.YouTubeLiveEvent
	nextID        int64
	confirmErr    error
	recordErr     error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		subscriptions: make(map[string]domain.YouTubeSubscription),
		events:        make(map[string]domain.YouTubeLiveEvent),
	}
}

func (s *fakeStore) MarkSubscriptionPending(_ context.Context, channelID, hubTopic string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub := s.subscriptions[channelID]
	sub.ChannelID = channelID
	sub.HubTopic = hubTopic
	sub.Status = domain.YouTubeStatusPending
	s.subscriptions[channelID] = sub
	return nil
}

func (s *fakeStore) ConfirmSubscription(_ context.Context, channelID, hubTopic string, leaseSeconds int64, subscribedAt, expiresAt time.Time, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.confirmErr != nil {
		return s.confirmErr
	}
	s.subscriptions[channelID] = domain.YouTubeSubscription{
		ChannelID:    channelID,
		HubTopic:     hubTopic,
		LeaseSeconds: leaseSeconds,
		SubscribedAt: &subscribedAt,
		ExpiresAt:    &expiresAt,
		Status:       status,
	}
	return nil
}

func (s *fakeStore) MarkUnsubscribed(_ context.Context, channelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub, ok := s.subscriptions[channelID]; ok {
		sub.Status = domain.YouTubeStatusUnsubscribed
		s.subscriptions[channelID] = sub
	}
	return nil
}

func (s *fakeStore) GetSubscription(_ context.Context, channelID string) (*domain.YouTubeSubscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subscriptions[channelID]
	if !ok {
		return nil, domain.ErrSubscriptionNotFound
	}
	return &sub, nil
}

func (s *fakeStore) ListActiveSubscriptions(_ context.Context) ([]domain.YouTubeSubscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var subs []domain.YouTubeSubscription
	for _, sub := range s.subscriptions {
		if sub.Status == domain.YouTubeStatusActive {
			subs = append(subs, sub)
		}
	}
	return subs, nil
}

func (s *fakeStore) RecordEvent(_ context.Context, ev domain.YouTubeLiveEvent) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recordErr != nil {
		return 0, s.recordErr
	}
	if existing, ok := s.events[ev.VideoID]; ok {
		ev.ID = existing.ID
		ev.IsProcessed = existing.IsProcessed
		s.events[ev.VideoID] = ev
		return existing.ID, nil
	}
	s.nextID++
	ev.ID = s.nextID
	s.events[ev.VideoID] = ev
	return ev.ID, nil
}

// fixedClassifier returns a scripted classification.
type fixedClassifier struct {
	eventType domain.YouTubeEventType
	err       error
}

func (f *fixedClassifier) Classify(context.Context, string) (domain.YouTubeEventType, error) {
	return f.eventType, f.err
}

func verificationRequest(mode, channelID, challenge, leaseSeconds string) *http.Request {
	q := url.Values{}
	q.Set("hub.mode", mode)
	q.Set("hub.topic", TopicURL(channelID))
	q.Set("hub.challenge", challenge)
	if leaseSeconds != "" {
		q.Set("hub.lease_seconds", leaseSeconds)
	}
	return httptest.NewRequest(http.MethodGet, "/webhooks/youtube?"+q.Encode(), nil)
}

func TestVerification_EchoesChallengeExactly(t *testing.T) {
	store := newFakeStore()
	h := NewWebhookHandler(store, &fixedClassifier{eventType: domain.YouTubeEventNone}, clockwork.NewFakeClock())

	// Challenge strings with special characters must survive byte-for-byte.
	challenge := `ch@llenge&with="specials"<>`
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(verificationRequest("subscribe", "UC123", challenge, "432000"), rec)

	require.NoError(t, h.HandleVerification(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, challenge, rec.Body.String())
	assert.Contains(t, rec.Header().Get(echo.HeaderContentType), "text/plain")
}

func TestVerification_ComputesLeaseExpiry(t *testing.T) {
	store := newFakeStore()
	clock := clockwork.NewFakeClock()
	h := NewWebhookHandler(store, &fixedClassifier{eventType: domain.YouTubeEventNone}, clock)

	rec := httptest.NewRecorder()
	c := echo.New().NewContext(verificationRequest("subscribe", "UC123", "abc123", "432000"), rec)
	require.NoError(t, h.HandleVerification(c))

	sub := store.subscriptions["UC123"]
	assert.Equal(t, domain.YouTubeStatusActive, sub.Status)
	assert.Equal(t, int64(432000), sub.LeaseSeconds)
	require.NotNil(t, sub.ExpiresAt)
	assert.Equal(t, clock.Now().UTC().Add(432000*time.Second), *sub.ExpiresAt)
}

func TestVerification_DefaultsLeaseWhenAbsent(t *testing.T) {
	store := newFakeStore()
	clock := clockwork.NewFakeClock()
	h := NewWebhookHandler(store, &fixedClassifier{eventType: domain.YouTubeEventNone}, clock)

	rec := httptest.NewRecorder()
	c := echo.New().NewContext(verificationRequest("subscribe", "UC123", "abc123", ""), rec)
	require.NoError(t, h.HandleVerification(c))

	sub := store.subscriptions["UC123"]
	assert.Equal(t, int64(DefaultLeaseSeconds), sub.LeaseSeconds)
	require.NotNil(t, sub.ExpiresAt)
	assert.Equal(t, clock.Now().UTC().Add(DefaultLeaseSeconds*time.Second), *sub.ExpiresAt)
}

func TestVerification_UnsubscribeMarksRow(t *testing.T) {
	store := newFakeStore()
	h := NewWebhookHandler(store, &fixedClassifier{eventType: domain.YouTubeEventNone}, clockwork.NewFakeClock())

	rec := httptest.NewRecorder()
	c := echo.New().NewContext(verificationRequest("unsubscribe", "UC123", "bye", ""), rec)
	require.NoError(t, h.HandleVerification(c))

	assert.Equal(t, "bye", rec.Body.String())
	assert.Equal(t, domain.YouTubeStatusUnsubscribed, store.subscriptions["UC123"].Status)
}

func TestVerification_MissingChallenge(t *testing.T) {
	store := newFakeStore()
	h := NewWebhookHandler(store, &fixedClassifier{eventType: domain.YouTubeEventNone}, clockwork.NewFakeClock())

	rec := httptest.NewRecorder()
	c := echo.New().NewContext(verificationRequest("subscribe", "UC123", "", ""), rec)
	err := h.HandleVerification(c)

	var structuredErr *apperrors.Error
	require.ErrorAs(t, err, &structuredErr)
	assert.Equal(t, http.StatusBadRequest, structuredErr.HTTPStatus())
	assert.Empty(t, store.subscriptions, "no state may be mutated without a challenge")
}

func TestVerification_InvalidMode(t *testing.T) {
	h := NewWebhookHandler(newFakeStore(), &fixedClassifier{eventType: domain.YouTubeEventNone}, clockwork.NewFakeClock())

	rec := httptest.NewRecorder()
	c := echo.New().NewContext(verificationRequest("denied", "UC123", "abc", ""), rec)
	err := h.HandleVerification(c)

	var structuredErr *apperrors.Error
	require.ErrorAs(t, err, &structuredErr)
	assert.Equal(t, http.StatusBadRequest, structuredErr.HTTPStatus())
}

func TestVerification_StorageFailureStillEchoes(t *testing.T) {
	store := newFakeStore()
	store.confirmErr = errors.New("database down")
	h := NewWebhookHandler(store, &fixedClassifier{eventType: domain.YouTubeEventNone}, clockwork.NewFakeClock())

	rec := httptest.NewRecorder()
	c := echo.New().NewContext(verificationRequest("subscribe", "UC123", "must-echo", "432000"), rec)

	// Failing the handshake would kill the subscription hub-side, so the
	// challenge is echoed even when persistence fails.
	require.NoError(t, h.HandleVerification(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "must-echo", rec.Body.String())
}

func notify(t *testing.T, h *WebhookHandler, body string) (*httptest.ResponseRecorder, error) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/youtube", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, "application/atom+xml")
	rec := httptest.NewRecorder()
	return rec, h.HandleNotification(echo.New().NewContext(req, rec))
}

func TestNotification_RecordsClassifiedEvent(t *testing.T) {
	store := newFakeStore()
	h := NewWebhookHandler(store, &fixedClassifier{eventType: domain.YouTubeEventLive}, clockwork.NewFakeClock())

	rec, err := notify(t, h, sampleFeed)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"received","video_id":"dQw4w9WgXcQ","event_type":"live"}`, rec.Body.String())

	ev := store.events["dQw4w9WgXcQ"]
	assert.Equal(t, "UC123456", ev.ChannelID)
	assert.Equal(t, "Going live soon", ev.VideoTitle)
	assert.Equal(t, "Test Channel", ev.ChannelName)
	assert.Equal(t, domain.YouTubeEventLive, ev.Type)
	assert.Equal(t, time.Date(2026, 8, 28, 11, 0, 0, 0, time.UTC), ev.PublishedAt)
	assert.False(t, ev.IsProcessed)
}

func TestNotification_RedeliveryIsIdempotent(t *testing.T) {
	store := newFakeStore()
	h := NewWebhookHandler(store, &fixedClassifier{eventType: domain.YouTubeEventLive}, clockwork.NewFakeClock())

	for i := 0; i < 3; i++ {
		rec, err := notify(t, h, sampleFeed)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, rec.Code)
	}

	assert.Len(t, store.events, 1, "redelivered notification must collapse into one event")
}

func TestNotification_RedeliveryDoesNotResetProcessed(t *testing.T) {
	store := newFakeStore()
	h := NewWebhookHandler(store, &fixedClassifier{eventType: domain.YouTubeEventLive}, clockwork.NewFakeClock())

	_, err := notify(t, h, sampleFeed)
	require.NoError(t, err)

	ev := store.events["dQw4w9WgXcQ"]
	ev.IsProcessed = true
	store.events["dQw4w9WgXcQ"] = ev

	_, err = notify(t, h, sampleFeed)
	require.NoError(t, err)
	assert.True(t, store.events["dQw4w9WgXcQ"].IsProcessed, "redelivery must not reset is_processed")
}

func TestNotification_DeletionNoticeIgnored(t *testing.T) {
	store := newFakeStore()
	h := NewWebhookHandler(store, &fixedClassifier{eventType: domain.YouTubeEventLive}, clockwork.NewFakeClock())

	rec, err := notify(t, h, deletionNotice)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ignored","reason":"deleted"}`, rec.Body.String())
	assert.Empty(t, store.events)
}

func TestNotification_UnparseablePayloadAcknowledged(t *testing.T) {
	store := newFakeStore()
	h := NewWebhookHandler(store, &fixedClassifier{eventType: domain.YouTubeEventLive}, clockwork.NewFakeClock())

	rec, err := notify(t, h, "this is not a feed")
	require.NoError(t, err)

	// 200, not an error status: a permanently malformed resource must not
	// trigger aggressive hub retries.
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"parsed","message":"No video data found"}`, rec.Body.String())
	assert.Empty(t, store.events)
}

func TestNotification_ClassifierFailureDegrades(t *testing.T) {
	store := newFakeStore()
	h := NewWebhookHandler(store, &fixedClassifier{err: errors.New("quota exceeded")}, clockwork.NewFakeClock())

	rec, err := notify(t, h, sampleFeed)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.YouTubeEventNone, store.events["dQw4w9WgXcQ"].Type,
		"unavailable classifier must degrade to the plain-upload type, not fail ingestion")
}

func TestNotification_NotConfiguredClassifierDegrades(t *testing.T) {
	store := newFakeStore()
	h := NewWebhookHandler(store, &fixedClassifier{err: domain.ErrNotConfigured}, clockwork.NewFakeClock())

	_, err := notify(t, h, sampleFeed)
	require.NoError(t, err)
	assert.Equal(t, domain.YouTubeEventNone, store.events["dQw4w9WgXcQ"].Type)
}

func TestSubscribeThenVerify(t *testing.T) {
	store := newFakeStore()
	hub := &fakeHub{}
	manager := NewManager(hub, store)
	h := NewWebhookHandler(store, &fixedClassifier{eventType: domain.YouTubeEventNone}, clockwork.NewFakeClock())

	sub, err := manager.Subscribe(context.Background(), "UC123")
	require.NoError(t, err)
	assert.Equal(t, domain.YouTubeStatusPending, sub.Status)

	rec := httptest.NewRecorder()
	c := echo.New().NewContext(verificationRequest("subscribe", "UC123", "abc123", "432000"), rec)
	require.NoError(t, h.HandleVerification(c))

	assert.Equal(t, "abc123", rec.Body.String())
	confirmed, err := manager.Status(context.Background(), "UC123")
	require.NoError(t, err)
	assert.Equal(t, domain.YouTubeStatusActive, confirmed.Status)
}
