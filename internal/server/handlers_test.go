package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mukliesthethird-lab/dashboard-bot-sub001/internal/domain"
	"github.com/mukliesthethird-lab/dashboard-bot-sub001/internal/platform/config"
	"github.com/mukliesthethird-lab/dashboard-bot-sub001/internal/twitch"
	"github.com/mukliesthethird-lab/dashboard-bot-sub001/internal/youtube"
)

type stubTwitchManager struct {
	subscribeErr   error
	unsubscribeErr error
	subs           []domain.TwitchSubscription
}

func (s *stubTwitchManager) Subscribe(_ context.Context, broadcasterID string, subType domain.TwitchEventType) (*domain.TwitchSubscription, error) {
	if s.subscribeErr != nil {
		return nil, s.subscribeErr
	}
	return &domain.TwitchSubscription{
		SubscriptionID: "sub-1",
		BroadcasterID:  broadcasterID,
		Type:           subType,
		Status:         domain.TwitchStatusPending,
	}, nil
}

func (s *stubTwitchManager) Unsubscribe(context.Context, string) error { return s.unsubscribeErr }

func (s *stubTwitchManager) List(context.Context) ([]domain.TwitchSubscription, error) {
	return s.subs, nil
}

type stubUserLookup struct {
	user *domain.TwitchUser
	err  error
}

func (s *stubUserLookup) GetUserByLogin(context.Context, string) (*domain.TwitchUser, error) {
	return s.user, s.err
}

type stubTwitchEvents struct {
	events    []domain.TwitchLiveEvent
	processed []int64
	markErr   error
}

func (s *stubTwitchEvents) ListUnprocessedEvents(context.Context, int) ([]domain.TwitchLiveEvent, error) {
	return s.events, nil
}

func (s *stubTwitchEvents) MarkEventProcessed(_ context.Context, id int64) error {
	if s.markErr != nil {
		return s.markErr
	}
	s.processed = append(s.processed, id)
	return nil
}

type stubYouTubeManager struct {
	subscribeErr error
	status       *domain.YouTubeSubscription
	statusErr    error
}

func (s *stubYouTubeManager) Subscribe(_ context.Context, channelID string) (*domain.YouTubeSubscription, error) {
	if s.subscribeErr != nil {
		return nil, s.subscribeErr
	}
	return &domain.YouTubeSubscription{ChannelID: channelID, Status: domain.YouTubeStatusPending}, nil
}

func (s *stubYouTubeManager) Unsubscribe(context.Context, string) error { return nil }

func (s *stubYouTubeManager) Status(context.Context, string) (*domain.YouTubeSubscription, error) {
	return s.status, s.statusErr
}

func (s *stubYouTubeManager) ListActive(context.Context) ([]domain.YouTubeSubscription, error) {
	return nil, nil
}

func newTestServer(deps Deps) *Server {
	return NewServer(&config.Config{Port: "8080"}, deps)
}

func do(s *Server, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func TestTwitchSubscribe_Created(t *testing.T) {
	s := newTestServer(Deps{TwitchManager: &stubTwitchManager{}})

	rec := do(s, http.MethodPost, "/api/twitch/subscriptions", `{"broadcaster_id":"12345","type":"stream.online"}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	var sub domain.TwitchSubscription
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sub))
	assert.Equal(t, "12345", sub.BroadcasterID)
	assert.Equal(t, domain.TwitchStatusPending, sub.Status)
	assert.Contains(t, rec.Body.String(), `"subscription_id":"sub-1"`, "wire keys are snake_case")
}

func TestTwitchSubscribe_MissingBroadcaster(t *testing.T) {
	s := newTestServer(Deps{TwitchManager: &stubTwitchManager{}})

	rec := do(s, http.MethodPost, "/api/twitch/subscriptions", `{"type":"stream.online"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTwitchSubscribe_InvalidType(t *testing.T) {
	s := newTestServer(Deps{TwitchManager: &stubTwitchManager{}})

	rec := do(s, http.MethodPost, "/api/twitch/subscriptions", `{"broadcaster_id":"12345","type":"channel.follow"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTwitchSubscribe_NotConfigured(t *testing.T) {
	s := newTestServer(Deps{})

	rec := do(s, http.MethodPost, "/api/twitch/subscriptions", `{"broadcaster_id":"12345"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestTwitchSubscribe_ProviderErrorSurfaced(t *testing.T) {
	s := newTestServer(Deps{TwitchManager: &stubTwitchManager{
		subscribeErr: &twitch.APIError{StatusCode: 403, Body: `{"message":"subscription missing proper authorization"}`},
	}})

	rec := do(s, http.MethodPost, "/api/twitch/subscriptions", `{"broadcaster_id":"12345"}`)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	var resp struct {
		Context map[string]any `json:"context"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, float64(403), resp.Context["provider_status"])
	assert.Contains(t, resp.Context["provider_body"], "proper authorization")
}

func TestTwitchUnsubscribe_NotFound(t *testing.T) {
	s := newTestServer(Deps{TwitchManager: &stubTwitchManager{
		unsubscribeErr: domain.ErrSubscriptionNotFound,
	}})

	rec := do(s, http.MethodDelete, "/api/twitch/subscriptions/sub-missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTwitchUserLookup(t *testing.T) {
	s := newTestServer(Deps{TwitchUsers: &stubUserLookup{
		user: &domain.TwitchUser{ID: "12345", Login: "streamer", DisplayName: "Streamer"},
	}})

	rec := do(s, http.MethodGet, "/api/twitch/users?login=streamer", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var user domain.TwitchUser
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &user))
	assert.Equal(t, "12345", user.ID)
}

func TestTwitchUserLookup_NotFound(t *testing.T) {
	s := newTestServer(Deps{TwitchUsers: &stubUserLookup{err: domain.ErrUserNotFound}})

	rec := do(s, http.MethodGet, "/api/twitch/users?login=ghost", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTwitchUserLookup_MissingLogin(t *testing.T) {
	s := newTestServer(Deps{TwitchUsers: &stubUserLookup{}})

	rec := do(s, http.MethodGet, "/api/twitch/users", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTwitchEvents_ListAndMarkProcessed(t *testing.T) {
	events := &stubTwitchEvents{events: []domain.TwitchLiveEvent{
		{ID: 7, BroadcasterID: "12345", Type: domain.TwitchStreamOnline, StartedAt: time.Now()},
	}}
	s := newTestServer(Deps{TwitchEvents: events})

	rec := do(s, http.MethodGet, "/api/twitch/events?limit=10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"events"`)
	assert.Contains(t, rec.Body.String(), `"broadcaster_id":"12345"`, "wire keys are snake_case")
	assert.Contains(t, rec.Body.String(), `"event_type":"stream.online"`)
	assert.Contains(t, rec.Body.String(), `"is_processed":false`)

	rec = do(s, http.MethodPost, "/api/twitch/events/7/processed", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []int64{7}, events.processed)
}

func TestTwitchMarkProcessed_BadID(t *testing.T) {
	s := newTestServer(Deps{TwitchEvents: &stubTwitchEvents{}})

	rec := do(s, http.MethodPost, "/api/twitch/events/seven/processed", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTwitchMarkProcessed_NotFound(t *testing.T) {
	s := newTestServer(Deps{TwitchEvents: &stubTwitchEvents{markErr: domain.ErrEventNotFound}})

	rec := do(s, http.MethodPost, "/api/twitch/events/99/processed", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestYouTubeSubscribe_Created(t *testing.T) {
	s := newTestServer(Deps{YouTubeManager: &stubYouTubeManager{}})

	rec := do(s, http.MethodPost, "/api/youtube/subscriptions", `{"channel_id":"UC123"}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"channel_id":"UC123"`, "wire keys are snake_case")
	assert.Contains(t, rec.Body.String(), `"status":"pending"`)
}

func TestYouTubeSubscribe_HubErrorSurfaced(t *testing.T) {
	s := newTestServer(Deps{YouTubeManager: &stubYouTubeManager{
		subscribeErr: &youtube.HubError{StatusCode: 400, Body: "callback is not reachable"},
	}})

	rec := do(s, http.MethodPost, "/api/youtube/subscriptions", `{"channel_id":"UC123"}`)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	var resp struct {
		Context map[string]any `json:"context"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, float64(400), resp.Context["provider_status"])
	assert.Contains(t, resp.Context["provider_body"], "not reachable")
}

func TestYouTubeStatus_NotSubscribed(t *testing.T) {
	s := newTestServer(Deps{YouTubeManager: &stubYouTubeManager{
		statusErr: domain.ErrSubscriptionNotFound,
	}})

	rec := do(s, http.MethodGet, "/api/youtube/subscriptions/UC404", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"not_subscribed","channel_id":"UC404"}`, rec.Body.String())
}

func TestYouTubeSubscribe_NotConfigured(t *testing.T) {
	s := newTestServer(Deps{})

	rec := do(s, http.MethodPost, "/api/youtube/subscriptions", `{"channel_id":"UC123"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHealthLive(t *testing.T) {
	s := newTestServer(Deps{})

	rec := do(s, http.MethodGet, "/health/live", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

type failingPinger struct{ err error }

func (p *failingPinger) Ping(context.Context) error { return p.err }

func TestHealthReady(t *testing.T) {
	s := newTestServer(Deps{Health: HealthCheckers{Postgres: &failingPinger{}}})

	rec := do(s, http.MethodGet, "/health/ready", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthReady_FailingDependency(t *testing.T) {
	s := newTestServer(Deps{Health: HealthCheckers{
		Postgres: &failingPinger{},
		Redis:    &failingPinger{err: errors.New("connection refused")},
	}})

	rec := do(s, http.MethodGet, "/health/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"failed_check":"redis"`)
}

func TestCorrelationIDHeader(t *testing.T) {
	s := newTestServer(Deps{})

	rec := do(s, http.MethodGet, "/health/live", "")
	assert.NotEmpty(t, rec.Header().Get("X-Correlation-Id"))
}

func TestWebhookRoutesAbsentWhenNotConfigured(t *testing.T) {
	s := newTestServer(Deps{})

	rec := do(s, http.MethodPost, "/webhooks/twitch", "{}")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
