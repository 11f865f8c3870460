package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/mukliesthethird-lab/dashboard-bot-sub001/internal/domain"
	apperrors "github.com/mukliesthethird-lab/dashboard-bot-sub001/internal/errors"
	"github.com/mukliesthethird-lab/dashboard-bot-sub001/internal/twitch"
)

type twitchSubscribeRequest struct {
	BroadcasterID string `json:"broadcaster_id"`
	Type          string `json:"type"`
}

func (s *Server) handleTwitchSubscribe(c echo.Context) error {
	if s.deps.TwitchManager == nil {
		return apperrors.InternalError("twitch integration not configured", domain.ErrNotConfigured)
	}

	var req twitchSubscribeRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}
	if req.BroadcasterID == "" {
		return apperrors.ValidationError("broadcaster_id is required")
	}

	subType := domain.TwitchEventType(req.Type)
	if req.Type == "" {
		subType = domain.TwitchStreamOnline
	}
	if subType != domain.TwitchStreamOnline && subType != domain.TwitchStreamOffline {
		return apperrors.ValidationError("type must be stream.online or stream.offline").
			WithField("type", req.Type)
	}

	sub, err := s.deps.TwitchManager.Subscribe(c.Request().Context(), req.BroadcasterID, subType)
	if err != nil {
		return twitchProviderError("subscribe request rejected by Twitch", err)
	}
	return c.JSON(http.StatusCreated, sub)
}

func (s *Server) handleTwitchUnsubscribe(c echo.Context) error {
	if s.deps.TwitchManager == nil {
		return apperrors.InternalError("twitch integration not configured", domain.ErrNotConfigured)
	}

	subscriptionID := c.Param("id")
	if err := s.deps.TwitchManager.Unsubscribe(c.Request().Context(), subscriptionID); err != nil {
		if errors.Is(err, domain.ErrSubscriptionNotFound) {
			return apperrors.NotFoundError("subscription not found").WithField("subscription_id", subscriptionID)
		}
		return twitchProviderError("unsubscribe request rejected by Twitch", err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleTwitchListSubscriptions(c echo.Context) error {
	if s.deps.TwitchManager == nil {
		return apperrors.InternalError("twitch integration not configured", domain.ErrNotConfigured)
	}

	subs, err := s.deps.TwitchManager.List(c.Request().Context())
	if err != nil {
		return apperrors.InternalError("failed to list subscriptions", err)
	}
	return c.JSON(http.StatusOK, map[string]any{"subscriptions": subs})
}

func (s *Server) handleTwitchUserLookup(c echo.Context) error {
	if s.deps.TwitchUsers == nil {
		return apperrors.InternalError("twitch integration not configured", domain.ErrNotConfigured)
	}

	login := c.QueryParam("login")
	if login == "" {
		return apperrors.ValidationError("login is required")
	}

	user, err := s.deps.TwitchUsers.GetUserByLogin(c.Request().Context(), login)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return apperrors.NotFoundError("twitch user not found").WithField("login", login)
		}
		return twitchProviderError("user lookup failed", err)
	}
	return c.JSON(http.StatusOK, user)
}

func (s *Server) handleTwitchListEvents(c echo.Context) error {
	if s.deps.TwitchEvents == nil {
		return apperrors.InternalError("twitch integration not configured", domain.ErrNotConfigured)
	}

	limit := eventLimit(c)
	events, err := s.deps.TwitchEvents.ListUnprocessedEvents(c.Request().Context(), limit)
	if err != nil {
		return apperrors.InternalError("failed to list events", err)
	}
	return c.JSON(http.StatusOK, map[string]any{"events": events})
}

func (s *Server) handleTwitchMarkProcessed(c echo.Context) error {
	if s.deps.TwitchEvents == nil {
		return apperrors.InternalError("twitch integration not configured", domain.ErrNotConfigured)
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return apperrors.ValidationError("event id must be an integer")
	}

	if err := s.deps.TwitchEvents.MarkEventProcessed(c.Request().Context(), id); err != nil {
		if errors.Is(err, domain.ErrEventNotFound) {
			return apperrors.NotFoundError("event not found").WithField("event_id", id)
		}
		return apperrors.InternalError("failed to mark event processed", err)
	}
	return c.NoContent(http.StatusNoContent)
}

// twitchProviderError surfaces the provider's own error body to the admin
// caller for debuggability.
func twitchProviderError(message string, err error) error {
	var apiErr *twitch.APIError
	if errors.As(err, &apiErr) {
		return apperrors.ExternalError(message, err).
			WithField("provider_status", apiErr.StatusCode).
			WithField("provider_body", apiErr.Body)
	}
	var credErr *twitch.CredentialError
	if errors.As(err, &credErr) {
		return apperrors.InternalError("token exchange with Twitch failed", err).
			WithField("provider_status", credErr.StatusCode).
			WithField("provider_body", credErr.Body)
	}
	return apperrors.InternalError(message, err)
}

func eventLimit(c echo.Context) int {
	limit := 50
	if v, err := strconv.Atoi(c.QueryParam("limit")); err == nil && v > 0 && v <= 500 {
		limit = v
	}
	return limit
}
