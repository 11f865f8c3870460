package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mukliesthethird-lab/dashboard-bot-sub001/internal/domain"
	apperrors "github.com/mukliesthethird-lab/dashboard-bot-sub001/internal/errors"
	"github.com/mukliesthethird-lab/dashboard-bot-sub001/internal/youtube"
)

type youtubeSubscribeRequest struct {
	ChannelID string `json:"channel_id"`
}

func (s *Server) handleYouTubeSubscribe(c echo.Context) error {
	if s.deps.YouTubeManager == nil {
		return apperrors.InternalError("youtube integration not configured", domain.ErrNotConfigured)
	}

	var req youtubeSubscribeRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}
	if req.ChannelID == "" {
		return apperrors.ValidationError("channel_id is required")
	}

	sub, err := s.deps.YouTubeManager.Subscribe(c.Request().Context(), req.ChannelID)
	if err != nil {
		return youtubeProviderError("subscribe request rejected by hub", err)
	}
	return c.JSON(http.StatusCreated, sub)
}

func (s *Server) handleYouTubeUnsubscribe(c echo.Context) error {
	if s.deps.YouTubeManager == nil {
		return apperrors.InternalError("youtube integration not configured", domain.ErrNotConfigured)
	}

	channelID := c.Param("channel_id")
	if err := s.deps.YouTubeManager.Unsubscribe(c.Request().Context(), channelID); err != nil {
		return youtubeProviderError("unsubscribe request rejected by hub", err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleYouTubeListSubscriptions(c echo.Context) error {
	if s.deps.YouTubeManager == nil {
		return apperrors.InternalError("youtube integration not configured", domain.ErrNotConfigured)
	}

	subs, err := s.deps.YouTubeManager.ListActive(c.Request().Context())
	if err != nil {
		return apperrors.InternalError("failed to list subscriptions", err)
	}
	return c.JSON(http.StatusOK, map[string]any{"subscriptions": subs})
}

func (s *Server) handleYouTubeSubscriptionStatus(c echo.Context) error {
	if s.deps.YouTubeManager == nil {
		return apperrors.InternalError("youtube integration not configured", domain.ErrNotConfigured)
	}

	channelID := c.Param("channel_id")
	sub, err := s.deps.YouTubeManager.Status(c.Request().Context(), channelID)
	if err != nil {
		if errors.Is(err, domain.ErrSubscriptionNotFound) {
			return c.JSON(http.StatusOK, map[string]string{
				"status":     "not_subscribed",
				"channel_id": channelID,
			})
		}
		return apperrors.InternalError("failed to look up subscription", err)
	}
	return c.JSON(http.StatusOK, sub)
}

func (s *Server) handleYouTubeListEvents(c echo.Context) error {
	if s.deps.YouTubeEvents == nil {
		return apperrors.InternalError("youtube integration not configured", domain.ErrNotConfigured)
	}

	events, err := s.deps.YouTubeEvents.ListUnprocessedEvents(c.Request().Context(), eventLimit(c))
	if err != nil {
		return apperrors.InternalError("failed to list events", err)
	}
	return c.JSON(http.StatusOK, map[string]any{"events": events})
}

func (s *Server) handleYouTubeMarkProcessed(c echo.Context) error {
	if s.deps.YouTubeEvents == nil {
		return apperrors.InternalError("youtube integration not configured", domain.ErrNotConfigured)
	}

	videoID := c.Param("video_id")
	if err := s.deps.YouTubeEvents.MarkEventProcessed(c.Request().Context(), videoID); err != nil {
		if errors.Is(err, domain.ErrEventNotFound) {
			return apperrors.NotFoundError("event not found").WithField("video_id", videoID)
		}
		return apperrors.InternalError("failed to mark event processed", err)
	}
	return c.NoContent(http.StatusNoContent)
}

// youtubeProviderError surfaces the hub's own error body to the admin
// caller for debuggability.
func youtubeProviderError(message string, err error) error {
	var hubErr *youtube.HubError
	if errors.As(err, &hubErr) {
		return apperrors.ExternalError(message, err).
			WithField("provider_status", hubErr.StatusCode).
			WithField("provider_body", hubErr.Body)
	}
	return apperrors.InternalError(message, err)
}
