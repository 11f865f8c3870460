package server

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) registerRoutes() {
	// Observability endpoints (no auth required)
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Webhook callbacks. Authenticity is per-protocol: HMAC for Twitch,
	// the challenge handshake for YouTube. No rate limiting here — the
	// providers retry aggressively on anything but a fast 2xx.
	if s.deps.TwitchWebhook != nil {
		s.echo.POST("/webhooks/twitch", s.deps.TwitchWebhook.Handle)
	}
	if s.deps.YouTubeWebhook != nil {
		s.echo.GET("/webhooks/youtube", s.deps.YouTubeWebhook.HandleVerification)
		s.echo.POST("/webhooks/youtube", s.deps.YouTubeWebhook.HandleNotification)
	}

	// Admin API. Mutations are rate limited; each subscribe fans out to a
	// provider hub call.
	limiter := newRateLimiter()
	s.echo.GET("/api/twitch/subscriptions", s.handleTwitchListSubscriptions)
	s.echo.POST("/api/twitch/subscriptions", s.handleTwitchSubscribe, limiter)
	s.echo.DELETE("/api/twitch/subscriptions/:id", s.handleTwitchUnsubscribe, limiter)
	s.echo.GET("/api/twitch/users", s.handleTwitchUserLookup)

	s.echo.GET("/api/youtube/subscriptions", s.handleYouTubeListSubscriptions)
	s.echo.GET("/api/youtube/subscriptions/:channel_id", s.handleYouTubeSubscriptionStatus)
	s.echo.POST("/api/youtube/subscriptions", s.handleYouTubeSubscribe, limiter)
	s.echo.DELETE("/api/youtube/subscriptions/:channel_id", s.handleYouTubeUnsubscribe, limiter)

	// Events consumer API, polled by the bot.
	s.echo.GET("/api/twitch/events", s.handleTwitchListEvents)
	s.echo.POST("/api/twitch/events/:id/processed", s.handleTwitchMarkProcessed)
	s.echo.GET("/api/youtube/events", s.handleYouTubeListEvents)
	s.echo.POST("/api/youtube/events/:video_id/processed", s.handleYouTubeMarkProcessed)
}
