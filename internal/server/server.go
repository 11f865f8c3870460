package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/mukliesthethird-lab/dashboard-bot-sub001/internal/domain"
	apperrors "github.com/mukliesthethird-lab/dashboard-bot-sub001/internal/errors"
	"github.com/mukliesthethird-lab/dashboard-bot-sub001/internal/platform/config"
	"github.com/mukliesthethird-lab/dashboard-bot-sub001/internal/platform/correlation"
)

// twitchWebhookHandler handles EventSub deliveries (nil when Twitch is not
// configured).
type twitchWebhookHandler interface {
	Handle(c echo.Context) error
}

// youtubeWebhookHandler handles the WebSub callback.
type youtubeWebhookHandler interface {
	HandleVerification(c echo.Context) error
	HandleNotification(c echo.Context) error
}

// twitchManager drives the EventSub subscription lifecycle.
type twitchManager interface {
	Subscribe(ctx context.Context, broadcasterID string, subType domain.TwitchEventType) (*domain.TwitchSubscription, error)
	Unsubscribe(ctx context.Context, subscriptionID string) error
	List(ctx context.Context) ([]domain.TwitchSubscription, error)
}

// youtubeManager drives the WebSub subscription lifecycle.
type youtubeManager interface {
	Subscribe(ctx context.Context, channelID string) (*domain.YouTubeSubscription, error)
	Unsubscribe(ctx context.Context, channelID string) error
	Status(ctx context.Context, channelID string) (*domain.YouTubeSubscription, error)
	ListActive(ctx context.Context) ([]domain.YouTubeSubscription, error)
}

// userLookup resolves Twitch login names, optionally through the Redis
// profile cache.
type userLookup interface {
	GetUserByLogin(ctx context.Context, login string) (*domain.TwitchUser, error)
}

// twitchEventStore is the consumer surface over recorded Twitch events.
type twitchEventStore interface {
	ListUnprocessedEvents(ctx context.Context, limit int) ([]domain.TwitchLiveEvent, error)
	MarkEventProcessed(ctx context.Context, id int64) error
}

// youtubeEventStore is the consumer surface over recorded YouTube events.
type youtubeEventStore interface {
	ListUnprocessedEvents(ctx context.Context, limit int) ([]domain.YouTubeLiveEvent, error)
	MarkEventProcessed(ctx context.Context, videoID string) error
}

// Deps carries everything the server serves. Provider-specific fields are
// nil when that integration is not configured; their routes then answer
// with a configuration error instead of panicking.
type Deps struct {
	TwitchWebhook  twitchWebhookHandler
	TwitchManager  twitchManager
	TwitchUsers    userLookup
	TwitchEvents   twitchEventStore
	YouTubeWebhook youtubeWebhookHandler
	YouTubeManager youtubeManager
	YouTubeEvents  youtubeEventStore
	Health         HealthCheckers
}

type Server struct {
	echo      *echo.Echo
	config    *config.Config
	deps      Deps
	startTime time.Time
}

func NewServer(cfg *config.Config, deps Deps) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(correlationMiddleware())
	e.Use(apperrors.Middleware())

	srv := &Server{
		echo:      e,
		config:    cfg,
		deps:      deps,
		startTime: time.Now(),
	}
	srv.registerRoutes()
	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	return s.echo.Start(fmt.Sprintf(":%s", s.config.Port))
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// correlationMiddleware tags each request with an ID that follows it
// through logs and comes back in the response headers.
func correlationMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := c.Request().Header.Get("X-Correlation-Id")
			if id == "" {
				id = correlation.NewID()
			}

			ctx := correlation.WithID(c.Request().Context(), id)
			c.SetRequest(c.Request().WithContext(ctx))
			c.Response().Header().Set("X-Correlation-Id", id)
			return next(c)
		}
	}
}
