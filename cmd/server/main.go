package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"

	"github.com/mukliesthethird-lab/dashboard-bot-sub001/internal/database"
	"github.com/mukliesthethird-lab/dashboard-bot-sub001/internal/platform/config"
	"github.com/mukliesthethird-lab/dashboard-bot-sub001/internal/platform/logging"
	"github.com/mukliesthethird-lab/dashboard-bot-sub001/internal/redis"
	"github.com/mukliesthethird-lab/dashboard-bot-sub001/internal/server"
	"github.com/mukliesthethird-lab/dashboard-bot-sub001/internal/twitch"
	"github.com/mukliesthethird-lab/dashboard-bot-sub001/internal/youtube"
)

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupDB(cfg *config.Config) *pgxpool.Pool {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := database.RunMigrations(ctx, pool); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	return pool
}

func setupRedis(cfg *config.Config) *redis.Client {
	client, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		slog.Error("Failed to create Redis client", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx); err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

// initTwitch wires the EventSub integration when credentials are present.
func initTwitch(cfg *config.Config, repo *database.TwitchRepo, redisClient *redis.Client, clock clockwork.Clock, deps *server.Deps) {
	if !cfg.TwitchConfigured() {
		slog.Info("Twitch credentials not set, EventSub integration disabled")
		return
	}

	httpClient := &http.Client{Timeout: cfg.HTTPClientTimeout}
	tokens := twitch.NewAppTokenSource(cfg.TwitchClientID, cfg.TwitchClientSecret, httpClient, clock)
	client := twitch.NewClient(cfg.TwitchClientID, tokens, httpClient)

	deps.TwitchManager = twitch.NewManager(client, repo, cfg.TwitchCallbackURL, cfg.TwitchWebhookSecret)
	deps.TwitchWebhook = twitch.NewWebhookHandler(cfg.TwitchWebhookSecret, repo, clock)
	deps.TwitchEvents = repo

	if redisClient != nil {
		deps.TwitchUsers = redis.NewProfileCache(redisClient.Underlying(), client)
	} else {
		deps.TwitchUsers = client
	}
}

// initYouTube wires the WebSub integration when a callback URL is present.
// The returned renewer keeps hub leases alive; nil when disabled.
func initYouTube(cfg *config.Config, repo *database.YouTubeRepo, clock clockwork.Clock, deps *server.Deps) *youtube.LeaseRenewer {
	if !cfg.YouTubeConfigured() {
		slog.Info("YouTube callback URL not set, WebSub integration disabled")
		return nil
	}

	httpClient := &http.Client{Timeout: cfg.HTTPClientTimeout}
	hub := youtube.NewHubClient(cfg.YouTubeHubURL, cfg.YouTubeCallbackURL, httpClient)
	classifier := youtube.NewBroadcastClassifier(cfg.YouTubeAPIKey, httpClient)
	manager := youtube.NewManager(hub, repo)

	deps.YouTubeManager = manager
	deps.YouTubeWebhook = youtube.NewWebhookHandler(repo, classifier, clock)
	deps.YouTubeEvents = repo

	return youtube.NewLeaseRenewer(manager, repo, clock)
}

func runGracefulShutdown(srv *server.Server) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.Init(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port)

	pool := setupDB(cfg)
	defer pool.Close()

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient = setupRedis(cfg)
		defer func() { _ = redisClient.Close() }()
	}

	twitchRepo := database.NewTwitchRepo(pool)
	youtubeRepo := database.NewYouTubeRepo(pool)

	deps := server.Deps{
		Health: server.HealthCheckers{Postgres: pool},
	}
	if redisClient != nil {
		deps.Health.Redis = redisClient
	}

	initTwitch(cfg, twitchRepo, redisClient, clock, &deps)
	renewer := initYouTube(cfg, youtubeRepo, clock, &deps)
	if renewer != nil {
		go renewer.Start(context.Background())
		defer renewer.Stop()
	}

	srv := server.NewServer(cfg, deps)
	done := runGracefulShutdown(srv)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
	slog.Info("Shutdown complete")
}
