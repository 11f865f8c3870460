package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

// Config is loaded from the environment at startup. Twitch settings form a
// group: either all of client ID, client secret, webhook secret, and
// callback URL are set, or the Twitch integration is disabled. The YouTube
// integration only needs a callback URL; the Data API key is optional and
// its absence degrades broadcast classification.
type Config struct {
	AppEnv      string `env:"APP_ENV" default:"development"`
	Port        string `env:"PORT" default:"8080"`
	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`

	TwitchClientID      string `env:"TWITCH_CLIENT_ID"`
	TwitchClientSecret  string `env:"TWITCH_CLIENT_SECRET"`
	TwitchWebhookSecret string `env:"TWITCH_WEBHOOK_SECRET"`
	TwitchCallbackURL   string `env:"TWITCH_CALLBACK_URL"`

	YouTubeHubURL      string `env:"YOUTUBE_HUB_URL" default:"https://pubsubhubbub.appspot.com/subscribe"`
	YouTubeCallbackURL string `env:"YOUTUBE_CALLBACK_URL"`
	YouTubeAPIKey      string `env:"YOUTUBE_API_KEY"`

	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	HTTPClientTimeout time.Duration `env:"HTTP_CLIENT_TIMEOUT" default:"10s"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// TwitchConfigured reports whether the Twitch integration can run.
func (c *Config) TwitchConfigured() bool {
	return c.TwitchClientID != "" && c.TwitchClientSecret != "" &&
		c.TwitchWebhookSecret != "" && c.TwitchCallbackURL != ""
}

// YouTubeConfigured reports whether the YouTube integration can run.
func (c *Config) YouTubeConfigured() bool {
	return c.YouTubeCallbackURL != ""
}

func validate(cfg *Config) error {
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}

	// Twitch settings are all-or-nothing: a partial group means a typo,
	// not an intentionally disabled integration.
	twitchSet := cfg.TwitchClientID != "" || cfg.TwitchClientSecret != "" ||
		cfg.TwitchWebhookSecret != "" || cfg.TwitchCallbackURL != ""
	if twitchSet && !cfg.TwitchConfigured() {
		return errors.New("TWITCH_CLIENT_ID, TWITCH_CLIENT_SECRET, TWITCH_WEBHOOK_SECRET, and TWITCH_CALLBACK_URL must be set together")
	}

	// Twitch rejects webhook secrets outside this range.
	if cfg.TwitchWebhookSecret != "" {
		if len(cfg.TwitchWebhookSecret) < 10 || len(cfg.TwitchWebhookSecret) > 100 {
			return errors.New("TWITCH_WEBHOOK_SECRET must be between 10 and 100 characters")
		}
	}

	if cfg.YouTubeAPIKey != "" && cfg.YouTubeCallbackURL == "" {
		return errors.New("YOUTUBE_CALLBACK_URL is required when YOUTUBE_API_KEY is set")
	}

	return nil
}
