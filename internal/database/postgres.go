// Package database implements PostgreSQL persistence for subscriptions and
// live events. Upsert-on-conflict is the mechanism that makes hub
// redelivery and out-of-order delivery safe; no application-level locking
// is involved.
package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	slog.Info("Database connected", "min_conns", poolCfg.MinConns, "max_conns", poolCfg.MaxConns)
	return pool, nil
}

// RunMigrations applies the schema at startup. Statements are idempotent so
// concurrent replicas can run them safely.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS twitch_subscriptions (
			subscription_id TEXT UNIQUE NOT NULL,
			broadcaster_id TEXT NOT NULL,
			subscription_type TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (broadcaster_id, subscription_type)
		)`,
		`CREATE TABLE IF NOT EXISTS twitch_live_events (
			id BIGSERIAL PRIMARY KEY,
			broadcaster_id TEXT NOT NULL,
			broadcaster_login TEXT NOT NULL DEFAULT '',
			broadcaster_name TEXT NOT NULL DEFAULT '',
			event_type TEXT NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			raw_payload TEXT NOT NULL DEFAULT '',
			is_processed BOOLEAN NOT NULL DEFAULT FALSE,
			processed_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (broadcaster_id, event_type, started_at)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_twitch_live_events_unprocessed
			ON twitch_live_events (created_at) WHERE NOT is_processed`,
		`CREATE TABLE IF NOT EXISTS youtube_subscriptions (
			channel_id TEXT PRIMARY KEY,
			hub_topic TEXT NOT NULL,
			lease_seconds BIGINT NOT NULL DEFAULT 0,
			subscribed_at TIMESTAMPTZ,
			expires_at TIMESTAMPTZ,
			status TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS youtube_live_events (
			id BIGSERIAL PRIMARY KEY,
			video_id TEXT UNIQUE NOT NULL,
			channel_id TEXT NOT NULL,
			video_title TEXT NOT NULL DEFAULT '',
			channel_name TEXT NOT NULL DEFAULT '',
			published_at TIMESTAMPTZ NOT NULL,
			event_type TEXT NOT NULL,
			raw_payload TEXT NOT NULL DEFAULT '',
			is_processed BOOLEAN NOT NULL DEFAULT FALSE,
			processed_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_youtube_live_events_unprocessed
			ON youtube_live_events (created_at) WHERE NOT is_processed`,
	}

	for _, migration := range migrations {
		if _, err := pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("failed to run migration: %w", err)
		}
	}

	slog.Info("Database migrations completed")
	return nil
}
