package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/mukliesthethird-lab/dashboard-bot-sub001/internal/domain"
	"github.com/mukliesthethird-lab/dashboard-bot-sub001/internal/metrics"
)

const (
	profileCachePrefix = "twitch_profile:"
	profileCacheTTL    = 1 * time.Hour
)

// UserSource is the upstream lookup the cache falls through to on a miss.
type UserSource interface {
	GetUserByLogin(ctx context.Context, login string) (*domain.TwitchUser, error)
}

// ProfileCache provides read-through caching of Twitch user profiles:
// Redis → helix API. Profiles change rarely, so a fixed TTL is enough;
// there is no invalidation path.
type ProfileCache struct {
	rdb    goredis.Cmdable
	source UserSource
}

// NewProfileCache creates a read-through profile cache over source.
func NewProfileCache(rdb goredis.Cmdable, source UserSource) *ProfileCache {
	return &ProfileCache{rdb: rdb, source: source}
}

// GetUserByLogin looks up a Twitch user by login with read-through caching.
// Redis failures degrade to a direct API call; only the upstream lookup can
// fail the request. ErrUserNotFound is not cached, so a freshly created
// account becomes visible on the next lookup.
func (p *ProfileCache) GetUserByLogin(ctx context.Context, login string) (*domain.TwitchUser, error) {
	key := profileCachePrefix + login

	data, err := p.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var user domain.TwitchUser
		if err := json.Unmarshal(data, &user); err != nil {
			slog.Warn("Failed to unmarshal cached profile, falling through to helix",
				"login", login, "error", err)
		} else {
			metrics.ProfileCacheHits.Inc()
			return &user, nil
		}
	} else if !errors.Is(err, goredis.Nil) {
		slog.Warn("Redis profile cache GET failed, falling through to helix",
			"login", login, "error", err)
	}

	user, err := p.source.GetUserByLogin(ctx, login)
	if err != nil {
		return nil, fmt.Errorf("profile lookup by login failed: %w", err)
	}

	metrics.ProfileCacheMisses.Inc()

	// Populate Redis cache (best-effort)
	if encoded, err := json.Marshal(user); err == nil {
		if err := p.rdb.Set(ctx, key, encoded, profileCacheTTL).Err(); err != nil {
			slog.Warn("Failed to populate Redis profile cache",
				"login", login, "error", err)
		}
	}

	return user, nil
}
