package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ilindan-dev/clinic-notifier/internal/domain/model"
	repo "github.com/ilindan-dev/clinic-notifier/internal/domain/repository"
	"github.com/ilindan-dev/clinic-notifier/pkg/keybuilder"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var _ repo.NotificationCache = (*NotificationCache)(nil)

// NotificationCache keeps JSON snapshots of scheduled notifications in Redis.
type NotificationCache struct {
	redis  *goredis.Client
	logger zerolog.Logger
}

// NewNotificationCache creates a new instance of the NotificationCache.
func NewNotificationCache(logger *zerolog.Logger, redis *goredis.Client) *NotificationCache {
	return &NotificationCache{
		redis:  redis,
		logger: logger.With().Str("layer", "redis_cache").Logger(),
	}
}

// Get returns the cached snapshot or repo.ErrNotFound on a miss.
func (c *NotificationCache) Get(ctx context.Context, id uuid.UUID) (*model.Notification, error) {
	raw, err := c.redis.Get(ctx, keybuilder.RedisNotificationKeyBuild(id)).Bytes()
	switch {
	case errors.Is(err, goredis.Nil):
		c.logger.Debug().Stringer("notification_id", id).Msg("cache miss")
		return nil, repo.ErrNotFound
	case err != nil:
		return nil, fmt.Errorf("redis: get %s: %w", id, err)
	}

	var n model.Notification
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, fmt.Errorf("redis: decode %s: %w", id, err)
	}
	c.logger.Debug().Stringer("notification_id", id).Str("status", string(n.Status)).Msg("cache hit")
	return &n, nil
}

// Set stores a snapshot of n that expires after ttl.
func (c *NotificationCache) Set(ctx context.Context, n *model.Notification, ttl time.Duration) error {
	raw, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("redis: encode %s: %w", n.ID, err)
	}
	if err := c.redis.Set(ctx, keybuilder.RedisNotificationKeyBuild(n.ID), raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set %s: %w", n.ID, err)
	}
	return nil
}

// Delete drops the snapshots of every given notification in one round trip.
func (c *NotificationCache) Delete(ctx context.Context, ids ...uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = keybuilder.RedisNotificationKeyBuild(id)
	}

	removed, err := c.redis.Del(ctx, keys...).Result()
	if err != nil {
		return fmt.Errorf("redis: delete %d keys: %w", len(keys), err)
	}
	c.logger.Debug().Int("requested", len(keys)).Int64("removed", removed).Msg("cache entries dropped")
	return nil
}
