package devices

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/syncpulse-dev/notify-worker/internal/domain/model"
	"github.com/syncpulse-dev/notify-worker/pkg/keybuilder"
)

// deviceCacheTTL bounds how long a stale device list can survive a token
// registration change elsewhere in the system before the registry falls
// back to the DB again on its own.
const deviceCacheTTL = 10 * time.Minute

// errCacheMiss is the cache layer's own not-found sentinel, kept separate
// from db.ErrNotFound since an empty device list is a valid cached value
// and not itself a miss.
var errCacheMiss = errors.New("devices: cache miss")

// cache is the Redis-backed read-through layer, mirroring the teacher's
// NotificationCache shape.
type cache struct {
	redis  *redis.Client
	logger zerolog.Logger
}

func newCache(redis *redis.Client, logger *zerolog.Logger) *cache {
	return &cache{
		redis:  redis,
		logger: logger.With().Str("component", "devices_redis_cache").Logger(),
	}
}

func (c *cache) get(ctx context.Context, userID uuid.UUID) ([]model.Device, error) {
	key := keybuilder.DevicesKey(userID)
	val, err := c.redis.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errCacheMiss
		}
		c.logger.Warn().Err(err).Str("key", key).Msg("failed to get key from redis")
		return nil, err
	}

	var devices []model.Device
	if err := json.Unmarshal([]byte(val), &devices); err != nil {
		return nil, fmt.Errorf("devices: unmarshal cached devices: %w", err)
	}
	return devices, nil
}

func (c *cache) set(ctx context.Context, userID uuid.UUID, devices []model.Device) error {
	key := keybuilder.DevicesKey(userID)
	raw, err := json.Marshal(devices)
	if err != nil {
		return fmt.Errorf("devices: marshal devices for cache: %w", err)
	}
	if err := c.redis.Set(ctx, key, raw, deviceCacheTTL).Err(); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("failed to set key in redis")
		return err
	}
	return nil
}

func (c *cache) invalidate(ctx context.Context, userID uuid.UUID) error {
	key := keybuilder.DevicesKey(userID)
	if err := c.redis.Del(ctx, key).Err(); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("failed to delete key from redis")
		return err
	}
	return nil
}

// CachedRegistry is a cache-aside decorator over a Registry, read-through on
// ForUser and invalidate-on-write on Forget, the same pattern the teacher
// applies to its notification repository.
type CachedRegistry struct {
	primary Registry
	cache   *cache
	logger  zerolog.Logger
}

// NewCachedRegistry wraps primary with a Redis read-through cache.
func NewCachedRegistry(primary Registry, rdb *redis.Client, logger *zerolog.Logger) *CachedRegistry {
	return &CachedRegistry{
		primary: primary,
		cache:   newCache(rdb, logger),
		logger:  logger.With().Str("component", "devices_cached_registry").Logger(),
	}
}

// ForUser implements the cache-aside pattern: try the cache, fall back to
// primary on a miss or a Redis error, and warm the cache on the way out.
func (r *CachedRegistry) ForUser(ctx context.Context, userID uuid.UUID) ([]model.Device, error) {
	cached, err := r.cache.get(ctx, userID)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, errCacheMiss) {
		r.logger.Warn().Err(err).Stringer("user_id", userID).Msg("cache get error, falling back to registry")
	}

	devices, err := r.primary.ForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if err := r.cache.set(ctx, userID, devices); err != nil {
		r.logger.Warn().Err(err).Stringer("user_id", userID).Msg("failed to warm cache after registry read")
	}

	return devices, nil
}

// Forget deletes from the primary registry first, then invalidates the
// cached list so the next ForUser re-reads ground truth.
func (r *CachedRegistry) Forget(ctx context.Context, userID uuid.UUID, token string) error {
	if err := r.primary.Forget(ctx, userID, token); err != nil {
		return err
	}

	if err := r.cache.invalidate(ctx, userID); err != nil {
		r.logger.Warn().Err(err).Stringer("user_id", userID).Msg("failed to invalidate cache after forget")
	}

	return nil
}
