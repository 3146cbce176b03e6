package push

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/syncpulse-dev/notify-worker/pkg/keybuilder"
)

// redisTokenCache shares the FCM access token across worker replicas so a
// fleet of N workers performs roughly one refresh instead of N (spec.md §9),
// mirroring the teacher's Redis cache-aside decorator shape. Any Redis error
// is swallowed and treated as a cache miss: the in-process cache in front of
// this one still works, it just won't be shared until Redis recovers.
type redisTokenCache struct {
	rdb       *redis.Client
	projectID string
	logger    zerolog.Logger
}

// newRedisTokenCache wraps an existing Redis client; rdb may be nil, in
// which case callers should pass a nil backingCache instead of this type.
func newRedisTokenCache(rdb *redis.Client, projectID string, logger *zerolog.Logger) *redisTokenCache {
	return &redisTokenCache{
		rdb:       rdb,
		projectID: projectID,
		logger:    logger.With().Str("component", "push_token_redis_cache").Logger(),
	}
}

// Load reads the shared token. The value stores the Unix expiry alongside
// the token text, separated by '|', so any instance can compute validity
// without a second round trip.
func (c *redisTokenCache) Load(ctx context.Context) (string, time.Time, bool) {
	raw, err := c.rdb.Get(ctx, keybuilder.OAuth2TokenKey(c.projectID)).Result()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn().Err(err).Msg("redis token cache read failed, falling back to refresh")
		}
		return "", time.Time{}, false
	}

	tok, expiry, ok := splitTokenValue(raw)
	if !ok {
		return "", time.Time{}, false
	}
	return tok, expiry, true
}

// Store writes the token with a TTL matching its expiry, so a stale entry
// never outlives the token it describes.
func (c *redisTokenCache) Store(ctx context.Context, accessToken string, expiry time.Time) {
	ttl := time.Until(expiry)
	if ttl <= 0 {
		return
	}
	value := accessToken + "|" + strconv.FormatInt(expiry.Unix(), 10)
	if err := c.rdb.Set(ctx, keybuilder.OAuth2TokenKey(c.projectID), value, ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Msg("redis token cache write failed")
	}
}

func splitTokenValue(raw string) (string, time.Time, bool) {
	idx := strings.LastIndexByte(raw, '|')
	if idx < 0 {
		return "", time.Time{}, false
	}
	tok, expiryStr := raw[:idx], raw[idx+1:]
	unixSecs, err := strconv.ParseInt(expiryStr, 10, 64)
	if err != nil {
		return "", time.Time{}, false
	}
	return tok, time.Unix(unixSecs, 0), true
}
