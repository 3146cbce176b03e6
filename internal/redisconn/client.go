// Package redisconn constructs the shared go-redis client backing the
// optional Redis caches (internal/push's token cache, internal/devices'
// registry cache). Redis is additive per spec.md §6/§9: an empty address
// disables it, and nothing downstream treats that as a startup failure.
package redisconn

import (
	"github.com/redis/go-redis/v9"

	"github.com/syncpulse-dev/notify-worker/internal/config"
)

// NewClient returns nil when cfg.Redis.Addr is unset, signalling "no shared
// cache" to every caller that accepts a *redis.Client.
func NewClient(cfg *config.Config) *redis.Client {
	if cfg.Redis.Addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}
