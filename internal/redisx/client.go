package redisx

import (
	"time"

	"github.com/redis/go-redis/v9"
)

// New builds the shared client. Short timeouts: redis here is a cache and a
// dedup filter, never the source of truth, so callers fall through on failure.
func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}
