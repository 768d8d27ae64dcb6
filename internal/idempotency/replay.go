package idempotency

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "prism:idem:"

// ReplayCache remembers recently issued idempotency keys so duplicate
// submissions inside a bucket can be flagged. It is advisory: a nil client
// or an unreachable Redis fails open and never blocks a request.
type ReplayCache struct {
	rdb *redis.Client
}

func NewReplayCache(rdb *redis.Client) *ReplayCache {
	return &ReplayCache{rdb: rdb}
}

// CheckAndRemember records the key and reports whether it had already been
// seen within ttl. The first caller for a key gets false.
func (c *ReplayCache) CheckAndRemember(ctx context.Context, key string, ttl time.Duration) bool {
	if c == nil || c.rdb == nil {
		return false
	}
	set, err := c.rdb.SetNX(ctx, redisKeyPrefix+key, 1, ttl).Result()
	if err != nil {
		slog.Warn("idempotency replay cache unavailable", "error", err)
		return false
	}
	return !set
}
