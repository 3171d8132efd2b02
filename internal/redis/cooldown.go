package redis

import (
	"context"
	"time"

	"wican-bridge/internal/utils"

	"github.com/go-redis/redis/v8"
)

// Cooldown is a distributed rate latch over SET NX EX. Acquire succeeds at
// most once per key per TTL window across every process sharing the redis
// instance.
type Cooldown struct {
	client *redis.Client
}

func NewCooldown(client *redis.Client) *Cooldown {
	return &Cooldown{client: client}
}

// Acquire takes the latch for key. On a redis fault it fails open: a
// duplicate alert beats a silently suppressed one.
func (c *Cooldown) Acquire(ctx context.Context, key string, ttl time.Duration) bool {
	ok, err := c.client.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		utils.Logger.Warnf("cooldown check failed for %s: %v", key, err)
		return true
	}
	return ok
}
