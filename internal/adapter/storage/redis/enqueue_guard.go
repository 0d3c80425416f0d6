package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// EnqueueGuard implements ports.EnqueueGuard using Redis SET NX. It keeps a
// marker per (payment, event type) pair so a redelivered trigger from the
// payment component does not enqueue the same webhook twice.
type EnqueueGuard struct {
	client *goredis.Client
	prefix string
}

// NewEnqueueGuard creates a new Redis-backed enqueue guard.
func NewEnqueueGuard(client *goredis.Client) *EnqueueGuard {
	return &EnqueueGuard{
		client: client,
		prefix: "whk:enqueue:",
	}
}

// CheckAndSet atomically checks if the trigger key exists, sets it if not.
// Returns true if the trigger is new, false if it was already seen.
func (g *EnqueueGuard) CheckAndSet(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	result, err := g.client.SetArgs(ctx, g.prefix+key, 1, goredis.SetArgs{
		Mode: "NX",
		TTL:  ttl,
	}).Result()
	if err != nil {
		if err == goredis.Nil {
			// Key already exists, trigger was already processed
			return false, nil
		}
		return false, fmt.Errorf("redis enqueue guard: %w", err)
	}
	return result == "OK", nil
}
