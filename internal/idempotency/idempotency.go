// Package idempotency remembers delivery ids so that a redelivered webhook is
// processed once.
package idempotency

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Guard claims keys for a limited time.
type Guard interface {
	// Claim returns true the first time key is seen within ttl.
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Release forgets key so a failed delivery can be retried.
	Release(ctx context.Context, key string) error
}

// RedisGuard stores claims in Redis with SETNX so several instances share them.
type RedisGuard struct {
	client redis.Cmdable
	prefix string
}

// NewRedisGuard builds a Guard on top of client. Keys are namespaced by prefix.
func NewRedisGuard(client redis.Cmdable, prefix string) *RedisGuard {
	return &RedisGuard{client: client, prefix: prefix}
}

// Claim implements Guard.
func (g *RedisGuard) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := g.client.SetNX(ctx, g.prefix+key, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", key, err)
	}
	return ok, nil
}

// Release implements Guard.
func (g *RedisGuard) Release(ctx context.Context, key string) error {
	if err := g.client.Del(ctx, g.prefix+key).Err(); err != nil {
		return fmt.Errorf("release %s: %w", key, err)
	}
	return nil
}

// MemoryGuard keeps claims in process.
type MemoryGuard struct {
	mu     sync.Mutex
	claims map[string]time.Time
	now    func() time.Time
}

// NewMemoryGuard returns an empty MemoryGuard.
func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{claims: make(map[string]time.Time), now: time.Now}
}

// Claim implements Guard. Expired claims are dropped lazily.
func (g *MemoryGuard) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	for k, expires := range g.claims {
		if !now.Before(expires) {
			delete(g.claims, k)
		}
	}

	if _, ok := g.claims[key]; ok {
		return false, nil
	}
	g.claims[key] = now.Add(ttl)
	return true, nil
}

// Release implements Guard.
func (g *MemoryGuard) Release(_ context.Context, key string) error {
	g.mu.Lock()
	delete(g.claims, key)
	g.mu.Unlock()
	return nil
}
