// Package store provides storage backends for the support bot.
//
// This file implements an optional Redis read-through cache for the handoff
// flag. The durable store stays authoritative; Redis being unavailable
// degrades to direct store access with a logged warning.
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/neuroclinic/supportbot/internal/models"
)

// DefaultCacheTTL bounds staleness of the cached handoff flag. The helpdesk
// remains the source of truth for agent engagement, so a short TTL is enough.
const DefaultCacheTTL = 10 * time.Minute

// CachedStore wraps a Store with a Redis cache for GetUserState/SetHandoff.
// Conversation log operations pass through untouched.
type CachedStore struct {
	inner Store
	redis *redis.Client
	ttl   time.Duration
}

// NewCachedStore creates a cache in front of inner using the given Redis
// address and password.
func NewCachedStore(inner Store, addr, password string) *CachedStore {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
	return &CachedStore{inner: inner, redis: client, ttl: DefaultCacheTTL}
}

func cacheKey(sender string) string {
	return "handoff:" + sender
}

// GetUserState checks the cache first and falls back to the inner store on
// miss or Redis error.
func (c *CachedStore) GetUserState(ctx context.Context, sender string) (models.UserState, bool, error) {
	val, err := c.redis.Get(ctx, cacheKey(sender)).Result()
	if err == nil {
		return models.UserState{Sender: sender, InHandoff: val == "1"}, true, nil
	}
	if err != redis.Nil {
		slog.Warn("CachedStore.GetUserState: redis unavailable, falling back to store", "error", err, "sender", sender)
	}

	state, found, err := c.inner.GetUserState(ctx, sender)
	if err != nil {
		return state, found, err
	}
	if found {
		c.refresh(ctx, sender, state.InHandoff)
	}
	return state, found, nil
}

// SetHandoff writes through to the inner store, then refreshes the cache.
func (c *CachedStore) SetHandoff(ctx context.Context, sender string, inHandoff bool) error {
	if err := c.inner.SetHandoff(ctx, sender, inHandoff); err != nil {
		return err
	}
	c.refresh(ctx, sender, inHandoff)
	return nil
}

func (c *CachedStore) refresh(ctx context.Context, sender string, inHandoff bool) {
	val := "0"
	if inHandoff {
		val = "1"
	}
	if err := c.redis.Set(ctx, cacheKey(sender), val, c.ttl).Err(); err != nil {
		slog.Warn("CachedStore.refresh: failed to update cache", "error", err, "sender", sender)
	}
}

// SaveConversationLog passes through to the inner store.
func (c *CachedStore) SaveConversationLog(ctx context.Context, log models.ConversationLog) error {
	return c.inner.SaveConversationLog(ctx, log)
}

// GetConversationLog passes through to the inner store.
func (c *CachedStore) GetConversationLog(ctx context.Context, sender string) (models.ConversationLog, bool, error) {
	return c.inner.GetConversationLog(ctx, sender)
}

// Close closes the Redis client and the inner store.
func (c *CachedStore) Close() error {
	if err := c.redis.Close(); err != nil {
		slog.Warn("CachedStore.Close: failed to close redis client", "error", err)
	}
	return c.inner.Close()
}
