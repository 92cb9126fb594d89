// Package cache provides a Redis read-through cache in front of the menu
// catalog. Sale application resolves every line's menu item; the cache keeps
// that lookup off the database for hot items.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"khmerpos/internal/domain/ports"
	"khmerpos/pkg/logger"
)

// DefaultMenuTTL bounds staleness of cached menu entries.
const DefaultMenuTTL = 5 * time.Minute

// Compile-time check that CachedMenu implements ports.MenuPort.
var _ ports.MenuPort = (*CachedMenu)(nil)

// CachedMenu wraps a MenuPort with a Redis read-through cache. Cache faults
// degrade to the backing port; they never fail a sale.
type CachedMenu struct {
	client *redis.Client
	next   ports.MenuPort
	ttl    time.Duration
}

// NewCachedMenu creates a read-through menu cache.
func NewCachedMenu(addr, password string, db int, next ports.MenuPort) *CachedMenu {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &CachedMenu{client: client, next: next, ttl: DefaultMenuTTL}
}

// Ping verifies connectivity.
func (c *CachedMenu) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the Redis connection.
func (c *CachedMenu) Close() error {
	return c.client.Close()
}

func menuKey(ref ports.MenuItemRef) string {
	return fmt.Sprintf("menu:%s:%s:%s", ref.TenantID, ref.BranchID, ref.MenuItemID)
}

// GetMenuItem returns the cached entry when present, otherwise falls through
// to the backing port and caches the hit. Misses on the backing port are not
// cached so newly added items appear immediately.
func (c *CachedMenu) GetMenuItem(ctx context.Context, ref ports.MenuItemRef) (*ports.MenuItem, error) {
	key := menuKey(ref)

	val, err := c.client.Get(ctx, key).Result()
	if err == nil {
		var item ports.MenuItem
		if err := json.Unmarshal([]byte(val), &item); err == nil {
			return &item, nil
		}
		// Corrupt entry; fall through and overwrite.
	} else if err != redis.Nil {
		logger.Warn(ctx, "menu cache read failed", "key", key, "error", err)
	}

	item, err := c.next.GetMenuItem(ctx, ref)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, nil
	}

	if payload, err := json.Marshal(item); err == nil {
		if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
			logger.Warn(ctx, "menu cache write failed", "key", key, "error", err)
		}
	}

	return item, nil
}

// Invalidate drops one entry, for use by catalog write paths.
func (c *CachedMenu) Invalidate(ctx context.Context, ref ports.MenuItemRef) error {
	return c.client.Del(ctx, menuKey(ref)).Err()
}
