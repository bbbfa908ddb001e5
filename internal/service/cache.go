package service

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
)

const (
	cacheDefaultExpiration = 30 * time.Second
	cacheCleanupInterval   = 5 * time.Minute
)

// readCache fronts the session and project read endpoints. Every operation
// that changes counts or element sets must invalidate the touched keys.
type readCache struct {
	cache *gocache.Cache
}

func newReadCache() *readCache {
	return &readCache{cache: gocache.New(cacheDefaultExpiration, cacheCleanupInterval)}
}

func sessionCacheKey(id uuid.UUID) string {
	return fmt.Sprintf("session:%s", id)
}

func projectCacheKey(id uuid.UUID) string {
	return fmt.Sprintf("project:%s", id)
}

func (c *readCache) Get(key string) (any, bool) {
	return c.cache.Get(key)
}

func (c *readCache) Set(key string, value any) {
	c.cache.SetDefault(key, value)
}

func (c *readCache) Invalidate(keys ...string) {
	for _, key := range keys {
		c.cache.Delete(key)
	}
}
