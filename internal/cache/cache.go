// Package cache holds read results for one namespace in process memory.
// Entries never expire on their own; writers drop the whole namespace.
package cache

import (
	gocache "github.com/patrickmn/go-cache"
)

// Cache is a namespaced, concurrency-safe key/value store.
type Cache struct {
	namespace string
	items     *gocache.Cache
}

// New creates an empty cache for the given namespace.
func New(namespace string) *Cache {
	return &Cache{
		namespace: namespace,
		items:     gocache.New(gocache.NoExpiration, 0),
	}
}

// Namespace returns the name the cache was created with.
func (c *Cache) Namespace() string {
	return c.namespace
}

func (c *Cache) Get(key string) (any, bool) {
	return c.items.Get(key)
}

func (c *Cache) Put(key string, value any) {
	c.items.Set(key, value, gocache.NoExpiration)
}

// EvictAll removes every entry in the namespace.
func (c *Cache) EvictAll() {
	c.items.Flush()
}

func (c *Cache) Len() int {
	return c.items.ItemCount()
}

// Get returns the entry stored under key when it holds a V.
func Get[V any](c *Cache, key string) (V, bool) {
	var zero V
	raw, ok := c.Get(key)
	if !ok {
		return zero, false
	}
	value, ok := raw.(V)
	if !ok {
		return zero, false
	}
	return value, true
}
