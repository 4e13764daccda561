package schema

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	engerrors "github.com/Aman-CERP/aisearch-core/internal/errors"
)

// Provider fetches a schema by index name from whatever external system
// owns schema definitions. It must be called at least once per index
// before ingestion or search are attempted against it.
type Provider func(indexName string) (*Schema, error)

// Cache is a bounded, name-keyed cache of installed schemas, fronting a
// Provider. Once a schema is cached its fields are frozen: installing a
// schema under an already-cached name is a conflict.
type Cache struct {
	mu       sync.RWMutex
	lru      *lru.Cache[string, *Schema]
	provider Provider
}

// NewCache creates a schema Cache bounded to size entries, backed by
// provider for cache misses.
func NewCache(size int, provider Provider) (*Cache, error) {
	if size <= 0 {
		size = 128
	}
	l, err := lru.New[string, *Schema](size)
	if err != nil {
		return nil, engerrors.Internal("create schema cache", err)
	}
	return &Cache{lru: l, provider: provider}, nil
}

// Get returns the schema for indexName, consulting the Provider on a
// cache miss. Returns a 404-class error if the provider reports the index
// doesn't exist.
func (c *Cache) Get(indexName string) (*Schema, error) {
	c.mu.RLock()
	if s, ok := c.lru.Get(indexName); ok {
		c.mu.RUnlock()
		return s, nil
	}
	c.mu.RUnlock()

	if c.provider == nil {
		return nil, engerrors.NotFound(engerrors.CodeIndexNotFound, "index "+indexName+" not found")
	}

	s, err := c.provider(indexName)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, engerrors.NotFound(engerrors.CodeIndexNotFound, "index "+indexName+" not found")
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.lru.Add(indexName, s)
	c.mu.Unlock()
	return s, nil
}

// Install registers a schema for indexName directly, bypassing the
// Provider. Returns a 409-class error if a schema is already installed
// under that name, since field definitions are frozen after install.
func (c *Cache) Install(s *Schema) error {
	if err := s.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.lru.Peek(s.IndexName); ok {
		return engerrors.Conflict("schema for index " + s.IndexName + " is already installed")
	}
	c.lru.Add(s.IndexName, s)
	return nil
}

// Evict removes indexName from the cache, e.g. after a DeleteIndex call.
func (c *Cache) Evict(indexName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(indexName)
}

// Len returns the number of schemas currently cached.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lru.Len()
}
