package cache

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/ppiankov/veracity/internal/model"
)

// LayeredCache implements a multi-layer cache (memory + disk)
type LayeredCache struct {
	memory Cache
	disk   Cache
	logger *slog.Logger
}

// NewLayeredCache creates a cache that reads memory first and writes through to disk
func NewLayeredCache(memory, disk Cache, logger *slog.Logger) *LayeredCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &LayeredCache{memory: memory, disk: disk, logger: logger}
}

// Open builds the cache described by cfg. The returned closer releases the
// disk store and is never nil. A disabled cache is returned as nil.
func Open(cfg model.CacheConfig, logger *slog.Logger) (Cache, io.Closer, error) {
	if !cfg.Enabled {
		return nil, nopCloser{}, nil
	}

	memory := NewMemoryCache(cfg.MemoryTTL, 10*time.Minute)
	if cfg.Dir == "" {
		return memory, nopCloser{}, nil
	}

	disk, err := NewBadgerCache(cfg.Dir, cfg.DiskTTL)
	if err != nil {
		return nil, nopCloser{}, fmt.Errorf("disk cache: %w", err)
	}

	return NewLayeredCache(memory, disk, logger), disk, nil
}

// Get retrieves a value from the cache (checks memory first, then disk)
func (c *LayeredCache) Get(key string) ([]byte, bool) {
	if val, found := c.memory.Get(key); found {
		return val, true
	}

	if val, found := c.disk.Get(key); found {
		// Promote to memory with its default TTL
		_ = c.memory.Set(key, val, 0)
		return val, true
	}

	return nil, false
}

// Set stores a value in both layers. A disk failure is logged, not returned,
// since the memory layer already holds the value.
func (c *LayeredCache) Set(key string, value []byte, ttl time.Duration) error {
	if err := c.memory.Set(key, value, ttl); err != nil {
		return err
	}

	if err := c.disk.Set(key, value, ttl); err != nil {
		c.logger.Warn("disk cache write failed", "key", key, "error", err)
	}

	return nil
}

// Delete removes a value from both caches
func (c *LayeredCache) Delete(key string) error {
	_ = c.memory.Delete(key)
	return c.disk.Delete(key)
}

// Clear removes all values from both caches
func (c *LayeredCache) Clear() error {
	_ = c.memory.Clear()
	return c.disk.Clear()
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
