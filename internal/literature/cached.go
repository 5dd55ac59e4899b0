package literature

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/ppiankov/veracity/internal/cache"
)

// CachedSearcher memoizes non-empty search results
type CachedSearcher struct {
	inner Searcher
	cache cache.Cache
	ttl   time.Duration
}

// NewCachedSearcher wraps inner. A nil cache returns inner unchanged.
func NewCachedSearcher(inner Searcher, c cache.Cache, ttl time.Duration) Searcher {
	if c == nil {
		return inner
	}
	return &CachedSearcher{inner: inner, cache: c, ttl: ttl}
}

// Name returns the wrapped service name
func (s *CachedSearcher) Name() string {
	return s.inner.Name()
}

// Search serves from cache when possible. Errors and empty results are
// never cached, so a transient outage does not stick.
func (s *CachedSearcher) Search(ctx context.Context, query string, limit int) ([]Paper, error) {
	key := cache.Key("literature", s.inner.Name(), strings.ToLower(strings.TrimSpace(query)), strconv.Itoa(limit))

	if raw, ok := s.cache.Get(key); ok {
		var papers []Paper
		if err := json.Unmarshal(raw, &papers); err == nil {
			return papers, nil
		}
	}

	papers, err := s.inner.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}

	if len(papers) > 0 {
		if raw, err := json.Marshal(papers); err == nil {
			_ = s.cache.Set(key, raw, s.ttl)
		}
	}
	return papers, nil
}
