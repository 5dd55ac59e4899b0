package embed

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ppiankov/veracity/internal/cache"
)

// CachedEncoder memoizes per-text vectors. Only texts missing from the
// cache reach the wrapped encoder, and concurrent misses for the same
// batch share one upstream call.
type CachedEncoder struct {
	inner Encoder
	cache cache.Cache
	ttl   time.Duration
	group singleflight.Group
}

// NewCachedEncoder wraps inner. A nil cache returns inner unchanged.
func NewCachedEncoder(inner Encoder, c cache.Cache, ttl time.Duration) Encoder {
	if c == nil {
		return inner
	}
	return &CachedEncoder{inner: inner, cache: c, ttl: ttl}
}

// Model returns the wrapped model name
func (e *CachedEncoder) Model() string {
	return e.inner.Model()
}

// Encode returns cached vectors where present and encodes the rest
func (e *CachedEncoder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int

	for i, t := range texts {
		if raw, ok := e.cache.Get(e.key(t)); ok {
			if v, err := decodeVector(raw); err == nil {
				vectors[i] = v
				continue
			}
		}
		missing = append(missing, t)
		missingIdx = append(missingIdx, i)
	}

	if len(missing) == 0 {
		return vectors, nil
	}

	flightKey := cache.Key("embed-batch", append([]string{e.inner.Model()}, missing...)...)
	// The shared call outlives any single caller's cancellation; each
	// caller stops waiting on its own context.
	flight := e.group.DoChan(flightKey, func() (interface{}, error) {
		return e.inner.Encode(context.WithoutCancel(ctx), missing)
	})

	var res singleflight.Result
	select {
	case res = <-flight:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if res.Err != nil {
		return nil, res.Err
	}

	fresh := res.Val.([][]float32)
	if err := checkCount(fresh, len(missing)); err != nil {
		return nil, err
	}

	for j, v := range fresh {
		vectors[missingIdx[j]] = v
		_ = e.cache.Set(e.key(missing[j]), encodeVector(v), e.ttl)
	}

	return vectors, nil
}

func (e *CachedEncoder) key(text string) string {
	return cache.Key("embed", e.inner.Model(), text)
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(raw []byte) ([]float32, error) {
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("corrupt cached vector of %d bytes", len(raw))
	}
	v := make([]float32, len(raw)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
	}
	return v, nil
}
