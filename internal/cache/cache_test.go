package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/veracity/internal/model"
)

func TestKey(t *testing.T) {
	a := Key("embed", "model", "text")
	b := Key("embed", "model", "text")
	assert.Equal(t, a, b)
	assert.Contains(t, a, "veracity:v1:embed:")

	assert.NotEqual(t, Key("embed", "ab", "c"), Key("embed", "a", "bc"))
	assert.NotEqual(t, Key("embed", "x"), Key("lit", "x"))
}

func TestMemoryCache(t *testing.T) {
	c := NewMemoryCache(time.Minute, time.Minute)

	_, found := c.Get("missing")
	assert.False(t, found)

	require.NoError(t, c.Set("k", []byte("v"), 0))
	val, found := c.Get("k")
	require.True(t, found)
	assert.Equal(t, []byte("v"), val)
	assert.Equal(t, 1, c.Len())

	require.NoError(t, c.Delete("k"))
	_, found = c.Get("k")
	assert.False(t, found)

	require.NoError(t, c.Set("a", []byte("1"), 0))
	require.NoError(t, c.Clear())
	assert.Equal(t, 0, c.Len())
}

func TestMemoryCache_Expiry(t *testing.T) {
	c := NewMemoryCache(time.Minute, time.Minute)
	require.NoError(t, c.Set("k", []byte("v"), 10*time.Millisecond))

	time.Sleep(30 * time.Millisecond)
	_, found := c.Get("k")
	assert.False(t, found)
}

func TestBadgerCache(t *testing.T) {
	c, err := NewInMemoryBadgerCache(time.Hour)
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	_, found := c.Get("missing")
	assert.False(t, found)

	require.NoError(t, c.Set("k", []byte("value"), 0))
	val, found := c.Get("k")
	require.True(t, found)
	assert.Equal(t, []byte("value"), val)

	require.NoError(t, c.Delete("k"))
	_, found = c.Get("k")
	assert.False(t, found)

	// Deleting a missing key is not an error
	assert.NoError(t, c.Delete("never-set"))

	require.NoError(t, c.Set("a", []byte("1"), 0))
	require.NoError(t, c.Clear())
	_, found = c.Get("a")
	assert.False(t, found)
}

func TestBadgerCache_OnDisk(t *testing.T) {
	dir := t.TempDir()

	c, err := NewBadgerCache(dir, time.Hour)
	require.NoError(t, err)
	require.NoError(t, c.Set("k", []byte("persisted"), 0))
	require.NoError(t, c.Close())

	reopened, err := NewBadgerCache(dir, time.Hour)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	val, found := reopened.Get("k")
	require.True(t, found)
	assert.Equal(t, []byte("persisted"), val)
}

func TestLayeredCache_PromotesFromDisk(t *testing.T) {
	memory := NewMemoryCache(time.Minute, time.Minute)
	disk, err := NewInMemoryBadgerCache(time.Hour)
	require.NoError(t, err)
	defer func() { _ = disk.Close() }()

	c := NewLayeredCache(memory, disk, nil)

	require.NoError(t, disk.Set("k", []byte("from-disk"), 0))
	_, found := memory.Get("k")
	require.False(t, found)

	val, found := c.Get("k")
	require.True(t, found)
	assert.Equal(t, []byte("from-disk"), val)

	val, found = memory.Get("k")
	require.True(t, found, "value should be promoted to memory")
	assert.Equal(t, []byte("from-disk"), val)
}

func TestLayeredCache_WritesThrough(t *testing.T) {
	memory := NewMemoryCache(time.Minute, time.Minute)
	disk, err := NewInMemoryBadgerCache(time.Hour)
	require.NoError(t, err)
	defer func() { _ = disk.Close() }()

	c := NewLayeredCache(memory, disk, nil)
	require.NoError(t, c.Set("k", []byte("v"), 0))

	_, inMemory := memory.Get("k")
	_, onDisk := disk.Get("k")
	assert.True(t, inMemory)
	assert.True(t, onDisk)

	require.NoError(t, c.Delete("k"))
	_, found := c.Get("k")
	assert.False(t, found)
}

func TestOpen(t *testing.T) {
	c, closer, err := Open(model.CacheConfig{Enabled: false}, nil)
	require.NoError(t, err)
	assert.Nil(t, c)
	assert.NoError(t, closer.Close())

	c, closer, err = Open(model.CacheConfig{Enabled: true, MemoryTTL: time.Minute}, nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryCache{}, c)
	assert.NoError(t, closer.Close())

	c, closer, err = Open(model.CacheConfig{
		Enabled:   true,
		Dir:       t.TempDir(),
		MemoryTTL: time.Minute,
		DiskTTL:   time.Hour,
	}, nil)
	require.NoError(t, err)
	assert.IsType(t, &LayeredCache{}, c)
	assert.NoError(t, closer.Close())
}
