package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Property 5: reads through the cache return exactly the same bytes as
// a direct read, regardless of cache capacity.
func TestCacheTransparency(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.bin")
	want := make([]byte, 5000)
	for i := range want {
		want[i] = byte(i * 7)
	}
	require.NoError(t, os.WriteFile(path, want, 0o644))

	for _, capacity := range []int{1, 8, 1024} {
		cache := NewCache(capacity)
		h, err := cache.Open(path)
		require.NoError(t, err)

		got := make([]byte, len(want))
		require.NoError(t, cache.ReadBytes(h, 0, got))
		assert.Equal(t, want, got, "capacity=%d", capacity)

		// A read that spans a page boundary must still match.
		mid := make([]byte, 300)
		require.NoError(t, cache.ReadBytes(h, 900, mid))
		assert.Equal(t, want[900:1200], mid, "capacity=%d spanning read", capacity)
	}
}

// Property 6: after flush(file), writes issued to that file are visible
// to a fresh reader (a new Cache instance over the same path).
func TestCacheWriteBackDurability(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.bin")
	require.NoError(t, os.WriteFile(path, make([]byte, 4096), 0o644))

	cache := NewCache(4)
	h, err := cache.Open(path)
	require.NoError(t, err)

	payload := []byte("the quick brown fox jumps over the lazy dog")
	require.NoError(t, cache.SetBytes(h, 2000, payload))
	cache.Flush(h)

	fresh := NewCache(4)
	h2, err := fresh.Open(path)
	require.NoError(t, err)
	got := make([]byte, len(payload))
	require.NoError(t, fresh.ReadBytes(h2, 2000, got))
	assert.Equal(t, payload, got)
}

// A single-frame cache must still correctly evict and reload across many
// distinct pages (exercises claimFrame's write-back-on-eviction path).
func TestCacheSingleFrameEviction(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.bin")
	require.NoError(t, os.WriteFile(path, make([]byte, 8192), 0o644))

	cache := NewCache(1)
	h, err := cache.Open(path)
	require.NoError(t, err)

	for page := int64(0); page < 8; page++ {
		offset := page * PageSize
		require.NoError(t, cache.SetUint32(h, offset, uint32(page)))
	}
	cache.FlushAll()

	for page := int64(0); page < 8; page++ {
		v, err := cache.GetUint32(h, page*PageSize)
		require.NoError(t, err)
		assert.Equal(t, uint32(page), v)
	}
}

// Reads past end of file come back zero-padded rather than erroring.
func TestCacheReadPastEOFZeroPadded(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "short.bin")
	require.NoError(t, os.WriteFile(path, []byte{1, 2, 3}, 0o644))

	cache := NewCache(4)
	h, err := cache.Open(path)
	require.NoError(t, err)

	buf := make([]byte, 10)
	require.NoError(t, cache.ReadBytes(h, 0, buf))
	assert.Equal(t, []byte{1, 2, 3, 0, 0, 0, 0, 0, 0, 0}, buf)
}
