package lru_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"overcastmirror/internal/lru"
)

const testBudget = 1024

func newTestCache(t *testing.T) *lru.Cache[int] {
	t.Helper()
	return lru.New[int](filepath.Join(t.TempDir(), "cache.gob"), testBudget, nil)
}

func TestCache_GetSet(t *testing.T) {
	t.Parallel()

	cache := newTestCache(t)

	_, ok := cache.Get("key")
	require.False(t, ok)

	cache.Set("key", 1)
	v, ok := cache.Get("key")
	require.True(t, ok)
	require.Equal(t, 1, v)

	cache.Set("key", 2)
	v, ok = cache.Get("key")
	require.True(t, ok)
	require.Equal(t, 2, v)
	require.Equal(t, 1, cache.Len())
}

func TestCache_Contains(t *testing.T) {
	t.Parallel()

	cache := newTestCache(t)
	require.False(t, cache.Contains("key"))
	cache.Set("key", 1)
	require.True(t, cache.Contains("key"))
}

func TestCache_GetOrCompute(t *testing.T) {
	t.Parallel()

	cache := newTestCache(t)
	calls := 0
	compute := func() (int, error) {
		calls++
		return 42, nil
	}

	v, err := cache.GetOrCompute("key", compute)
	require.NoError(t, err)
	require.Equal(t, 42, v)
	require.Equal(t, 1, calls)

	v, err = cache.GetOrCompute("key", compute)
	require.NoError(t, err)
	require.Equal(t, 42, v)
	require.Equal(t, 1, calls, "hit must not recompute")
}

func TestCache_GetOrCompute_ErrorNotStored(t *testing.T) {
	t.Parallel()

	cache := newTestCache(t)
	wantErr := fmt.Errorf("probe failed")

	_, err := cache.GetOrCompute("key", func() (int, error) {
		return 0, wantErr
	})
	require.ErrorIs(t, err, wantErr)
	require.False(t, cache.Contains("key"))
	require.Equal(t, 0, cache.Len())
}

func TestCache_TrimEnforcesBudget(t *testing.T) {
	t.Parallel()

	cache := newTestCache(t)
	for i := range 300 {
		cache.Set(fmt.Sprintf("key-%03d", i), i)
	}

	size, err := cache.ByteSize()
	require.NoError(t, err)
	require.Greater(t, size, int64(testBudget))

	evicted, err := cache.Trim()
	require.NoError(t, err)
	require.Positive(t, evicted)

	size, err = cache.ByteSize()
	require.NoError(t, err)
	require.LessOrEqual(t, size, int64(testBudget))

	// Trimming removes from the least-recently-used end: the oldest keys
	// are gone, the newest survive.
	require.False(t, cache.Contains("key-000"))
	require.True(t, cache.Contains("key-299"))
}

func TestCache_HitExtendsLifetime(t *testing.T) {
	t.Parallel()

	cache := newTestCache(t)
	cache.Set("touched", 1)
	cache.Set("untouched", 2)

	for i := range 300 {
		// Re-access "touched" while filling the cache past its budget.
		_, ok := cache.Get("touched")
		require.True(t, ok)
		cache.Set(fmt.Sprintf("filler-%03d", i), i)
	}

	_, err := cache.Trim()
	require.NoError(t, err)

	require.True(t, cache.Contains("touched"), "recently accessed entry must survive trimming")
	require.False(t, cache.Contains("untouched"), "never-accessed entry of the same age must be evicted")
}

func TestCache_SaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "cache.gob")

	cache := lru.New[string](path, testBudget, nil)
	cache.Set("a", "alpha")
	cache.Set("b", "beta")
	_, ok := cache.Get("a") // a becomes most recently used
	require.True(t, ok)
	require.NoError(t, cache.Save())

	reloaded := lru.New[string](path, testBudget, nil)
	require.Equal(t, 2, reloaded.Len())

	v, ok := reloaded.Get("a")
	require.True(t, ok)
	require.Equal(t, "alpha", v)
	v, ok = reloaded.Get("b")
	require.True(t, ok)
	require.Equal(t, "beta", v)
}

func TestCache_SaveIsNoopWhenUnchanged(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "cache.gob")

	cache := lru.New[int](path, testBudget, nil)
	cache.Set("a", 1)
	require.NoError(t, cache.Save())

	reloaded := lru.New[int](path, testBudget, nil)
	require.NoError(t, os.Remove(path))
	require.NoError(t, reloaded.Save())
	require.NoFileExists(t, path, "saving an unmutated cache must not write")
}

func TestCache_SavePreservesRecencyOrder(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "cache.gob")

	cache := lru.New[int](path, testBudget, nil)
	cache.Set("old", 1)
	cache.Set("new", 2)
	_, ok := cache.Get("old") // "old" becomes most recently used
	require.True(t, ok)
	require.NoError(t, cache.Save())

	size, err := cache.ByteSize()
	require.NoError(t, err)

	// A budget one byte short of the full blob forces exactly one eviction,
	// which must hit the least recently used entry from the persisted order.
	reloaded := lru.New[int](path, size-1, nil)
	evicted, err := reloaded.Trim()
	require.NoError(t, err)
	require.Equal(t, 1, evicted)
	require.True(t, reloaded.Contains("old"))
	require.False(t, reloaded.Contains("new"))
}

func TestCache_CorruptBlobStartsEmpty(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "cache.gob")
	require.NoError(t, os.WriteFile(path, []byte("not gob data"), 0o644))

	cache := lru.New[int](path, testBudget, nil)
	require.Equal(t, 0, cache.Len())
}

func TestCache_SaveWithoutPathFails(t *testing.T) {
	t.Parallel()

	cache := lru.New[int]("", testBudget, nil)
	cache.Set("a", 1)
	require.Error(t, cache.Save())
}
