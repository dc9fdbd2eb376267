package cachemanager

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type sessionKey string

type ExampleStruct struct {
	ID   int
	Name string
}

func TestNewInMemoryCacheManager(t *testing.T) {
	require.NotPanics(t, func() {
		NewInMemoryCacheManager[string, string]("test", NoExpiration, DefaultCleanupInterval)
	})
}

func TestInMemoryCacheManager_GetExistingValue_StructType(t *testing.T) {
	cache := NewInMemoryCacheManager[string, ExampleStruct]("example", NoExpiration, DefaultCleanupInterval)
	example := ExampleStruct{Name: "apple"}
	cache.Set(context.Background(), "ex:1", example, 0)

	got, ok := cache.Get(context.Background(), "ex:1")
	require.True(t, ok)
	require.Equal(t, example, got)
}

func TestInMemoryCacheManager_GetMissing(t *testing.T) {
	cache := NewInMemoryCacheManager[string, string]("example", NoExpiration, DefaultCleanupInterval)

	got, ok := cache.Get(context.Background(), "food")
	require.False(t, ok)
	require.Empty(t, got)
}

func TestInMemoryCacheManager_GetWithInvalidValueType(t *testing.T) {
	cache := NewInMemoryCacheManager[string, string]("example", NoExpiration, DefaultCleanupInterval)
	cache.cache.Set("food", 123, 0)

	got, ok := cache.Get(context.Background(), "food")
	require.False(t, ok)
	require.Empty(t, got)
}

func TestInMemoryCacheManager_TypedKeys(t *testing.T) {
	cache := NewInMemoryCacheManager[sessionKey, int]("typed", NoExpiration, DefaultCleanupInterval)
	cache.Set(context.Background(), sessionKey("a"), 1, 0)

	got, ok := cache.Get(context.Background(), "a")
	require.True(t, ok)
	require.Equal(t, 1, got)
}

func TestInMemoryCacheManager_Update(t *testing.T) {
	cache := NewInMemoryCacheManager[string, int]("counter", NoExpiration, DefaultCleanupInterval)
	ctx := context.Background()

	inc := func(current int, found bool) int {
		if !found {
			return 1
		}
		return current + 1
	}
	cache.Update(ctx, "n", inc)
	cache.Update(ctx, "n", inc)

	got, ok := cache.Get(ctx, "n")
	require.True(t, ok)
	require.Equal(t, 2, got)
}

func TestInMemoryCacheManager_ItemsSnapshot(t *testing.T) {
	cache := NewInMemoryCacheManager[string, string]("snapshot", NoExpiration, DefaultCleanupInterval)
	ctx := context.Background()
	cache.Set(ctx, "a", "1", 0)
	cache.Set(ctx, "b", "2", 0)
	cache.cache.Set("bad", 3, 0)

	items := cache.Items(ctx)
	require.Equal(t, map[string]string{"a": "1", "b": "2"}, items)

	items["c"] = "3"
	_, ok := cache.Get(ctx, "c")
	require.False(t, ok, "snapshot must not write through")
}

func TestInMemoryCacheManager_NoExpirationKeepsEntries(t *testing.T) {
	cache := NewInMemoryCacheManager[string, string]("forever", NoExpiration, 10*time.Millisecond)
	cache.Set(context.Background(), "a", "1", 0)

	time.Sleep(30 * time.Millisecond)

	_, ok := cache.Get(context.Background(), "a")
	require.True(t, ok)
}

func TestInMemoryCacheManager_DeleteAndFlush(t *testing.T) {
	cache := NewInMemoryCacheManager[string, string]("example", NoExpiration, DefaultCleanupInterval)
	ctx := context.Background()
	cache.Set(ctx, "a", "1", 0)
	cache.Set(ctx, "b", "2", 0)
	cache.Set(ctx, "c", "3", 0)

	require.NoError(t, cache.Delete(ctx))
	require.Equal(t, 3, cache.Len())

	require.NoError(t, cache.Delete(ctx, "a"))
	require.Equal(t, 2, cache.Len())

	require.NoError(t, cache.Flush(ctx))
	require.Equal(t, 0, cache.Len())
}
