package cachemanager

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestInMemoryCacheManager_SetGet(t *testing.T) {
	cache := NewInMemoryCacheManager[string, string]("artifact-types", DefaultExpiration, NoCleanup)
	cache.Set(context.Background(), "7", "BIOM", DefaultExpiration)

	got, ok := cache.Get(context.Background(), "7")
	require.True(t, ok)
	require.Equal(t, "BIOM", got)
	require.Equal(t, 1, cache.Len())
}

func TestInMemoryCacheManager_Miss(t *testing.T) {
	cache := NewInMemoryCacheManager[string, string]("artifact-types", DefaultExpiration, NoCleanup)

	got, ok := cache.Get(context.Background(), "7")
	require.False(t, ok)
	require.Empty(t, got)
}

func TestInMemoryCacheManager_WrongType(t *testing.T) {
	cache := NewInMemoryCacheManager[string, string]("artifact-types", DefaultExpiration, NoCleanup)
	cache.cache.Set("7", 123, DefaultExpiration)

	got, ok := cache.Get(context.Background(), "7")
	require.False(t, ok, "a value of the wrong type is a miss")
	require.Empty(t, got)
}

func TestInMemoryCacheManager_Expiry(t *testing.T) {
	cache := NewInMemoryCacheManager[string, string]("artifact-types", DefaultExpiration, NoCleanup)
	cache.Set(context.Background(), "7", "BIOM", time.Millisecond)

	require.Eventually(t, func() bool {
		_, ok := cache.Get(context.Background(), "7")
		return !ok
	}, time.Second, 5*time.Millisecond, "entry should expire")
}

func TestInMemoryCacheManager_DeleteAndFlush(t *testing.T) {
	ctx := context.Background()
	cache := NewInMemoryCacheManager[string, int]("counts", DefaultExpiration, NoCleanup)
	cache.Set(ctx, "a", 1, DefaultExpiration)
	cache.Set(ctx, "b", 2, DefaultExpiration)

	cache.Delete(ctx, "a")
	_, ok := cache.Get(ctx, "a")
	require.False(t, ok)

	cache.Flush(ctx)
	require.Zero(t, cache.Len())
}
