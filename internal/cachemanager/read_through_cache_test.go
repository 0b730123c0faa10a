package cachemanager

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type countingLoader struct {
	calls  int
	values map[string]string
}

func (l *countingLoader) load(_ context.Context, key string) (string, error) {
	l.calls++
	v, ok := l.values[key]
	if !ok {
		return "", errors.New("not found")
	}
	return v, nil
}

func newTestCache(l *countingLoader) *ReadThroughCache[string, string] {
	return NewReadThroughCache[string, string](
		NewInMemoryCacheManager[string, string]("test", DefaultExpiration, NoCleanup),
		l.load,
		DefaultExpiration,
	)
}

func TestReadThroughCache_LoadsOnce(t *testing.T) {
	l := &countingLoader{values: map[string]string{"1": "BIOM"}}
	c := newTestCache(l)

	for i := 0; i < 3; i++ {
		v, err := c.Get(context.Background(), "1")
		require.NoError(t, err)
		require.Equal(t, "BIOM", v)
	}
	require.Equal(t, 1, l.calls, "loader should run only on the first miss")
}

func TestReadThroughCache_ErrorsAreNotCached(t *testing.T) {
	l := &countingLoader{values: map[string]string{}}
	c := newTestCache(l)

	_, err := c.Get(context.Background(), "1")
	require.Error(t, err)

	l.values["1"] = "BIOM"
	v, err := c.Get(context.Background(), "1")
	require.NoError(t, err)
	require.Equal(t, "BIOM", v)
	require.Equal(t, 2, l.calls)
}

func TestReadThroughCache_PrimeAndInvalidate(t *testing.T) {
	ctx := context.Background()
	l := &countingLoader{values: map[string]string{"1": "BIOM"}}
	c := newTestCache(l)

	c.Prime(ctx, "1", "distance_matrix")
	v, err := c.Get(ctx, "1")
	require.NoError(t, err)
	require.Equal(t, "distance_matrix", v, "primed value wins over the loader")
	require.Zero(t, l.calls)

	c.Invalidate(ctx)
	v, err = c.Get(ctx, "1")
	require.NoError(t, err)
	require.Equal(t, "BIOM", v)
	require.Equal(t, 1, l.calls)
}
