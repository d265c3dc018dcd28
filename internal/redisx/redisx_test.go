package redisx

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*StatusCache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := New(mr.Addr())
	t.Cleanup(func() { _ = rdb.Close() })
	return &StatusCache{RDB: rdb}, mr
}

func TestStatusCacheRoundTrip(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	_, ok := cache.Get(ctx, 42)
	assert.False(t, ok)

	cache.Set(ctx, 42, "CREATED")
	v, ok := cache.Get(ctx, 42)
	require.True(t, ok)
	assert.Equal(t, "CREATED", v)

	mr.FastForward(statusTTL + 1)
	_, ok = cache.Get(ctx, 42)
	assert.False(t, ok)
}

func TestStatusCacheInvalidate(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	cache.Set(ctx, 7, "PAID")
	cache.Invalidate(ctx, 7)
	_, ok := cache.Get(ctx, 7)
	assert.False(t, ok)
}

func TestStatusCacheNilSafe(t *testing.T) {
	var cache *StatusCache
	ctx := context.Background()

	_, ok := cache.Get(ctx, 1)
	assert.False(t, ok)
	cache.Set(ctx, 1, "PAID")
	cache.Invalidate(ctx, 1)
}
