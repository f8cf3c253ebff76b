package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCacheRoundTrip(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	type payload struct {
		Symbols []string `json:"symbols"`
	}

	require.NoError(t, mc.Set(ctx, "catalog:spot", payload{Symbols: []string{"BTCUSDT", "ETHUSDT"}}, time.Minute))

	var got payload
	require.NoError(t, mc.Get(ctx, "catalog:spot", &got))
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, got.Symbols)
}

func TestMemoryCacheStringFastPath(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "k", "plain value", time.Minute))

	var got string
	require.NoError(t, mc.Get(ctx, "k", &got))
	assert.Equal(t, "plain value", got)
}

func TestMemoryCacheMiss(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()

	var got string
	err := mc.Get(context.Background(), "absent", &got)
	require.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryCacheExpiration(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "k", "v", 10*time.Millisecond))
	time.Sleep(20 * time.Millisecond)

	var got string
	err := mc.Get(ctx, "k", &got)
	require.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryCacheEvictsLRU(t *testing.T) {
	mc := NewMemoryCache(WithMemoryMaxSize(2))
	defer mc.Close()
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "a", "1", time.Minute))
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, mc.Set(ctx, "b", "2", time.Minute))
	time.Sleep(2 * time.Millisecond)

	// Touch "a" so "b" is the LRU entry.
	var got string
	require.NoError(t, mc.Get(ctx, "a", &got))
	time.Sleep(2 * time.Millisecond)

	require.NoError(t, mc.Set(ctx, "c", "3", time.Minute))

	require.NoError(t, mc.Get(ctx, "a", &got))
	require.NoError(t, mc.Get(ctx, "c", &got))
	err := mc.Get(ctx, "b", &got)
	require.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryCacheDeleteByPattern(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "signal:BTCUSDT:long", "1", time.Minute))
	require.NoError(t, mc.Set(ctx, "signal:ETHUSDT:short", "1", time.Minute))
	require.NoError(t, mc.Set(ctx, "catalog:spot", "1", time.Minute))

	require.NoError(t, mc.DeleteByPattern(ctx, BuildPattern("signal:")))

	ok, err := mc.Exists(ctx, "signal:BTCUSDT:long")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = mc.Exists(ctx, "catalog:spot")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryCacheTryLock(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	ok, err := mc.TryLock(ctx, "lock:scan", 50*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = mc.TryLock(ctx, "lock:scan", 50*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, mc.Unlock(ctx, "lock:scan"))

	ok, err = mc.TryLock(ctx, "lock:scan", 50*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, ok)
}
