package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CrossScan/internal/domain/models"
)

func testSeries(n int) models.CandleSeries {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	out := make(models.CandleSeries, n)
	for i := range out {
		out[i] = models.Candle{
			OpenTime: base.Add(time.Duration(i) * time.Hour),
			Close:    100 + float64(i),
			Volume:   10,
		}
	}
	return out
}

func TestCacheHitWithinTTL(t *testing.T) {
	c := NewOhlcvCache(time.Minute)
	series := testSeries(5)

	c.Put("BTCUSDT", "1h", 500, series)
	got, ok := c.Get("BTCUSDT", "1h", 500)

	require.True(t, ok)
	assert.Equal(t, series, got)
}

func TestCacheMissAfterTTL(t *testing.T) {
	c := NewOhlcvCache(10 * time.Millisecond)
	c.Put("BTCUSDT", "1h", 500, testSeries(5))

	time.Sleep(20 * time.Millisecond)

	_, ok := c.Get("BTCUSDT", "1h", 500)
	assert.False(t, ok)
	assert.Zero(t, c.Len(), "expired entry should be dropped on access")
}

func TestCacheKeyIncludesLimit(t *testing.T) {
	c := NewOhlcvCache(time.Minute)
	c.Put("BTCUSDT", "1h", 500, testSeries(5))

	_, ok := c.Get("BTCUSDT", "1h", 100)
	assert.False(t, ok)
	_, ok = c.Get("BTCUSDT", "4h", 500)
	assert.False(t, ok)
}

func TestCachePutOverwrites(t *testing.T) {
	c := NewOhlcvCache(time.Minute)
	c.Put("BTCUSDT", "1h", 500, testSeries(5))
	fresh := testSeries(8)
	c.Put("BTCUSDT", "1h", 500, fresh)

	got, ok := c.Get("BTCUSDT", "1h", 500)
	require.True(t, ok)
	assert.Len(t, got, 8)
	assert.Equal(t, fresh, got)
}

func TestCacheClearReturnsPreviousSize(t *testing.T) {
	c := NewOhlcvCache(time.Minute)
	c.Put("BTCUSDT", "1h", 500, testSeries(5))
	c.Put("ETHUSDT", "1h", 500, testSeries(5))

	assert.Equal(t, 2, c.Clear())
	assert.Equal(t, 0, c.Clear())
	assert.Zero(t, c.Len())
}

func TestCacheAppendReplacesSameBucket(t *testing.T) {
	c := NewOhlcvCache(time.Minute)
	series := testSeries(5)
	c.Put("BTCUSDT", "1h", 500, series)

	update := series[4]
	update.Close = 999

	assert.Equal(t, 1, c.Append("BTCUSDT", "1h", update))

	got, ok := c.Get("BTCUSDT", "1h", 500)
	require.True(t, ok)
	require.Len(t, got, 5)
	assert.InDelta(t, 999, got[4].Close, 1e-9)
	// The original series must not have been mutated in place.
	assert.InDelta(t, 104, series[4].Close, 1e-9)
}

func TestCacheAppendGrowsAndTrims(t *testing.T) {
	c := NewOhlcvCache(time.Minute)
	series := testSeries(5)
	c.Put("BTCUSDT", "1h", 5, series)

	next := models.Candle{
		OpenTime: series[4].OpenTime.Add(time.Hour),
		Close:    200,
	}
	assert.Equal(t, 1, c.Append("BTCUSDT", "1h", next))

	got, ok := c.Get("BTCUSDT", "1h", 5)
	require.True(t, ok)
	require.Len(t, got, 5, "series should be trimmed to its limit")
	assert.Equal(t, next.OpenTime, got[4].OpenTime)
	assert.Equal(t, series[1].OpenTime, got[0].OpenTime)
}

func TestCacheAppendIgnoresStaleCandle(t *testing.T) {
	c := NewOhlcvCache(time.Minute)
	series := testSeries(5)
	c.Put("BTCUSDT", "1h", 500, series)

	old := series[1]
	old.Close = 1

	assert.Zero(t, c.Append("BTCUSDT", "1h", old))
}

func TestCacheAppendSkipsOtherMarkets(t *testing.T) {
	c := NewOhlcvCache(time.Minute)
	c.Put("ETHUSDT", "1h", 500, testSeries(5))
	c.Put("BTCUSDT", "4h", 500, testSeries(5))

	assert.Zero(t, c.Append("BTCUSDT", "1h", models.Candle{OpenTime: time.Now()}))
}

func TestCacheConcurrentAccess(t *testing.T) {
	c := NewOhlcvCache(time.Minute)
	series := testSeries(5)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if i%2 == 0 {
					c.Put("BTCUSDT", "1h", 500, series)
				} else {
					c.Get("BTCUSDT", "1h", 500)
				}
			}
		}(i)
	}
	wg.Wait()

	got, ok := c.Get("BTCUSDT", "1h", 500)
	require.True(t, ok)
	assert.Equal(t, series, got)
}
