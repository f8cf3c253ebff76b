package cache

import (
	"sync"
	"time"

	"CrossScan/internal/domain/models"
)

// DefaultTTL bounds how long a fetched series stays servable.
const DefaultTTL = 300 * time.Second

// Key identifies one cached series. Limit is part of the key: a 500-candle
// fetch and a 100-candle fetch of the same market are different entries.
type Key struct {
	Symbol    string
	Timeframe string
	Limit     int
}

type entry struct {
	series    models.CandleSeries
	fetchedAt time.Time
}

// OhlcvCache is a TTL-bounded candle cache shared by all scan workers.
// Entries are replaced whole, never merged; expired entries are dropped
// lazily on access. Safe for concurrent use.
type OhlcvCache struct {
	mu  sync.RWMutex
	ttl time.Duration
	m   map[Key]entry
}

func NewOhlcvCache(ttl time.Duration) *OhlcvCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &OhlcvCache{
		ttl: ttl,
		m:   make(map[Key]entry),
	}
}

// Get returns the cached series for the key if it is younger than the TTL.
func (c *OhlcvCache) Get(symbol, timeframe string, limit int) (models.CandleSeries, bool) {
	k := Key{Symbol: symbol, Timeframe: timeframe, Limit: limit}

	c.mu.RLock()
	e, ok := c.m[k]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if time.Since(e.fetchedAt) >= c.ttl {
		c.mu.Lock()
		// Re-check under the write lock; a concurrent Put may have refreshed it.
		if cur, still := c.m[k]; still && cur.fetchedAt.Equal(e.fetchedAt) {
			delete(c.m, k)
		}
		c.mu.Unlock()
		return nil, false
	}
	return e.series, true
}

// Put stores a series, overwriting any previous entry for the key.
func (c *OhlcvCache) Put(symbol, timeframe string, limit int, series models.CandleSeries) {
	k := Key{Symbol: symbol, Timeframe: timeframe, Limit: limit}

	c.mu.Lock()
	c.m[k] = entry{series: series, fetchedAt: time.Now()}
	c.mu.Unlock()
}

// Append merges one closed candle into every live entry for the symbol and
// timeframe, regardless of limit. A candle with a known OpenTime replaces
// that candle; a newer one is appended and the series trimmed to its limit.
// Used by the live stream updater; expired entries are left alone.
func (c *OhlcvCache) Append(symbol, timeframe string, candle models.Candle) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	updated := 0
	for k, e := range c.m {
		if k.Symbol != symbol || k.Timeframe != timeframe {
			continue
		}
		if time.Since(e.fetchedAt) >= c.ttl {
			continue
		}
		series := e.series
		n := len(series)
		if n == 0 {
			continue
		}
		last := series[n-1]
		switch {
		case candle.OpenTime.Equal(last.OpenTime):
			next := series.Clone()
			next[n-1] = candle
			series = next
		case candle.OpenTime.After(last.OpenTime):
			next := make(models.CandleSeries, 0, n+1)
			next = append(next, series...)
			next = append(next, candle)
			if k.Limit > 0 && len(next) > k.Limit {
				next = next[len(next)-k.Limit:]
			}
			series = next
		default:
			continue
		}
		c.m[k] = entry{series: series, fetchedAt: time.Now()}
		updated++
	}
	return updated
}

// Clear empties the cache and returns how many entries were evicted.
func (c *OhlcvCache) Clear() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.m)
	c.m = make(map[Key]entry)
	return n
}

// Len reports the current entry count, expired entries included.
func (c *OhlcvCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}
