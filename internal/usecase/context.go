package usecase

import (
	"time"

	"CrossScan/internal/service/blacklist"
	"CrossScan/internal/service/cache"
)

// ScanContext owns the mutable state shared across scan runs: the candle
// cache and the invalid symbol registry. One instance is created at wiring
// time and handed to the fetcher and the pool, so consecutive runs reuse
// warm candles and remembered bad symbols.
type ScanContext struct {
	Cache     *cache.OhlcvCache
	Blacklist *blacklist.Registry
}

func NewScanContext(ttl time.Duration) *ScanContext {
	return &ScanContext{
		Cache:     cache.NewOhlcvCache(ttl),
		Blacklist: blacklist.NewRegistry(),
	}
}

// ClearCache drops all cached candle series and returns how many entries
// were held before the reset.
func (s *ScanContext) ClearCache() int {
	return s.Cache.Clear()
}

// ClearBlacklist forgets all invalid symbols and returns how many were
// held before the reset.
func (s *ScanContext) ClearBlacklist() int {
	return s.Blacklist.Clear()
}
