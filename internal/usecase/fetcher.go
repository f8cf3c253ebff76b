package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"CrossScan/internal/domain/models"
	"CrossScan/internal/domain/repository"
	"CrossScan/pkg/logger"
)

// MinUsableCandles is the smallest series the detector can do anything
// with. Shorter responses are rejected without being cached.
const MinUsableCandles = 10

// ErrorClass buckets fetch failures for metrics and blacklist handling.
type ErrorClass string

const (
	ClassPermanent    ErrorClass = "permanent"
	ClassTransient    ErrorClass = "transient"
	ClassInsufficient ErrorClass = "insufficient_data"
	ClassBlacklisted  ErrorClass = "blacklisted"
)

// permanentErrorMarkers are substrings of upstream error messages that
// identify a symbol as permanently unfetchable. Matched case-insensitively
// against the full error text.
var permanentErrorMarkers = []string{
	"symbol not found",
	"not supported",
	"unknown symbol",
	"invalid symbol",
	"does not have a testnet/sandbox url",
}

// ClassifyFetchError maps a fetch failure onto an ErrorClass. Sentinel
// errors are checked first so wrapped messages cannot shadow them.
func ClassifyFetchError(err error) ErrorClass {
	if errors.Is(err, repository.ErrBlacklisted) {
		return ClassBlacklisted
	}
	if errors.Is(err, repository.ErrInsufficientData) {
		return ClassInsufficient
	}

	text := strings.ToLower(err.Error())
	for _, marker := range permanentErrorMarkers {
		if strings.Contains(text, marker) {
			return ClassPermanent
		}
	}
	return ClassTransient
}

// MarketDataFetcher serves candle series to scan workers. Lookup order is
// blacklist, then cache, then the upstream source. Permanent source
// failures feed the blacklist so the symbol is never asked for again.
type MarketDataFetcher struct {
	source  repository.CandleSource
	scan    *ScanContext
	metrics repository.Metrics
	logger  *logger.Logger
}

func NewMarketDataFetcher(
	source repository.CandleSource,
	scan *ScanContext,
	metrics repository.Metrics,
	log *logger.Logger,
) *MarketDataFetcher {
	return &MarketDataFetcher{
		source:  source,
		scan:    scan,
		metrics: metrics,
		logger:  log,
	}
}

// GetCandles returns a usable candle series for symbol, or an error whose
// class is already recorded in metrics. Results with fewer than
// MinUsableCandles candles are treated as failures and never cached.
func (f *MarketDataFetcher) GetCandles(
	ctx context.Context,
	symbol string,
	timeframe repository.Timeframe,
	limit int,
) (models.CandleSeries, error) {
	if f.scan.Blacklist.IsInvalid(symbol) {
		return nil, fmt.Errorf("%s: %w", symbol, repository.ErrBlacklisted)
	}

	if series, ok := f.scan.Cache.Get(symbol, string(timeframe), limit); ok {
		f.metrics.RecordCacheHit()
		return series, nil
	}
	f.metrics.RecordCacheMiss()

	series, err := f.source.FetchCandles(ctx, symbol, timeframe, limit)
	if err != nil {
		class := ClassifyFetchError(err)
		f.metrics.RecordFetchError(string(class))

		if class == ClassPermanent {
			f.scan.Blacklist.MarkInvalid(symbol)
			f.metrics.SetBlacklistSize(f.scan.Blacklist.Len())
			f.logger.Warn("symbol blacklisted after permanent fetch failure",
				logger.String("symbol", symbol),
				logger.String("timeframe", string(timeframe)),
				logger.Error(err))
		}
		return nil, fmt.Errorf("fetch candles for %s: %w", symbol, err)
	}

	if len(series) < MinUsableCandles {
		f.metrics.RecordFetchError(string(ClassInsufficient))
		return nil, fmt.Errorf("%s returned %d candles: %w",
			symbol, len(series), repository.ErrInsufficientData)
	}

	f.scan.Cache.Put(symbol, string(timeframe), limit, series)
	return series, nil
}
