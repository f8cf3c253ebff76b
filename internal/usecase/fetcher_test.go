package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CrossScan/internal/domain/models"
	"CrossScan/internal/domain/repository"
	"CrossScan/pkg/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(&logger.Config{Level: "disabled"})
	require.NoError(t, err)
	return log
}

// flatSeries returns n candles closing at 100, hourly buckets.
func flatSeries(n int) models.CandleSeries {
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	series := make(models.CandleSeries, n)
	for i := range series {
		series[i] = models.Candle{
			OpenTime: base.Add(time.Duration(i) * time.Hour),
			Open:     100, High: 101, Low: 99, Close: 100,
			Volume: 10,
		}
	}
	return series
}

// rampSeries returns 120 candles flat at 100 with the last 9 closes rising
// 101..109, which produces a confirmed long crossover.
func rampSeries() models.CandleSeries {
	series := flatSeries(120)
	for j := 0; j < 9; j++ {
		series[111+j].Close = 101 + float64(j)
	}
	return series
}

type fakeSource struct {
	mu      sync.Mutex
	calls   map[string]int
	series  map[string]models.CandleSeries
	errs    map[string]error
	delay   time.Duration
	panicOn string
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		calls:  make(map[string]int),
		series: make(map[string]models.CandleSeries),
		errs:   make(map[string]error),
	}
}

func (f *fakeSource) FetchCandles(ctx context.Context, symbol string, tf repository.Timeframe, limit int) (models.CandleSeries, error) {
	f.mu.Lock()
	f.calls[symbol]++
	f.mu.Unlock()

	if f.panicOn != "" && symbol == f.panicOn {
		panic("corrupt candle payload for " + symbol)
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	if err, ok := f.errs[symbol]; ok {
		return nil, err
	}
	if series, ok := f.series[symbol]; ok {
		return series, nil
	}
	return flatSeries(120), nil
}

func (f *fakeSource) callCount(symbol string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[symbol]
}

type captureMetrics struct {
	mu            sync.Mutex
	fetchErrors   map[string]int
	signals       map[string]int
	cacheHits     int
	cacheMisses   int
	blacklistSize int
	scanned       int
	scansStarted  int
	scansFinished int
	lastStopped   bool
	progress      [][2]int
	errors        map[string]int
}

func newCaptureMetrics() *captureMetrics {
	return &captureMetrics{
		fetchErrors: make(map[string]int),
		signals:     make(map[string]int),
		errors:      make(map[string]int),
	}
}

func (m *captureMetrics) RecordScanStarted(timeframe string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scansStarted++
}

func (m *captureMetrics) RecordScanFinished(timeframe string, seconds float64, processed int, stopped bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scansFinished++
	m.lastStopped = stopped
}

func (m *captureMetrics) RecordSymbolScanned(timeframe string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scanned++
}

func (m *captureMetrics) RecordSignal(direction string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signals[direction]++
}

func (m *captureMetrics) RecordFetchError(class string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetchErrors[class]++
}

func (m *captureMetrics) RecordCacheHit() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cacheHits++
}

func (m *captureMetrics) RecordCacheMiss() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cacheMisses++
}

func (m *captureMetrics) SetBlacklistSize(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blacklistSize = n
}

func (m *captureMetrics) SetScanProgress(processed, total int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.progress = append(m.progress, [2]int{processed, total})
}

func (m *captureMetrics) RecordLatency(op string, seconds float64) {}

func (m *captureMetrics) RecordError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[kind]++
}

func (m *captureMetrics) fetchErrorCount(class string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fetchErrors[class]
}

func newTestFetcher(t *testing.T, source *fakeSource) (*MarketDataFetcher, *ScanContext, *captureMetrics) {
	t.Helper()
	scanCtx := NewScanContext(0)
	metrics := newCaptureMetrics()
	fetcher := NewMarketDataFetcher(source, scanCtx, metrics, testLogger(t))
	return fetcher, scanCtx, metrics
}

func TestGetCandlesCachesResult(t *testing.T) {
	source := newFakeSource()
	fetcher, _, metrics := newTestFetcher(t, source)

	first, err := fetcher.GetCandles(context.Background(), "BTCUSDT", repository.TF1h, 500)
	require.NoError(t, err)
	require.Len(t, first, 120)

	second, err := fetcher.GetCandles(context.Background(), "BTCUSDT", repository.TF1h, 500)
	require.NoError(t, err)
	require.Len(t, second, 120)

	assert.Equal(t, 1, source.callCount("BTCUSDT"))
	assert.Equal(t, 1, metrics.cacheMisses)
	assert.Equal(t, 1, metrics.cacheHits)
}

func TestGetCandlesBlacklistedShortCircuits(t *testing.T) {
	source := newFakeSource()
	fetcher, scanCtx, _ := newTestFetcher(t, source)
	scanCtx.Blacklist.MarkInvalid("BADUSDT")

	_, err := fetcher.GetCandles(context.Background(), "BADUSDT", repository.TF1h, 500)
	require.ErrorIs(t, err, repository.ErrBlacklisted)
	assert.Equal(t, 0, source.callCount("BADUSDT"))
}

func TestGetCandlesPermanentErrorBlacklists(t *testing.T) {
	source := newFakeSource()
	source.errs["GONEUSDT"] = errors.New("binance: Invalid symbol.")
	fetcher, scanCtx, metrics := newTestFetcher(t, source)

	_, err := fetcher.GetCandles(context.Background(), "GONEUSDT", repository.TF1h, 500)
	require.Error(t, err)
	assert.True(t, scanCtx.Blacklist.IsInvalid("GONEUSDT"))
	assert.Equal(t, 1, metrics.fetchErrorCount(string(ClassPermanent)))

	// Second request never reaches the source.
	_, err = fetcher.GetCandles(context.Background(), "GONEUSDT", repository.TF1h, 500)
	require.ErrorIs(t, err, repository.ErrBlacklisted)
	assert.Equal(t, 1, source.callCount("GONEUSDT"))
}

func TestGetCandlesTransientErrorNotBlacklisted(t *testing.T) {
	source := newFakeSource()
	source.errs["FLAKYUSDT"] = errors.New("connection reset by peer")
	fetcher, scanCtx, metrics := newTestFetcher(t, source)

	_, err := fetcher.GetCandles(context.Background(), "FLAKYUSDT", repository.TF1h, 500)
	require.Error(t, err)
	assert.False(t, scanCtx.Blacklist.IsInvalid("FLAKYUSDT"))
	assert.Equal(t, 1, metrics.fetchErrorCount(string(ClassTransient)))

	// A retry goes back to the source.
	_, err = fetcher.GetCandles(context.Background(), "FLAKYUSDT", repository.TF1h, 500)
	require.Error(t, err)
	assert.Equal(t, 2, source.callCount("FLAKYUSDT"))
}

func TestGetCandlesInsufficientDataNotCached(t *testing.T) {
	source := newFakeSource()
	source.series["NEWUSDT"] = flatSeries(MinUsableCandles - 1)
	fetcher, scanCtx, metrics := newTestFetcher(t, source)

	_, err := fetcher.GetCandles(context.Background(), "NEWUSDT", repository.TF1h, 500)
	require.ErrorIs(t, err, repository.ErrInsufficientData)
	assert.False(t, scanCtx.Blacklist.IsInvalid("NEWUSDT"))
	assert.Equal(t, 0, scanCtx.Cache.Len())
	assert.Equal(t, 1, metrics.fetchErrorCount(string(ClassInsufficient)))

	// The symbol stays fetchable; new listings fill in over time.
	_, err = fetcher.GetCandles(context.Background(), "NEWUSDT", repository.TF1h, 500)
	require.ErrorIs(t, err, repository.ErrInsufficientData)
	assert.Equal(t, 2, source.callCount("NEWUSDT"))
}

func TestGetCandlesExactMinimumAccepted(t *testing.T) {
	source := newFakeSource()
	source.series["TINYUSDT"] = flatSeries(MinUsableCandles)
	fetcher, scanCtx, _ := newTestFetcher(t, source)

	series, err := fetcher.GetCandles(context.Background(), "TINYUSDT", repository.TF1h, 500)
	require.NoError(t, err)
	assert.Len(t, series, MinUsableCandles)
	assert.Equal(t, 1, scanCtx.Cache.Len())
}

func TestClassifyFetchError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"invalid symbol", errors.New("binance: Invalid symbol."), ClassPermanent},
		{"symbol not found upper", errors.New("Symbol Not Found on exchange"), ClassPermanent},
		{"unknown symbol", errors.New("error: unknown symbol FOOUSDT"), ClassPermanent},
		{"not supported", errors.New("market type not supported"), ClassPermanent},
		{"sandbox url", errors.New("exchange does not have a testnet/sandbox URL for spot"), ClassPermanent},
		{"wrapped permanent", fmt.Errorf("fetch: %w", errors.New("invalid symbol")), ClassPermanent},
		{"timeout", errors.New("context deadline exceeded"), ClassTransient},
		{"rate limit", errors.New("429 too many requests"), ClassTransient},
		{"blacklisted sentinel", fmt.Errorf("BTCUSDT: %w", repository.ErrBlacklisted), ClassBlacklisted},
		{"insufficient sentinel", fmt.Errorf("got 3 candles: %w", repository.ErrInsufficientData), ClassInsufficient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyFetchError(tt.err))
		})
	}
}
