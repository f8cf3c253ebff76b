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
)

type captureSink struct {
	mu        sync.Mutex
	progress  [][2]int
	signals   []models.Signal
	completed int
	errors    []string
}

func (s *captureSink) OnProgress(processed, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress = append(s.progress, [2]int{processed, total})
}

func (s *captureSink) OnSignal(symbol string, signal models.Signal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signals = append(s.signals, signal)
}

func (s *captureSink) OnCompleted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed++
}

func (s *captureSink) OnError(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, message)
}

func (s *captureSink) completedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completed
}

func (s *captureSink) progressEvents() [][2]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][2]int, len(s.progress))
	copy(out, s.progress)
	return out
}

func (s *captureSink) signalList() []models.Signal {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Signal, len(s.signals))
	copy(out, s.signals)
	return out
}

func (s *captureSink) errorList() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.errors))
	copy(out, s.errors)
	return out
}

func newTestPool(t *testing.T, source *fakeSource, opts ...PoolOption) (*ScanWorkerPool, *ScanContext, *captureSink, *captureMetrics) {
	t.Helper()
	scanCtx := NewScanContext(0)
	metrics := newCaptureMetrics()
	sink := &captureSink{}
	fetcher := NewMarketDataFetcher(source, scanCtx, metrics, testLogger(t))
	pool := NewScanWorkerPool(fetcher, scanCtx, sink, metrics, testLogger(t), opts...)
	return pool, scanCtx, sink, metrics
}

func symbolList(n int) []string {
	symbols := make([]string, n)
	for i := range symbols {
		symbols[i] = fmt.Sprintf("S%03dUSDT", i)
	}
	return symbols
}

func testJob(symbols []string) models.ScanJob {
	return models.ScanJob{
		Symbols:     symbols,
		Timeframe:   "1h",
		Directions:  []models.Direction{models.Long},
		CandleCount: 10,
		BatchSize:   5,
		WorkerCount: 4,
		Limit:       500,
	}
}

func waitCompleted(t *testing.T, sink *captureSink, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return sink.completedCount() == n
	}, 3*time.Second, 5*time.Millisecond)
}

func TestRunProcessesAllSymbols(t *testing.T) {
	source := newFakeSource()
	pool, _, sink, metrics := newTestPool(t, source)

	require.NoError(t, pool.Run(context.Background(), testJob(symbolList(23))))
	waitCompleted(t, sink, 1)

	assert.Equal(t, models.StateIdle, pool.State())

	processed, total := pool.Progress()
	assert.Equal(t, 23, processed)
	assert.Equal(t, 23, total)

	events := sink.progressEvents()
	require.NotEmpty(t, events)
	prev := 0
	for _, e := range events {
		assert.GreaterOrEqual(t, e[0], prev)
		assert.Equal(t, 23, e[1])
		prev = e[0]
	}
	assert.Equal(t, [2]int{23, 23}, events[len(events)-1])

	summary := pool.LastSummary()
	require.NotNil(t, summary)
	assert.Equal(t, 23, summary.TotalSymbols)
	assert.Equal(t, 23, summary.Processed)
	assert.False(t, summary.Stopped)
	assert.Equal(t, 0, summary.FetchErrors)
	assert.Equal(t, 23, metrics.scanned)
}

func TestRunEmitsSignalForCrossover(t *testing.T) {
	source := newFakeSource()
	source.series["RAMPUSDT"] = rampSeries()
	pool, _, sink, _ := newTestPool(t, source)

	job := testJob([]string{"FLATUSDT", "RAMPUSDT"})
	job.Directions = []models.Direction{models.Long, models.Short}

	require.NoError(t, pool.Run(context.Background(), job))
	waitCompleted(t, sink, 1)

	signals := sink.signalList()
	require.Len(t, signals, 1)
	assert.Equal(t, "RAMPUSDT", signals[0].Symbol)
	assert.Equal(t, models.Long, signals[0].Direction)
	assert.Equal(t, "1h", signals[0].Timeframe)

	summary := pool.LastSummary()
	require.NotNil(t, summary)
	assert.Equal(t, 1, summary.SignalsFound)
}

func TestRunIsolatesFetchErrors(t *testing.T) {
	source := newFakeSource()
	source.errs["S002USDT"] = errors.New("connection reset by peer")
	source.errs["S005USDT"] = errors.New("binance: Invalid symbol.")
	source.series["RAMPUSDT"] = rampSeries()
	pool, scanCtx, sink, _ := newTestPool(t, source)

	symbols := append(symbolList(9), "RAMPUSDT")
	require.NoError(t, pool.Run(context.Background(), testJob(symbols)))
	waitCompleted(t, sink, 1)

	processed, total := pool.Progress()
	assert.Equal(t, 10, processed)
	assert.Equal(t, 10, total)

	summary := pool.LastSummary()
	require.NotNil(t, summary)
	assert.Equal(t, 2, summary.FetchErrors)
	assert.Equal(t, 1, summary.SignalsFound)

	assert.True(t, scanCtx.Blacklist.IsInvalid("S005USDT"))
	assert.False(t, scanCtx.Blacklist.IsInvalid("S002USDT"))
}

func TestRunWhileRunningIsNoOp(t *testing.T) {
	source := newFakeSource()
	source.delay = 50 * time.Millisecond
	pool, _, sink, metrics := newTestPool(t, source)

	job := testJob(symbolList(10))
	job.WorkerCount = 1

	require.NoError(t, pool.Run(context.Background(), job))
	time.Sleep(10 * time.Millisecond)
	require.Equal(t, models.StateRunning, pool.State())

	require.NoError(t, pool.Run(context.Background(), job))
	assert.Equal(t, 1, metrics.scansStarted)

	waitCompleted(t, sink, 1)
	assert.Equal(t, 1, metrics.scansFinished)
}

func TestStopDiscardsPendingBatches(t *testing.T) {
	source := newFakeSource()
	source.delay = 50 * time.Millisecond
	pool, _, sink, metrics := newTestPool(t, source)

	job := testJob(symbolList(40))
	job.WorkerCount = 1

	require.NoError(t, pool.Run(context.Background(), job))
	time.Sleep(60 * time.Millisecond)

	pool.Stop()

	assert.Equal(t, models.StateIdle, pool.State())

	summary := pool.LastSummary()
	require.NotNil(t, summary)
	assert.True(t, summary.Stopped)
	assert.Equal(t, 5, summary.Processed)
	assert.Equal(t, 40, summary.TotalSymbols)
	assert.True(t, metrics.lastStopped)
	assert.Equal(t, 0, sink.completedCount())

	// The run is settled once Stop returns; no trailing events.
	events := len(sink.progressEvents())
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, events, len(sink.progressEvents()))
}

func TestStopWhenIdleIsNoOp(t *testing.T) {
	pool, _, _, _ := newTestPool(t, newFakeSource())
	pool.Stop()
	assert.Equal(t, models.StateIdle, pool.State())
}

func TestRunWithAllSymbolsBlacklisted(t *testing.T) {
	source := newFakeSource()
	pool, scanCtx, sink, _ := newTestPool(t, source)
	scanCtx.Blacklist.MarkInvalid("AUSDT")
	scanCtx.Blacklist.MarkInvalid("BUSDT")

	require.NoError(t, pool.Run(context.Background(), testJob([]string{"AUSDT", "BUSDT"})))
	waitCompleted(t, sink, 1)

	assert.Equal(t, models.StateIdle, pool.State())
	assert.Equal(t, 0, source.callCount("AUSDT"))

	summary := pool.LastSummary()
	require.NotNil(t, summary)
	assert.Equal(t, 0, summary.TotalSymbols)
	assert.Equal(t, 0, summary.Processed)
}

func TestRunRejectsInvalidJob(t *testing.T) {
	pool, _, _, metrics := newTestPool(t, newFakeSource())

	job := testJob(symbolList(3))
	job.Timeframe = "2h"
	err := pool.Run(context.Background(), job)
	require.ErrorIs(t, err, ErrInvalidScanJob)

	job = testJob(symbolList(3))
	job.Directions = []models.Direction{"sideways"}
	err = pool.Run(context.Background(), job)
	require.ErrorIs(t, err, ErrInvalidScanJob)

	assert.Equal(t, models.StateIdle, pool.State())
	assert.Equal(t, 0, metrics.scansStarted)
}

func TestPoolReusableAfterRun(t *testing.T) {
	source := newFakeSource()
	pool, _, sink, metrics := newTestPool(t, source)

	require.NoError(t, pool.Run(context.Background(), testJob(symbolList(7))))
	waitCompleted(t, sink, 1)

	require.NoError(t, pool.Run(context.Background(), testJob(symbolList(7))))
	waitCompleted(t, sink, 2)

	assert.Equal(t, 2, metrics.scansStarted)
	assert.Equal(t, 2, metrics.scansFinished)
	assert.Equal(t, models.StateIdle, pool.State())
}

func TestWorkerPanicIsContained(t *testing.T) {
	source := newFakeSource()
	source.panicOn = "S004USDT"
	pool, _, sink, metrics := newTestPool(t, source)

	require.NoError(t, pool.Run(context.Background(), testJob(symbolList(10))))
	waitCompleted(t, sink, 1)

	processed, total := pool.Progress()
	assert.Equal(t, 10, processed)
	assert.Equal(t, 10, total)

	errs := sink.errorList()
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "S004USDT")

	metrics.mu.Lock()
	panics := metrics.errors["worker_panic"]
	metrics.mu.Unlock()
	assert.Equal(t, 1, panics)
}

func TestNormalizeJobDefaults(t *testing.T) {
	job, err := normalizeJob(models.ScanJob{Symbols: symbolList(3)})
	require.NoError(t, err)

	assert.Equal(t, "1h", job.Timeframe)
	assert.Equal(t, []models.Direction{models.Long, models.Short}, job.Directions)
	assert.Equal(t, 10, job.CandleCount)
	assert.Equal(t, DefaultBatchSize, job.BatchSize)
	assert.Equal(t, DefaultFetchLimit, job.Limit)
}

func TestNormalizeJobClampsCandleCount(t *testing.T) {
	job, err := normalizeJob(models.ScanJob{Symbols: symbolList(1), CandleCount: 3})
	require.NoError(t, err)
	assert.Equal(t, MinCandleCount, job.CandleCount)

	job, err = normalizeJob(models.ScanJob{Symbols: symbolList(1), CandleCount: 200})
	require.NoError(t, err)
	assert.Equal(t, MaxCandleCount, job.CandleCount)
}

func TestEffectiveWorkerCount(t *testing.T) {
	tests := []struct {
		name      string
		requested int
		symbols   int
		want      int
	}{
		{"auto small universe", 0, 100, 8},
		{"auto scales with load", 0, 600, 12},
		{"auto hits ceiling", 0, 3000, 20},
		{"explicit within range", 5, 10, 5},
		{"explicit above ceiling", 50, 10, 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, effectiveWorkerCount(tt.requested, tt.symbols))
		})
	}
}

func TestPartitionSymbols(t *testing.T) {
	batches := partitionSymbols(symbolList(12), 5)
	require.Len(t, batches, 3)
	assert.Len(t, batches[0], 5)
	assert.Len(t, batches[1], 5)
	assert.Len(t, batches[2], 2)

	batches = partitionSymbols(symbolList(5), 5)
	require.Len(t, batches, 1)

	batches = partitionSymbols(symbolList(3), 5)
	require.Len(t, batches, 1)
	assert.Len(t, batches[0], 3)
}
