package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"CrossScan/internal/domain/models"
	"CrossScan/internal/domain/repository"
	"CrossScan/internal/services/scanner"
	"CrossScan/pkg/logger"
)

const (
	// DefaultBatchSize is how many symbols a worker claims per dequeue.
	DefaultBatchSize = 5

	// DefaultFetchLimit is how many candles to request per symbol.
	DefaultFetchLimit = 500

	MinCandleCount = 5
	MaxCandleCount = 50

	MinWorkers = 1
	MaxWorkers = 20

	defaultJoinTimeout = 5 * time.Second
	panicBackoff       = 500 * time.Millisecond
)

var ErrInvalidScanJob = errors.New("invalid scan job")

// ScanWorkerPool fans a symbol list out to a bounded set of workers, runs
// crossover detection on each symbol and reports results through an
// EventSink. At most one scan runs at a time; the pool returns to Idle
// after every run and can be reused.
type ScanWorkerPool struct {
	fetcher *MarketDataFetcher
	scan    *ScanContext
	sink    repository.EventSink
	metrics repository.Metrics
	logger  *logger.Logger

	joinTimeout time.Duration

	mu      sync.RWMutex
	state   models.ScanState
	stopCh  chan struct{}
	doneCh  chan struct{}
	summary *models.ScanSummary

	progressMu sync.Mutex
	processed  int
	total      int

	signalsFound atomic.Int64
	fetchErrors  atomic.Int64
}

// PoolOption configures ScanWorkerPool.
type PoolOption func(*ScanWorkerPool)

// WithJoinTimeout bounds how long Stop waits for workers to finish their
// current batches.
func WithJoinTimeout(d time.Duration) PoolOption {
	return func(p *ScanWorkerPool) {
		if d > 0 {
			p.joinTimeout = d
		}
	}
}

func NewScanWorkerPool(
	fetcher *MarketDataFetcher,
	scan *ScanContext,
	sink repository.EventSink,
	metrics repository.Metrics,
	log *logger.Logger,
	opts ...PoolOption,
) *ScanWorkerPool {
	p := &ScanWorkerPool{
		fetcher:     fetcher,
		scan:        scan,
		sink:        sink,
		metrics:     metrics,
		logger:      log,
		joinTimeout: defaultJoinTimeout,
		state:       models.StateIdle,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// State reports the current lifecycle state.
func (p *ScanWorkerPool) State() models.ScanState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Progress reports how many symbols of the current (or last) run have
// been processed.
func (p *ScanWorkerPool) Progress() (processed, total int) {
	p.progressMu.Lock()
	defer p.progressMu.Unlock()
	return p.processed, p.total
}

// LastSummary returns the summary of the most recently finished run, or
// nil if no run has finished yet.
func (p *ScanWorkerPool) LastSummary() *models.ScanSummary {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.summary == nil {
		return nil
	}
	clone := *p.summary
	return &clone
}

// Run validates the job, partitions the symbols into batches and launches
// the workers. It returns once the scan is started; completion is reported
// through the sink. Calling Run while a scan is active is a logged no-op.
func (p *ScanWorkerPool) Run(ctx context.Context, job models.ScanJob) error {
	job, err := normalizeJob(job)
	if err != nil {
		return err
	}

	p.mu.Lock()
	if p.state != models.StateIdle {
		state := p.state
		p.mu.Unlock()
		p.logger.Warn("scan already in progress, run request ignored",
			logger.String("state", string(state)),
			logger.String("timeframe", job.Timeframe))
		return nil
	}
	p.state = models.StateRunning
	stopCh := make(chan struct{})
	doneCh := make(chan struct{})
	p.stopCh = stopCh
	p.doneCh = doneCh
	p.mu.Unlock()

	symbols := p.scan.Blacklist.Filter(job.Symbols)
	startedAt := time.Now()

	p.progressMu.Lock()
	p.processed = 0
	p.total = len(symbols)
	p.progressMu.Unlock()
	p.signalsFound.Store(0)
	p.fetchErrors.Store(0)

	p.metrics.RecordScanStarted(job.Timeframe)

	if len(symbols) == 0 {
		p.logger.Info("no symbols left to scan after blacklist filtering",
			logger.String("timeframe", job.Timeframe),
			logger.Int("requested", len(job.Symbols)))
		p.finishRun(job, startedAt, false, doneCh)
		return nil
	}

	batches := partitionSymbols(symbols, job.BatchSize)
	queue := make(chan []string, len(batches))
	for _, batch := range batches {
		queue <- batch
	}
	close(queue)

	workers := effectiveWorkerCount(job.WorkerCount, len(symbols))
	p.logger.Info("scan started",
		logger.String("timeframe", job.Timeframe),
		logger.Int("symbols", len(symbols)),
		logger.Int("batches", len(batches)),
		logger.Int("workers", workers),
		logger.Int("candle_count", job.CandleCount))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go p.worker(ctx, i, job, queue, stopCh, &wg)
	}

	go p.monitor(&wg, queue, job, startedAt, stopCh, doneCh)
	return nil
}

// Stop requests an early shutdown of the active scan. Workers finish their
// current batch, remaining batches are discarded and the pool returns to
// Idle. Blocks until the run is torn down or the join timeout elapses.
func (p *ScanWorkerPool) Stop() {
	p.mu.Lock()
	if p.state != models.StateRunning {
		p.mu.Unlock()
		return
	}
	p.state = models.StateStopping
	close(p.stopCh)
	doneCh := p.doneCh
	p.mu.Unlock()

	p.logger.Info("stopping scan...")

	select {
	case <-doneCh:
	case <-time.After(p.joinTimeout):
		p.logger.Warn("timeout waiting for scan workers to finish",
			logger.Duration("timeout", p.joinTimeout))
	}
}

func (p *ScanWorkerPool) worker(
	ctx context.Context,
	id int,
	job models.ScanJob,
	queue <-chan []string,
	stopCh <-chan struct{},
	wg *sync.WaitGroup,
) {
	defer wg.Done()
	p.logger.Debug("scan worker started", logger.Int("worker_id", id))

	for {
		select {
		case <-stopCh:
			p.logger.Debug("scan worker stopping", logger.Int("worker_id", id))
			return
		case <-ctx.Done():
			p.logger.Debug("scan worker cancelled", logger.Int("worker_id", id))
			return
		default:
		}

		select {
		case batch, ok := <-queue:
			if !ok {
				return
			}
			for _, symbol := range batch {
				p.processSymbol(ctx, job, symbol)
			}
			p.advanceProgress(len(batch))
		default:
			return
		}
	}
}

// processSymbol fetches and scans one symbol. Panics are contained here so
// a single bad symbol cannot take its worker down; the worker backs off
// briefly and moves on.
func (p *ScanWorkerPool) processSymbol(ctx context.Context, job models.ScanJob, symbol string) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("panic while scanning symbol",
				logger.String("symbol", symbol),
				logger.String("timeframe", job.Timeframe),
				logger.Any("panic", r))
			p.metrics.RecordError("worker_panic")
			p.sink.OnError(fmt.Sprintf("scan %s: %v", symbol, r))
			time.Sleep(panicBackoff)
		}
	}()

	timeframe := repository.Timeframe(job.Timeframe)

	series, err := p.fetcher.GetCandles(ctx, symbol, timeframe, job.Limit)
	if err != nil {
		if !errors.Is(err, repository.ErrBlacklisted) {
			p.fetchErrors.Add(1)
			p.logger.Debug("candle fetch failed",
				logger.String("symbol", symbol),
				logger.Error(err))
		}
		return
	}

	p.metrics.RecordSymbolScanned(job.Timeframe)

	frame := scanner.BuildFrame(series)
	if frame == nil {
		return
	}

	for _, direction := range job.Directions {
		signal := scanner.DetectFrame(symbol, job.Timeframe, frame, direction, job.CandleCount)
		if signal == nil {
			continue
		}
		p.signalsFound.Add(1)
		p.metrics.RecordSignal(string(direction))
		p.sink.OnSignal(symbol, *signal)
	}
}

// advanceProgress bumps the processed counter and publishes it in one
// critical section so observers never see the count move backwards.
func (p *ScanWorkerPool) advanceProgress(n int) {
	p.progressMu.Lock()
	p.processed += n
	processed, total := p.processed, p.total
	p.metrics.SetScanProgress(processed, total)
	p.sink.OnProgress(processed, total)
	p.progressMu.Unlock()
}

// monitor waits for all workers to exit, discards whatever was left in the
// queue on an early stop and settles the run.
func (p *ScanWorkerPool) monitor(
	wg *sync.WaitGroup,
	queue <-chan []string,
	job models.ScanJob,
	startedAt time.Time,
	stopCh <-chan struct{},
	doneCh chan struct{},
) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("scan monitor failure", logger.Any("panic", r))
			p.sink.OnError(fmt.Sprintf("scan monitor: %v", r))
			p.toIdle(doneCh)
		}
	}()

	wg.Wait()

	discarded := 0
	for range queue {
		discarded++
	}

	stopRequested := false
	select {
	case <-stopCh:
		stopRequested = true
	default:
	}

	if discarded > 0 {
		p.logger.Info("discarded pending batches after stop",
			logger.Int("batches", discarded))
	}

	p.finishRun(job, startedAt, stopRequested && discarded > 0, doneCh)
}

// finishRun records the summary, emits terminal sink events and returns
// the pool to Idle. Completed fires only when every symbol was processed.
func (p *ScanWorkerPool) finishRun(job models.ScanJob, startedAt time.Time, stopped bool, doneCh chan struct{}) {
	finishedAt := time.Now()

	p.progressMu.Lock()
	processed, total := p.processed, p.total
	p.progressMu.Unlock()

	summary := &models.ScanSummary{
		Timeframe:    job.Timeframe,
		Directions:   job.Directions,
		StartedAt:    startedAt,
		FinishedAt:   finishedAt,
		TotalSymbols: total,
		Processed:    processed,
		SignalsFound: int(p.signalsFound.Load()),
		FetchErrors:  int(p.fetchErrors.Load()),
		Stopped:      stopped,
	}

	p.mu.Lock()
	p.summary = summary
	p.mu.Unlock()

	p.metrics.RecordScanFinished(job.Timeframe, finishedAt.Sub(startedAt).Seconds(), processed, stopped)

	if stopped {
		p.logger.Info("scan stopped before completion",
			logger.String("timeframe", job.Timeframe),
			logger.Int("processed", processed),
			logger.Int("total", total),
			logger.Int64("signals", p.signalsFound.Load()))
	} else {
		p.logger.Info("scan completed",
			logger.String("timeframe", job.Timeframe),
			logger.Int("processed", processed),
			logger.Int64("signals", p.signalsFound.Load()),
			logger.Int64("fetch_errors", p.fetchErrors.Load()),
			logger.Duration("elapsed", finishedAt.Sub(startedAt)))
		p.sink.OnCompleted()
	}

	p.toIdle(doneCh)
}

func (p *ScanWorkerPool) toIdle(doneCh chan struct{}) {
	p.mu.Lock()
	p.state = models.StateIdle
	p.mu.Unlock()
	close(doneCh)
}

// normalizeJob fills defaults and clamps tunables into their valid ranges.
// The timeframe and directions must be valid; everything else is coerced.
func normalizeJob(job models.ScanJob) (models.ScanJob, error) {
	if job.Timeframe == "" {
		job.Timeframe = string(repository.DefaultTimeframe())
	}
	if !repository.IsValidTimeframe(repository.Timeframe(job.Timeframe)) {
		return job, fmt.Errorf("%w: unknown timeframe %q", ErrInvalidScanJob, job.Timeframe)
	}

	if len(job.Directions) == 0 {
		job.Directions = []models.Direction{models.Long, models.Short}
	}
	for _, direction := range job.Directions {
		if !models.IsValidDirection(direction) {
			return job, fmt.Errorf("%w: unknown direction %q", ErrInvalidScanJob, direction)
		}
	}

	if job.CandleCount == 0 {
		job.CandleCount = scanner.DefaultCandleCount
	}
	if job.CandleCount < MinCandleCount {
		job.CandleCount = MinCandleCount
	}
	if job.CandleCount > MaxCandleCount {
		job.CandleCount = MaxCandleCount
	}

	if job.BatchSize <= 0 {
		job.BatchSize = DefaultBatchSize
	}
	if job.Limit <= 0 {
		job.Limit = DefaultFetchLimit
	}

	return job, nil
}

// effectiveWorkerCount resolves the worker count for a run. An explicit
// request is clamped into [MinWorkers, MaxWorkers]; otherwise the count
// scales with the symbol load.
func effectiveWorkerCount(requested, symbols int) int {
	count := requested
	if count <= 0 {
		count = 8
		if scaled := symbols / 50; scaled > count {
			count = scaled
		}
	}
	if count < MinWorkers {
		count = MinWorkers
	}
	if count > MaxWorkers {
		count = MaxWorkers
	}
	return count
}

func partitionSymbols(symbols []string, batchSize int) [][]string {
	batches := make([][]string, 0, (len(symbols)+batchSize-1)/batchSize)
	for start := 0; start < len(symbols); start += batchSize {
		end := start + batchSize
		if end > len(symbols) {
			end = len(symbols)
		}
		batches = append(batches, symbols[start:end])
	}
	return batches
}
