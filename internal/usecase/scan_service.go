package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"CrossScan/internal/domain/models"
	"CrossScan/internal/domain/repository"
	"CrossScan/pkg/config"
	"CrossScan/pkg/logger"
)

var ErrScanInProgress = errors.New("scan already in progress")

// ScanStatus is the external view of the pool state served by the API.
type ScanStatus struct {
	State       models.ScanState    `json:"state"`
	Processed   int                 `json:"processed"`
	Total       int                 `json:"total"`
	LastSummary *models.ScanSummary `json:"last_summary,omitempty"`
}

// ScanService sits between the transports and the pool. It resolves the
// symbol universe, owns the periodic rescan loop and exposes the admin
// operations on the shared cache and blacklist.
type ScanService struct {
	pool     *ScanWorkerPool
	scan     *ScanContext
	catalog  repository.SymbolCatalog
	recorder *SignalRecorder
	fetcher  *MarketDataFetcher
	cfg      config.ScanConfig
	logger   *logger.Logger

	mu         sync.Mutex
	cancelAuto context.CancelFunc
	wg         sync.WaitGroup
}

func NewScanService(
	pool *ScanWorkerPool,
	scan *ScanContext,
	catalog repository.SymbolCatalog,
	recorder *SignalRecorder,
	fetcher *MarketDataFetcher,
	cfg config.ScanConfig,
	log *logger.Logger,
) *ScanService {
	return &ScanService{
		pool:     pool,
		scan:     scan,
		catalog:  catalog,
		recorder: recorder,
		fetcher:  fetcher,
		cfg:      cfg,
		logger:   log,
	}
}

// DefaultJob builds a scan job from the configured scan settings.
func (s *ScanService) DefaultJob() models.ScanJob {
	directions := make([]models.Direction, 0, len(s.cfg.Directions))
	for _, d := range s.cfg.Directions {
		directions = append(directions, models.Direction(d))
	}

	return models.ScanJob{
		Timeframe:   s.cfg.Timeframe,
		Directions:  directions,
		CandleCount: s.cfg.CandleCount,
		BatchSize:   s.cfg.BatchSize,
		WorkerCount: s.cfg.WorkerCount,
		Limit:       s.cfg.Limit,
	}
}

// StartScan resolves the symbol universe if the job carries none and
// launches a run. Returns ErrScanInProgress when the pool is busy.
func (s *ScanService) StartScan(ctx context.Context, job models.ScanJob) error {
	if s.pool.State() != models.StateIdle {
		return ErrScanInProgress
	}

	if len(job.Symbols) == 0 {
		symbols, err := s.catalog.Symbols(ctx)
		if err != nil {
			return fmt.Errorf("resolve symbol universe: %w", err)
		}
		job.Symbols = symbols
	}

	return s.pool.Run(ctx, job)
}

// StopScan requests an early shutdown of the active run, if any.
func (s *ScanService) StopScan() {
	s.pool.Stop()
}

// Status reports the pool state, scan progress and the last run summary.
func (s *ScanService) Status() ScanStatus {
	processed, total := s.pool.Progress()
	return ScanStatus{
		State:       s.pool.State(),
		Processed:   processed,
		Total:       total,
		LastSummary: s.pool.LastSummary(),
	}
}

// Signals returns the recently detected signals, newest first.
func (s *ScanService) Signals() []models.Signal {
	return s.recorder.Snapshot()
}

// Symbols returns the scannable symbol universe.
func (s *ScanService) Symbols(ctx context.Context) ([]string, error) {
	return s.catalog.Symbols(ctx)
}

// ClearCache drops all cached candle series and returns the previous size.
func (s *ScanService) ClearCache() int {
	size := s.scan.ClearCache()
	s.logger.Info("candle cache cleared", logger.Int("previous_size", size))
	return size
}

// ClearBlacklist forgets all invalid symbols and returns the previous size.
func (s *ScanService) ClearBlacklist() int {
	size := s.scan.ClearBlacklist()
	s.logger.Info("symbol blacklist cleared", logger.Int("previous_size", size))
	return size
}

// Start runs the startup sequence: optional cache prewarm, optional
// immediate scan and the periodic rescan loop when an interval is set.
func (s *ScanService) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	if s.cancelAuto != nil {
		s.mu.Unlock()
		cancel()
		return errors.New("scan service already started")
	}
	s.cancelAuto = cancel
	s.mu.Unlock()

	if s.cfg.PrewarmSymbols > 0 {
		s.prewarm(ctx)
	}

	if s.cfg.AutoStart {
		if err := s.StartScan(ctx, s.DefaultJob()); err != nil {
			s.logger.Error("initial scan failed to start", logger.Error(err))
		}
	}

	if s.cfg.Interval > 0 {
		s.wg.Add(1)
		go s.autoScanLoop(runCtx)
	}

	return nil
}

func (s *ScanService) autoScanLoop(ctx context.Context) {
	defer s.wg.Done()
	s.logger.Info("periodic scan loop started",
		logger.Duration("interval", s.cfg.Interval))

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("periodic scan loop stopped")
			return
		case <-ticker.C:
			if err := s.StartScan(ctx, s.DefaultJob()); err != nil {
				if errors.Is(err, ErrScanInProgress) {
					s.logger.Warn("previous scan still running, skipping scheduled run")
					continue
				}
				s.logger.Error("scheduled scan failed to start", logger.Error(err))
			}
		}
	}
}

// prewarm fetches candles for the first configured slice of the symbol
// universe so the first scan starts against a warm cache. Failures only
// cost the warm entry.
func (s *ScanService) prewarm(ctx context.Context) {
	symbols, err := s.catalog.Symbols(ctx)
	if err != nil {
		s.logger.Warn("cache prewarm skipped, symbol universe unavailable", logger.Error(err))
		return
	}

	count := min(s.cfg.PrewarmSymbols, len(symbols))
	timeframe := repository.NormalizeTimeframe(s.cfg.Timeframe)
	limit := s.cfg.Limit
	if limit <= 0 {
		limit = DefaultFetchLimit
	}

	// A few workers are enough; the fetch rate limiter is the real ceiling.
	jobs := make(chan string, count)
	for _, symbol := range symbols[:count] {
		jobs <- symbol
	}
	close(jobs)

	var (
		wg     sync.WaitGroup
		warmMu sync.Mutex
		warmed int
	)
	for i := 0; i < min(4, count); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for symbol := range jobs {
				if ctx.Err() != nil {
					return
				}
				if _, err := s.fetcher.GetCandles(ctx, symbol, timeframe, limit); err == nil {
					warmMu.Lock()
					warmed++
					warmMu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	s.logger.Info("candle cache prewarmed",
		logger.Int("requested", count),
		logger.Int("warmed", warmed))
}

// Shutdown stops the rescan loop and the active run.
func (s *ScanService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancelAuto
	s.cancelAuto = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.pool.Stop()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scan service shutdown: %w", ctx.Err())
	}
}
