package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"CrossScan/internal/domain/models"
	domrepo "CrossScan/internal/domain/repository"
)

// KlineProc is the downstream processor the pipeline feeds.
type KlineProc interface {
	Process(ctx context.Context, ev *models.KlineEvent) error
}

// StreamPipeline sits between the exchange WebSocket and the candle cache.
// It validates events, throttles open-candle churn per symbol, and buffers
// when the downstream processor fails. Closed candles always pass the
// throttle; losing one would leave a hole in cached series.
type StreamPipeline struct {
	proc        KlineProc
	metrics     domrepo.Metrics
	minInterval time.Duration
	bufSize     int
	bufCh       chan *models.KlineEvent
	stopCh      chan struct{}
	started     bool
	mu          sync.Mutex
	lastSeen    map[string]time.Time // per-symbol last accepted open-candle update
}

type PipelineOption func(*StreamPipeline)

// WithMinInterval sets the minimum spacing between open-candle updates
// accepted per symbol.
func WithMinInterval(d time.Duration) PipelineOption {
	return func(p *StreamPipeline) {
		if d > 0 {
			p.minInterval = d
		}
	}
}

// WithBufferSize sets the retry buffer size used when downstream fails.
func WithBufferSize(n int) PipelineOption {
	return func(p *StreamPipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// NewStreamPipeline creates a new pipeline.
func NewStreamPipeline(proc KlineProc, metrics domrepo.Metrics, opts ...PipelineOption) *StreamPipeline {
	p := &StreamPipeline{
		proc:        proc,
		metrics:     metrics,
		minInterval: time.Second,
		bufSize:     1000,
		stopCh:      make(chan struct{}),
		lastSeen:    make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bufCh = make(chan *models.KlineEvent, p.bufSize)
	return p
}

// Start launches background flushing of buffered events.
func (p *StreamPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go func() {
		backoff := 50 * time.Millisecond
		for {
			select {
			case <-p.stopCh:
				return
			case ev := <-p.bufCh:
				if ev == nil {
					continue
				}
				if err := p.proc.Process(ctx, ev); err != nil {
					if backoff < 2*time.Second {
						backoff *= 2
					}
					p.metrics.RecordError("pipeline_flush")
					time.Sleep(backoff)
					// requeue if space; drop otherwise
					select {
					case p.bufCh <- ev:
					default:
						p.metrics.RecordError("pipeline_buffer_drop")
					}
				} else {
					backoff = 50 * time.Millisecond
				}
			}
		}
	}()
}

// Stop stops the background flushing.
func (p *StreamPipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()
	close(p.stopCh)
}

// Process validates and throttles an event, then forwards it downstream,
// buffering on errors. Called from the single stream consumer goroutine.
func (p *StreamPipeline) Process(ctx context.Context, ev *models.KlineEvent) error {
	start := time.Now()
	if err := validateKlineEvent(ev); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}

	if !ev.Closed && !p.allow(ev.Symbol, start) {
		// throttled open-candle churn; drop silently
		p.metrics.RecordError("pipeline_throttle")
		return nil
	}

	if err := p.proc.Process(ctx, ev); err != nil {
		p.metrics.RecordError("pipeline_process")
		// buffer non-blocking
		select {
		case p.bufCh <- ev:
		default:
			p.metrics.RecordError("pipeline_buffer_full")
		}
		return fmt.Errorf("pipeline downstream: %w", err)
	}

	p.metrics.RecordLatency("pipeline_process", time.Since(start).Seconds())
	return nil
}

func validateKlineEvent(ev *models.KlineEvent) error {
	if ev == nil {
		return fmt.Errorf("kline event nil")
	}
	if ev.Symbol == "" {
		return fmt.Errorf("symbol empty")
	}
	if ev.Candle.OpenTime.IsZero() {
		return fmt.Errorf("open time missing")
	}
	if ev.Candle.Close <= 0 || ev.Candle.Volume < 0 {
		return fmt.Errorf("invalid price/volume")
	}
	return nil
}

func (p *StreamPipeline) allow(symbol string, now time.Time) bool {
	if p.minInterval <= 0 {
		return true
	}
	last := p.lastSeen[symbol]
	if !last.IsZero() && now.Sub(last) < p.minInterval {
		return false
	}
	p.lastSeen[symbol] = now
	return true
}
