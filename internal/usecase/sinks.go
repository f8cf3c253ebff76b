package usecase

import (
	"context"
	"sync"
	"time"

	"CrossScan/internal/domain/models"
	"CrossScan/internal/domain/repository"
	"CrossScan/pkg/logger"
)

// FanoutSink broadcasts every scan event to all child sinks in order.
type FanoutSink struct {
	sinks []repository.EventSink
}

func NewFanoutSink(sinks ...repository.EventSink) *FanoutSink {
	return &FanoutSink{sinks: sinks}
}

func (f *FanoutSink) OnProgress(processed, total int) {
	for _, s := range f.sinks {
		s.OnProgress(processed, total)
	}
}

func (f *FanoutSink) OnSignal(symbol string, signal models.Signal) {
	for _, s := range f.sinks {
		s.OnSignal(symbol, signal)
	}
}

func (f *FanoutSink) OnCompleted() {
	for _, s := range f.sinks {
		s.OnCompleted()
	}
}

func (f *FanoutSink) OnError(message string) {
	for _, s := range f.sinks {
		s.OnError(message)
	}
}

// LogSink writes scan events to the application log. Progress is logged
// at debug level to keep large scans from flooding the output.
type LogSink struct {
	logger *logger.Logger
}

func NewLogSink(log *logger.Logger) *LogSink {
	return &LogSink{logger: log}
}

func (l *LogSink) OnProgress(processed, total int) {
	l.logger.Debug("scan progress",
		logger.Int("processed", processed),
		logger.Int("total", total))
}

func (l *LogSink) OnSignal(symbol string, signal models.Signal) {
	l.logger.Info("crossover signal detected",
		logger.String("symbol", symbol),
		logger.String("direction", string(signal.Direction)),
		logger.String("timeframe", signal.Timeframe),
		logger.Float64("close", signal.SignalClose),
		logger.Float64("ma7", signal.MA7),
		logger.Float64("ma25", signal.MA25),
		logger.Time("crossover_time", signal.CrossoverTime))
}

func (l *LogSink) OnCompleted() {
	l.logger.Info("scan drained all batches")
}

func (l *LogSink) OnError(message string) {
	l.logger.Error("scan error reported", logger.String("message", message))
}

const defaultRecorderLimit = 500

// SignalRecorder keeps the most recent signals in memory so the HTTP API
// can serve them without touching external storage.
type SignalRecorder struct {
	mu      sync.RWMutex
	limit   int
	signals []models.Signal
}

func NewSignalRecorder(limit int) *SignalRecorder {
	if limit <= 0 {
		limit = defaultRecorderLimit
	}
	return &SignalRecorder{limit: limit}
}

func (r *SignalRecorder) OnProgress(processed, total int) {}

func (r *SignalRecorder) OnSignal(symbol string, signal models.Signal) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.signals = append(r.signals, signal)
	if len(r.signals) > r.limit {
		r.signals = r.signals[len(r.signals)-r.limit:]
	}
}

func (r *SignalRecorder) OnCompleted() {}

func (r *SignalRecorder) OnError(message string) {}

// Snapshot returns the recorded signals, newest first.
func (r *SignalRecorder) Snapshot() []models.Signal {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Signal, len(r.signals))
	for i, s := range r.signals {
		out[len(r.signals)-1-i] = s
	}
	return out
}

// Clear drops all recorded signals and returns how many were held.
func (r *SignalRecorder) Clear() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := len(r.signals)
	r.signals = nil
	return prev
}

const publishTimeout = 10 * time.Second

// PublisherSink pushes detected signals to the configured publisher.
// Publish failures are logged, never propagated back into the scan.
type PublisherSink struct {
	publisher repository.SignalPublisher
	logger    *logger.Logger
	summaries func() *models.ScanSummary
}

func NewPublisherSink(publisher repository.SignalPublisher, log *logger.Logger) *PublisherSink {
	return &PublisherSink{publisher: publisher, logger: log}
}

// BindSummarySource installs the provider queried for the run summary when
// a scan completes. Must be called before the first scan starts.
func (p *PublisherSink) BindSummarySource(source func() *models.ScanSummary) {
	p.summaries = source
}

func (p *PublisherSink) OnProgress(processed, total int) {}

func (p *PublisherSink) OnSignal(symbol string, signal models.Signal) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := p.publisher.PublishSignal(ctx, &signal); err != nil {
		p.logger.Error("signal publish failed",
			logger.String("symbol", symbol),
			logger.String("direction", string(signal.Direction)),
			logger.Error(err))
	}
}

func (p *PublisherSink) OnCompleted() {
	if p.summaries == nil {
		return
	}
	summary := p.summaries()
	if summary == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := p.publisher.PublishSummary(ctx, summary); err != nil {
		p.logger.Error("scan summary publish failed",
			logger.String("timeframe", summary.Timeframe),
			logger.Error(err))
	}
}

func (p *PublisherSink) OnError(message string) {}
