package repository

import (
	"context"

	"CrossScan/internal/domain/models"
)

// CandleSource supplies OHLCV series for one symbol, oldest first.
type CandleSource interface {
	FetchCandles(ctx context.Context, symbol string, tf Timeframe, limit int) (models.CandleSeries, error)
}

// SymbolCatalog lists the scannable symbols of the configured market.
type SymbolCatalog interface {
	Symbols(ctx context.Context) ([]string, error)
}

// KlineStream delivers live candle updates over a persistent connection.
type KlineStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.KlineEvent, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// SignalPublisher ships detected signals and scan summaries downstream.
type SignalPublisher interface {
	PublishSignal(ctx context.Context, s *models.Signal) error
	PublishSummary(ctx context.Context, sum *models.ScanSummary) error
	Close() error
}

// EventSink receives scan lifecycle events. Implementations must return
// quickly; OnProgress is emitted under the pool's progress lock.
type EventSink interface {
	OnProgress(processed, total int)
	OnSignal(symbol string, signal models.Signal)
	OnCompleted()
	OnError(message string)
}

type Metrics interface {
	RecordScanStarted(timeframe string)
	RecordScanFinished(timeframe string, seconds float64, processed int, stopped bool)
	RecordSymbolScanned(timeframe string)
	RecordSignal(direction string)
	RecordFetchError(class string)
	RecordCacheHit()
	RecordCacheMiss()
	SetBlacklistSize(n int)
	SetScanProgress(processed, total int)
	RecordLatency(op string, seconds float64)
	RecordError(kind string)
}
