package models

import "time"

// ScanJob carries the caller-supplied parameters for one scan run.
// Zero fields are filled with defaults by the pool before workers start.
type ScanJob struct {
	Symbols     []string    `json:"symbols"`
	Timeframe   string      `json:"timeframe"`
	Directions  []Direction `json:"directions"`
	CandleCount int         `json:"candle_count"` // confirmation window, default 10
	BatchSize   int         `json:"batch_size"`   // symbols per batch, default 5
	WorkerCount int         `json:"worker_count"` // 0 = auto from symbol count
	Limit       int         `json:"limit"`        // candles fetched per symbol, default 500
}

// ScanState is the pool lifecycle state.
type ScanState string

const (
	StateIdle     ScanState = "idle"
	StateRunning  ScanState = "running"
	StateStopping ScanState = "stopping"
)

// ScanSummary describes one finished (or stopped) scan run.
type ScanSummary struct {
	Timeframe    string      `json:"timeframe"`
	Directions   []Direction `json:"directions"`
	StartedAt    time.Time   `json:"started_at"`
	FinishedAt   time.Time   `json:"finished_at"`
	TotalSymbols int         `json:"total_symbols"`
	Processed    int         `json:"processed"`
	SignalsFound int         `json:"signals_found"`
	FetchErrors  int         `json:"fetch_errors"`
	Stopped      bool        `json:"stopped"`
}
