package models

// Requests for scan HTTP endpoints. Defined in domain for consistency and reuse.

// ScanRequest is the POST /api/scan body. Every field is optional; zero
// values fall back to the configured scan defaults.
type ScanRequest struct {
	Symbols     []string `json:"symbols"`
	Timeframe   string   `json:"timeframe" validate:"omitempty,oneof=1m 5m 15m 30m 1h 4h 1d 1w"`
	Directions  []string `json:"directions" validate:"omitempty,dive,oneof=long short"`
	CandleCount int      `json:"candle_count" validate:"omitempty,gte=5,lte=50"`
	BatchSize   int      `json:"batch_size" validate:"omitempty,gte=1,lte=100"`
	WorkerCount int      `json:"worker_count" validate:"omitempty,gte=1,lte=20"`
	Limit       int      `json:"limit" validate:"omitempty,gte=50,lte=1000"`
}

// SignalsQuery filters the recorded signal history. Since and Until accept
// RFC3339 or unix epoch strings; unparseable values are treated as unset.
type SignalsQuery struct {
	Symbol    string `query:"symbol" json:"symbol"`
	Direction string `query:"direction" json:"direction" validate:"omitempty,oneof=long short"`
	Since     string `query:"since" json:"since"`
	Until     string `query:"until" json:"until"`
	Limit     int    `query:"limit" json:"limit" default:"100" validate:"gte=1,lte=1000"`
}
