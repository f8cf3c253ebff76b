package models

import "time"

// Candle is one OHLCV record. Immutable once produced.
type Candle struct {
	OpenTime time.Time `json:"open_time"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
}

// CandleSeries is an ordered candle sequence: strictly increasing OpenTime,
// no duplicates, never mutated after creation. Derived views (moving
// averages) live in separate slices aligned by index.
type CandleSeries []Candle

// Closes returns the close column.
func (s CandleSeries) Closes() []float64 {
	out := make([]float64, len(s))
	for i, c := range s {
		out[i] = c.Close
	}
	return out
}

// Last returns the final candle and true, or a zero candle and false when empty.
func (s CandleSeries) Last() (Candle, bool) {
	if len(s) == 0 {
		return Candle{}, false
	}
	return s[len(s)-1], true
}

// Clone returns an independent copy. Callers that hand a series to the cache
// and keep mutating their own slice use this to preserve immutability.
func (s CandleSeries) Clone() CandleSeries {
	if s == nil {
		return nil
	}
	out := make(CandleSeries, len(s))
	copy(out, s)
	return out
}
