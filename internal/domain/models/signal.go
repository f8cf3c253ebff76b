package models

import "time"

// Direction of a crossover signal.
type Direction string

const (
	Long  Direction = "long"
	Short Direction = "short"
)

// IsValidDirection returns true for the two supported directions.
func IsValidDirection(d Direction) bool {
	return d == Long || d == Short
}

// Signal is a detected MA7/MA25 crossover with its confirmation context.
// Created only by the detector; immutable; owned by whoever receives it.
type Signal struct {
	Symbol    string    `json:"symbol"`
	Direction Direction `json:"direction"`
	Timeframe string    `json:"timeframe"`

	// Values of the most recent candle at detection time.
	SignalTime  time.Time `json:"signal_time"`
	SignalClose float64   `json:"signal_close"`
	MA7         float64   `json:"ma7"`
	MA25        float64   `json:"ma25"`
	MA99        float64   `json:"ma99"`

	// The candle where MA7 crossed MA25.
	CrossoverClose float64   `json:"crossover_close"`
	CrossoverTime  time.Time `json:"crossover_time"`
}
