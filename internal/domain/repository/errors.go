package repository

import "errors"

var (
	// ErrBlacklisted marks a symbol skipped because an earlier fetch failed
	// permanently. Not a new failure; callers do not re-log it.
	ErrBlacklisted = errors.New("symbol is blacklisted")

	// ErrInsufficientData marks a fetch that returned too few candles to
	// analyze. Transient: not cached, not blacklisted.
	ErrInsufficientData = errors.New("insufficient candle data")
)
