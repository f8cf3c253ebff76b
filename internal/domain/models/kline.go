package models

import "time"

// KlineEvent is one live candle update from the exchange stream.
// Closed marks the bucket as final; open buckets mutate in place upstream.
type KlineEvent struct {
	Symbol    string
	Timeframe string
	Closed    bool
	Candle    Candle
	EventTime time.Time
}
