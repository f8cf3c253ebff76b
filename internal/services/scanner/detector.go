package scanner

import "CrossScan/internal/domain/models"

// DefaultCandleCount is the default crossover search window length.
const DefaultCandleCount = 10

// Confirmation candles required after a crossover.
const confirmSpan = 3

// Detect runs crossover detection for one direction over a raw candle
// series. Pure function: no I/O, no shared state, deterministic. Returns nil
// when the series is too short for the moving averages or no confirmed
// crossover exists.
func Detect(symbol string, tf string, series models.CandleSeries, direction models.Direction, candleCount int) *models.Signal {
	frame := BuildFrame(series)
	return DetectFrame(symbol, tf, frame, direction, candleCount)
}

// DetectFrame is Detect over an already MA-aligned frame.
//
// The search window is the last candleCount rows. A Long crossover is the
// first window row whose previous MA7 <= MA25 and current MA7 > MA25; Short
// mirrors the inequalities. The crossover must be followed by confirmSpan
// rows in the full frame whose close stays strictly beyond MA7, and the
// frame's second-to-last row (the last fully closed candle) must do the
// same. Equality of MA7 and MA25 counts for crossover eligibility on the
// previous row but never satisfies a confirmation check.
func DetectFrame(symbol string, tf string, frame []Row, direction models.Direction, candleCount int) *models.Signal {
	if candleCount <= 0 {
		candleCount = DefaultCandleCount
	}
	if len(frame) < 2 || len(frame) < candleCount {
		return nil
	}

	windowStart := len(frame) - candleCount
	window := frame[windowStart:]

	crossIdx := -1
	for i := 1; i < len(window); i++ {
		prev, cur := window[i-1], window[i]
		if crossed(prev, cur, direction) {
			crossIdx = i
			break
		}
	}
	if crossIdx < 0 {
		return nil
	}

	// Confirmation runs on absolute frame positions so a crossover near the
	// window tail can still be confirmed against the rest of the series.
	absIdx := windowStart + crossIdx
	if absIdx+confirmSpan >= len(frame) {
		return nil
	}
	for _, r := range frame[absIdx+1 : absIdx+1+confirmSpan] {
		if !closedBeyondFast(r, direction) {
			return nil
		}
	}
	if !closedBeyondFast(frame[len(frame)-2], direction) {
		return nil
	}

	last := frame[len(frame)-1]
	cross := frame[absIdx]
	return &models.Signal{
		Symbol:         symbol,
		Direction:      direction,
		Timeframe:      tf,
		SignalTime:     last.Candle.OpenTime,
		SignalClose:    last.Candle.Close,
		MA7:            last.MA7,
		MA25:           last.MA25,
		MA99:           last.MA99,
		CrossoverClose: cross.Candle.Close,
		CrossoverTime:  cross.Candle.OpenTime,
	}
}

func crossed(prev, cur Row, direction models.Direction) bool {
	if direction == models.Short {
		return prev.MA7 >= prev.MA25 && cur.MA7 < cur.MA25
	}
	return prev.MA7 <= prev.MA25 && cur.MA7 > cur.MA25
}

func closedBeyondFast(r Row, direction models.Direction) bool {
	if direction == models.Short {
		return r.Candle.Close < r.MA7
	}
	return r.Candle.Close > r.MA7
}
