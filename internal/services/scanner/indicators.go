package scanner

import "CrossScan/internal/domain/models"

// Moving-average windows used by the crossover strategy.
const (
	WindowFast = 7
	WindowMid  = 25
	WindowSlow = 99
)

// Row is one candle with its moving averages, all defined.
type Row struct {
	Candle models.Candle
	MA7    float64
	MA25   float64
	MA99   float64
}

// SMA computes the simple moving average of values over window. The result
// is aligned with the input; entries before window-1 are left at zero and
// must not be read.
func SMA(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	if window <= 0 || len(values) < window {
		return out
	}
	var sum float64
	for i, v := range values {
		sum += v
		if i >= window {
			sum -= values[i-window]
		}
		if i >= window-1 {
			out[i] = sum / float64(window)
		}
	}
	return out
}

// BuildFrame computes MA7/MA25/MA99 over the series and returns only the
// rows where all three are defined, i.e. from candle index WindowSlow-1 on.
// Returns nil when the series is too short for the slow average.
func BuildFrame(series models.CandleSeries) []Row {
	if len(series) < WindowSlow {
		return nil
	}

	closes := series.Closes()
	fast := SMA(closes, WindowFast)
	mid := SMA(closes, WindowMid)
	slow := SMA(closes, WindowSlow)

	rows := make([]Row, 0, len(series)-WindowSlow+1)
	for i := WindowSlow - 1; i < len(series); i++ {
		rows = append(rows, Row{
			Candle: series[i],
			MA7:    fast[i],
			MA25:   mid[i],
			MA99:   slow[i],
		})
	}
	return rows
}
