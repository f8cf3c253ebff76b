package scanner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CrossScan/internal/domain/models"
)

func generateSeries(closes []float64) models.CandleSeries {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	series := make(models.CandleSeries, len(closes))
	for i, c := range closes {
		series[i] = models.Candle{
			OpenTime: base.Add(time.Duration(i) * time.Hour),
			Open:     c,
			High:     c + 1,
			Low:      c - 1,
			Close:    c,
			Volume:   1000,
		}
	}
	return series
}

func flatCloses(n int, value float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = value
	}
	return out
}

func TestSMA(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		window int
		idx    int
		want   float64
	}{
		{"window 3 middle", []float64{1, 2, 3, 4, 5}, 3, 2, 2},
		{"window 3 tail", []float64{1, 2, 3, 4, 5}, 3, 4, 4},
		{"window equals length", []float64{2, 4, 6}, 3, 2, 4},
		{"flat input", flatCloses(10, 7), 5, 9, 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SMA(tt.values, tt.window)
			require.Len(t, got, len(tt.values))
			assert.InDelta(t, tt.want, got[tt.idx], 1e-9)
		})
	}
}

func TestSMAShortInput(t *testing.T) {
	got := SMA([]float64{1, 2}, 5)
	require.Len(t, got, 2)
	assert.Zero(t, got[0])
	assert.Zero(t, got[1])
}

func TestBuildFrameAlignsRows(t *testing.T) {
	series := generateSeries(flatCloses(120, 100))
	frame := BuildFrame(series)

	require.Len(t, frame, 120-WindowSlow+1)
	// On flat closes every average equals the close.
	first := frame[0]
	assert.Equal(t, series[WindowSlow-1].OpenTime, first.Candle.OpenTime)
	assert.InDelta(t, 100, first.MA7, 1e-9)
	assert.InDelta(t, 100, first.MA25, 1e-9)
	assert.InDelta(t, 100, first.MA99, 1e-9)
}

func TestBuildFrameTooShort(t *testing.T) {
	series := generateSeries(flatCloses(WindowSlow-1, 100))
	assert.Nil(t, BuildFrame(series))
}
