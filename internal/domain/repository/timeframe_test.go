package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeTimeframe(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Timeframe
	}{
		{"empty falls back", "", TF1h},
		{"valid passes through", "15m", TF15m},
		{"weekly", "1w", TF1w},
		{"unknown falls back", "2h", TF1h},
		{"case sensitive", "1H", TF1h},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeTimeframe(tt.in))
		})
	}
}

func TestIsValidTimeframe(t *testing.T) {
	for _, tf := range SupportedTimeframes() {
		assert.True(t, IsValidTimeframe(tf), "%s should be valid", tf)
	}
	assert.False(t, IsValidTimeframe("3m"))
	assert.False(t, IsValidTimeframe(""))
}

func TestTimeframeDuration(t *testing.T) {
	assert.Equal(t, time.Minute, TF1m.Duration())
	assert.Equal(t, 4*time.Hour, TF4h.Duration())
	assert.Equal(t, 7*24*time.Hour, TF1w.Duration())
	assert.Zero(t, Timeframe("2h").Duration())
}
