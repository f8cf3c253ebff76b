package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

const minimalConfig = `
environment: test
`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "binance", cfg.Source.Backend)
	assert.Equal(t, "https://api.binance.com", cfg.Source.Binance.BaseURL)
	assert.Equal(t, "USDT", cfg.Symbols.QuoteAsset)
	assert.Equal(t, "1h", cfg.Scan.Timeframe)
	assert.Equal(t, []string{"long", "short"}, cfg.Scan.Directions)
}

func TestLoadParsesScanSection(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
environment: production
scan:
  timeframe: 4h
  directions: [long]
  candle_count: 20
  batch_size: 10
  worker_count: 12
  interval: 15m
  auto_start: true
  prewarm_symbols: 25
`))
	require.NoError(t, err)

	assert.Equal(t, "4h", cfg.Scan.Timeframe)
	assert.Equal(t, []string{"long"}, cfg.Scan.Directions)
	assert.Equal(t, 20, cfg.Scan.CandleCount)
	assert.Equal(t, 10, cfg.Scan.BatchSize)
	assert.Equal(t, 12, cfg.Scan.WorkerCount)
	assert.Equal(t, 15*time.Minute, cfg.Scan.Interval)
	assert.True(t, cfg.Scan.AutoStart)
	assert.Equal(t, 25, cfg.Scan.PrewarmSymbols)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			"missing environment",
			`server: {port: 9000}`,
			"environment is required",
		},
		{
			"bad backend",
			"environment: test\nsource:\n  backend: csv\n",
			"source.backend",
		},
		{
			"clickhouse without host",
			"environment: test\nsource:\n  backend: clickhouse\n",
			"source.clickhouse.host",
		},
		{
			"bad timeframe",
			"environment: test\nscan:\n  timeframe: 2h\n",
			"scan.timeframe",
		},
		{
			"bad direction",
			"environment: test\nscan:\n  directions: [sideways]\n",
			"scan.directions",
		},
		{
			"kafka enabled without brokers",
			"environment: test\nkafka:\n  enabled: true\n  signals_topic: crossscan.signals\n",
			"kafka.brokers",
		},
		{
			"kafka enabled without topic",
			"environment: test\nkafka:\n  enabled: true\n  brokers: [localhost:9092]\n",
			"kafka.signals_topic",
		},
		{
			"redis enabled without addr",
			"environment: test\ncache:\n  ops:\n    redis:\n      enabled: true\n",
			"cache.ops.redis.addr",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadWithEnvOverrides(t *testing.T) {
	t.Setenv("SCAN_TIMEFRAME", "1d")
	t.Setenv("SYMBOLS", "BTCUSDT,ETHUSDT")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := LoadWithEnv(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, "1d", cfg.Scan.Timeframe)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, cfg.Symbols.Include)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
}
