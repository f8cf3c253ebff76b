package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string        `yaml:"environment"`
	Server      ServerConfig  `yaml:"server"`
	Metrics     MetricsConfig `yaml:"metrics"`
	Log         LogConfig     `yaml:"log"`
	Source      SourceConfig  `yaml:"source"`
	Symbols     SymbolsConfig `yaml:"symbols"`
	Scan        ScanConfig    `yaml:"scan"`
	Stream      StreamConfig  `yaml:"stream"`
	Cache       CacheConfig   `yaml:"cache"`
	Kafka       KafkaConfig   `yaml:"kafka"`
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	RateLimit       float64       `yaml:"rate_limit"`
	RateBurst       int           `yaml:"rate_burst"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SourceConfig selects where candles come from.
type SourceConfig struct {
	Backend    string           `yaml:"backend"` // binance or clickhouse
	Binance    BinanceConfig    `yaml:"binance"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
}

type BinanceConfig struct {
	BaseURL   string        `yaml:"base_url"`
	Proxy     string        `yaml:"proxy"` // optional outbound HTTP proxy URL
	Timeout   time.Duration `yaml:"timeout"`
	RateLimit float64       `yaml:"rate_limit"` // requests per second
	RateBurst int           `yaml:"rate_burst"`
}

type ClickHouseConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	Database         string        `yaml:"database"`
	User             string        `yaml:"user"`
	Password         string        `yaml:"password"`
	UseHTTP          bool          `yaml:"use_http"`
	AsyncInsert      bool          `yaml:"async_insert"`
	WaitForAsync     bool          `yaml:"wait_for_async_insert"`
	DialTimeout      time.Duration `yaml:"dial_timeout"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	MaxExecutionTime time.Duration `yaml:"max_execution_time"`
}

// SymbolsConfig shapes the scannable symbol universe. An explicit include
// list bypasses exchange discovery entirely.
type SymbolsConfig struct {
	QuoteAsset string        `yaml:"quote_asset"`
	Include    []string      `yaml:"include"`
	Exclude    []string      `yaml:"exclude"`
	RefreshTTL time.Duration `yaml:"refresh_ttl"`
}

type ScanConfig struct {
	Timeframe      string        `yaml:"timeframe"`
	Directions     []string      `yaml:"directions"`
	CandleCount    int           `yaml:"candle_count"`
	BatchSize      int           `yaml:"batch_size"`
	WorkerCount    int           `yaml:"worker_count"`
	Limit          int           `yaml:"limit"`
	Interval       time.Duration `yaml:"interval"`
	AutoStart      bool          `yaml:"auto_start"`
	PrewarmSymbols int           `yaml:"prewarm_symbols"`
	SignalHistory  int           `yaml:"signal_history"`
	StopTimeout    time.Duration `yaml:"stop_timeout"`
}

type StreamConfig struct {
	Enabled        bool          `yaml:"enabled"`
	URL            string        `yaml:"url"`
	Symbols        []string      `yaml:"symbols"`
	Timeframe      string        `yaml:"timeframe"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	PingInterval   time.Duration `yaml:"ping_interval"`
	BufferSize     int           `yaml:"buffer_size"`
}

type CacheConfig struct {
	TTL time.Duration  `yaml:"ttl"`
	Ops OpsCacheConfig `yaml:"ops"`
}

// OpsCacheConfig backs operational lookups (symbol catalog, signal dedupe)
// with an optional Redis layer behind the in-process one.
type OpsCacheConfig struct {
	Enabled   bool          `yaml:"enabled"`
	MemoryTTL time.Duration `yaml:"memory_ttl"`
	Redis     RedisConfig   `yaml:"redis"`
}

type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type KafkaConfig struct {
	Enabled       bool                `yaml:"enabled"`
	Brokers       []string            `yaml:"brokers"`
	SignalsTopic  string              `yaml:"signals_topic"`
	CommandsTopic string              `yaml:"commands_topic"`
	LogsTopic     string              `yaml:"logs_topic"`
	RequiredAcks  int                 `yaml:"required_acks"`
	Compression   string              `yaml:"compression"`
	Producer      KafkaProducerConfig `yaml:"producer"`
	Consumer      KafkaConsumerConfig `yaml:"consumer"`
}

type KafkaProducerConfig struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	Linger       time.Duration `yaml:"linger"`
	BatchBytes   int           `yaml:"batch_bytes"`
	BatchSize    int           `yaml:"batch_size"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	Async        bool          `yaml:"async"`
}

type KafkaConsumerConfig struct {
	GroupID    string        `yaml:"group_id"`
	Workers    int           `yaml:"workers"`
	BufferSize int           `yaml:"buffer_size"`
	RetryMax   int           `yaml:"retry_max"`
	BackoffMin time.Duration `yaml:"backoff_min"`
	BackoffMax time.Duration `yaml:"backoff_max"`
	DLQTopic   string        `yaml:"dlq_topic"`
	MinBytes   int           `yaml:"min_bytes"`
	MaxBytes   int           `yaml:"max_bytes"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	c.applyDefaults()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
// A .env file in the working directory is loaded first when present.
func LoadWithEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("BINANCE_BASE_URL"); v != "" {
		c.Source.Binance.BaseURL = v
	}
	if v := os.Getenv("BINANCE_PROXY"); v != "" {
		c.Source.Binance.Proxy = v
	}
	if v := os.Getenv("SOURCE_BACKEND"); v != "" {
		c.Source.Backend = v
	}
	if v := os.Getenv("SYMBOLS"); v != "" {
		c.Symbols.Include = strings.Split(v, ",")
	}
	if v := os.Getenv("SCAN_TIMEFRAME"); v != "" {
		c.Scan.Timeframe = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Cache.Ops.Redis.Addr = v
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.Source.ClickHouse.Host = v
	}
	if v := os.Getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.Source.ClickHouse.Password = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}

	return c, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Source.Backend == "" {
		c.Source.Backend = "binance"
	}
	if c.Source.Binance.BaseURL == "" {
		c.Source.Binance.BaseURL = "https://api.binance.com"
	}
	if c.Source.Binance.Timeout == 0 {
		c.Source.Binance.Timeout = 15 * time.Second
	}
	if c.Symbols.QuoteAsset == "" {
		c.Symbols.QuoteAsset = "USDT"
	}
	if c.Scan.Timeframe == "" {
		c.Scan.Timeframe = "1h"
	}
	if len(c.Scan.Directions) == 0 {
		c.Scan.Directions = []string{"long", "short"}
	}
	if c.Stream.URL == "" {
		c.Stream.URL = "wss://stream.binance.com:9443"
	}
}

var validTimeframes = map[string]struct{}{
	"1m": {}, "5m": {}, "15m": {}, "30m": {},
	"1h": {}, "4h": {}, "1d": {}, "1w": {},
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Source.Backend != "binance" && c.Source.Backend != "clickhouse" {
		return fmt.Errorf("source.backend must be 'binance' or 'clickhouse', got '%s'", c.Source.Backend)
	}
	if c.Source.Backend == "clickhouse" && c.Source.ClickHouse.Host == "" {
		return fmt.Errorf("source.clickhouse.host is required for the clickhouse backend")
	}
	if _, ok := validTimeframes[c.Scan.Timeframe]; !ok {
		return fmt.Errorf("scan.timeframe must be one of 1m, 5m, 15m, 30m, 1h, 4h, 1d, 1w, got '%s'", c.Scan.Timeframe)
	}
	for _, d := range c.Scan.Directions {
		if d != "long" && d != "short" {
			return fmt.Errorf("scan.directions entries must be 'long' or 'short', got '%s'", d)
		}
	}
	if c.Stream.Enabled {
		if _, ok := validTimeframes[c.Stream.Timeframe]; c.Stream.Timeframe != "" && !ok {
			return fmt.Errorf("stream.timeframe must be a supported timeframe, got '%s'", c.Stream.Timeframe)
		}
	}
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
		}
		if c.Kafka.SignalsTopic == "" {
			return fmt.Errorf("kafka.signals_topic is required when kafka is enabled")
		}
	}
	if c.Cache.Ops.Redis.Enabled && c.Cache.Ops.Redis.Addr == "" {
		return fmt.Errorf("cache.ops.redis.addr is required when redis is enabled")
	}
	return nil
}
