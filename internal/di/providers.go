package di

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"CrossScan/internal/domain/repository"
	"CrossScan/internal/handler/api"
	mid "CrossScan/internal/middleware"
	internalrepo "CrossScan/internal/repository"
	"CrossScan/internal/service/binance"
	"CrossScan/internal/usecase"
	pkgcache "CrossScan/pkg/cache"
	pkgch "CrossScan/pkg/clickhouse"
	"CrossScan/pkg/config"
	xhttp "CrossScan/pkg/http"
	pkgkafka "CrossScan/pkg/kafka"
	applogger "CrossScan/pkg/logger"
	"CrossScan/pkg/metrics"
	"CrossScan/pkg/server"

	"golang.org/x/time/rate"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideScanContext creates the shared candle cache and blacklist.
func ProvideScanContext(cfg *config.Config) *usecase.ScanContext {
	return usecase.NewScanContext(cfg.Cache.TTL)
}

// ProvideOpsCache creates the operational cache backing the symbol catalog
// and signal dedupe. Redis adds a shared layer behind the in-process one
// when enabled; otherwise lookups stay process local.
func ProvideOpsCache(cfg *config.Config) (pkgcache.Service, error) {
	memTTL := cfg.Cache.Ops.MemoryTTL
	if memTTL <= 0 {
		memTTL = 15 * time.Minute
	}

	rcfg := cfg.Cache.Ops.Redis
	if !cfg.Cache.Ops.Enabled || !rcfg.Enabled {
		return pkgcache.NewMemoryCache(), nil
	}

	redisCache, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisAddr(rcfg.Addr),
		pkgcache.WithRedisPassword(rcfg.Password),
		pkgcache.WithRedisDB(rcfg.DB),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return pkgcache.NewLayeredCache(redisCache, pkgcache.WithLayeredMemoryTTL(memTTL)), nil
}

// ProvideHTTPClient creates the outbound HTTP client for exchange calls,
// routed through the configured proxy when one is set.
func ProvideHTTPClient(cfg *config.Config) (*xhttp.Client, error) {
	timeout := cfg.Source.Binance.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	opts := []xhttp.ClientOption{xhttp.WithTimeout(timeout)}
	if cfg.Source.Binance.Proxy != "" {
		proxyURL, err := url.Parse(cfg.Source.Binance.Proxy)
		if err != nil {
			return nil, fmt.Errorf("proxy url: %w", err)
		}
		opts = append(opts, xhttp.WithTransport(&http.Transport{Proxy: http.ProxyURL(proxyURL)}))
	}
	return xhttp.NewClient(opts...), nil
}

// ProvideRateLimiter creates the shared limiter for exchange REST calls.
func ProvideRateLimiter(cfg *config.Config) *rate.Limiter {
	rps := cfg.Source.Binance.RateLimit
	if rps <= 0 {
		rps = 15
	}
	burst := cfg.Source.Binance.RateBurst
	if burst <= 0 {
		burst = int(rps * 2)
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// ProvideClickHouseClient creates a ClickHouse client when the candle
// backend is clickhouse; otherwise it returns nil.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if cfg.Source.Backend != "clickhouse" {
		return nil, nil
	}

	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.Source.ClickHouse.Host),
		pkgch.WithPort(cfg.Source.ClickHouse.Port),
		pkgch.WithDatabase(cfg.Source.ClickHouse.Database),
		pkgch.WithCredentials(cfg.Source.ClickHouse.User, cfg.Source.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.Source.ClickHouse.UseHTTP),
		pkgch.WithTimeouts(cfg.Source.ClickHouse.DialTimeout, cfg.Source.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.Source.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.InitSchema(ctx, internalrepo.CandleSchema(internalrepo.DefaultCandleTable)); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}

	return client, nil
}

// ProvideCandleSource selects the candle backend.
func ProvideCandleSource(
	cfg *config.Config,
	chClient *pkgch.Client,
	httpClient *xhttp.Client,
	limiter *rate.Limiter,
	l *applogger.Logger,
) (repository.CandleSource, error) {
	if cfg.Source.Backend == "clickhouse" {
		if chClient == nil {
			return nil, fmt.Errorf("clickhouse backend selected but client missing")
		}
		return internalrepo.NewClickHouseSource(chClient.DB(), internalrepo.DefaultCandleTable), nil
	}
	return internalrepo.NewBinanceSource(httpClient, cfg.Source.Binance.BaseURL, limiter, l), nil
}

// ProvideSymbolCatalog selects the symbol universe source to match the
// candle backend.
func ProvideSymbolCatalog(
	cfg *config.Config,
	chClient *pkgch.Client,
	httpClient *xhttp.Client,
	limiter *rate.Limiter,
	opsCache pkgcache.Service,
	l *applogger.Logger,
) (repository.SymbolCatalog, error) {
	if cfg.Source.Backend == "clickhouse" {
		if chClient == nil {
			return nil, fmt.Errorf("clickhouse backend selected but client missing")
		}
		return internalrepo.NewClickHouseSource(chClient.DB(), internalrepo.DefaultCandleTable), nil
	}
	return internalrepo.NewBinanceCatalog(
		httpClient,
		cfg.Source.Binance.BaseURL,
		cfg.Symbols.QuoteAsset,
		cfg.Symbols.Include,
		cfg.Symbols.Exclude,
		opsCache,
		cfg.Symbols.RefreshTTL,
		limiter,
		l,
	), nil
}

// ProvideFetcher creates the caching, blacklisting candle fetcher.
func ProvideFetcher(
	source repository.CandleSource,
	scan *usecase.ScanContext,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.MarketDataFetcher {
	return usecase.NewMarketDataFetcher(source, scan, m, l)
}

// ProvideSignalRecorder creates the in-memory signal history.
func ProvideSignalRecorder(cfg *config.Config) *usecase.SignalRecorder {
	return usecase.NewSignalRecorder(cfg.Scan.SignalHistory)
}

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is
// disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}

	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideSignalPublisher creates the Kafka signal publisher, or nil when
// Kafka is disabled.
func ProvideSignalPublisher(
	cfg *config.Config,
	producer *pkgkafka.Producer,
	opsCache pkgcache.Service,
	l *applogger.Logger,
) repository.SignalPublisher {
	if producer == nil {
		return nil
	}
	dedupeTTL := 2 * repository.NormalizeTimeframe(cfg.Scan.Timeframe).Duration()
	return internalrepo.NewKafkaSignalPublisher(producer, cfg.Kafka.SignalsTopic, opsCache, dedupeTTL, l)
}

// ProvidePublisherSink wraps the publisher as an event sink, or nil when
// publishing is disabled.
func ProvidePublisherSink(publisher repository.SignalPublisher, l *applogger.Logger) *usecase.PublisherSink {
	if publisher == nil {
		return nil
	}
	return usecase.NewPublisherSink(publisher, l)
}

// ProvideEventSink fans scan events out to logging, the signal history,
// and Kafka publishing when enabled.
func ProvideEventSink(
	l *applogger.Logger,
	recorder *usecase.SignalRecorder,
	pubSink *usecase.PublisherSink,
) repository.EventSink {
	sinks := []repository.EventSink{usecase.NewLogSink(l), recorder}
	if pubSink != nil {
		sinks = append(sinks, pubSink)
	}
	return usecase.NewFanoutSink(sinks...)
}

// ProvideScanPool creates the worker pool and binds the publisher sink to
// the pool's summary so completion events publish the finished summary.
func ProvideScanPool(
	cfg *config.Config,
	fetcher *usecase.MarketDataFetcher,
	scan *usecase.ScanContext,
	sink repository.EventSink,
	pubSink *usecase.PublisherSink,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.ScanWorkerPool {
	var opts []usecase.PoolOption
	if cfg.Scan.StopTimeout > 0 {
		opts = append(opts, usecase.WithJoinTimeout(cfg.Scan.StopTimeout))
	}
	pool := usecase.NewScanWorkerPool(fetcher, scan, sink, m, l, opts...)
	if pubSink != nil {
		pubSink.BindSummarySource(pool.LastSummary)
	}
	return pool
}

// ProvideScanService creates the scan orchestration service.
func ProvideScanService(
	pool *usecase.ScanWorkerPool,
	scan *usecase.ScanContext,
	catalog repository.SymbolCatalog,
	recorder *usecase.SignalRecorder,
	fetcher *usecase.MarketDataFetcher,
	cfg *config.Config,
	l *applogger.Logger,
) *usecase.ScanService {
	return usecase.NewScanService(pool, scan, catalog, recorder, fetcher, cfg.Scan, l)
}

// ProvideKafkaConsumer creates the command consumer, or nil when Kafka or
// the commands topic is not configured.
func ProvideKafkaConsumer(cfg *config.Config) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled || cfg.Kafka.CommandsTopic == "" {
		return nil, nil
	}

	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideScanCommandHandler creates the commands-topic handler, or nil when
// command consumption is not configured.
func ProvideScanCommandHandler(
	cfg *config.Config,
	service *usecase.ScanService,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.ScanCommandHandler {
	if !cfg.Kafka.Enabled || cfg.Kafka.CommandsTopic == "" {
		return nil
	}
	return usecase.NewScanCommandHandler(cfg.Kafka.CommandsTopic, service, m, l)
}

// ProvideStreamCollector builds the live kline path, or nil when streaming
// is disabled or no stream symbols are configured.
func ProvideStreamCollector(
	cfg *config.Config,
	scan *usecase.ScanContext,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.StreamCollector {
	if !cfg.Stream.Enabled {
		return nil
	}

	symbols := cfg.Stream.Symbols
	if len(symbols) == 0 {
		symbols = cfg.Symbols.Include
	}
	if len(symbols) == 0 {
		l.Warn("stream enabled but no stream symbols configured")
		return nil
	}

	timeframe := cfg.Stream.Timeframe
	if timeframe == "" {
		timeframe = cfg.Scan.Timeframe
	}

	stream := binance.NewStream(
		cfg.Stream.URL,
		symbols,
		timeframe,
		cfg.Stream.ReconnectDelay,
		cfg.Stream.PingInterval,
		cfg.Stream.BufferSize,
		l,
	)
	updater := usecase.NewKlineUpdater(scan, l)
	pipe := mid.NewStreamPipeline(updater, m)
	return usecase.NewStreamCollector(stream, pipe, m, l)
}

// ProvideHTTPHandler creates the HTTP API handler.
func ProvideHTTPHandler(
	l *applogger.Logger,
	service *usecase.ScanService,
	collector *usecase.StreamCollector,
) xhttp.Handler {
	return api.NewScanEchoHandler(l, service, collector)
}

// ProvideApp assembles the application.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	service *usecase.ScanService,
	handler xhttp.Handler,
	collector *usecase.StreamCollector,
	consumer *pkgkafka.Consumer,
	cmdHandler *usecase.ScanCommandHandler,
	producer *pkgkafka.Producer,
	publisher repository.SignalPublisher,
	chClient *pkgch.Client,
) *server.App {
	// Repeated per-symbol fetch errors are aggregated and shipped to the
	// logs topic instead of flooding it line by line.
	if producer != nil && cfg.Kafka.LogsTopic != "" {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   30 * time.Second,
			CountThreshold: 100,
			Topic:          cfg.Kafka.LogsTopic,
			Publisher:      kafkaLogPublisher{producer: producer},
		})
	}

	app := server.New(cfg, l, service)
	app.SetHTTPHandler(handler)
	if collector != nil {
		app.SetStreamCollector(collector)
	}
	if consumer != nil && cmdHandler != nil {
		app.SetConsumer(consumer, cmdHandler)
	}
	if publisher != nil {
		app.SetPublisher(publisher)
	}
	if chClient != nil {
		app.SetClickHouse(chClient)
	}
	return app
}

// kafkaLogPublisher adapts the Kafka producer to the logger's publisher
// interface for aggregated error summaries.
type kafkaLogPublisher struct {
	producer *pkgkafka.Producer
}

func (p kafkaLogPublisher) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return p.producer.Publish(ctx, topic, nil, payload)
}
