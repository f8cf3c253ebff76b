//go:build wireinject
// +build wireinject

package di

import (
	"CrossScan/pkg/config"
	"CrossScan/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Observability
		ProvideLogger,
		ProvideMetrics,

		// Shared scan state and caches
		ProvideScanContext,
		ProvideOpsCache,

		// Infrastructure clients
		ProvideHTTPClient,
		ProvideRateLimiter,
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,

		// Candle and symbol backends
		ProvideCandleSource,
		ProvideSymbolCatalog,

		// Scan pipeline
		ProvideFetcher,
		ProvideSignalRecorder,
		ProvideSignalPublisher,
		ProvidePublisherSink,
		ProvideEventSink,
		ProvideScanPool,
		ProvideScanService,
		ProvideScanCommandHandler,

		// Live stream
		ProvideStreamCollector,

		// HTTP and application server
		ProvideHTTPHandler,
		ProvideApp,
	)
	return &server.App{}, nil
}
