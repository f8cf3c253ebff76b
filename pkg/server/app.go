package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"CrossScan/internal/domain/repository"
	"CrossScan/internal/usecase"
	pkgch "CrossScan/pkg/clickhouse"
	"CrossScan/pkg/config"
	xhttp "CrossScan/pkg/http"
	pkgkafka "CrossScan/pkg/kafka"
	applogger "CrossScan/pkg/logger"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg    *config.Config
	logger *applogger.Logger
	scan   *usecase.ScanService

	collector  *usecase.StreamCollector
	consumer   *pkgkafka.Consumer
	cmdHandler pkgkafka.MessageHandler
	publisher  repository.SignalPublisher
	chClient   *pkgch.Client

	httpServer  *xhttp.Server
	httpHandler xhttp.Handler
}

// New creates a new App instance around the core scan service. Optional
// components are attached via setters so DI can wire only what config
// enables.
func New(cfg *config.Config, l *applogger.Logger, scan *usecase.ScanService) *App {
	return &App{cfg: cfg, logger: l, scan: scan}
}

// SetHTTPHandler injects the HTTP route handler.
func (a *App) SetHTTPHandler(h xhttp.Handler) { a.httpHandler = h }

// SetStreamCollector attaches the live kline collector.
func (a *App) SetStreamCollector(c *usecase.StreamCollector) { a.collector = c }

// SetConsumer attaches the Kafka command consumer and its handler.
func (a *App) SetConsumer(consumer *pkgkafka.Consumer, handler pkgkafka.MessageHandler) {
	a.consumer = consumer
	a.cmdHandler = handler
}

// SetPublisher attaches the signal publisher for lifecycle management.
func (a *App) SetPublisher(p repository.SignalPublisher) { a.publisher = p }

// SetClickHouse attaches the ClickHouse client for lifecycle management.
func (a *App) SetClickHouse(c *pkgch.Client) { a.chClient = c }

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metricsPath := ""
	if a.cfg.Metrics.Enabled {
		metricsPath = a.cfg.Metrics.Path
	}
	a.httpServer = xhttp.NewServer(a.httpHandler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithLogger(a.logger),
		xhttp.WithMetricsPath(metricsPath),
		xhttp.WithRateLimit(a.cfg.Server.RateLimit, a.cfg.Server.RateBurst),
	)

	// Start the scan service (prewarm, auto-start, interval loop)
	if err := a.scan.Start(ctx); err != nil {
		a.logger.Error("scan service start error", applogger.Error(err))
		return err
	}
	a.logger.Info("scan service started",
		applogger.String("timeframe", a.cfg.Scan.Timeframe),
		applogger.Bool("auto_start", a.cfg.Scan.AutoStart),
	)

	// Start the live kline stream if configured. A stream failure leaves
	// scanning on REST fetches only.
	if a.collector != nil {
		if err := a.collector.Start(ctx); err != nil {
			a.logger.Warn("stream collector start failed, continuing without live updates",
				applogger.Error(err),
			)
		} else {
			a.logger.Info("stream collector started",
				applogger.Strings("symbols", a.cfg.Stream.Symbols),
			)
		}
	}

	// Start command consumer if configured
	if a.consumer != nil && a.cmdHandler != nil {
		a.consumer.RegisterHandler(a.cmdHandler)
		go func() {
			if err := a.consumer.Start(); err != nil {
				a.logger.Error("kafka consumer error", applogger.Error(err))
			}
		}()
		a.logger.Info("kafka command consumer started",
			applogger.String("topic", a.cmdHandler.Topic()),
		)
	}

	// Start HTTP server
	if err := a.httpServer.Start(); err != nil {
		a.logger.Error("http server start error", applogger.Error(err))
		return err
	}

	// Wait for interrupt
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.logger.Info("shutdown signal received")
	return a.shutdown(ctx)
}

// shutdown gracefully stops all services.
func (a *App) shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()

	// Stop the scan service first so no new work reaches downstreams.
	if err := a.scan.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("scan service stop error", applogger.Error(err))
	}

	if a.collector != nil {
		if err := a.collector.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("stream collector stop error", applogger.Error(err))
		}
	}

	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.logger.Error("http shutdown error", applogger.Error(err))
	}

	if a.consumer != nil {
		consumerCtx, consumerCancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := a.consumer.Stop(consumerCtx); err != nil {
			a.logger.Warn("kafka consumer stop error", applogger.Error(err))
		}
		consumerCancel()
	}

	// Flush aggregated errors while the producer is still open.
	a.logger.RemoveCollector()

	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Warn("publisher close error", applogger.Error(err))
		}
	}

	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.logger.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	a.logger.Info("shutdown complete")
	return nil
}
