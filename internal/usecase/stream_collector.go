package usecase

import (
	"context"

	"CrossScan/internal/domain/models"
	drepo "CrossScan/internal/domain/repository"
	mid "CrossScan/internal/middleware"
	applogger "CrossScan/pkg/logger"
)

// StreamCollector drives the exchange kline stream and feeds events through
// the pipeline into the candle cache.
type StreamCollector struct {
	stream  drepo.KlineStream
	pipe    *mid.StreamPipeline
	metrics drepo.Metrics
	logger  *applogger.Logger
}

// NewStreamCollector creates a new StreamCollector instance.
func NewStreamCollector(stream drepo.KlineStream, pipe *mid.StreamPipeline, metrics drepo.Metrics, l *applogger.Logger) *StreamCollector {
	return &StreamCollector{stream: stream, pipe: pipe, metrics: metrics, logger: l}
}

// IsConnected returns true if the kline stream is connected.
func (c *StreamCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

// Start connects, subscribes, and launches the consume loop.
func (c *StreamCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		return err
	}
	c.pipe.Start(ctx)
	go c.consume(ctx)
	return nil
}

func (c *StreamCollector) consume(ctx context.Context) {
	evCh, errCh := c.stream.Read(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errCh:
			if ok && err != nil {
				c.logger.Warn("stream error", applogger.Error(err))
			}
			c.metrics.RecordError("stream")
			evCh, errCh = c.reestablish(ctx)
			if evCh == nil {
				return
			}
		case ev, ok := <-evCh:
			if !ok {
				// closed event channel; the error channel drives reconnect
				evCh = nil
				continue
			}
			if ev == nil {
				continue
			}
			_ = c.pipe.Process(ctx, ev)
		}
	}
}

// reestablish reconnects until it succeeds or the context ends. Reconnect
// waits its configured delay internally, so this loop does not spin.
func (c *StreamCollector) reestablish(ctx context.Context) (<-chan *models.KlineEvent, <-chan error) {
	for {
		if ctx.Err() != nil {
			return nil, nil
		}
		if err := c.stream.Reconnect(ctx); err != nil {
			c.logger.Error("stream reconnect failed", applogger.Error(err))
			c.metrics.RecordError("stream_reconnect")
			continue
		}
		c.logger.Info("stream reconnected")
		return c.stream.Read(ctx)
	}
}

// Shutdown stops the pipeline and closes the stream.
func (c *StreamCollector) Shutdown(ctx context.Context) error {
	c.pipe.Stop()
	return c.stream.Close()
}
