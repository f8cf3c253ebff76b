package repository

import (
	"context"
	"time"

	"CrossScan/internal/domain/models"
	"CrossScan/internal/domain/repository"
	pkgcache "CrossScan/pkg/cache"
	pkgkafka "CrossScan/pkg/kafka"
	applogger "CrossScan/pkg/logger"
)

// signalEnvelope is the wire format shipped to the signals topic.
type signalEnvelope struct {
	Type      string              `json:"type"`
	EmittedAt time.Time           `json:"emitted_at"`
	Signal    *models.Signal      `json:"signal,omitempty"`
	Summary   *models.ScanSummary `json:"summary,omitempty"`
}

// KafkaSignalPublisher implements SignalPublisher on a Kafka topic. Messages
// are keyed by symbol so one symbol's signals stay ordered per partition.
// An optional dedupe cache suppresses re-publishing the same crossover when
// back-to-back scans detect it again.
type KafkaSignalPublisher struct {
	producer  *pkgkafka.Producer
	topic     string
	dedupe    pkgcache.Service
	dedupeTTL time.Duration
	logger    *applogger.Logger
}

// NewKafkaSignalPublisher creates a Kafka-backed signal publisher. A nil
// dedupe cache disables suppression.
func NewKafkaSignalPublisher(producer *pkgkafka.Producer, topic string, dedupe pkgcache.Service, dedupeTTL time.Duration, l *applogger.Logger) repository.SignalPublisher {
	if dedupeTTL <= 0 {
		dedupeTTL = time.Hour
	}
	return &KafkaSignalPublisher{
		producer:  producer,
		topic:     topic,
		dedupe:    dedupe,
		dedupeTTL: dedupeTTL,
		logger:    l,
	}
}

// PublishSignal ships one detected signal.
func (p *KafkaSignalPublisher) PublishSignal(ctx context.Context, s *models.Signal) error {
	if p.dedupe != nil {
		key := pkgcache.GenerateKeyWithParams("signal", s.Symbol, s.Timeframe, s.Direction, s.CrossoverTime.Unix())
		acquired, err := p.dedupe.TryLock(ctx, key, p.dedupeTTL)
		if err != nil {
			// dedupe is best effort; publish anyway
			p.logger.Warn("signal dedupe check failed", applogger.Error(err))
		} else if !acquired {
			p.logger.Debug("duplicate signal suppressed",
				applogger.String("symbol", s.Symbol),
				applogger.String("direction", string(s.Direction)),
			)
			return nil
		}
	}

	return p.producer.Publish(ctx, p.topic, []byte(s.Symbol), signalEnvelope{
		Type:      "signal",
		EmittedAt: time.Now().UTC(),
		Signal:    s,
	})
}

// PublishSummary ships one scan summary.
func (p *KafkaSignalPublisher) PublishSummary(ctx context.Context, sum *models.ScanSummary) error {
	return p.producer.Publish(ctx, p.topic, []byte("scan_summary"), signalEnvelope{
		Type:      "scan_summary",
		EmittedAt: time.Now().UTC(),
		Summary:   sum,
	})
}

// Close closes the underlying producer.
func (p *KafkaSignalPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
