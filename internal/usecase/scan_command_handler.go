package usecase

import (
	"context"
	"encoding/json"
	"errors"

	"CrossScan/internal/domain/models"
	domrepo "CrossScan/internal/domain/repository"
	pkgkafka "CrossScan/pkg/kafka"
	applogger "CrossScan/pkg/logger"
)

// ScanCommandHandler consumes scan commands from Kafka, so operators can
// trigger and stop scans without touching the HTTP API.
//
// command schema: {"action": "scan"|"stop", "timeframe": "1h",
// "directions": ["long"], "symbols": [...]}
type ScanCommandHandler struct {
	topic   string
	service *ScanService
	metrics domrepo.Metrics
	logger  *applogger.Logger
}

func NewScanCommandHandler(topic string, service *ScanService, metrics domrepo.Metrics, l *applogger.Logger) *ScanCommandHandler {
	return &ScanCommandHandler{topic: topic, service: service, metrics: metrics, logger: l}
}

func (h *ScanCommandHandler) Topic() string { return h.topic }

type scanCommand struct {
	Action      string   `json:"action"`
	Timeframe   string   `json:"timeframe"`
	Directions  []string `json:"directions"`
	Symbols     []string `json:"symbols"`
	CandleCount int      `json:"candle_count"`
	WorkerCount int      `json:"worker_count"`
}

func (h *ScanCommandHandler) Handle(ctx context.Context, b []byte) error {
	var cmd scanCommand
	if err := json.Unmarshal(b, &cmd); err != nil {
		h.metrics.RecordError("command_unmarshal")
		return err
	}

	switch cmd.Action {
	case "scan":
		job := h.service.DefaultJob()
		if cmd.Timeframe != "" {
			job.Timeframe = cmd.Timeframe
		}
		if len(cmd.Directions) > 0 {
			job.Directions = make([]models.Direction, 0, len(cmd.Directions))
			for _, d := range cmd.Directions {
				job.Directions = append(job.Directions, models.Direction(d))
			}
		}
		if len(cmd.Symbols) > 0 {
			job.Symbols = cmd.Symbols
		}
		if cmd.CandleCount > 0 {
			job.CandleCount = cmd.CandleCount
		}
		if cmd.WorkerCount > 0 {
			job.WorkerCount = cmd.WorkerCount
		}

		err := h.service.StartScan(ctx, job)
		if errors.Is(err, ErrScanInProgress) {
			// a running scan is not a handler failure; do not retry the command
			h.logger.Warn("scan command skipped, scan in progress",
				applogger.String("timeframe", job.Timeframe),
			)
			return nil
		}
		if err != nil {
			h.metrics.RecordError("command_scan")
			return err
		}
		h.logger.Info("scan started by command",
			applogger.String("timeframe", job.Timeframe),
		)
		return nil

	case "stop":
		h.service.StopScan()
		h.logger.Info("scan stopped by command")
		return nil

	default:
		h.metrics.RecordError("command_unknown")
		// unknown actions are dropped, not retried
		h.logger.Warn("unknown scan command", applogger.String("action", cmd.Action))
		return nil
	}
}

var _ pkgkafka.MessageHandler = (*ScanCommandHandler)(nil)
