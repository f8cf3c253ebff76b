package api

import (
	"errors"
	"time"

	models "CrossScan/internal/domain/models"
	"CrossScan/internal/service/ratelimit"
	"CrossScan/internal/usecase"
	xhttp "CrossScan/pkg/http"
	xlogger "CrossScan/pkg/logger"

	"github.com/labstack/echo/v4"
)

// ScanEchoHandler exposes the scanner over HTTP.
type ScanEchoHandler struct {
	logger    *xlogger.Logger
	service   *usecase.ScanService
	collector *usecase.StreamCollector // nil when streaming is disabled
	rl        *ratelimit.Limiter
}

func NewScanEchoHandler(logger *xlogger.Logger, service *usecase.ScanService, collector *usecase.StreamCollector) *ScanEchoHandler {
	return &ScanEchoHandler{logger: logger, service: service, collector: collector, rl: ratelimit.New()}
}

// allow guards mutating routes with a small per-client token bucket.
func (h *ScanEchoHandler) allow(c echo.Context, route string, capacity, refillPerSec float64) bool {
	if h.rl.Allow(c.RealIP()+":"+route, capacity, refillPerSec) {
		return true
	}
	h.logger.Warn("rate limited", xlogger.String("route", route), xlogger.String("remote", c.RealIP()))
	return false
}

func (h *ScanEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)

	g := e.Group("/api")
	g.POST("/scan", h.StartScan)
	g.POST("/scan/stop", h.StopScan)
	g.GET("/scan/status", h.Status)
	g.GET("/signals", h.Signals)
	g.GET("/symbols", h.Symbols)
	g.DELETE("/cache", h.ClearCache)
	g.DELETE("/blacklist", h.ClearBlacklist)
}

// StartScan launches a scan in the background and returns 202. A scan
// already in flight answers 409.
func (h *ScanEchoHandler) StartScan(c echo.Context) error {
	if !h.allow(c, "scan", 3, 0.5) {
		return xhttp.AppErrorResponse(c, xhttp.RateLimitedError("too many scan requests"))
	}

	req := &models.ScanRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	job := h.service.DefaultJob()
	if len(req.Symbols) > 0 {
		job.Symbols = req.Symbols
	}
	if req.Timeframe != "" {
		job.Timeframe = req.Timeframe
	}
	if len(req.Directions) > 0 {
		job.Directions = make([]models.Direction, 0, len(req.Directions))
		for _, d := range req.Directions {
			job.Directions = append(job.Directions, models.Direction(d))
		}
	}
	if req.CandleCount > 0 {
		job.CandleCount = req.CandleCount
	}
	if req.BatchSize > 0 {
		job.BatchSize = req.BatchSize
	}
	if req.WorkerCount > 0 {
		job.WorkerCount = req.WorkerCount
	}
	if req.Limit > 0 {
		job.Limit = req.Limit
	}

	if err := h.service.StartScan(c.Request().Context(), job); err != nil {
		if errors.Is(err, usecase.ErrScanInProgress) {
			return xhttp.AppErrorResponse(c, xhttp.ConflictError("scan already in progress"))
		}
		h.logger.Error("start scan failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("failed to start scan").WithError(err))
	}

	return xhttp.AcceptedResponse(c, h.service.Status())
}

// StopScan requests a graceful stop; pending batches are discarded.
func (h *ScanEchoHandler) StopScan(c echo.Context) error {
	h.service.StopScan()
	return xhttp.SuccessResponse(c, h.service.Status())
}

// Status reports pool state, progress, and the last summary.
func (h *ScanEchoHandler) Status(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.service.Status())
}

// Signals lists recorded signals, newest first.
func (h *ScanEchoHandler) Signals(c echo.Context) error {
	q := &models.SignalsQuery{}
	if verr := xhttp.ReadAndValidateRequest(c, q); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	since := xhttp.ParseTimeDefault(q.Since, time.Time{})
	until := xhttp.ParseTimeDefault(q.Until, time.Time{})

	all := h.service.Signals()
	rows := make([]models.Signal, 0, len(all))
	for _, s := range all {
		if q.Symbol != "" && s.Symbol != q.Symbol {
			continue
		}
		if q.Direction != "" && string(s.Direction) != q.Direction {
			continue
		}
		if !since.IsZero() && s.SignalTime.Before(since) {
			continue
		}
		if !until.IsZero() && s.SignalTime.After(until) {
			continue
		}
		rows = append(rows, s)
		if len(rows) >= q.Limit {
			break
		}
	}

	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

// Symbols returns the scannable symbol universe.
func (h *ScanEchoHandler) Symbols(c echo.Context) error {
	symbols, err := h.service.Symbols(c.Request().Context())
	if err != nil {
		h.logger.Error("symbol lookup failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError("symbol universe unavailable").WithError(err))
	}
	return xhttp.ListResponse(c, symbols, int64(len(symbols)))
}

// ClearCache evicts all cached candle series.
func (h *ScanEchoHandler) ClearCache(c echo.Context) error {
	if !h.allow(c, "cache", 2, 0.2) {
		return xhttp.AppErrorResponse(c, xhttp.RateLimitedError("too many cache clears"))
	}
	evicted := h.service.ClearCache()
	return xhttp.SuccessResponse(c, map[string]int{"evicted": evicted})
}

// ClearBlacklist forgets all invalid symbols so they get retried.
func (h *ScanEchoHandler) ClearBlacklist(c echo.Context) error {
	if !h.allow(c, "blacklist", 2, 0.2) {
		return xhttp.AppErrorResponse(c, xhttp.RateLimitedError("too many blacklist clears"))
	}
	removed := h.service.ClearBlacklist()
	return xhttp.SuccessResponse(c, map[string]int{"removed": removed})
}

// Health reports process liveness plus coarse component states.
func (h *ScanEchoHandler) Health(c echo.Context) error {
	stream := "disabled"
	if h.collector != nil {
		if h.collector.IsConnected() {
			stream = "connected"
		} else {
			stream = "disconnected"
		}
	}

	return xhttp.SuccessResponse(c, map[string]interface{}{
		"status":     "ok",
		"time":       time.Now().UTC(),
		"scan_state": h.service.Status().State,
		"stream":     stream,
	})
}
