package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CrossScan/internal/domain/models"
	"CrossScan/internal/domain/repository"
	"CrossScan/internal/usecase"
	"CrossScan/pkg/config"
	"CrossScan/pkg/logger"
)

type noopMetrics struct{}

func (noopMetrics) RecordScanStarted(timeframe string)                                       {}
func (noopMetrics) RecordScanFinished(timeframe string, seconds float64, _ int, _ bool)      {}
func (noopMetrics) RecordSymbolScanned(timeframe string)                                     {}
func (noopMetrics) RecordSignal(direction string)                                            {}
func (noopMetrics) RecordFetchError(class string)                                            {}
func (noopMetrics) RecordCacheHit()                                                          {}
func (noopMetrics) RecordCacheMiss()                                                         {}
func (noopMetrics) SetBlacklistSize(n int)                                                   {}
func (noopMetrics) SetScanProgress(processed, total int)                                     {}
func (noopMetrics) RecordLatency(op string, seconds float64)                                 {}
func (noopMetrics) RecordError(kind string)                                                  {}

type staticCatalog struct{ symbols []string }

func (s staticCatalog) Symbols(ctx context.Context) ([]string, error) { return s.symbols, nil }

type staticSource struct{}

func (staticSource) FetchCandles(ctx context.Context, symbol string, tf repository.Timeframe, limit int) (models.CandleSeries, error) {
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	series := make(models.CandleSeries, 120)
	for i := range series {
		series[i] = models.Candle{
			OpenTime: base.Add(time.Duration(i) * time.Hour),
			Open:     100, High: 101, Low: 99, Close: 100,
			Volume: 10,
		}
	}
	return series, nil
}

func newTestHandler(t *testing.T) (*ScanEchoHandler, *usecase.SignalRecorder) {
	t.Helper()
	log, err := logger.New(&logger.Config{Level: "disabled"})
	require.NoError(t, err)

	scanCtx := usecase.NewScanContext(0)
	recorder := usecase.NewSignalRecorder(100)
	fetcher := usecase.NewMarketDataFetcher(staticSource{}, scanCtx, noopMetrics{}, log)
	pool := usecase.NewScanWorkerPool(fetcher, scanCtx, recorder, noopMetrics{}, log)
	svc := usecase.NewScanService(pool, scanCtx, staticCatalog{symbols: []string{"BTCUSDT", "ETHUSDT"}}, recorder, fetcher, config.ScanConfig{
		Timeframe:   "1h",
		Directions:  []string{"long"},
		CandleCount: 10,
		BatchSize:   5,
		Limit:       500,
	}, log)

	return NewScanEchoHandler(log, svc, nil), recorder
}

func doRequest(t *testing.T, h func(echo.Context) error, method, target string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	require.NoError(t, h(echo.New().NewContext(req, rec)))
	return rec
}

func TestSignalsFilters(t *testing.T) {
	h, recorder := newTestHandler(t)

	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	recorder.OnSignal("BTCUSDT", models.Signal{Symbol: "BTCUSDT", Direction: models.Long, Timeframe: "1h", SignalTime: base})
	recorder.OnSignal("ETHUSDT", models.Signal{Symbol: "ETHUSDT", Direction: models.Short, Timeframe: "1h", SignalTime: base.Add(2 * time.Hour)})
	recorder.OnSignal("BNBUSDT", models.Signal{Symbol: "BNBUSDT", Direction: models.Long, Timeframe: "1h", SignalTime: base.Add(4 * time.Hour)})

	since := base.Add(time.Hour).Format(time.RFC3339)
	rec := doRequest(t, h.Signals, http.MethodGet, "/api/signals?direction=long&since="+since, "")

	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "BNBUSDT")
	assert.NotContains(t, body, "ETHUSDT")
	assert.NotContains(t, body, "BTCUSDT")
}

func TestSignalsLimit(t *testing.T) {
	h, recorder := newTestHandler(t)

	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		recorder.OnSignal("BTCUSDT", models.Signal{
			Symbol: "BTCUSDT", Direction: models.Long, Timeframe: "1h",
			SignalTime: base.Add(time.Duration(i) * time.Hour),
		})
	}

	rec := doRequest(t, h.Signals, http.MethodGet, "/api/signals?limit=2", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, strings.Count(rec.Body.String(), `"symbol":"BTCUSDT"`))
}

func TestSignalsRejectsUnknownDirection(t *testing.T) {
	h, _ := newTestHandler(t)
	rec := doRequest(t, h.Signals, http.MethodGet, "/api/signals?direction=upward", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStartScanRejectsUnknownTimeframe(t *testing.T) {
	h, _ := newTestHandler(t)
	rec := doRequest(t, h.StartScan, http.MethodPost, "/api/scan", `{"timeframe":"2h"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStartScanAccepted(t *testing.T) {
	h, _ := newTestHandler(t)
	rec := doRequest(t, h.StartScan, http.MethodPost, "/api/scan", `{}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestSymbolsListsCatalog(t *testing.T) {
	h, _ := newTestHandler(t)
	rec := doRequest(t, h.Symbols, http.MethodGet, "/api/symbols", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "BTCUSDT")
	assert.Contains(t, rec.Body.String(), "ETHUSDT")
}

func TestHealthReportsComponentState(t *testing.T) {
	h, _ := newTestHandler(t)
	rec := doRequest(t, h.Health, http.MethodGet, "/healthz", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"scan_state":"idle"`)
	assert.Contains(t, rec.Body.String(), `"stream":"disabled"`)
}
