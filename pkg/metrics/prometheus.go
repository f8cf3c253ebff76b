package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	scansStarted   *prometheus.CounterVec
	scansFinished  *prometheus.CounterVec
	scanDuration   *prometheus.HistogramVec
	symbolsScanned *prometheus.CounterVec
	signalsTotal   *prometheus.CounterVec
	fetchErrors    *prometheus.CounterVec
	cacheHits      prometheus.Counter
	cacheMisses    prometheus.Counter
	blacklistSize  prometheus.Gauge
	scanProcessed  prometheus.Gauge
	scanTotal      prometheus.Gauge
	latency        *prometheus.HistogramVec
	errorsTotal    *prometheus.CounterVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		scansStarted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crossscan_scans_started_total",
				Help: "Total number of scan runs started",
			},
			[]string{"timeframe"},
		),
		scansFinished: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crossscan_scans_finished_total",
				Help: "Total number of scan runs finished",
			},
			[]string{"timeframe", "stopped"},
		),
		scanDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crossscan_scan_duration_seconds",
				Help:    "Wall clock duration of scan runs",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
			},
			[]string{"timeframe"},
		),
		symbolsScanned: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crossscan_symbols_scanned_total",
				Help: "Total number of symbols analyzed",
			},
			[]string{"timeframe"},
		),
		signalsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crossscan_signals_total",
				Help: "Total number of crossover signals detected",
			},
			[]string{"direction"},
		),
		fetchErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crossscan_fetch_errors_total",
				Help: "Candle fetch failures by error class",
			},
			[]string{"class"},
		),
		cacheHits: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crossscan_cache_hits_total",
				Help: "Candle cache hits",
			},
		),
		cacheMisses: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crossscan_cache_misses_total",
				Help: "Candle cache misses",
			},
		),
		blacklistSize: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crossscan_blacklist_size",
				Help: "Number of symbols currently blacklisted",
			},
		),
		scanProcessed: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crossscan_scan_processed",
				Help: "Symbols processed in the current scan run",
			},
		),
		scanTotal: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crossscan_scan_total",
				Help: "Symbols targeted by the current scan run",
			},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crossscan_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crossscan_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
	}
}

// RecordScanStarted records the start of a scan run.
func (r *Recorder) RecordScanStarted(timeframe string) {
	r.scansStarted.WithLabelValues(timeframe).Inc()
}

// RecordScanFinished records a finished scan run and its duration.
func (r *Recorder) RecordScanFinished(timeframe string, seconds float64, processed int, stopped bool) {
	r.scansFinished.WithLabelValues(timeframe, strconv.FormatBool(stopped)).Inc()
	r.scanDuration.WithLabelValues(timeframe).Observe(seconds)
}

// RecordSymbolScanned records one analyzed symbol.
func (r *Recorder) RecordSymbolScanned(timeframe string) {
	r.symbolsScanned.WithLabelValues(timeframe).Inc()
}

// RecordSignal records a detected crossover signal.
func (r *Recorder) RecordSignal(direction string) {
	r.signalsTotal.WithLabelValues(direction).Inc()
}

// RecordFetchError records a candle fetch failure by class.
func (r *Recorder) RecordFetchError(class string) {
	r.fetchErrors.WithLabelValues(class).Inc()
}

// RecordCacheHit records a candle cache hit.
func (r *Recorder) RecordCacheHit() { r.cacheHits.Inc() }

// RecordCacheMiss records a candle cache miss.
func (r *Recorder) RecordCacheMiss() { r.cacheMisses.Inc() }

// SetBlacklistSize publishes the current blacklist size.
func (r *Recorder) SetBlacklistSize(n int) {
	r.blacklistSize.Set(float64(n))
}

// SetScanProgress publishes the progress of the active scan run.
func (r *Recorder) SetScanProgress(processed, total int) {
	r.scanProcessed.Set(float64(processed))
	r.scanTotal.Set(float64(total))
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}
