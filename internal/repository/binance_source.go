package repository

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"CrossScan/internal/domain/models"
	"CrossScan/internal/domain/repository"
	pkgcache "CrossScan/pkg/cache"
	xhttp "CrossScan/pkg/http"
	applogger "CrossScan/pkg/logger"
	"CrossScan/pkg/util"

	"golang.org/x/time/rate"
)

const maxKlineLimit = 1000

// BinanceSource implements CandleSource against the Binance REST API.
// All requests pass through a shared rate limiter so scan bursts stay
// inside the exchange request weight budget.
type BinanceSource struct {
	client  *xhttp.Client
	baseURL string
	limiter *rate.Limiter
	logger  *applogger.Logger
}

// NewBinanceSource creates a klines-backed candle source.
func NewBinanceSource(client *xhttp.Client, baseURL string, limiter *rate.Limiter, l *applogger.Logger) repository.CandleSource {
	return &BinanceSource{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		limiter: limiter,
		logger:  l,
	}
}

// FetchCandles fetches up to limit candles for the symbol, oldest first.
func (s *BinanceSource) FetchCandles(ctx context.Context, symbol string, tf repository.Timeframe, limit int) (models.CandleSeries, error) {
	if symbol == "" {
		return nil, fmt.Errorf("symbol is empty")
	}
	if limit <= 0 {
		limit = 500
	}
	if limit > maxKlineLimit {
		limit = maxKlineLimit
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	var raw [][]interface{}
	err := s.client.GetJSON(ctx, s.baseURL+"/api/v3/klines", map[string][]string{
		"symbol":   {symbol},
		"interval": {string(tf)},
		"limit":    {strconv.Itoa(limit)},
	}, &raw)
	if err != nil {
		return nil, fmt.Errorf("fetch klines %s: %w", symbol, err)
	}

	series := make(models.CandleSeries, 0, len(raw))
	for _, row := range raw {
		c, ok := parseKlineRow(row)
		if !ok {
			continue
		}
		series = append(series, c)
	}

	return series, nil
}

// parseKlineRow decodes one kline array. Binance encodes timestamps as
// numbers and prices as strings.
func parseKlineRow(row []interface{}) (models.Candle, bool) {
	if len(row) < 6 {
		return models.Candle{}, false
	}

	openTimeMs, ok := row[0].(float64)
	if !ok || openTimeMs <= 0 {
		return models.Candle{}, false
	}

	fields := make([]float64, 5)
	for i := 1; i <= 5; i++ {
		str, ok := row[i].(string)
		if !ok {
			return models.Candle{}, false
		}
		v, err := util.ParseFloat(str)
		if err != nil {
			return models.Candle{}, false
		}
		fields[i-1] = v
	}

	return models.Candle{
		OpenTime: time.UnixMilli(int64(openTimeMs)),
		Open:     fields[0],
		High:     fields[1],
		Low:      fields[2],
		Close:    fields[3],
		Volume:   fields[4],
	}, true
}

type exchangeInfo struct {
	Symbols []struct {
		Symbol     string `json:"symbol"`
		Status     string `json:"status"`
		QuoteAsset string `json:"quoteAsset"`
	} `json:"symbols"`
}

// BinanceCatalog implements SymbolCatalog against exchangeInfo, filtered to
// actively trading pairs of one quote asset. Results are cached because the
// listing set changes rarely and the payload is large.
type BinanceCatalog struct {
	client     *xhttp.Client
	baseURL    string
	limiter    *rate.Limiter
	quoteAsset string
	include    []string
	exclude    map[string]struct{}
	cache      pkgcache.Service
	refreshTTL time.Duration
	logger     *applogger.Logger
}

// NewBinanceCatalog creates a symbol catalog. An explicit include list
// bypasses exchange discovery entirely.
func NewBinanceCatalog(client *xhttp.Client, baseURL, quoteAsset string, include, exclude []string, cache pkgcache.Service, refreshTTL time.Duration, limiter *rate.Limiter, l *applogger.Logger) repository.SymbolCatalog {
	excluded := make(map[string]struct{}, len(exclude))
	for _, s := range exclude {
		excluded[strings.ToUpper(s)] = struct{}{}
	}
	if refreshTTL <= 0 {
		refreshTTL = 15 * time.Minute
	}
	return &BinanceCatalog{
		client:     client,
		baseURL:    strings.TrimRight(baseURL, "/"),
		limiter:    limiter,
		quoteAsset: strings.ToUpper(quoteAsset),
		include:    include,
		exclude:    excluded,
		cache:      cache,
		refreshTTL: refreshTTL,
		logger:     l,
	}
}

// Symbols returns the scannable symbol universe, sorted ascending.
func (c *BinanceCatalog) Symbols(ctx context.Context) ([]string, error) {
	if len(c.include) > 0 {
		return c.filter(c.include), nil
	}

	cacheKey := pkgcache.GenerateKey("catalog", strings.ToLower(c.quoteAsset))
	if c.cache != nil {
		var cached []string
		if err := c.cache.Get(ctx, cacheKey, &cached); err == nil && len(cached) > 0 {
			return cached, nil
		}
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	var info exchangeInfo
	if err := c.client.GetJSON(ctx, c.baseURL+"/api/v3/exchangeInfo", nil, &info); err != nil {
		return nil, fmt.Errorf("fetch exchange info: %w", err)
	}

	symbols := make([]string, 0, len(info.Symbols))
	for _, s := range info.Symbols {
		if s.Status != "TRADING" {
			continue
		}
		if c.quoteAsset != "" && s.QuoteAsset != c.quoteAsset {
			continue
		}
		symbols = append(symbols, s.Symbol)
	}
	symbols = c.filter(symbols)
	sort.Strings(symbols)

	if c.cache != nil {
		if err := c.cache.Set(ctx, cacheKey, symbols, c.refreshTTL); err != nil {
			c.logger.Warn("catalog cache write failed", applogger.Error(err))
		}
	}

	c.logger.Info("symbol universe refreshed",
		applogger.String("quote_asset", c.quoteAsset),
		applogger.Int("symbols", len(symbols)),
	)
	return symbols, nil
}

func (c *BinanceCatalog) filter(symbols []string) []string {
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if _, skip := c.exclude[strings.ToUpper(s)]; skip {
			continue
		}
		out = append(out, s)
	}
	return out
}
