package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"CrossScan/internal/domain/models"
	"CrossScan/internal/domain/repository"
)

// DefaultCandleTable is the ClickHouse table candles are served from.
const DefaultCandleTable = "candles"

// CandleSchema returns the DDL for the candle table. ReplacingMergeTree
// collapses re-ingested buckets so replays stay idempotent.
func CandleSchema(table string) []string {
	return []string{fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    symbol     LowCardinality(String),
    timeframe  LowCardinality(String),
    open_time  DateTime,
    open       Float64,
    high       Float64,
    low        Float64,
    close      Float64,
    volume     Float64
) ENGINE = ReplacingMergeTree
ORDER BY (symbol, timeframe, open_time)`, table)}
}

// ClickHouseSource implements CandleSource and SymbolCatalog over a candle
// table, for deployments that scan ingested history instead of hitting the
// exchange REST API.
type ClickHouseSource struct {
	db    *sql.DB
	table string
}

// NewClickHouseSource creates a ClickHouse-backed candle source.
func NewClickHouseSource(db *sql.DB, table string) *ClickHouseSource {
	if table == "" {
		table = DefaultCandleTable
	}
	return &ClickHouseSource{db: db, table: table}
}

// FetchCandles returns the newest limit candles for the symbol, oldest first.
func (s *ClickHouseSource) FetchCandles(ctx context.Context, symbol string, tf repository.Timeframe, limit int) (models.CandleSeries, error) {
	if symbol == "" {
		return nil, fmt.Errorf("symbol is empty")
	}
	if limit <= 0 {
		limit = 500
	}

	q := fmt.Sprintf(`SELECT open_time, open, high, low, close, volume
FROM %s
WHERE symbol = ? AND timeframe = ?
ORDER BY open_time DESC
LIMIT ?`, s.table)

	rows, err := s.db.QueryContext(ctx, q, symbol, string(tf), limit)
	if err != nil {
		return nil, fmt.Errorf("query candles %s: %w", symbol, err)
	}
	defer rows.Close()

	var newestFirst []models.Candle
	for rows.Next() {
		var c models.Candle
		var ts time.Time
		if err := rows.Scan(&ts, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("scan candle row: %w", err)
		}
		c.OpenTime = ts
		newestFirst = append(newestFirst, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse into ascending open-time order.
	series := make(models.CandleSeries, len(newestFirst))
	for i, c := range newestFirst {
		series[len(newestFirst)-1-i] = c
	}
	return series, nil
}

// Symbols lists every symbol present in the candle table.
func (s *ClickHouseSource) Symbols(ctx context.Context) ([]string, error) {
	q := fmt.Sprintf("SELECT DISTINCT symbol FROM %s ORDER BY symbol", s.table)

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query symbols: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, fmt.Errorf("scan symbol row: %w", err)
		}
		symbols = append(symbols, sym)
	}
	return symbols, rows.Err()
}

// Health pings the backing database.
func (s *ClickHouseSource) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
