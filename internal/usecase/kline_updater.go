package usecase

import (
	"context"

	"CrossScan/internal/domain/models"
	applogger "CrossScan/pkg/logger"
)

// KlineUpdater applies live candle updates to the scan cache so the next
// scan of a streamed symbol reuses fresh data instead of refetching.
type KlineUpdater struct {
	scan   *ScanContext
	logger *applogger.Logger
}

func NewKlineUpdater(scan *ScanContext, l *applogger.Logger) *KlineUpdater {
	return &KlineUpdater{scan: scan, logger: l}
}

// Process merges the event's candle into every cached series for the
// symbol and timeframe. An open candle replaces the current bucket in
// place; a closed candle finalizes it.
func (u *KlineUpdater) Process(ctx context.Context, ev *models.KlineEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	updated := u.scan.Cache.Append(ev.Symbol, ev.Timeframe, ev.Candle)
	if ev.Closed && updated > 0 {
		u.logger.Debug("closed candle applied",
			applogger.String("symbol", ev.Symbol),
			applogger.String("timeframe", ev.Timeframe),
			applogger.Int("entries", updated),
		)
	}
	return nil
}
