package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"stock-sync/internal/pipeline"
	"stock-sync/internal/provider"
	"stock-sync/internal/storage"
)

// Daily is the single-date incremental job: one gated provider call for all
// bars of a trade date, upserted in one pass. The provider failure is hard;
// there is no per-item scope to isolate.
type Daily struct {
	quotes  provider.QuoteSource
	bars    storage.BarStore
	limiter pipeline.Limiter
	date    time.Time
	now     func() time.Time
	logger  zerolog.Logger
}

// NewDaily constructs the daily quote job. A zero date means the current
// day at run time.
func NewDaily(quotes provider.QuoteSource, bars storage.BarStore, limiter pipeline.Limiter, date time.Time, logger zerolog.Logger) *Daily {
	return &Daily{
		quotes:  quotes,
		bars:    bars,
		limiter: limiter,
		date:    date,
		now:     time.Now,
		logger:  logger.With().Str("component", "daily").Logger(),
	}
}

// Kind implements Job.
func (d *Daily) Kind() JobKind { return JobDailyQuotes }

// Run pulls and persists one trade date.
func (d *Daily) Run(ctx context.Context) (Summary, error) {
	started := time.Now()
	summary := Summary{Job: d.Kind()}

	date := d.date
	if date.IsZero() {
		date = d.now().UTC().Truncate(24 * time.Hour)
	}

	if err := d.limiter.Wait(ctx); err != nil {
		return summary, err
	}
	bars, err := d.quotes.DailyQuotes(ctx, date)
	if err != nil {
		return summary, fmt.Errorf("fetch daily quotes: %w", err)
	}
	if len(bars) == 0 {
		summary.Message = "no bars for date (holiday or not yet published)"
		summary.Duration = time.Since(started)
		d.logger.Info().Time("date", date).Msg("no bars returned for date")
		return summary, nil
	}

	rows, err := d.bars.SaveDailyBars(ctx, bars)
	if err != nil {
		return summary, fmt.Errorf("persist daily quotes: %w", err)
	}

	summary.ItemsProcessed = len(bars)
	summary.RowsWritten = rows
	summary.Duration = time.Since(started)

	d.logger.Info().
		Time("date", date).
		Int("bars", len(bars)).
		Int64("rows", rows).
		Msg("daily quotes synced")
	return summary, nil
}

var _ Job = (*Daily)(nil)
