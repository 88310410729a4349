package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"stock-sync/internal/period"
	"stock-sync/internal/pipeline"
	"stock-sync/internal/provider"
	"stock-sync/internal/storage"
)

// FinanceOptions tune the serial finance job.
type FinanceOptions struct {
	// Pacing is the fixed delay between items. The statement quota is tight
	// enough that serial processing plus a delay beats concurrency.
	Pacing time.Duration
	// QuotaBackoff is the extra pause after a throttling signal.
	QuotaBackoff time.Duration
	// Date overrides "today"; zero means run time.
	Date time.Time
}

// Finance is the period-driven incremental job: plan the symbols whose
// statements should exist but don't, fetch them strictly serially, and
// commit each success (rows plus the checked stamp) before moving on, so a
// later failure never erases earlier progress. Failures land in the ledger
// and the plan continues.
type Finance struct {
	planner    *period.Planner
	statements provider.StatementSource
	store      storage.StatementStore
	ledger     storage.FailureLedger
	limiter    pipeline.Limiter
	opts       FinanceOptions
	now        func() time.Time
	sleep      func(context.Context, time.Duration)
	logger     zerolog.Logger
}

// NewFinance constructs the finance job.
func NewFinance(
	planner *period.Planner,
	statements provider.StatementSource,
	store storage.StatementStore,
	ledger storage.FailureLedger,
	limiter pipeline.Limiter,
	opts FinanceOptions,
	logger zerolog.Logger,
) *Finance {
	return &Finance{
		planner:    planner,
		statements: statements,
		store:      store,
		ledger:     ledger,
		limiter:    limiter,
		opts:       opts,
		now:        time.Now,
		sleep:      sleepCtx,
		logger:     logger.With().Str("component", "finance").Logger(),
	}
}

// Kind implements Job.
func (f *Finance) Kind() JobKind { return JobFinance }

// Run executes the plan for today.
func (f *Finance) Run(ctx context.Context) (Summary, error) {
	started := time.Now()
	summary := Summary{Job: f.Kind()}

	today := f.opts.Date
	if today.IsZero() {
		today = f.now().UTC().Truncate(24 * time.Hour)
	}

	plan, target, err := f.planner.Plan(ctx, today)
	if err != nil {
		return summary, fmt.Errorf("build plan: %w", err)
	}
	if len(plan) == 0 {
		summary.Message = "nothing to sync"
		summary.Duration = time.Since(started)
		return summary, nil
	}

	for _, symbol := range plan {
		if err := ctx.Err(); err != nil {
			summary.Duration = time.Since(started)
			return summary, err
		}

		if err := f.limiter.Wait(ctx); err != nil {
			summary.Duration = time.Since(started)
			return summary, err
		}

		rows, err := f.statements.Statements(ctx, symbol, target)
		if err != nil {
			f.recordFailure(ctx, symbol, err)
			summary.FailedItems = append(summary.FailedItems, symbol)
			if provider.IsQuotaExceeded(err) && f.opts.QuotaBackoff > 0 {
				f.logger.Warn().Str("symbol", symbol).Dur("backoff", f.opts.QuotaBackoff).Msg("statement quota signal, backing off")
				f.sleep(ctx, f.opts.QuotaBackoff)
			}
			continue
		}

		if len(rows) > 0 {
			written, err := f.store.SaveStatements(ctx, rows)
			if err != nil {
				f.recordFailure(ctx, symbol, err)
				summary.FailedItems = append(summary.FailedItems, symbol)
				continue
			}
			summary.RowsWritten += written
		}

		// The checked stamp commits immediately after the item's own rows;
		// progress on earlier symbols survives any later failure.
		if err := f.store.MarkChecked(ctx, symbol, today); err != nil {
			f.logger.Warn().Err(err).Str("symbol", symbol).Msg("failed to stamp check")
		}
		f.resolveFailure(ctx, symbol)
		summary.ItemsProcessed++

		if f.opts.Pacing > 0 {
			f.sleep(ctx, f.opts.Pacing)
		}
	}

	summary.Duration = time.Since(started)
	f.logger.Info().
		Time("period_end", target).
		Int("items", summary.ItemsProcessed).
		Int64("rows", summary.RowsWritten).
		Int("failed", len(summary.FailedItems)).
		Dur("duration", summary.Duration).
		Msg("finance run finished")
	return summary, nil
}

func (f *Finance) recordFailure(ctx context.Context, symbol string, cause error) {
	if f.ledger == nil {
		return
	}
	if err := f.ledger.RecordFailure(ctx, string(f.Kind()), symbol, cause.Error()); err != nil {
		f.logger.Error().Err(err).Str("symbol", symbol).Msg("failed to record ledger entry")
	}
}

func (f *Finance) resolveFailure(ctx context.Context, symbol string) {
	if f.ledger == nil {
		return
	}
	if err := f.ledger.ResolveFailure(ctx, string(f.Kind()), symbol); err != nil {
		f.logger.Warn().Err(err).Str("symbol", symbol).Msg("failed to resolve ledger entry")
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

var _ Job = (*Finance)(nil)
