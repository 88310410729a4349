package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"stock-sync/internal/checkpoint"
	"stock-sync/internal/pipeline"
	"stock-sync/internal/provider"
	"stock-sync/internal/storage"
)

// BackfillOptions tune the resumable history backfill.
type BackfillOptions struct {
	// BatchSize is the catalogue page size.
	BatchSize int
	// SinglePage processes one page per Run instead of looping until the
	// catalogue is exhausted; both modes share the same checkpoint.
	SinglePage bool
	// Pipeline shapes the concurrent fetch stage.
	Pipeline pipeline.Config
}

// Backfill is the resumable full-history job: it pages the instrument
// catalogue from a durable offset, pipelines each page, and advances the
// checkpoint after every committed page. An empty page resets the offset so
// the next scheduled run starts over.
type Backfill struct {
	catalogue   provider.CatalogueLister
	history     provider.HistorySource
	bars        storage.BarStore
	instruments storage.InstrumentStore
	checkpoints checkpoint.Store
	tasks       storage.TaskStateStore
	limiter     pipeline.Limiter
	opts        BackfillOptions
	logger      zerolog.Logger
}

// NewBackfill constructs the backfill job. instruments and tasks may be nil;
// both are best-effort side writes.
func NewBackfill(
	catalogue provider.CatalogueLister,
	history provider.HistorySource,
	bars storage.BarStore,
	instruments storage.InstrumentStore,
	checkpoints checkpoint.Store,
	tasks storage.TaskStateStore,
	limiter pipeline.Limiter,
	opts BackfillOptions,
	logger zerolog.Logger,
) *Backfill {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	return &Backfill{
		catalogue:   catalogue,
		history:     history,
		bars:        bars,
		instruments: instruments,
		checkpoints: checkpoints,
		tasks:       tasks,
		limiter:     limiter,
		opts:        opts,
		logger:      logger.With().Str("component", "backfill").Logger(),
	}
}

// Kind implements Job.
func (b *Backfill) Kind() JobKind { return JobDailyBackfill }

// Run executes the backfill until the catalogue is exhausted, or for one
// page in single-page mode. The checkpoint is only advanced after a page
// fully commits, so a fatal failure leaves the next run retrying the same
// page.
func (b *Backfill) Run(ctx context.Context) (Summary, error) {
	started := time.Now()
	summary := Summary{Job: b.Kind()}

	b.writeTaskState(ctx, storage.TaskRunning, 0, 0, started, nil)

	for {
		result, outcome, err := b.processPage(ctx, &summary)
		if err != nil {
			b.writeTaskState(ctx, storage.TaskFailed, result, int64(summary.ItemsProcessed), started, nil)
			summary.Duration = time.Since(started)
			return summary, err
		}

		b.writeTaskState(ctx, storage.TaskRunning, result, int64(summary.ItemsProcessed), started, nil)

		if outcome == pageExhausted {
			summary.Message = "catalogue exhausted, checkpoint reset"
			break
		}
		if b.opts.SinglePage {
			summary.Message = "single page processed"
			break
		}
	}

	now := time.Now().UTC()
	finalOffset, _ := b.checkpoints.Get(ctx, string(b.Kind()))
	b.writeTaskState(ctx, storage.TaskCompleted, finalOffset, int64(summary.ItemsProcessed), started, &now)

	summary.Duration = time.Since(started)
	b.logger.Info().
		Int("items", summary.ItemsProcessed).
		Int64("rows", summary.RowsWritten).
		Int("failed", len(summary.FailedItems)).
		Dur("duration", summary.Duration).
		Msg("backfill run finished")
	return summary, nil
}

// processPage handles exactly one catalogue page. It returns the offset now
// recorded in the checkpoint and the loop decision.
func (b *Backfill) processPage(ctx context.Context, summary *Summary) (int64, pageResult, error) {
	offset, err := b.checkpoints.Get(ctx, string(b.Kind()))
	if err != nil {
		return 0, pageFatal, fmt.Errorf("read checkpoint: %w", err)
	}

	if err := b.limiter.Wait(ctx); err != nil {
		return offset, pageFatal, err
	}
	items, err := b.catalogue.Instruments(ctx, int(offset), b.opts.BatchSize)
	if err != nil {
		return offset, pageFatal, fmt.Errorf("list catalogue page at %d: %w", offset, err)
	}

	// The empty page is the structured exhaustion signal: reset the cursor
	// so the next scheduled run starts a fresh pass.
	if len(items) == 0 {
		if err := b.checkpoints.Set(ctx, string(b.Kind()), 0); err != nil {
			return offset, pageFatal, fmt.Errorf("reset checkpoint: %w", err)
		}
		b.logger.Info().Int64("offset", offset).Msg("catalogue exhausted, offset reset to 0")
		return 0, pageExhausted, nil
	}

	b.recordInstruments(ctx, items)

	symbols := make([]string, 0, len(items))
	for _, it := range items {
		symbols = append(symbols, it.Symbol)
	}

	result, err := pipeline.Run(ctx, b.opts.Pipeline, b.logger, b.limiter, symbols, b.history.DailyHistory, b.bars.SaveDailyBars)
	if err != nil {
		return offset, pageFatal, fmt.Errorf("pipeline page at %d: %w", offset, err)
	}

	summary.ItemsProcessed += len(symbols)
	summary.RowsWritten += result.RowsWritten
	summary.FailedItems = append(summary.FailedItems, result.FailedItems...)

	// The cursor advances whether or not the page yielded rows; a page of
	// already-caught-up or failed items must not stall the scan forever.
	if result.RowsWritten == 0 {
		b.logger.Warn().Int64("offset", offset).Int("items", len(symbols)).Msg("page yielded no rows, advancing anyway")
	}

	// A short page is the catalogue tail: reset the cursor now instead of
	// burning a call on the empty page that would follow.
	if len(items) < b.opts.BatchSize {
		if err := b.checkpoints.Set(ctx, string(b.Kind()), 0); err != nil {
			return offset, pageFatal, fmt.Errorf("reset checkpoint: %w", err)
		}
		b.logger.Info().Int64("offset", offset).Int("items", len(symbols)).Msg("catalogue tail reached, offset reset to 0")
		return 0, pageExhausted, nil
	}

	next := offset + int64(b.opts.BatchSize)
	if err := b.checkpoints.Set(ctx, string(b.Kind()), next); err != nil {
		return offset, pageFatal, fmt.Errorf("advance checkpoint: %w", err)
	}

	b.logger.Info().
		Int64("offset", offset).
		Int64("next_offset", next).
		Int("items", len(symbols)).
		Int64("rows", result.RowsWritten).
		Int("failed", len(result.FailedItems)).
		Msg("page committed")

	return next, pageContinue, nil
}

func (b *Backfill) recordInstruments(ctx context.Context, items []provider.Instrument) {
	if b.instruments == nil {
		return
	}
	symbols := make([]string, 0, len(items))
	names := make([]string, 0, len(items))
	for _, it := range items {
		symbols = append(symbols, it.Symbol)
		names = append(names, it.Name)
	}
	if err := b.instruments.UpsertInstruments(ctx, symbols, names); err != nil {
		b.logger.Warn().Err(err).Msg("failed to record catalogue page")
	}
}

func (b *Backfill) writeTaskState(ctx context.Context, status storage.TaskStatus, offset, processed int64, started time.Time, completed *time.Time) {
	if b.tasks == nil {
		return
	}
	state := storage.SyncTaskState{
		JobType:        string(b.Kind()),
		Status:         status,
		CurrentOffset:  offset,
		BatchSize:      b.opts.BatchSize,
		TotalProcessed: processed,
		StartedAt:      started.UTC(),
		UpdatedAt:      time.Now().UTC(),
		CompletedAt:    completed,
	}
	if err := b.tasks.UpsertTaskState(ctx, state); err != nil {
		b.logger.Warn().Err(err).Msg("failed to write task state")
	}
}

var _ Job = (*Backfill)(nil)
