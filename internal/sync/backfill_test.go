package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"stock-sync/internal/pipeline"
	"stock-sync/internal/provider"
	"stock-sync/internal/storage"
)

type memCheckpoints struct {
	mu      sync.Mutex
	offsets map[string]int64
	setErr  error
}

func newMemCheckpoints() *memCheckpoints {
	return &memCheckpoints{offsets: make(map[string]int64)}
}

func (m *memCheckpoints) Get(ctx context.Context, job string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.offsets[job], nil
}

func (m *memCheckpoints) Set(ctx context.Context, job string, offset int64) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offsets[job] = offset
	return nil
}

func (m *memCheckpoints) offset(job JobKind) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.offsets[string(job)]
}

// fakeCatalogue serves a fixed symbol list in pages.
type fakeCatalogue struct {
	symbols []string
}

func (f *fakeCatalogue) Instruments(ctx context.Context, offset, limit int) ([]provider.Instrument, error) {
	if offset >= len(f.symbols) {
		return nil, nil
	}
	end := offset + limit
	if end > len(f.symbols) {
		end = len(f.symbols)
	}
	items := make([]provider.Instrument, 0, end-offset)
	for _, s := range f.symbols[offset:end] {
		items = append(items, provider.Instrument{Symbol: s, Name: "name-" + s})
	}
	return items, nil
}

// fakeHistory returns one bar per symbol, with optional per-symbol errors
// and empty results.
type fakeHistory struct {
	mu      sync.Mutex
	fetched []string
	failOn  map[string]bool
	emptyOn map[string]bool
}

func (f *fakeHistory) DailyHistory(ctx context.Context, symbol string) ([]storage.DailyBar, error) {
	f.mu.Lock()
	f.fetched = append(f.fetched, symbol)
	f.mu.Unlock()
	if f.failOn[symbol] {
		return nil, fmt.Errorf("fetch %s: boom", symbol)
	}
	if f.emptyOn[symbol] {
		return nil, nil
	}
	px := decimal.NewFromInt(10)
	return []storage.DailyBar{{
		Symbol:    symbol,
		TradeDate: time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC),
		Open:      px, High: px, Low: px, Close: px,
		Volume: 1, Turnover: px,
	}}, nil
}

type memBarStore struct {
	mu   sync.Mutex
	bars map[string]storage.DailyBar
}

func newMemBarStore() *memBarStore {
	return &memBarStore{bars: make(map[string]storage.DailyBar)}
}

func (m *memBarStore) SaveDailyBars(ctx context.Context, bars []storage.DailyBar) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range bars {
		m.bars[b.Symbol+"|"+b.TradeDate.Format("20060102")] = b
	}
	return int64(len(bars)), nil
}

func (m *memBarStore) ListDailyBars(ctx context.Context, symbol string, from, to time.Time) ([]storage.DailyBar, error) {
	return nil, nil
}

func newTestBackfill(catalogue *fakeCatalogue, history *fakeHistory, bars storage.BarStore, ckpt *memCheckpoints, batchSize int, single bool) *Backfill {
	return NewBackfill(catalogue, history, bars, nil, ckpt, nil, noLimit{}, BackfillOptions{
		BatchSize:  batchSize,
		SinglePage: single,
		Pipeline:   pipeline.Config{Workers: 2, QueueCapacity: 2},
	}, zerolog.Nop())
}

type noLimit struct{}

func (noLimit) Wait(ctx context.Context) error { return ctx.Err() }

func TestBackfillTwoRunsDrainCatalogue(t *testing.T) {
	// 7 items, batch size 5: run 1 in single-page mode processes items 1-5
	// and leaves offset 5; run 2 processes 6-7, sees the empty page, and
	// resets the offset to 0.
	catalogue := &fakeCatalogue{symbols: []string{"s1", "s2", "s3", "s4", "s5", "s6", "s7"}}
	history := &fakeHistory{}
	bars := newMemBarStore()
	ckpt := newMemCheckpoints()

	job := newTestBackfill(catalogue, history, bars, ckpt, 5, true)

	ctx := context.Background()
	s1, err := job.Run(ctx)
	if err != nil {
		t.Fatalf("run 1 failed: %v", err)
	}
	if s1.ItemsProcessed != 5 {
		t.Fatalf("run 1 should process 5 items, got %d", s1.ItemsProcessed)
	}
	if got := ckpt.offset(JobDailyBackfill); got != 5 {
		t.Fatalf("run 1 should leave offset 5, got %d", got)
	}

	s2, err := job.Run(ctx)
	if err != nil {
		t.Fatalf("run 2 failed: %v", err)
	}
	if s2.ItemsProcessed != 2 {
		t.Fatalf("run 2 should process 2 items, got %d", s2.ItemsProcessed)
	}
	if got := ckpt.offset(JobDailyBackfill); got != 0 {
		t.Fatalf("run 2 should reset offset to 0, got %d", got)
	}
	if len(bars.bars) != 7 {
		t.Fatalf("expected 7 bars persisted, got %d", len(bars.bars))
	}
}

func TestBackfillLoopUntilExhausted(t *testing.T) {
	catalogue := &fakeCatalogue{symbols: []string{"s1", "s2", "s3", "s4", "s5", "s6", "s7"}}
	history := &fakeHistory{}
	bars := newMemBarStore()
	ckpt := newMemCheckpoints()

	job := newTestBackfill(catalogue, history, bars, ckpt, 5, false)

	summary, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.ItemsProcessed != 7 {
		t.Fatalf("expected 7 items in one looping run, got %d", summary.ItemsProcessed)
	}
	if got := ckpt.offset(JobDailyBackfill); got != 0 {
		t.Fatalf("exhausted loop should leave offset 0, got %d", got)
	}
}

func TestBackfillEmptyPageResetsCheckpoint(t *testing.T) {
	// 4 items with batch size 2 yields two full pages; only the empty
	// third page can signal exhaustion and reset the cursor.
	catalogue := &fakeCatalogue{symbols: []string{"s1", "s2", "s3", "s4"}}
	history := &fakeHistory{}
	bars := newMemBarStore()
	ckpt := newMemCheckpoints()

	job := newTestBackfill(catalogue, history, bars, ckpt, 2, false)

	summary, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.ItemsProcessed != 4 {
		t.Fatalf("expected 4 items, got %d", summary.ItemsProcessed)
	}
	if got := ckpt.offset(JobDailyBackfill); got != 0 {
		t.Fatalf("empty page should reset offset to 0, got %d", got)
	}
}

func TestBackfillAdvancesDespiteItemFailures(t *testing.T) {
	catalogue := &fakeCatalogue{symbols: []string{"s1", "s2", "s3"}}
	history := &fakeHistory{failOn: map[string]bool{"s2": true}}
	bars := newMemBarStore()
	ckpt := newMemCheckpoints()

	job := newTestBackfill(catalogue, history, bars, ckpt, 3, true)

	summary, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if got := ckpt.offset(JobDailyBackfill); got != 3 {
		t.Fatalf("offset should advance by batch size despite failures, got %d", got)
	}
	if len(summary.FailedItems) != 1 || summary.FailedItems[0] != "s2" {
		t.Fatalf("expected [s2] failed, got %v", summary.FailedItems)
	}
}

func TestBackfillAdvancesOnZeroYieldPage(t *testing.T) {
	catalogue := &fakeCatalogue{symbols: []string{"s1", "s2"}}
	history := &fakeHistory{emptyOn: map[string]bool{"s1": true, "s2": true}}
	bars := newMemBarStore()
	ckpt := newMemCheckpoints()

	job := newTestBackfill(catalogue, history, bars, ckpt, 2, true)

	summary, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.RowsWritten != 0 {
		t.Fatalf("expected no rows written, got %d", summary.RowsWritten)
	}
	if got := ckpt.offset(JobDailyBackfill); got != 2 {
		t.Fatalf("zero-yield page must still advance the cursor, got offset %d", got)
	}
}

func TestBackfillFatalLeavesCheckpoint(t *testing.T) {
	history := &fakeHistory{}
	bars := newMemBarStore()
	ckpt := newMemCheckpoints()
	ckpt.offsets[string(JobDailyBackfill)] = 100
	ckpt.setErr = errors.New("disk full")

	job := newTestBackfill(&fakeCatalogue{symbols: nil}, history, bars, ckpt, 2, true)
	if _, err := job.Run(context.Background()); err == nil {
		t.Fatal("checkpoint write failure should be fatal")
	}
	if got := ckpt.offset(JobDailyBackfill); got != 100 {
		t.Fatalf("fatal run must leave the checkpoint untouched, got %d", got)
	}
}
