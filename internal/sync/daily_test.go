package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"stock-sync/internal/storage"
)

type fakeQuotes struct {
	bars    []storage.DailyBar
	err     error
	gotDate time.Time
}

func (f *fakeQuotes) DailyQuotes(ctx context.Context, date time.Time) ([]storage.DailyBar, error) {
	f.gotDate = date
	return f.bars, f.err
}

func TestDailyPersistsBars(t *testing.T) {
	date := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)
	px := decimal.NewFromInt(12)
	quotes := &fakeQuotes{bars: []storage.DailyBar{
		{Symbol: "s1", TradeDate: date, Open: px, High: px, Low: px, Close: px, Volume: 10, Turnover: px},
		{Symbol: "s2", TradeDate: date, Open: px, High: px, Low: px, Close: px, Volume: 20, Turnover: px},
	}}
	bars := newMemBarStore()

	job := NewDaily(quotes, bars, noLimit{}, date, zerolog.Nop())
	summary, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.ItemsProcessed != 2 || summary.RowsWritten != 2 {
		t.Fatalf("expected 2 items / 2 rows, got %d / %d", summary.ItemsProcessed, summary.RowsWritten)
	}
	if !quotes.gotDate.Equal(date) {
		t.Fatalf("expected fetch for %v, got %v", date, quotes.gotDate)
	}
}

func TestDailyEmptyDateIsNotAnError(t *testing.T) {
	date := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)
	quotes := &fakeQuotes{}
	job := NewDaily(quotes, newMemBarStore(), noLimit{}, date, zerolog.Nop())

	summary, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("empty date should not fail: %v", err)
	}
	if summary.Message == "" {
		t.Fatal("empty date should explain itself in the summary message")
	}
}

func TestDailyProviderErrorIsFatal(t *testing.T) {
	quotes := &fakeQuotes{err: errors.New("upstream 503")}
	job := NewDaily(quotes, newMemBarStore(), noLimit{}, time.Time{}, zerolog.Nop())

	if _, err := job.Run(context.Background()); err == nil {
		t.Fatal("provider failure must propagate")
	}
}
