package storage

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func day(d int) time.Time {
	return time.Date(2026, 8, d, 0, 0, 0, 0, time.UTC)
}

func bar(symbol string, date time.Time, close int64) DailyBar {
	px := decimal.NewFromInt(close)
	return DailyBar{
		Symbol:    symbol,
		TradeDate: date,
		Open:      px,
		High:      px,
		Low:       px,
		Close:     px,
		Volume:    100,
		Turnover:  px.Mul(decimal.NewFromInt(100)),
	}
}

func TestDedupeDailyBarsLastWins(t *testing.T) {
	bars := []DailyBar{
		bar("600519", day(1), 10),
		bar("000001", day(1), 20),
		bar("600519", day(1), 30),
	}

	deduped := dedupeDailyBars(bars)
	if len(deduped) != 2 {
		t.Fatalf("expected 2 bars after dedup, got %d", len(deduped))
	}
	// Last occurrence wins, position of first occurrence preserved.
	if deduped[0].Symbol != "600519" || deduped[0].Close.String() != "30" {
		t.Fatalf("expected last write for 600519 at position 0, got %+v", deduped[0])
	}
	if deduped[1].Symbol != "000001" {
		t.Fatalf("expected 000001 at position 1, got %+v", deduped[1])
	}
}

func TestDedupeDailyBarsDistinctKeysUntouched(t *testing.T) {
	bars := []DailyBar{
		bar("600519", day(1), 10),
		bar("600519", day(2), 11),
		bar("600519", day(3), 12),
	}

	deduped := dedupeDailyBars(bars)
	if len(deduped) != 3 {
		t.Fatalf("distinct keys should survive dedup, got %d of 3", len(deduped))
	}
	for i := range bars {
		if !deduped[i].TradeDate.Equal(bars[i].TradeDate) {
			t.Fatalf("order changed at %d: %s vs %s", i, deduped[i].TradeDate, bars[i].TradeDate)
		}
	}
}

func TestDedupeStatementsLastWins(t *testing.T) {
	periodEnd := time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC)
	first := FinancialStatement{
		Symbol:       "600519",
		AnnounceDate: day(30),
		PeriodEnd:    periodEnd,
		Revenue:      decimal.NewFromInt(100),
	}
	second := first
	second.Revenue = decimal.NewFromInt(200)

	deduped := dedupeStatements([]FinancialStatement{first, second})
	if len(deduped) != 1 {
		t.Fatalf("expected 1 row after dedup, got %d", len(deduped))
	}
	if deduped[0].Revenue.String() != "200" {
		t.Fatalf("expected last revenue value 200, got %s", deduped[0].Revenue)
	}
}

func TestDedupeStatementsKeyIncludesAnnounceDate(t *testing.T) {
	periodEnd := time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC)
	rows := []FinancialStatement{
		{Symbol: "600519", AnnounceDate: day(29), PeriodEnd: periodEnd},
		{Symbol: "600519", AnnounceDate: day(30), PeriodEnd: periodEnd},
	}

	if got := len(dedupeStatements(rows)); got != 2 {
		t.Fatalf("different announce dates are different keys, got %d rows", got)
	}
}
