package provider

import (
	"context"
	"errors"
	"time"

	"stock-sync/internal/storage"
)

// ErrQuotaExceeded marks a provider response that signals the call quota
// was exhausted. Callers detect it with errors.Is and back off.
var ErrQuotaExceeded = errors.New("provider: call quota exceeded")

// IsQuotaExceeded reports whether err carries the throttling signal.
func IsQuotaExceeded(err error) bool {
	return errors.Is(err, ErrQuotaExceeded)
}

// Instrument is one entry from the instrument catalogue.
type Instrument struct {
	Symbol string
	Name   string
}

// Disclosure announces that a statement for a reporting period was
// published for a symbol on a given day.
type Disclosure struct {
	Symbol    string
	PeriodEnd time.Time
}

// CatalogueLister pages through the instrument catalogue.
type CatalogueLister interface {
	Instruments(ctx context.Context, offset, limit int) ([]Instrument, error)
}

// HistorySource fetches the full daily-bar history of one instrument.
type HistorySource interface {
	DailyHistory(ctx context.Context, symbol string) ([]storage.DailyBar, error)
}

// QuoteSource fetches all daily bars for one trade date.
type QuoteSource interface {
	DailyQuotes(ctx context.Context, date time.Time) ([]storage.DailyBar, error)
}

// DisclosureLister fetches the statements disclosed on a given day.
type DisclosureLister interface {
	Disclosures(ctx context.Context, date time.Time) ([]Disclosure, error)
}

// StatementSource fetches the statement rows for one symbol and period.
type StatementSource interface {
	Statements(ctx context.Context, symbol string, periodEnd time.Time) ([]storage.FinancialStatement, error)
}

// Provider aggregates every fetch operation the sync engine consumes.
type Provider interface {
	CatalogueLister
	HistorySource
	QuoteSource
	DisclosureLister
	StatementSource
}
