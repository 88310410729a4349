package period

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"stock-sync/internal/provider"
)

// MissingLister scans the long tail of symbols still missing a statement
// for a period. checkedBefore filters out recently checked symbols.
type MissingLister interface {
	ListMissing(ctx context.Context, periodEnd, checkedBefore time.Time, limit int) ([]string, error)
}

// Planner builds the work set for the incremental finance job: disclosures
// published today for the target period, unioned with a capped slice of the
// long tail of still-missing symbols.
type Planner struct {
	disclosures provider.DisclosureLister
	missing     MissingLister
	dailyCap    int
	recheckAge  time.Duration
	logger      zerolog.Logger
}

// NewPlanner constructs a Planner.
func NewPlanner(disclosures provider.DisclosureLister, missing MissingLister, dailyCap int, recheckAge time.Duration, logger zerolog.Logger) *Planner {
	if dailyCap <= 0 {
		dailyCap = 300
	}
	if recheckAge <= 0 {
		recheckAge = 72 * time.Hour
	}
	return &Planner{
		disclosures: disclosures,
		missing:     missing,
		dailyCap:    dailyCap,
		recheckAge:  recheckAge,
		logger:      logger.With().Str("component", "planner").Logger(),
	}
}

// Plan resolves the target period for today and returns the deduplicated,
// sorted union of today's matching disclosures and the missing-data long
// tail. The sorted order makes the serial finance job deterministic.
func (p *Planner) Plan(ctx context.Context, today time.Time) ([]string, time.Time, error) {
	target := Resolve(today)

	disclosed, err := p.disclosures.Disclosures(ctx, today)
	if err != nil {
		return nil, target, fmt.Errorf("fetch disclosures: %w", err)
	}

	seen := make(map[string]struct{})
	for _, d := range disclosed {
		if !d.PeriodEnd.Equal(target) {
			continue
		}
		seen[d.Symbol] = struct{}{}
	}
	highPriority := len(seen)

	checkedBefore := today.Add(-p.recheckAge)
	tail, err := p.missing.ListMissing(ctx, target, checkedBefore, p.dailyCap)
	if err != nil {
		return nil, target, fmt.Errorf("list missing statements: %w", err)
	}
	for _, symbol := range tail {
		seen[symbol] = struct{}{}
	}

	plan := make([]string, 0, len(seen))
	for symbol := range seen {
		plan = append(plan, symbol)
	}
	sort.Strings(plan)

	p.logger.Info().
		Time("period_end", target).
		Int("disclosed_today", highPriority).
		Int("long_tail", len(tail)).
		Int("planned", len(plan)).
		Msg("incremental plan built")

	return plan, target, nil
}
