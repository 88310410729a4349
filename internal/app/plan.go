package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"stock-sync/internal/period"
)

// PlanOptions configure the plan preview.
type PlanOptions struct {
	Date time.Time
}

// Plan prints the symbols the finance job would process today without
// fetching or writing any statements.
func (a *App) Plan(ctx context.Context, opts PlanOptions) error {
	store, _, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	today := opts.Date
	if today.IsZero() {
		today = time.Now().UTC().Truncate(24 * time.Hour)
	}

	client := a.newProvider()
	planner := period.NewPlanner(client, store, a.Config.Sync.FinanceDailyCap, a.Config.Sync.RecheckAge, a.Logger)

	plan, target, err := planner.Plan(ctx, today)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "target period end: %s\n", target.Format("2006-01-02"))
	if len(plan) == 0 {
		fmt.Fprintln(os.Stdout, "nothing to sync")
		return nil
	}

	fmt.Fprintf(os.Stdout, "planned symbols (%d):\n", len(plan))
	for _, symbol := range plan {
		fmt.Fprintln(os.Stdout, "  "+symbol)
	}
	return nil
}
