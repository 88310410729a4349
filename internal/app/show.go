package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	syncjob "stock-sync/internal/sync"
)

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// Show prints the task states, checkpoints and pending failures.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	if opts.Limit <= 0 {
		opts.Limit = 20
	}

	store, pool, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	states, err := store.ListTaskStates(ctx)
	if err != nil {
		return err
	}

	checkpoints, err := a.newCheckpoints(pool)
	if err != nil {
		return err
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Job\tStatus\tOffset\tProcessed\tUpdated (UTC)\tCompleted (UTC)")
	if len(states) == 0 {
		fmt.Fprintln(os.Stdout, "no task states recorded")
	}
	for _, state := range states {
		completed := "-"
		if state.CompletedAt != nil {
			completed = state.CompletedAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%d\t%d\t%s\t%s\n",
			state.JobType,
			state.Status,
			state.CurrentOffset,
			state.TotalProcessed,
			state.UpdatedAt.UTC().Format(time.RFC3339),
			completed,
		)
	}
	writer.Flush()

	fmt.Fprintln(os.Stdout)
	fmt.Fprintln(os.Stdout, "checkpoints:")
	for _, kind := range []syncjob.JobKind{syncjob.JobDailyBackfill, syncjob.JobDailyQuotes, syncjob.JobFinance} {
		offset, err := checkpoints.Get(ctx, string(kind))
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "  %s: %d\n", kind, offset)
	}

	failures, err := store.ListPendingFailures(ctx, opts.Limit)
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout)
	if len(failures) == 0 {
		fmt.Fprintln(os.Stdout, "no pending failures")
		return nil
	}

	fmt.Fprintf(os.Stdout, "pending failures (showing up to %d):\n", opts.Limit)
	failWriter := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(failWriter, "Job\tItem\tRetries\tLast attempt (UTC)\tError")
	for _, f := range failures {
		fmt.Fprintf(
			failWriter,
			"%s\t%s\t%d/%d\t%s\t%s\n",
			f.JobType,
			f.ItemKey,
			f.RetryCount,
			f.MaxRetries,
			f.LastAttemptAt.UTC().Format(time.RFC3339),
			sanitizeInline(f.ErrorMessage),
		)
	}
	failWriter.Flush()
	return nil
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
