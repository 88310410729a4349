package sync

import (
	"context"
	"time"
)

// JobKind identifies one logical sync job.
type JobKind string

const (
	// JobDailyBackfill pages the catalogue and backfills full bar history.
	JobDailyBackfill JobKind = "daily_history_backfill"
	// JobDailyQuotes pulls all bars for one trade date.
	JobDailyQuotes JobKind = "daily_quotes"
	// JobFinance pulls the statements the current period says should exist.
	JobFinance JobKind = "finance_incremental"
)

// Summary is the plain outcome record every orchestrator returns.
type Summary struct {
	Job            JobKind
	ItemsProcessed int
	RowsWritten    int64
	FailedItems    []string
	Message        string
	Duration       time.Duration
}

// Job is one runnable orchestrator.
type Job interface {
	Kind() JobKind
	Run(ctx context.Context) (Summary, error)
}

// Registry maps job kinds to constructed orchestrators. It is built once at
// startup; lookups never construct anything.
type Registry map[JobKind]Job

// Lookup returns the job for a kind.
func (r Registry) Lookup(kind JobKind) (Job, bool) {
	job, ok := r[kind]
	return job, ok
}

// pageResult tells the backfill loop what to do after one page.
type pageResult int

const (
	pageContinue pageResult = iota
	pageExhausted
	pageFatal
)
