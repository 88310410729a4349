package pipeline

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Limiter gates every outbound provider call.
type Limiter interface {
	Wait(ctx context.Context) error
}

// Config tunes the pipeline shape.
type Config struct {
	// Workers is the number of concurrent fetchers.
	Workers int
	// QueueCapacity bounds the fetched-but-unpersisted backlog, in batches.
	QueueCapacity int
	// FetchDelay is the politeness pause after each successful fetch.
	FetchDelay time.Duration
	// QuotaBackoff is the extra pause a worker takes after a throttling
	// signal, on top of the limiter's own pacing.
	QuotaBackoff time.Duration
	// Throttled reports whether an error carries a provider throttling
	// signal. Nil disables the extra backoff.
	Throttled func(error) bool
}

// Result aggregates one pipeline run.
type Result struct {
	ItemsSucceeded int
	RowsWritten    int64
	FailedItems    []string
}

// batch is one fetched unit travelling from a fetch worker to the persister.
type batch[T any] struct {
	item    string
	records []T
}

// Run fetches items concurrently and persists them strictly serially. Fetch
// workers block when the queue is full, so the fetch side can never run more
// than QueueCapacity batches ahead of the persist side. Each dequeued batch
// is persisted independently; one batch failing does not abort the rest.
// Run returns an error only when ctx is cancelled mid-flight.
func Run[T any](
	ctx context.Context,
	cfg Config,
	logger zerolog.Logger,
	limiter Limiter,
	items []string,
	fetch func(context.Context, string) ([]T, error),
	persist func(context.Context, []T) (int64, error),
) (Result, error) {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	capacity := cfg.QueueCapacity
	if capacity <= 0 {
		capacity = 1
	}

	log := logger.With().Str("component", "pipeline").Logger()

	var (
		mu     sync.Mutex
		result Result
	)
	fail := func(item string) {
		mu.Lock()
		result.FailedItems = append(result.FailedItems, item)
		mu.Unlock()
	}

	work := make(chan string)
	queue := make(chan batch[T], capacity)

	var fetchers sync.WaitGroup
	fetchers.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer fetchers.Done()
			for item := range work {
				if err := limiter.Wait(ctx); err != nil {
					fail(item)
					return
				}

				records, err := fetch(ctx, item)
				if err != nil {
					log.Warn().Err(err).Str("item", item).Msg("fetch failed")
					fail(item)
					if cfg.Throttled != nil && cfg.Throttled(err) && cfg.QuotaBackoff > 0 {
						log.Warn().Dur("backoff", cfg.QuotaBackoff).Msg("provider throttling detected, backing off")
						sleepCtx(ctx, cfg.QuotaBackoff)
					}
					continue
				}

				if cfg.FetchDelay > 0 {
					sleepCtx(ctx, cfg.FetchDelay)
				}

				select {
				case queue <- batch[T]{item: item, records: records}:
				case <-ctx.Done():
					fail(item)
					return
				}
			}
		}()
	}

	// Closing the queue once every fetcher is done is the completion
	// sentinel for the persist worker.
	go func() {
		fetchers.Wait()
		close(queue)
	}()

	var persister sync.WaitGroup
	persister.Add(1)
	go func() {
		defer persister.Done()
		for b := range queue {
			rows, err := persist(ctx, b.records)
			if err != nil {
				log.Error().Err(err).Str("item", b.item).Msg("persist failed")
				fail(b.item)
				continue
			}
			mu.Lock()
			result.ItemsSucceeded++
			result.RowsWritten += rows
			mu.Unlock()
		}
	}()

	// Feed work in input order; multiple fetchers drain it concurrently.
	// On cancellation the remaining items are simply abandoned.
	func() {
		defer close(work)
		for _, item := range items {
			select {
			case work <- item:
			case <-ctx.Done():
				return
			}
		}
	}()

	fetchers.Wait()
	persister.Wait()

	sort.Strings(result.FailedItems)

	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
