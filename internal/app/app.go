package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"stock-sync/internal/alerting"
	"stock-sync/internal/checkpoint"
	"stock-sync/internal/config"
	"stock-sync/internal/period"
	"stock-sync/internal/pipeline"
	"stock-sync/internal/provider"
	"stock-sync/internal/ratelimit"
	"stock-sync/internal/scheduler"
	"stock-sync/internal/storage"
	syncjob "stock-sync/internal/sync"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newProvider() *provider.Client {
	return provider.NewClient(provider.Options{
		BaseURL:   a.Config.Provider.BaseURL,
		Token:     a.Config.Provider.Token,
		Timeout:   a.Config.Provider.RequestTimeout,
		UserAgent: a.Config.Provider.UserAgent,
	}, a.Logger)
}

func (a *App) newLimiter() *ratelimit.Limiter {
	return ratelimit.New(a.Config.Sync.MaxCalls, a.Config.Sync.RateWindow)
}

func (a *App) newNotifier() alerting.Notifier {
	if !a.Config.Alerting.Enabled || !a.Config.Alerting.Telegram.Enabled {
		return nil
	}
	cfg := a.Config.Alerting.Telegram
	return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
}

func (a *App) openStore(ctx context.Context) (*storage.Store, *pgxpool.Pool, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil, errors.New("database.dsn not configured")
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, nil, err
	}

	store := storage.NewStore(pool, a.Config.Sync.UpsertBatchSize)
	closer := func() {
		store.Close()
	}
	return store, pool, closer, nil
}

// newCheckpoints selects the checkpoint backend. The postgres backend keeps
// the cursor transactional with the data it describes; the file backend
// needs no database at all.
func (a *App) newCheckpoints(pool *pgxpool.Pool) (checkpoint.Store, error) {
	switch a.Config.Checkpoint.Backend {
	case "file":
		return checkpoint.NewFileStore(a.Config.Checkpoint.Dir)
	case "postgres":
		return storage.NewCheckpoints(pool), nil
	default:
		return nil, fmt.Errorf("unknown checkpoint backend %q", a.Config.Checkpoint.Backend)
	}
}

func (a *App) pipelineConfig() pipeline.Config {
	return pipeline.Config{
		Workers:       a.Config.Sync.FetchWorkers,
		QueueCapacity: a.Config.Sync.QueueCapacity,
		FetchDelay:    a.Config.Sync.FetchDelay,
		QuotaBackoff:  a.Config.Sync.QuotaBackoff,
		Throttled:     provider.IsQuotaExceeded,
	}
}

// jobOptions carry per-invocation overrides from the CLI.
type jobOptions struct {
	Date       time.Time
	SinglePage bool
}

// buildRegistry wires every orchestrator against the shared store, limiter
// and checkpoint backend.
func (a *App) buildRegistry(store *storage.Store, checkpoints checkpoint.Store, limiter *ratelimit.Limiter, opts jobOptions) syncjob.Registry {
	client := a.newProvider()

	backfill := syncjob.NewBackfill(client, client, store, store, checkpoints, store, limiter, syncjob.BackfillOptions{
		BatchSize:  a.Config.Sync.CatalogueBatchSize,
		SinglePage: opts.SinglePage,
		Pipeline:   a.pipelineConfig(),
	}, a.Logger)

	daily := syncjob.NewDaily(client, store, limiter, opts.Date, a.Logger)

	planner := period.NewPlanner(client, store, a.Config.Sync.FinanceDailyCap, a.Config.Sync.RecheckAge, a.Logger)
	finance := syncjob.NewFinance(planner, client, store, store, limiter, syncjob.FinanceOptions{
		Pacing:       a.Config.Sync.FinancePacing,
		QuotaBackoff: a.Config.Sync.QuotaBackoff,
		Date:         opts.Date,
	}, a.Logger)

	return syncjob.Registry{
		backfill.Kind(): backfill,
		daily.Kind():    daily,
		finance.Kind():  finance,
	}
}

// RunJobOptions configure a single ad-hoc job invocation.
type RunJobOptions struct {
	Date       time.Time
	SinglePage bool
}

// RunJob executes one job to completion and reports the outcome.
func (a *App) RunJob(ctx context.Context, kind syncjob.JobKind, opts RunJobOptions) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, pool, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	checkpoints, err := a.newCheckpoints(pool)
	if err != nil {
		return err
	}

	registry := a.buildRegistry(store, checkpoints, a.newLimiter(), jobOptions{Date: opts.Date, SinglePage: opts.SinglePage})
	job, ok := registry.Lookup(kind)
	if !ok {
		return fmt.Errorf("unknown job %q", kind)
	}

	summary, err := job.Run(ctx)
	a.notify(ctx, a.newNotifier(), summary, err)
	if err != nil {
		return err
	}

	a.Logger.Info().
		Str("job", string(summary.Job)).
		Int("items", summary.ItemsProcessed).
		Int64("rows", summary.RowsWritten).
		Int("failed", len(summary.FailedItems)).
		Msg("job finished")
	return nil
}

// Run executes the long-running sync service: on every scheduler cycle it
// takes the advisory lock and runs the configured jobs in order, so
// overlapping deployments never double-sync.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, pool, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	checkpoints, err := a.newCheckpoints(pool)
	if err != nil {
		return err
	}

	limiter := a.newLimiter()
	notifier := a.newNotifier()
	registry := a.buildRegistry(store, checkpoints, limiter, jobOptions{})

	kinds := make([]syncjob.JobKind, 0, len(a.Config.Sync.Jobs))
	for _, name := range a.Config.Sync.Jobs {
		kind := syncjob.JobKind(name)
		if _, ok := registry.Lookup(kind); !ok {
			return fmt.Errorf("unknown job %q in sync.jobs", name)
		}
		kinds = append(kinds, kind)
	}
	if len(kinds) == 0 {
		return errors.New("sync.jobs is empty; nothing to schedule")
	}

	sched := scheduler.New(scheduler.Options{
		Interval:        a.Config.Scheduler.Interval,
		AlignToInterval: a.Config.Scheduler.AlignToInterval,
		StartupDelay:    a.Config.Scheduler.StartupDelay,
		RunOnStart:      true,
	}, a.Logger)

	a.Logger.Info().Strs("jobs", a.Config.Sync.Jobs).Dur("interval", a.Config.Scheduler.Interval).Msg("starting sync service")

	err = sched.Run(ctx, func(ctx context.Context, scheduledAt time.Time) error {
		return a.runCycle(ctx, store, registry, notifier, kinds)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("sync service terminated with error")
		return err
	}

	a.Logger.Info().Msg("sync service stopped")
	return nil
}

func (a *App) runCycle(ctx context.Context, locker storage.AdvisoryLocker, registry syncjob.Registry, notifier alerting.Notifier, kinds []syncjob.JobKind) error {
	unlock, acquired, err := locker.TryAdvisoryLock(ctx, a.Config.Scheduler.AdvisoryLockKey)
	if err != nil {
		return fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		a.Logger.Warn().Msg("another instance holds the sync lock, skipping cycle")
		return nil
	}
	defer unlock()

	for _, kind := range kinds {
		job, _ := registry.Lookup(kind)
		summary, err := job.Run(ctx)
		a.notify(ctx, notifier, summary, err)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			// One failing job must not starve the rest of the cycle.
			a.Logger.Error().Err(err).Str("job", string(kind)).Msg("job failed, continuing cycle")
		}
	}
	return nil
}

func (a *App) notify(ctx context.Context, notifier alerting.Notifier, summary syncjob.Summary, runErr error) {
	if notifier == nil {
		return
	}

	status := "completed"
	message := summary.Message
	switch {
	case runErr != nil:
		status = "failed"
		message = runErr.Error()
	case len(summary.FailedItems) > 0:
		status = "completed with failures"
	default:
		if !a.Config.Alerting.NotifyOnSuccess {
			return
		}
	}

	note := alerting.Notification{
		Job:         string(summary.Job),
		Status:      status,
		Items:       summary.ItemsProcessed,
		Rows:        summary.RowsWritten,
		FailedItems: summary.FailedItems,
		Duration:    summary.Duration,
		Message:     message,
		OccurredAt:  time.Now().UTC(),
	}
	if err := notifier.Notify(ctx, note); err != nil {
		a.Logger.Error().Err(err).Str("job", note.Job).Msg("failed to deliver notification")
	}
}
