package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// DailyBar is one daily OHLCV record, keyed by (symbol, trade_date).
type DailyBar struct {
	Symbol    string
	TradeDate time.Time
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    int64
	Turnover  decimal.Decimal
	CreatedAt time.Time
}

// FinancialStatement is one reported statement row, keyed by
// (symbol, announce_date, period_end).
type FinancialStatement struct {
	Symbol       string
	AnnounceDate time.Time
	PeriodEnd    time.Time
	Revenue      decimal.Decimal
	NetProfit    decimal.Decimal
	EPS          decimal.Decimal
	ROE          decimal.Decimal
	CreatedAt    time.Time
}

// FailureRecord is the ledger entry for a failed per-item attempt.
// Records are appended and updated, never deleted.
type FailureRecord struct {
	JobType       string
	ItemKey       string
	ErrorMessage  string
	RetryCount    int
	MaxRetries    int
	LastAttemptAt time.Time
	ResolvedAt    *time.Time
}

// TaskStatus enumerates sync task lifecycle states.
type TaskStatus string

const (
	TaskPending   TaskStatus = "PENDING"
	TaskRunning   TaskStatus = "RUNNING"
	TaskCompleted TaskStatus = "COMPLETED"
	TaskFailed    TaskStatus = "FAILED"
	TaskPaused    TaskStatus = "PAUSED"
)

// SyncTaskState is the persisted projection of one logical job, used by
// schedulers and the show command.
type SyncTaskState struct {
	JobType        string
	Status         TaskStatus
	CurrentOffset  int64
	BatchSize      int
	TotalProcessed int64
	StartedAt      time.Time
	UpdatedAt      time.Time
	CompletedAt    *time.Time
}
