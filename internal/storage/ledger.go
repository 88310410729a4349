package storage

import (
	"context"
	"fmt"
	"time"
)

const (
	recordFailureSQL = `INSERT INTO failure_records (
        job_type,
        item_key,
        error_message,
        retry_count,
        max_retries,
        last_attempt_at,
        resolved_at
    ) VALUES (
        $1,$2,$3,1,$4,$5,NULL
    )
    ON CONFLICT (job_type, item_key) DO UPDATE
    SET
        error_message   = EXCLUDED.error_message,
        retry_count     = failure_records.retry_count + 1,
        last_attempt_at = EXCLUDED.last_attempt_at,
        resolved_at     = NULL;`

	resolveFailureSQL = `UPDATE failure_records
    SET resolved_at = $3
    WHERE job_type = $1 AND item_key = $2 AND resolved_at IS NULL;`

	listPendingFailuresSQL = `SELECT
        job_type,
        item_key,
        error_message,
        retry_count,
        max_retries,
        last_attempt_at,
        resolved_at
    FROM failure_records
    WHERE resolved_at IS NULL
    ORDER BY last_attempt_at DESC
    LIMIT $1;`
)

// FailureLedger records per-item failures for compensating retries.
// Entries are appended and updated, never deleted.
type FailureLedger interface {
	RecordFailure(ctx context.Context, jobType, itemKey, message string) error
	ResolveFailure(ctx context.Context, jobType, itemKey string) error
	ListPendingFailures(ctx context.Context, limit int) ([]FailureRecord, error)
}

// RecordFailure appends or updates a ledger entry, incrementing retry_count
// on repeated failures of the same key.
func (s *Store) RecordFailure(ctx context.Context, jobType, itemKey, message string) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if _, execErr := pool.Exec(ctx, recordFailureSQL, jobType, itemKey, message, defaultMaxRetries, now); execErr != nil {
		return fmt.Errorf("record failure: %w", execErr)
	}
	return nil
}

// ResolveFailure stamps a pending entry as resolved. Resolving an absent or
// already-resolved entry is not an error.
func (s *Store) ResolveFailure(ctx context.Context, jobType, itemKey string) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, resolveFailureSQL, jobType, itemKey, time.Now().UTC()); execErr != nil {
		return fmt.Errorf("resolve failure: %w", execErr)
	}
	return nil
}

// ListPendingFailures lists unresolved entries, most recent attempt first.
func (s *Store) ListPendingFailures(ctx context.Context, limit int) ([]FailureRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listPendingFailuresSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list pending failures: %w", queryErr)
	}
	defer rows.Close()

	records := make([]FailureRecord, 0, limit)
	for rows.Next() {
		var rec FailureRecord
		if err := rows.Scan(
			&rec.JobType,
			&rec.ItemKey,
			&rec.ErrorMessage,
			&rec.RetryCount,
			&rec.MaxRetries,
			&rec.LastAttemptAt,
			&rec.ResolvedAt,
		); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

const defaultMaxRetries = 3

var _ FailureLedger = (*Store)(nil)
