package storage

import (
	"context"
	"fmt"
	"time"
)

const (
	upsertTaskStateSQL = `INSERT INTO sync_task_states (
        job_type,
        status,
        current_offset,
        batch_size,
        total_processed,
        started_at,
        updated_at,
        completed_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8
    )
    ON CONFLICT (job_type) DO UPDATE
    SET
        status          = EXCLUDED.status,
        current_offset  = EXCLUDED.current_offset,
        batch_size      = EXCLUDED.batch_size,
        total_processed = EXCLUDED.total_processed,
        started_at      = EXCLUDED.started_at,
        updated_at      = EXCLUDED.updated_at,
        completed_at    = EXCLUDED.completed_at;`

	listTaskStatesSQL = `SELECT
        job_type,
        status,
        current_offset,
        batch_size,
        total_processed,
        started_at,
        updated_at,
        completed_at
    FROM sync_task_states
    ORDER BY updated_at DESC;`
)

// TaskStateStore persists the per-job execution projection.
type TaskStateStore interface {
	UpsertTaskState(ctx context.Context, state SyncTaskState) error
	ListTaskStates(ctx context.Context) ([]SyncTaskState, error)
}

// UpsertTaskState writes the projection row for one job kind.
func (s *Store) UpsertTaskState(ctx context.Context, state SyncTaskState) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if state.UpdatedAt.IsZero() {
		state.UpdatedAt = time.Now().UTC()
	}
	if _, execErr := pool.Exec(ctx, upsertTaskStateSQL,
		state.JobType,
		string(state.Status),
		state.CurrentOffset,
		state.BatchSize,
		state.TotalProcessed,
		state.StartedAt,
		state.UpdatedAt,
		state.CompletedAt,
	); execErr != nil {
		return fmt.Errorf("upsert task state: %w", execErr)
	}
	return nil
}

// ListTaskStates lists all job projections, most recently updated first.
func (s *Store) ListTaskStates(ctx context.Context) ([]SyncTaskState, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listTaskStatesSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list task states: %w", queryErr)
	}
	defer rows.Close()

	states := make([]SyncTaskState, 0)
	for rows.Next() {
		var st SyncTaskState
		var status string
		if err := rows.Scan(
			&st.JobType,
			&status,
			&st.CurrentOffset,
			&st.BatchSize,
			&st.TotalProcessed,
			&st.StartedAt,
			&st.UpdatedAt,
			&st.CompletedAt,
		); err != nil {
			return nil, err
		}
		st.Status = TaskStatus(status)
		states = append(states, st)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return states, nil
}

var _ TaskStateStore = (*Store)(nil)
