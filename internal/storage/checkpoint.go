package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"stock-sync/internal/checkpoint"
)

const (
	getCheckpointSQL = `SELECT current_offset FROM sync_checkpoints WHERE job_type = $1;`

	setCheckpointSQL = `INSERT INTO sync_checkpoints (job_type, current_offset, updated_at)
    VALUES ($1, $2, $3)
    ON CONFLICT (job_type) DO UPDATE
    SET current_offset = EXCLUDED.current_offset,
        updated_at     = EXCLUDED.updated_at;`
)

// Checkpoints is the table-backed checkpoint store, one row per job.
type Checkpoints struct {
	pool *pgxpool.Pool
}

// NewCheckpoints wires a pgx pool into a checkpoint store.
func NewCheckpoints(pool *pgxpool.Pool) *Checkpoints {
	return &Checkpoints{pool: pool}
}

// Get reads the stored offset, defaulting to 0 when no row exists.
func (c *Checkpoints) Get(ctx context.Context, job string) (int64, error) {
	if c == nil || c.pool == nil {
		return 0, ErrNotConfigured
	}

	var offset int64
	err := c.pool.QueryRow(ctx, getCheckpointSQL, job).Scan(&offset)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("get checkpoint: %w", err)
	}
	return offset, nil
}

// Set upserts the offset for a job.
func (c *Checkpoints) Set(ctx context.Context, job string, offset int64) error {
	if c == nil || c.pool == nil {
		return ErrNotConfigured
	}
	if _, err := c.pool.Exec(ctx, setCheckpointSQL, job, offset, time.Now().UTC()); err != nil {
		return fmt.Errorf("set checkpoint: %w", err)
	}
	return nil
}

var _ checkpoint.Store = (*Checkpoints)(nil)
