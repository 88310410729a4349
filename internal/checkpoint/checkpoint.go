package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Store is the durable cursor for resumable scans. A job that was never
// checkpointed reads as offset 0. The engine assumes single-flight per job,
// so Get-then-Set needs no stronger guarantee than durable read-modify-write.
type Store interface {
	Get(ctx context.Context, job string) (int64, error)
	Set(ctx context.Context, job string, offset int64) error
}

// fileRecord is the on-disk shape of one checkpoint.
type fileRecord struct {
	Job       string    `json:"job"`
	Offset    int64     `json:"offset"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FileStore persists one JSON file per job under a directory.
type FileStore struct {
	dir string
}

// NewFileStore creates the directory if needed and returns a file-backed
// checkpoint store.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create checkpoint directory %s: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(job string) string {
	return filepath.Join(s.dir, fmt.Sprintf("checkpoint_%s.json", job))
}

// Get reads the stored offset, defaulting to 0 when absent.
func (s *FileStore) Get(ctx context.Context, job string) (int64, error) {
	data, err := os.ReadFile(s.path(job))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read checkpoint file: %w", err)
	}

	var rec fileRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return 0, fmt.Errorf("parse checkpoint file: %w", err)
	}
	return rec.Offset, nil
}

// Set writes the offset atomically via a temp file and rename.
func (s *FileStore) Set(ctx context.Context, job string, offset int64) error {
	rec := fileRecord{Job: job, Offset: offset, UpdatedAt: time.Now().UTC()}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	path := s.path(job)
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint temp file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("rename checkpoint file: %w", err)
	}
	return nil
}

var _ Store = (*FileStore)(nil)
