package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"cloudMining/internal/model"
)

// FileStateStore keeps the ledger snapshot in a JSON file.
type FileStateStore struct {
	path string
}

func NewFileStateStore(path string) *FileStateStore {
	return &FileStateStore{path: path}
}

func (s *FileStateStore) Path() string {
	return s.path
}

func (s *FileStateStore) Load(_ context.Context) (model.LedgerSnapshot, bool, error) {
	stat, err := os.Stat(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return model.LedgerSnapshot{}, false, nil
		}
		return model.LedgerSnapshot{}, false, fmt.Errorf("stat state: %w", err)
	}
	if stat.IsDir() {
		return model.LedgerSnapshot{}, false, fmt.Errorf("state path is a directory")
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return model.LedgerSnapshot{}, false, fmt.Errorf("read state: %w", err)
	}

	var snap model.LedgerSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return model.LedgerSnapshot{}, false, fmt.Errorf("parse state: %w", err)
	}
	return snap, true, nil
}

// Save writes the snapshot to a temp file and renames it over the old one.
func (s *FileStateStore) Save(_ context.Context, snap model.LedgerSnapshot) error {
	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create state dir: %w", err)
		}
	}

	snap.UpdatedAt = time.Now().UTC().Format(time.RFC3339Nano)
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write state tmp: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("rename state: %w", err)
	}
	return nil
}
