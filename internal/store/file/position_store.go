// Package file implements domain.PositionStore on a local JSON file.
package file

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/alanyoungcy/pumpbot/internal/domain"
)

// PositionStore keeps the position list as an indented JSON array.
type PositionStore struct {
	path   string
	mu     sync.Mutex
	logger *slog.Logger
}

// NewPositionStore creates a store backed by the file at path.
func NewPositionStore(path string, logger *slog.Logger) *PositionStore {
	return &PositionStore{
		path:   path,
		logger: logger.With(slog.String("component", "file_store")),
	}
}

// Path returns the backing file location.
func (s *PositionStore) Path() string {
	return s.path
}

// Load reads the file. A missing, empty, or corrupted file yields an empty
// list and no error.
func (s *PositionStore) Load(ctx context.Context) ([]domain.PositionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.WarnContext(ctx, "position file unreadable, starting empty",
				slog.String("path", s.path),
				slog.String("error", err.Error()),
			)
		}
		return []domain.PositionRecord{}, nil
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return []domain.PositionRecord{}, nil
	}

	var records []domain.PositionRecord
	if err := json.Unmarshal(data, &records); err != nil {
		s.logger.WarnContext(ctx, "corrupted position file, resetting",
			slog.String("path", s.path),
			slog.String("error", err.Error()),
		)
		return []domain.PositionRecord{}, nil
	}
	if records == nil {
		records = []domain.PositionRecord{}
	}
	return records, nil
}

// Save atomically replaces the file with records.
func (s *PositionStore) Save(ctx context.Context, records []domain.PositionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if records == nil {
		records = []domain.PositionRecord{}
	}
	data, err := json.MarshalIndent(records, "", "    ")
	if err != nil {
		return fmt.Errorf("file: marshal positions: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".positions-*.json")
	if err != nil {
		return fmt.Errorf("file: create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("file: write %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("file: close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("file: rename to %s: %w", s.path, err)
	}
	return nil
}

var _ domain.PositionStore = (*PositionStore)(nil)
