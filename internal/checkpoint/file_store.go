package checkpoint

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"peoplepipe/internal/fileutil"
)

const recordExt = ".toml"

// FileStore keeps one TOML record per step under dir. Records are replaced
// with write-then-rename, so an interrupted write leaves either the previous
// record or none, never a truncated one.
type FileStore struct {
	dir      string
	order    stepOrder
	readOnly bool
}

// NewFileStore prepares dir for records.
func NewFileStore(dir string, order []string) (*FileStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("checkpoint: directory is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("checkpoint: ensure directory: %w", err)
	}
	return &FileStore{dir: dir, order: newStepOrder(order)}, nil
}

// openFileReader reads records from dir without creating or removing
// anything. A missing directory holds no records.
func openFileReader(dir string, order []string) (*FileStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("checkpoint: directory is empty")
	}
	return &FileStore{dir: dir, order: newStepOrder(order), readOnly: true}, nil
}

// RemoveStaleTemps deletes temp files left by interrupted writes. Callers
// must hold the run lock so no write is in flight.
func (s *FileStore) RemoveStaleTemps() (int, error) {
	removed, err := fileutil.RemoveStaleTemps(s.dir)
	if err != nil {
		return removed, fmt.Errorf("checkpoint: sweep temp files: %w", err)
	}
	return removed, nil
}

func (s *FileStore) path(step string) string {
	return filepath.Join(s.dir, step+recordExt)
}

func (s *FileStore) IsDone(ctx context.Context, step, fingerprint string) (bool, error) {
	record, ok, err := s.Get(ctx, step)
	if err != nil || !ok {
		return false, err
	}
	return record.Done(fingerprint), nil
}

func (s *FileStore) MarkDone(ctx context.Context, step, fingerprint string) error {
	if s.readOnly {
		return ErrReadOnly
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validStepName(step); err != nil {
		return err
	}
	data, err := toml.Marshal(newRecord(ctx, step, fingerprint))
	if err != nil {
		return fmt.Errorf("checkpoint: encode %s: %w", step, err)
	}
	if err := fileutil.WriteFileAtomic(s.path(step), data, 0o644); err != nil {
		return fmt.Errorf("checkpoint: write %s: %w", step, err)
	}
	return nil
}

func (s *FileStore) InvalidateFrom(ctx context.Context, step string) error {
	if s.readOnly {
		return ErrReadOnly
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	names, err := s.order.from(step)
	if err != nil {
		return err
	}
	return s.remove(names)
}

func (s *FileStore) ClearAll(ctx context.Context) error {
	if s.readOnly {
		return ErrReadOnly
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	names, err := s.storedNames()
	if err != nil {
		return err
	}
	return s.remove(names)
}

// Get decodes the record for step. Missing or undecodable files report
// ok=false so a damaged record never reads as done.
func (s *FileStore) Get(ctx context.Context, step string) (Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, false, err
	}
	if err := validStepName(step); err != nil {
		return Record{}, false, err
	}
	data, err := os.ReadFile(s.path(step))
	if errors.Is(err, fs.ErrNotExist) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("checkpoint: read %s: %w", step, err)
	}
	var record Record
	if err := toml.NewDecoder(bytes.NewReader(data)).Decode(&record); err != nil {
		return Record{}, false, nil
	}
	if record.Status != StatusDone || record.Step != step {
		return Record{}, false, nil
	}
	return record, true, nil
}

func (s *FileStore) List(ctx context.Context) ([]Record, error) {
	names, err := s.storedNames()
	if err != nil {
		return nil, err
	}
	records := make([]Record, 0, len(names))
	for _, name := range names {
		record, ok, err := s.Get(ctx, name)
		if err != nil {
			return nil, err
		}
		if ok {
			records = append(records, record)
		}
	}
	s.order.sort(records)
	return records, nil
}

func (s *FileStore) Close() error { return nil }

func (s *FileStore) storedNames() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("checkpoint: list %s: %w", s.dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, recordExt) {
			continue
		}
		names = append(names, strings.TrimSuffix(name, recordExt))
	}
	return names, nil
}

func (s *FileStore) remove(names []string) error {
	for _, name := range names {
		if err := os.Remove(s.path(name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("checkpoint: remove %s: %w", name, err)
		}
	}
	return fileutil.SyncDir(s.dir)
}
