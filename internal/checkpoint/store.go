package checkpoint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"time"

	"peoplepipe/internal/config"
	"peoplepipe/internal/services"
)

// StatusDone is the only status a completed checkpoint carries.
const StatusDone = "done"

// Record is the durable completion marker for one step.
type Record struct {
	Step        string    `toml:"step"`
	Status      string    `toml:"status"`
	CompletedAt time.Time `toml:"completed_at"`
	Fingerprint string    `toml:"fingerprint,omitempty"`
	RunID       string    `toml:"run_id,omitempty"`
}

// Done reports whether the record marks a completed step for fingerprint.
func (r Record) Done(fingerprint string) bool {
	return r.Status == StatusDone && r.Fingerprint == fingerprint
}

// Store is the checkpoint persistence contract used by the pipeline runner.
type Store interface {
	// IsDone is true only if a done record exists for step with a matching
	// fingerprint. A mismatched record is stale and reads as not done.
	IsDone(ctx context.Context, step, fingerprint string) (bool, error)
	// MarkDone writes or overwrites the record for step. The run ID is taken
	// from the context when present.
	MarkDone(ctx context.Context, step, fingerprint string) error
	// InvalidateFrom deletes the record for step and every later step.
	InvalidateFrom(ctx context.Context, step string) error
	// ClearAll deletes every record.
	ClearAll(ctx context.Context) error
	Get(ctx context.Context, step string) (Record, bool, error)
	// List returns the stored records in registry order.
	List(ctx context.Context) ([]Record, error)
	Close() error
}

// Backend names accepted by ORCH_CHECKPOINT_BACKEND.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// DatabaseName is the SQLite file created inside the checkpoint directory.
const DatabaseName = "checkpoints.db"

// ErrReadOnly is returned by writes to a store opened with OpenReader.
var ErrReadOnly = errors.New("checkpoint: store is read-only")

// Sweeper is implemented by stores whose interrupted writes can leave temp
// files behind.
type Sweeper interface {
	RemoveStaleTemps() (int, error)
}

// OpenReader opens the configured store for queries. It creates no
// directories, databases or files and leaves temp files of in-flight
// writes alone, so it is safe without the run lock.
func OpenReader(cfg *config.Config, order []string) (Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("checkpoint: config is nil")
	}
	dir := cfg.Orchestrator.CheckpointDir
	switch cfg.Orchestrator.CheckpointBackend {
	case BackendSQLite:
		return openSQLiteReader(filepath.Join(dir, DatabaseName), order)
	case BackendFile, "":
		return openFileReader(dir, order)
	default:
		return nil, services.Wrap(services.ErrConfigInvalid, "", "ORCH_CHECKPOINT_BACKEND",
			fmt.Sprintf("unsupported value %q", cfg.Orchestrator.CheckpointBackend), nil)
	}
}

// Open returns the store selected by the configuration. order lists every
// step name in registry order.
func Open(cfg *config.Config, order []string) (Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("checkpoint: config is nil")
	}
	dir := cfg.Orchestrator.CheckpointDir
	switch cfg.Orchestrator.CheckpointBackend {
	case BackendSQLite:
		return NewSQLiteStore(filepath.Join(dir, DatabaseName), order)
	case BackendFile, "":
		return NewFileStore(dir, order)
	default:
		return nil, services.Wrap(services.ErrConfigInvalid, "", "ORCH_CHECKPOINT_BACKEND",
			fmt.Sprintf("unsupported value %q", cfg.Orchestrator.CheckpointBackend), nil)
	}
}

// Fingerprint summarizes step inputs as a stable hex digest. No parts yields
// an empty fingerprint, which matches records written without one.
func Fingerprint(parts ...string) string {
	if len(parts) == 0 {
		return ""
	}
	hasher := sha256.New()
	for _, part := range parts {
		hasher.Write([]byte(part))
		hasher.Write([]byte{0})
	}
	return hex.EncodeToString(hasher.Sum(nil))
}

// stepOrder maps step names to positions for cascading invalidation.
type stepOrder struct {
	names []string
	index map[string]int
}

func newStepOrder(names []string) stepOrder {
	order := stepOrder{names: slices.Clone(names), index: make(map[string]int, len(names))}
	for idx, name := range names {
		order.index[name] = idx
	}
	return order
}

// from returns step and every later step, or an error when step is not part of the order.
func (o stepOrder) from(step string) ([]string, error) {
	idx, ok := o.index[step]
	if !ok {
		return nil, services.Wrap(services.ErrUnknownStep, step, "invalidate", "not in registry order", nil)
	}
	return slices.Clone(o.names[idx:]), nil
}

// sort orders records by registry position; unknown steps sort last by name.
func (o stepOrder) sort(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		pi, iok := o.index[records[i].Step]
		pj, jok := o.index[records[j].Step]
		switch {
		case iok && jok:
			return pi < pj
		case iok != jok:
			return iok
		default:
			return records[i].Step < records[j].Step
		}
	})
}

func validStepName(step string) error {
	if strings.TrimSpace(step) == "" || strings.ContainsAny(step, `/\`) || strings.HasPrefix(step, ".") {
		return fmt.Errorf("checkpoint: invalid step name %q", step)
	}
	return nil
}

func newRecord(ctx context.Context, step, fingerprint string) Record {
	record := Record{
		Step:        step,
		Status:      StatusDone,
		CompletedAt: time.Now().UTC().Truncate(time.Second),
		Fingerprint: fingerprint,
	}
	if id, ok := services.RunIDFromContext(ctx); ok {
		record.RunID = id
	}
	return record
}
