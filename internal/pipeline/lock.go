package pipeline

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"peoplepipe/internal/services"
)

// LockName is the advisory lock file inside the checkpoint directory.
const LockName = ".lock"

// acquireLock takes the run lock without waiting. A lock held by another
// process is ErrLocked.
func acquireLock(dir string) (*flock.Flock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create checkpoint directory: %w", err)
	}
	path := filepath.Join(dir, LockName)
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, services.Wrap(services.ErrLocked, "", "lock",
			"another peoplepipe run holds "+path, nil)
	}
	return lock, nil
}
