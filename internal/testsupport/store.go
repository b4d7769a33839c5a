package testsupport

import (
	"testing"

	"peoplepipe/internal/checkpoint"
	"peoplepipe/internal/config"
)

// MustOpenStore opens the checkpoint store cfg selects and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config, order []string) checkpoint.Store {
	t.Helper()

	store, err := checkpoint.Open(cfg, order)
	if err != nil {
		t.Fatalf("checkpoint.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}
