package gitsync

import (
	"fmt"

	"peoplepipe/internal/services"
)

// State names where a repository ended up after a failed sync.
type State string

const (
	// StatePreSync means the working tree and HEAD are as they were before the sync.
	StatePreSync State = "pre-sync"
	// StateSynced means the tree matches the remote tip.
	StateSynced State = "synced"
	// StateIndeterminate is reported only when a rollback itself failed; the
	// operator must inspect the repository.
	StateIndeterminate State = "indeterminate"
)

// SyncError reports a failed synchronization of one target.
type SyncError struct {
	Target Target
	Phase  string
	State  State
	Err    error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync %s: %s failed (repository left %s): %v", e.Target.Root, e.Phase, e.State, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }

func syncFailure(target Target, phase string, state State, err error) error {
	return &SyncError{
		Target: target,
		Phase:  phase,
		State:  state,
		Err:    services.Wrap(services.ErrSync, "", phase, "", err),
	}
}

func repoNotFound(target Target, err error) error {
	return services.Wrap(services.ErrRepoNotFound, "", "open", target.Root, err)
}

func repoInvalid(target Target, message string, err error) error {
	return services.Wrap(services.ErrRepoInvalid, "", "open", target.Root+": "+message, err)
}

func publishFailure(target Target, phase string, err error) error {
	return services.Wrap(services.ErrPublish, "", phase, target.Root, err)
}
