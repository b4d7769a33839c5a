package steps

import (
	"peoplepipe/internal/config"
)

// Key identifies a step independent of its display name.
type Key int

const (
	EnsureRepo Key = iota + 1
	NameCheck
	Missing
	TMDB
	RemoveBG
	ImageCheck
	Update
	SyncImages
	Readme
	SyncMD
	Push
)

// Interpreter names the runtime an external script step needs.
type Interpreter string

const (
	Python     Interpreter = "python"
	PowerShell Interpreter = "pwsh"
)

// Invocation describes an external collaborator call. Script is relative to
// the scripts directory.
type Invocation struct {
	Interpreter Interpreter
	Script      string
	Args        []string
}

// Step is an immutable descriptor for one unit of pipeline work.
type Step struct {
	Key     Key
	Name    string
	Title   string
	Aliases []string
	// Order is the 1-based position in the fixed sequence.
	Order int
	// AlwaysRuns steps execute on every invocation regardless of checkpoints
	// and never gate later steps.
	AlwaysRuns bool
	// RequiresRepo steps need an existing PEOPLE_IMAGES_DIR.
	RequiresRepo bool
	// Optional steps degrade to skipped when their interpreter is missing.
	Optional bool
	// RequiredKeys must resolve to non-empty values before the step runs.
	RequiredKeys []string
	// Command builds the collaborator invocation; nil for native steps.
	Command func(cfg *config.Config) Invocation
	// Inputs lists the configuration values folded into the checkpoint
	// fingerprint; a change makes an existing checkpoint stale.
	Inputs func(cfg *config.Config) []string
}

// Native reports whether the step is implemented in-process.
func (s Step) Native() bool {
	return s.Command == nil
}

// FingerprintInputs returns the configuration values the step depends on.
func (s Step) FingerprintInputs(cfg *config.Config) []string {
	if s.Inputs == nil || cfg == nil {
		return nil
	}
	return s.Inputs(cfg)
}

// String returns the step name.
func (s Step) String() string {
	return s.Name
}
