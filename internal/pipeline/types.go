package pipeline

import (
	"time"

	"peoplepipe/internal/steps"
)

// Mode selects how checkpoints influence a run.
type Mode string

const (
	ModeNormal Mode = "normal"
	ModeResume Mode = "resume"
	ModeRedo   Mode = "redo"
	ModeForce  Mode = "force"
)

// Request is one invocation as expressed on the command line.
type Request struct {
	Mode Mode
	// Steps limits the run to these names or aliases; empty selects all.
	Steps []string
	// From is the resume starting step (resume mode).
	From string
	// Redo is the first step to invalidate (redo mode).
	Redo   string
	DryRun bool
}

// State is a step's position in the per-run state machine.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateSkipped   State = "skipped"
	StateFailed    State = "failed"
)

// Outcome is the terminal state of one selected step.
type Outcome struct {
	Step     steps.Step
	State    State
	Reason   string
	Duration time.Duration
	Err      error
}

// Result summarizes a run.
type Result struct {
	RunID    string
	Mode     Mode
	DryRun   bool
	Outcomes []Outcome
	// FailedStep names the first failing step; empty on success.
	FailedStep string
}

// Failed reports whether any step failed.
func (r Result) Failed() bool {
	return r.FailedStep != ""
}

// Count returns the number of outcomes in state.
func (r Result) Count(state State) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.State == state {
			n++
		}
	}
	return n
}
