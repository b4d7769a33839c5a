package pipeline

import (
	"context"
	"time"

	"peoplepipe/internal/checkpoint"
	"peoplepipe/internal/steps"
)

// StepStatus is one row of the --list report.
type StepStatus struct {
	Step        steps.Step
	Done        bool
	Stale       bool
	CompletedAt time.Time
	RunID       string
}

// List reports each step's checkpoint status. It takes no lock and has no
// side effects.
func (r *Runner) List(ctx context.Context) ([]StepStatus, error) {
	records, err := r.store.List(ctx)
	if err != nil {
		return nil, err
	}
	byStep := make(map[string]checkpoint.Record, len(records))
	for _, record := range records {
		byStep[record.Step] = record
	}
	out := make([]StepStatus, 0, len(r.registry.Ordered()))
	for _, step := range r.registry.Ordered() {
		status := StepStatus{Step: step}
		if record, ok := byStep[step.Name]; ok && record.Status == checkpoint.StatusDone {
			fingerprint := checkpoint.Fingerprint(step.FingerprintInputs(r.cfg)...)
			status.Done = record.Done(fingerprint)
			status.Stale = !status.Done
			status.CompletedAt = record.CompletedAt
			status.RunID = record.RunID
		}
		out = append(out, status)
	}
	return out, nil
}
