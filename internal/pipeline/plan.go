package pipeline

import (
	"context"
	"fmt"
	"os"
	"strings"

	"peoplepipe/internal/checkpoint"
	"peoplepipe/internal/services"
	"peoplepipe/internal/steps"
)

// Reasons recorded on skipped outcomes.
const (
	ReasonCheckpoint  = "checkpoint matches"
	ReasonBeforeStart = "before start step"
	ReasonDryRun      = "dry run"
)

// PlannedStep is one selected step and whether it is due to execute.
type PlannedStep struct {
	Step        steps.Step
	Due         bool
	Reason      string
	Fingerprint string
}

// Plan is a validated run. Building it has no side effects.
type Plan struct {
	Mode  Mode
	Steps []PlannedStep
	// Start is the resume step, or the redo step in redo mode.
	Start *steps.Step
}

// Due returns the steps that will execute.
func (p *Plan) Due() []steps.Step {
	var out []steps.Step
	for _, ps := range p.Steps {
		if ps.Due {
			out = append(out, ps.Step)
		}
	}
	return out
}

// Plan validates req against the registry, checkpoints and configuration.
// Unknown names, missing configuration keys and a missing repository for
// any due step are all rejected here, before any step runs.
func (r *Runner) Plan(ctx context.Context, req Request) (*Plan, error) {
	mode := req.Mode
	if mode == "" {
		mode = ModeResume
	}

	selected := r.registry.Ordered()
	if len(req.Steps) > 0 {
		var err error
		if selected, err = r.registry.Select(req.Steps); err != nil {
			return nil, err
		}
	}

	plan := &Plan{Mode: mode}
	switch mode {
	case ModeNormal, ModeForce:
	case ModeResume:
		if strings.TrimSpace(req.From) != "" {
			start, err := r.registry.Resolve(req.From)
			if err != nil {
				return nil, err
			}
			plan.Start = &start
		}
	case ModeRedo:
		start, err := r.registry.Resolve(req.Redo)
		if err != nil {
			return nil, err
		}
		plan.Start = &start
	default:
		return nil, fmt.Errorf("unknown mode %q", mode)
	}

	for _, step := range selected {
		fingerprint := checkpoint.Fingerprint(step.FingerprintInputs(r.cfg)...)
		due, reason, err := r.isDue(ctx, plan, step, fingerprint)
		if err != nil {
			return nil, err
		}
		plan.Steps = append(plan.Steps, PlannedStep{Step: step, Due: due, Reason: reason, Fingerprint: fingerprint})
	}

	if err := r.validate(plan); err != nil {
		return nil, err
	}
	return plan, nil
}

func (r *Runner) isDue(ctx context.Context, plan *Plan, step steps.Step, fingerprint string) (bool, string, error) {
	switch plan.Mode {
	case ModeForce:
		return true, "", nil
	case ModeResume:
		if plan.Start != nil && step.Order < plan.Start.Order {
			return false, ReasonBeforeStart, nil
		}
	case ModeRedo:
		if step.Order >= plan.Start.Order {
			return true, "", nil
		}
	}
	if step.AlwaysRuns {
		return true, "", nil
	}
	done, err := r.store.IsDone(ctx, step.Name, fingerprint)
	if err != nil {
		return false, "", fmt.Errorf("read checkpoint %s: %w", step.Name, err)
	}
	if done {
		return false, ReasonCheckpoint, nil
	}
	return true, "", nil
}

func (r *Runner) validate(plan *Plan) error {
	for _, step := range plan.Due() {
		if err := r.cfg.Require(step.RequiredKeys...); err != nil {
			return fmt.Errorf("step %s: %w", step.Name, err)
		}
		if step.RequiresRepo {
			if err := checkRepoRoot(r.cfg.Repo.Root); err != nil {
				return services.Wrap(services.ErrRepoNotFound, step.Name, "repository", "", err)
			}
		}
		if _, ok := r.handlers[step.Key]; !ok {
			return fmt.Errorf("no handler registered for step %s", step.Name)
		}
	}
	return nil
}

func checkRepoRoot(root string) error {
	if strings.TrimSpace(root) == "" {
		return fmt.Errorf("PEOPLE_IMAGES_DIR is not set")
	}
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("repository root %s: %w", root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("repository root %s is not a directory", root)
	}
	return nil
}
