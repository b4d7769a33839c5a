package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"peoplepipe/internal/checkpoint"
	"peoplepipe/internal/config"
	"peoplepipe/internal/logging"
	"peoplepipe/internal/services"
	"peoplepipe/internal/stage"
	"peoplepipe/internal/stageexec"
	"peoplepipe/internal/steps"
)

// Runner executes plans against a checkpoint store.
type Runner struct {
	cfg      *config.Config
	registry *steps.Registry
	store    checkpoint.Store
	handlers map[steps.Key]stage.Handler
	logger   *slog.Logger
	out      io.Writer
	newID    func() string
	lockDir  string
	progress func(Outcome)
}

// Option customizes a Runner.
type Option func(*Runner)

// WithOutput sets where dry-run commands are printed. Defaults to stdout.
func WithOutput(w io.Writer) Option {
	return func(r *Runner) { r.out = w }
}

// WithRunID overrides run ID generation.
func WithRunID(fn func() string) Option {
	return func(r *Runner) { r.newID = fn }
}

// WithProgress registers fn to observe each due step as it starts
// (StateRunning) and as it finishes.
func WithProgress(fn func(Outcome)) Option {
	return func(r *Runner) { r.progress = fn }
}

// WithLockDir overrides the lock directory, which defaults to the checkpoint
// directory.
func WithLockDir(dir string) Option {
	return func(r *Runner) { r.lockDir = dir }
}

// New constructs a Runner. handlers must hold an entry for every step that
// can be due.
func New(cfg *config.Config, registry *steps.Registry, store checkpoint.Store, handlers map[steps.Key]stage.Handler, logger *slog.Logger, opts ...Option) *Runner {
	r := &Runner{
		cfg:      cfg,
		registry: registry,
		store:    store,
		handlers: handlers,
		logger:   logging.NewComponentLogger(logger, "runner"),
		out:      os.Stdout,
		newID:    uuid.NewString,
		lockDir:  cfg.Orchestrator.CheckpointDir,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run plans and executes req. Validation failures return an error before
// any step runs. A failed step is reported both in the Result and as the
// returned error.
func (r *Runner) Run(ctx context.Context, req Request) (Result, error) {
	if !req.DryRun {
		lock, err := acquireLock(r.lockDir)
		if err != nil {
			return Result{}, err
		}
		defer func() {
			if err := lock.Unlock(); err != nil {
				r.logger.Warn("failed to release run lock", logging.Error(err))
			}
		}()
		if sweeper, ok := r.store.(checkpoint.Sweeper); ok {
			removed, err := sweeper.RemoveStaleTemps()
			if err != nil {
				return Result{}, err
			}
			if removed > 0 {
				r.logger.Debug("removed interrupted checkpoint writes", logging.Int("count", removed))
			}
		}
	}

	plan, err := r.Plan(ctx, req)
	if err != nil {
		return Result{}, err
	}

	result := Result{RunID: r.newID(), Mode: plan.Mode, DryRun: req.DryRun}
	ctx = services.WithRunID(ctx, result.RunID)
	ctx = services.WithMode(ctx, string(plan.Mode))
	logger := logging.WithContext(ctx, r.logger)

	if req.DryRun {
		r.dryRun(plan, &result)
		return result, nil
	}

	if err := r.prepareCheckpoints(ctx, plan); err != nil {
		return result, err
	}

	logger.Info("run started",
		logging.String(logging.FieldEventType, "run_start"),
		logging.Int("selected", len(plan.Steps)),
		logging.Int("due", len(plan.Due())),
	)
	start := time.Now()

	for i, ps := range plan.Steps {
		if !ps.Due {
			logger.Debug("step skipped",
				logging.String(logging.FieldStep, ps.Step.Name),
				logging.String("reason", ps.Reason),
			)
			result.Outcomes = append(result.Outcomes, Outcome{Step: ps.Step, State: StateSkipped, Reason: ps.Reason})
			continue
		}
		if err := ctx.Err(); err != nil {
			result.Outcomes = append(result.Outcomes, Outcome{Step: ps.Step, State: StateFailed, Err: err})
			result.FailedStep = ps.Step.Name
			r.appendPending(&result, plan.Steps[i+1:])
			return result, fmt.Errorf("run interrupted before %s: %w", ps.Step.Name, err)
		}

		r.report(Outcome{Step: ps.Step, State: StateRunning})
		stepResult, err := stageexec.Run(ctx, stageexec.Options{
			Logger:      r.logger,
			Store:       r.store,
			Handler:     r.handlers[ps.Step.Key],
			Step:        ps.Step,
			Config:      r.cfg,
			Fingerprint: ps.Fingerprint,
		})
		outcome := Outcome{Step: ps.Step, Duration: stepResult.Duration}
		switch {
		case err != nil:
			outcome.State = StateFailed
			outcome.Err = err
			result.Outcomes = append(result.Outcomes, outcome)
			r.report(outcome)
			result.FailedStep = ps.Step.Name
			r.appendPending(&result, plan.Steps[i+1:])
			logging.ErrorWithContext(logger, "run halted", "run_failed",
				logging.String("failed_step", ps.Step.Name),
				logging.Duration("duration", time.Since(start)),
				logging.Error(err),
			)
			return result, err
		case stepResult.Skipped:
			outcome.State = StateSkipped
			outcome.Reason = stepResult.Reason
		default:
			outcome.State = StateCompleted
		}
		result.Outcomes = append(result.Outcomes, outcome)
		r.report(outcome)
	}

	logger.Info("run completed",
		logging.String(logging.FieldEventType, "run_complete"),
		logging.Int("completed", result.Count(StateCompleted)),
		logging.Int("skipped", result.Count(StateSkipped)),
		logging.Duration("duration", time.Since(start)),
	)
	return result, nil
}

// prepareCheckpoints applies the mode's checkpoint side effects.
func (r *Runner) prepareCheckpoints(ctx context.Context, plan *Plan) error {
	switch plan.Mode {
	case ModeForce:
		if err := r.store.ClearAll(ctx); err != nil {
			return fmt.Errorf("clear checkpoints: %w", err)
		}
		r.logger.Info("checkpoints cleared", logging.String(logging.FieldEventType, "checkpoints_cleared"))
	case ModeRedo:
		if err := r.store.InvalidateFrom(ctx, plan.Start.Name); err != nil {
			return fmt.Errorf("invalidate checkpoints from %s: %w", plan.Start.Name, err)
		}
		r.logger.Info("checkpoints invalidated",
			logging.String(logging.FieldEventType, "checkpoints_invalidated"),
			logging.String("from", plan.Start.Name),
		)
	}
	return nil
}

func (r *Runner) report(o Outcome) {
	if r.progress != nil {
		r.progress(o)
	}
}

// appendPending records the steps a halted run never reached.
func (r *Runner) appendPending(result *Result, rest []PlannedStep) {
	for _, ps := range rest {
		result.Outcomes = append(result.Outcomes, Outcome{Step: ps.Step, State: StatePending})
	}
}

func (r *Runner) dryRun(plan *Plan, result *Result) {
	for _, ps := range plan.Steps {
		if !ps.Due {
			fmt.Fprintf(r.out, "skip  %-12s (%s)\n", ps.Step.Name, ps.Reason)
			result.Outcomes = append(result.Outcomes, Outcome{Step: ps.Step, State: StateSkipped, Reason: ps.Reason})
			continue
		}
		fmt.Fprintf(r.out, "run   %-12s %s\n", ps.Step.Name, r.handlers[ps.Step.Key].Describe(r.cfg))
		result.Outcomes = append(result.Outcomes, Outcome{Step: ps.Step, State: StatePending, Reason: ReasonDryRun})
	}
	switch plan.Mode {
	case ModeForce:
		fmt.Fprintln(r.out, "would clear all checkpoints")
	case ModeRedo:
		fmt.Fprintf(r.out, "would invalidate checkpoints from %s\n", plan.Start.Name)
	}
}

// IsInterrupted reports whether err came from cancellation.
func IsInterrupted(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
