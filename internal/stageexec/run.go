package stageexec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"peoplepipe/internal/checkpoint"
	"peoplepipe/internal/config"
	"peoplepipe/internal/logging"
	"peoplepipe/internal/services"
	"peoplepipe/internal/stage"
	"peoplepipe/internal/steps"
)

// Options controls execution of a single step.
type Options struct {
	Logger      *slog.Logger
	Store       checkpoint.Store
	Handler     stage.Handler
	Step        steps.Step
	Config      *config.Config
	Fingerprint string
}

// Result reports how a step that did not fail ended.
type Result struct {
	Skipped  bool
	Reason   string
	Duration time.Duration
}

// Run executes a step and records its checkpoint on success. An optional
// step whose tool is unavailable is skipped with a warning. Cancellation
// leaves no checkpoint.
func Run(ctx context.Context, opts Options) (Result, error) {
	if opts.Handler == nil {
		return Result{}, fmt.Errorf("step handler unavailable: %s", opts.Step.Name)
	}
	if opts.Store == nil {
		return Result{}, fmt.Errorf("checkpoint store is required")
	}
	if opts.Config == nil {
		return Result{}, fmt.Errorf("config is required")
	}

	stepCtx := services.WithStep(ctx, opts.Step.Name)
	stepLogger := logging.WithContext(stepCtx, opts.Logger)
	if aware, ok := opts.Handler.(stage.LoggerAware); ok {
		aware.SetLogger(stepLogger)
	}

	stepLogger.Info(
		"step started",
		logging.String(logging.FieldEventType, "step_start"),
		logging.String("title", opts.Step.Title),
		logging.Int("order", opts.Step.Order),
	)

	start := time.Now()
	err := opts.Handler.Execute(stepCtx, opts.Config)
	elapsed := time.Since(start)
	if err == nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
	}

	if err != nil {
		if opts.Step.Optional && errors.Is(err, services.ErrToolUnavailable) {
			reason := err.Error()
			logging.WarnWithContext(stepLogger, "optional step skipped", "step_skipped",
				logging.String("reason", reason),
				logging.String(logging.FieldErrorHint, "install the interpreter to enable this step"),
				logging.String(logging.FieldImpact, "processed images are not checked"),
			)
			return Result{Skipped: true, Reason: reason, Duration: elapsed}, nil
		}
		return Result{Duration: elapsed}, handleFailure(stepLogger, opts.Step, elapsed, err)
	}

	if err := opts.Store.MarkDone(stepCtx, opts.Step.Name, opts.Fingerprint); err != nil {
		return Result{Duration: elapsed}, handleFailure(stepLogger, opts.Step, elapsed,
			fmt.Errorf("persist checkpoint: %w", err))
	}

	stepLogger.Info(
		"step completed",
		logging.String(logging.FieldEventType, "step_complete"),
		logging.Duration("duration", elapsed),
	)
	return Result{Duration: elapsed}, nil
}

func handleFailure(logger *slog.Logger, step steps.Step, elapsed time.Duration, stepErr error) error {
	if errors.Is(stepErr, context.Canceled) || errors.Is(stepErr, context.DeadlineExceeded) {
		logging.WarnWithContext(logger, "step interrupted", "step_interrupted",
			logging.Duration("duration", elapsed),
			logging.String(logging.FieldErrorHint, "re-run to resume from this step"),
			logging.String(logging.FieldImpact, "no checkpoint written for this step"),
		)
		return fmt.Errorf("step %s interrupted: %w", step.Name, stepErr)
	}

	logging.ErrorWithContext(logger, "step failed", "step_failure",
		logging.Duration("duration", elapsed),
		logging.String("error_message", strings.TrimSpace(stepErr.Error())),
		logging.Error(stepErr),
	)
	if errors.Is(stepErr, services.ErrStepFailed) {
		return fmt.Errorf("step %s: %w", step.Name, stepErr)
	}
	// Markers such as ErrSync or ErrRepoNotFound stay visible through the wrap.
	return services.Wrap(services.ErrStepFailed, step.Name, "", "", stepErr)
}
