package collaborator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"peoplepipe/internal/logging"
	"peoplepipe/internal/services"
)

// Runner executes collaborator commands.
type Runner interface {
	Run(ctx context.Context, cmd Command) error
	// Available reports whether the executable can be found.
	Available(name string) bool
}

// interruptGrace is how long a cancelled collaborator gets to exit after
// SIGINT before it is killed.
const interruptGrace = 10 * time.Second

// ExecRunner runs commands as child processes.
type ExecRunner struct {
	logger *slog.Logger
	stdout io.Writer
	stderr io.Writer
}

// NewExecRunner constructs a runner that streams child output to stdout and
// stderr. Nil writers default to the process streams.
func NewExecRunner(logger *slog.Logger, stdout, stderr io.Writer) *ExecRunner {
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	return &ExecRunner{
		logger: logging.NewComponentLogger(logger, "collaborator"),
		stdout: stdout,
		stderr: stderr,
	}
}

// Available reports whether name resolves to an executable.
func (r *ExecRunner) Available(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

// Run executes cmd and waits for it. A missing executable is reported as
// ErrToolUnavailable, a non-zero exit as ErrStepFailed and cancellation as
// the context error.
func (r *ExecRunner) Run(ctx context.Context, cmd Command) error {
	path, err := exec.LookPath(cmd.Name)
	if err != nil {
		return services.Wrap(services.ErrToolUnavailable, "", "lookup",
			fmt.Sprintf("%s not found", cmd.Name), err)
	}

	child := exec.CommandContext(ctx, path, cmd.Args...) //nolint:gosec
	child.Dir = cmd.Dir
	child.Stdout = r.stdout
	child.Stderr = r.stderr
	child.Env = append(os.Environ(), cmd.Env...)
	child.Cancel = func() error { return child.Process.Signal(os.Interrupt) }
	child.WaitDelay = interruptGrace

	logging.WithContext(ctx, r.logger).Debug("collaborator started",
		logging.String(logging.FieldEventType, "collaborator_start"),
		logging.String("command", cmd.Describe()),
	)
	start := time.Now()
	err = child.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s interrupted: %w", cmd.Name, ctxErr)
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return services.Wrap(services.ErrStepFailed, "", "run",
				fmt.Sprintf("%s exited with status %d", cmd.Name, exitErr.ExitCode()), err)
		}
		return services.Wrap(services.ErrStepFailed, "", "run", cmd.Name, err)
	}
	logging.WithContext(ctx, r.logger).Debug("collaborator finished",
		logging.String(logging.FieldEventType, "collaborator_complete"),
		logging.Duration("duration", time.Since(start)),
	)
	return nil
}
