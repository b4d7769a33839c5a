package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrConfigMissing   = errors.New("configuration missing")
	ErrConfigInvalid   = errors.New("configuration invalid")
	ErrRepoNotFound    = errors.New("repository not found")
	ErrRepoInvalid     = errors.New("repository invalid")
	ErrUnknownStep     = errors.New("unknown step")
	ErrStepFailed      = errors.New("step execution failed")
	ErrToolUnavailable = errors.New("tool unavailable")
	ErrSync            = errors.New("repository sync failed")
	ErrPublish         = errors.New("repository publish failed")
	ErrLocked          = errors.New("pipeline locked")
	ErrUsage           = errors.New("invalid usage")
)

// Exit codes reported by the CLI.
const (
	ExitOK         = 0
	ExitFailed     = 1
	ExitValidation = 2
	ExitBootstrap  = 3
)

// Wrap builds an error message that includes step context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, step, operation, message string, err error) error {
	detail := buildDetail(step, operation, message)
	if marker == nil {
		marker = ErrStepFailed
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// ExitCode maps a run error to the process exit status. Anything raised
// while a step executes carries ErrStepFailed and exits 1, whatever other
// marker it holds.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrStepFailed):
		return ExitFailed
	case errors.Is(err, ErrConfigMissing):
		return ExitBootstrap
	case errors.Is(err, ErrConfigInvalid),
		errors.Is(err, ErrUnknownStep),
		errors.Is(err, ErrRepoNotFound),
		errors.Is(err, ErrRepoInvalid),
		errors.Is(err, ErrLocked),
		errors.Is(err, ErrUsage):
		return ExitValidation
	default:
		return ExitFailed
	}
}

func buildDetail(step, operation, message string) string {
	parts := make([]string, 0, 3)
	if step = strings.TrimSpace(step); step != "" {
		parts = append(parts, step)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "pipeline failure"
	}
	return strings.Join(parts, ": ")
}
