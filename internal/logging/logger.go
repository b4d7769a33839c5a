package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"peoplepipe/internal/config"
)

// RunLogName is the file name of the orchestrator's own log inside the run log directory.
const RunLogName = "peoplepipe.log"

// Options describes logger construction parameters.
type Options struct {
	Level  string
	Format string
	// Console receives human-oriented output. Defaults to stderr so stdout
	// stays reserved for command output such as --list tables.
	Console io.Writer
	// File, when set, receives a JSON copy of every record.
	File        io.Writer
	Development bool
}

// New constructs a slog logger using the provided options.
func New(opts Options) (*slog.Logger, error) {
	level := parseLevel(opts.Level)
	levelVar := new(slog.LevelVar)
	levelVar.Set(level)

	console := opts.Console
	if console == nil {
		console = os.Stderr
	}
	addSource := opts.Development || level <= slog.LevelDebug

	format := strings.ToLower(strings.TrimSpace(opts.Format))
	if format == "" {
		format = "console"
	}

	var primary slog.Handler
	switch format {
	case "json":
		primary = newJSONHandler(console, levelVar, addSource)
	case "console":
		primary = newPrettyHandler(console, levelVar, addSource)
	default:
		return nil, fmt.Errorf("log format: unsupported value %q", opts.Format)
	}

	var fileHandler slog.Handler
	if opts.File != nil {
		fileHandler = newJSONHandler(opts.File, levelVar, addSource)
	}

	return slog.New(newFanoutHandler(primary, fileHandler)), nil
}

// NewFromConfig creates a logger from the ORCH_LOG_* settings, teeing records
// into the run log directory when one is configured. A nil console writes
// to stderr. The returned close func releases the run log file.
func NewFromConfig(cfg *config.Config, console io.Writer) (*slog.Logger, func() error, error) {
	noop := func() error { return nil }
	if cfg == nil {
		logger, err := New(Options{Level: "info", Format: "console", Console: console})
		return logger, noop, err
	}
	opts := consoleOptions(cfg, console)
	dir := strings.TrimSpace(cfg.Orchestrator.RunLogDir)
	if dir == "" {
		logger, err := New(opts)
		return logger, noop, err
	}
	file, err := openLogFile(filepath.Join(dir, RunLogName))
	if err != nil {
		return nil, nil, err
	}
	opts.File = file
	logger, err := New(opts)
	if err != nil {
		_ = file.Close()
		return nil, nil, err
	}
	return logger, file.Close, nil
}

// NewConsoleFromConfig creates a logger from the ORCH_LOG_* settings that
// writes to console only and never touches the run log.
func NewConsoleFromConfig(cfg *config.Config, console io.Writer) (*slog.Logger, error) {
	if cfg == nil {
		return New(Options{Level: "info", Format: "console", Console: console})
	}
	return New(consoleOptions(cfg, console))
}

func consoleOptions(cfg *config.Config, console io.Writer) Options {
	return Options{
		Level:   cfg.Orchestrator.LogLevel,
		Format:  cfg.Orchestrator.LogFormat,
		Console: console,
	}
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func openLogFile(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure log directory: %w", err)
		}
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o664)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	return file, nil
}
