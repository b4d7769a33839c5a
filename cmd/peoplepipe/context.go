package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"peoplepipe/internal/checkpoint"
	"peoplepipe/internal/collaborator"
	"peoplepipe/internal/config"
	"peoplepipe/internal/gitsync"
	"peoplepipe/internal/logging"
	"peoplepipe/internal/notifications"
	"peoplepipe/internal/pipeline"
	"peoplepipe/internal/stage"
	"peoplepipe/internal/steps"
)

// globalFlags are the configuration overrides every command accepts.
type globalFlags struct {
	envFile  string
	repoRoot string
	style    string
	logsDir  string
	branch   string
}

// overrides maps the flags onto their environment keys. Empty flags fall
// through to lower-precedence sources.
func (f *globalFlags) overrides() map[string]string {
	return map[string]string{
		"PEOPLE_IMAGES_DIR": strings.TrimSpace(f.repoRoot),
		"ORCH_STYLE":        strings.TrimSpace(f.style),
		"ORCH_LOGS_DIR":     strings.TrimSpace(f.logsDir),
		"PEOPLE_BRANCH":     strings.TrimSpace(f.branch),
	}
}

type commandContext struct {
	flags *globalFlags

	configOnce sync.Once
	config     *config.Config
	configErr  error

	// newRunner builds the collaborator runner; tests replace it.
	newRunner func(logger *slog.Logger, stdout, stderr io.Writer) collaborator.Runner
}

func newCommandContext(flags *globalFlags) *commandContext {
	return &commandContext{
		flags: flags,
		newRunner: func(logger *slog.Logger, stdout, stderr io.Writer) collaborator.Runner {
			return collaborator.NewExecRunner(logger, stdout, stderr)
		},
	}
}

func (c *commandContext) ensureConfig(ctx context.Context) (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, err := config.Resolve(ctx, config.Options{
			EnvFile:   c.flags.envFile,
			Overrides: c.flags.overrides(),
		})
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// session is everything a pipeline command needs, opened from config.
type session struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *steps.Registry
	store    checkpoint.Store
	runner   *pipeline.Runner
	handlers map[steps.Key]stage.Handler
	notifier notifications.Service
	closeLog func() error
}

func (s *session) Close() error {
	return errors.Join(s.store.Close(), s.closeLog())
}

// sessionMode says whether a session may write checkpoints, directories and
// the run log. Read-only sessions serve --list, --dry-run and check, which
// take no lock.
type sessionMode int

const (
	sessionReadOnly sessionMode = iota
	sessionWritable
)

func (c *commandContext) openSession(cmd *cobra.Command, mode sessionMode) (*session, error) {
	cfg, err := c.ensureConfig(cmd.Context())
	if err != nil {
		return nil, err
	}
	var (
		logger   *slog.Logger
		closeLog = func() error { return nil }
		store    checkpoint.Store
	)
	registry := steps.Default()
	if mode == sessionWritable {
		if err := cfg.EnsureDirectories(); err != nil {
			return nil, err
		}
		if logger, closeLog, err = logging.NewFromConfig(cfg, cmd.ErrOrStderr()); err != nil {
			return nil, err
		}
		store, err = checkpoint.Open(cfg, registry.Names())
	} else {
		if logger, err = logging.NewConsoleFromConfig(cfg, cmd.ErrOrStderr()); err != nil {
			return nil, err
		}
		store, err = checkpoint.OpenReader(cfg, registry.Names())
	}
	if err != nil {
		_ = closeLog()
		return nil, err
	}
	handlers, err := stage.BuildAll(registry, stage.Deps{
		Logger: logger,
		Runner: c.newRunner(logger, cmd.OutOrStdout(), cmd.ErrOrStderr()),
		Repos:  gitsync.New(logger),
	})
	if err != nil {
		_ = store.Close()
		_ = closeLog()
		return nil, err
	}
	runner := pipeline.New(cfg, registry, store, handlers, logger,
		pipeline.WithOutput(cmd.OutOrStdout()),
		pipeline.WithProgress(progressPrinter(cmd.OutOrStdout())),
	)
	return &session{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		store:    store,
		runner:   runner,
		handlers: handlers,
		notifier: notifications.NewService(cfg),
		closeLog: closeLog,
	}, nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
