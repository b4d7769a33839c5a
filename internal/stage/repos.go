package stage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"peoplepipe/internal/config"
	"peoplepipe/internal/gitsync"
	"peoplepipe/internal/logging"
)

// Repos is the repository synchronization contract used by the update and
// push steps. *gitsync.Synchronizer implements it.
type Repos interface {
	Sync(context.Context, gitsync.Target) (gitsync.SyncResult, error)
	Publish(context.Context, gitsync.Target, gitsync.PublishOptions) (gitsync.PublishResult, error)
}

// UpdateHandler mirrors every category repository to its remote tip.
type UpdateHandler struct {
	repos  Repos
	logger *slog.Logger
}

func NewUpdate(repos Repos, logger *slog.Logger) *UpdateHandler {
	return &UpdateHandler{repos: repos, logger: logging.NewComponentLogger(logger, "update")}
}

func (h *UpdateHandler) SetLogger(logger *slog.Logger) {
	h.logger = logging.NewComponentLogger(logger, "update")
}

// Execute syncs targets in order and stops at the first failure; targets
// already synced stay synced.
func (h *UpdateHandler) Execute(ctx context.Context, cfg *config.Config) error {
	targets, err := gitsync.Targets(cfg)
	if err != nil {
		return err
	}
	removed := 0
	for _, target := range targets {
		if err := ctx.Err(); err != nil {
			return err
		}
		result, err := h.repos.Sync(ctx, target)
		if err != nil {
			return err
		}
		removed += result.Removed
	}
	h.logger.Info("repositories synced",
		logging.String(logging.FieldEventType, "repos_synced"),
		logging.Int("repositories", len(targets)),
		logging.Int("removed_paths", removed),
	)
	return nil
}

func (h *UpdateHandler) Describe(cfg *config.Config) string {
	return fmt.Sprintf("fetch, hard-reset and clean %s", describeTargets(cfg))
}

func (h *UpdateHandler) HealthCheck(_ context.Context, cfg *config.Config) Health {
	if _, err := gitsync.Targets(cfg); err != nil {
		return Unhealthy("update", err.Error())
	}
	return Healthy("update")
}

// PublishHandler commits and pushes every category repository.
type PublishHandler struct {
	repos  Repos
	logger *slog.Logger
	now    func() time.Time
}

func NewPublish(repos Repos, logger *slog.Logger) *PublishHandler {
	return &PublishHandler{repos: repos, logger: logging.NewComponentLogger(logger, "push"), now: time.Now}
}

func (h *PublishHandler) SetLogger(logger *slog.Logger) {
	h.logger = logging.NewComponentLogger(logger, "push")
}

func (h *PublishHandler) options(cfg *config.Config) gitsync.PublishOptions {
	message := strings.TrimSpace(cfg.Orchestrator.CommitMessage)
	if message == "" {
		message = gitsync.DefaultMessage(cfg.Orchestrator.Style, h.now())
	}
	return gitsync.PublishOptions{
		Message:     message,
		AuthorName:  cfg.Orchestrator.GitUserName,
		AuthorEmail: cfg.Orchestrator.GitUserEmail,
	}
}

// Execute publishes targets in order. A target with nothing to commit is a
// no-op, not a failure.
func (h *PublishHandler) Execute(ctx context.Context, cfg *config.Config) error {
	targets, err := gitsync.Targets(cfg)
	if err != nil {
		return err
	}
	opts := h.options(cfg)
	var committed, pushed int
	for _, target := range targets {
		if err := ctx.Err(); err != nil {
			return err
		}
		result, err := h.repos.Publish(ctx, target, opts)
		if err != nil {
			return err
		}
		if !result.NoOp {
			committed++
		}
		if result.Pushed {
			pushed++
		}
	}
	if committed == 0 && pushed == 0 {
		h.logger.Info("nothing to publish",
			logging.String(logging.FieldEventType, "publish_noop"),
			logging.Int("repositories", len(targets)),
		)
		return nil
	}
	h.logger.Info("changes published",
		logging.String(logging.FieldEventType, "published"),
		logging.Int("repositories", len(targets)),
		logging.Int("committed", committed),
		logging.Int("pushed", pushed),
	)
	return nil
}

func (h *PublishHandler) Describe(cfg *config.Config) string {
	return fmt.Sprintf("commit %q and push %s", h.options(cfg).Message, describeTargets(cfg))
}

func (h *PublishHandler) HealthCheck(_ context.Context, cfg *config.Config) Health {
	if _, err := gitsync.Targets(cfg); err != nil {
		return Unhealthy("push", err.Error())
	}
	return Healthy("push")
}

func describeTargets(cfg *config.Config) string {
	targets, err := gitsync.Targets(cfg)
	if err != nil || len(targets) == 0 {
		return "repositories under " + cfg.Repo.Root
	}
	names := make([]string, 0, len(targets))
	for _, t := range targets {
		names = append(names, t.Name())
	}
	return fmt.Sprintf("%d repositories under %s (%s)", len(targets), cfg.Repo.Root, strings.Join(names, ", "))
}
