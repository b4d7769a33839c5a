package stage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"peoplepipe/internal/config"
	"peoplepipe/internal/logging"
	"peoplepipe/internal/preflight"
)

// EnsureRepoHandler verifies the people-images repository layout.
type EnsureRepoHandler struct {
	logger *slog.Logger
}

func NewEnsureRepo(logger *slog.Logger) *EnsureRepoHandler {
	return &EnsureRepoHandler{logger: logging.NewComponentLogger(logger, "ensure_repo")}
}

func (h *EnsureRepoHandler) SetLogger(logger *slog.Logger) {
	h.logger = logging.NewComponentLogger(logger, "ensure_repo")
}

func (h *EnsureRepoHandler) Execute(_ context.Context, cfg *config.Config) error {
	structure, err := preflight.CheckRepoStructure(cfg.Repo.Root, cfg.Repo.Categories)
	if err != nil {
		for _, missing := range structure.Missing {
			logging.WarnWithContext(h.logger, "category folder missing", "repo_folder_missing",
				logging.String("folder", missing),
				logging.String(logging.FieldErrorHint, "clone the category repository into "+cfg.Repo.Root),
				logging.String(logging.FieldImpact, "run stops before any images are processed"),
			)
		}
		return err
	}
	h.logger.Info("repository structure verified",
		logging.String(logging.FieldEventType, "repo_verified"),
		logging.String("root", structure.Root),
		logging.Int("folders", len(cfg.Repo.Categories)),
	)
	return nil
}

func (h *EnsureRepoHandler) Describe(cfg *config.Config) string {
	return fmt.Sprintf("verify %s contains %s", cfg.Repo.Root, strings.Join(cfg.Repo.Categories, ", "))
}

func (h *EnsureRepoHandler) HealthCheck(_ context.Context, cfg *config.Config) Health {
	if !cfg.HasRepoRoot() {
		return Unhealthy("ensure_repo", "PEOPLE_IMAGES_DIR not set")
	}
	return Healthy("ensure_repo")
}
