package gitsync

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"peoplepipe/internal/config"
	"peoplepipe/internal/services"
)

// DefaultRemote is used when a target names no remote.
const DefaultRemote = "origin"

// Target is one version-controlled asset repository.
type Target struct {
	Root string
	// Branch is explicit when set; empty means the remote's default branch.
	Branch string
	Remote string
}

func (t Target) remote() string {
	if strings.TrimSpace(t.Remote) == "" {
		return DefaultRemote
	}
	return t.Remote
}

// Name returns the folder name, used as the category label in logs.
func (t Target) Name() string {
	return filepath.Base(t.Root)
}

// Targets lists the repositories under the configured root. Each category
// folder holding its own repository is a target. When none does and the root
// is itself a repository, the root is the single target.
func Targets(cfg *config.Config) ([]Target, error) {
	root := strings.TrimSpace(cfg.Repo.Root)
	if root == "" {
		return nil, services.Wrap(services.ErrConfigInvalid, "", "PEOPLE_IMAGES_DIR", "is required", nil)
	}
	info, err := os.Stat(root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, services.Wrap(services.ErrRepoNotFound, "", "targets", root, nil)
	}
	if err != nil {
		return nil, services.Wrap(services.ErrRepoInvalid, "", "targets", root, err)
	}
	if !info.IsDir() {
		return nil, services.Wrap(services.ErrRepoInvalid, "", "targets", root+" is not a directory", nil)
	}

	var targets []Target
	for _, category := range cfg.Repo.Categories {
		dir := filepath.Join(root, category)
		if hasGitDir(dir) {
			targets = append(targets, Target{Root: dir, Branch: cfg.Repo.Branch, Remote: cfg.Repo.Remote})
		}
	}
	if len(targets) > 0 {
		return targets, nil
	}
	if hasGitDir(root) {
		return []Target{{Root: root, Branch: cfg.Repo.Branch, Remote: cfg.Repo.Remote}}, nil
	}
	return nil, services.Wrap(services.ErrRepoNotFound, "", "targets",
		"no git repository at "+root+" or in its category folders", nil)
}

func hasGitDir(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ".git"))
	return err == nil
}
