package gitsync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"peoplepipe/internal/logging"
)

// Fallback commit identity when neither an override nor git config supplies one.
const (
	DefaultAuthorName  = "peoplepipe"
	DefaultAuthorEmail = "peoplepipe@localhost"
)

// PublishOptions controls the commit Publish creates.
type PublishOptions struct {
	Message     string
	AuthorName  string
	AuthorEmail string
}

// PublishResult reports what Publish did. NoOp is set when the tree matched
// HEAD; it is a result, not an error.
type PublishResult struct {
	Target Target
	NoOp   bool
	Commit string
	Pushed bool
	Branch string
}

// Publish stages every change, commits when the tree differs from HEAD and
// pushes the current branch. A rejected push is returned as ErrPublish and
// never retried.
func (s *Synchronizer) Publish(ctx context.Context, target Target, opts PublishOptions) (PublishResult, error) {
	repo, err := openRepo(target)
	if err != nil {
		return PublishResult{}, err
	}
	wt, err := repo.Worktree()
	if err != nil {
		return PublishResult{}, publishFailure(target, "worktree", err)
	}
	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return PublishResult{}, publishFailure(target, "stage", err)
	}
	status, err := wt.Status()
	if err != nil {
		return PublishResult{}, publishFailure(target, "status", err)
	}

	branch, err := s.currentBranch(repo, target)
	if err != nil {
		return PublishResult{}, publishFailure(target, "branch", err)
	}
	result := PublishResult{Target: target, Branch: branch}
	logger := s.logger.With(logging.String("repo", target.Name()), logging.String("branch", branch))

	if status.IsClean() {
		result.NoOp = true
		logger.Info("nothing to commit",
			logging.String(logging.FieldEventType, "publish_noop"),
		)
	} else {
		hash, err := wt.Commit(commitMessage(opts), &git.CommitOptions{Author: s.author(repo, opts)})
		if err != nil {
			return PublishResult{}, publishFailure(target, "commit", err)
		}
		result.Commit = hash.String()
		logger.Info("committed changes",
			logging.String(logging.FieldEventType, "publish_commit"),
			logging.String("commit", shortHash(result.Commit)),
			logging.Int("changed_paths", len(status)),
		)
	}

	ahead, err := aheadOfRemote(repo, target.remote(), branch)
	if err != nil {
		return PublishResult{}, publishFailure(target, "compare", err)
	}
	if !ahead {
		return result, nil
	}
	if err := ctx.Err(); err != nil {
		return result, publishFailure(target, "push", err)
	}
	if _, err := s.cli.run(ctx, target.Root, "push", target.remote(), "HEAD:refs/heads/"+branch); err != nil {
		return result, publishFailure(target, "push", err)
	}
	result.Pushed = true
	logger.Info("pushed",
		logging.String(logging.FieldEventType, "publish_push"),
		logging.String("remote", target.remote()),
	)
	return result, nil
}

func (s *Synchronizer) currentBranch(repo *git.Repository, target Target) (string, error) {
	head, err := repo.Storer.Reference(plumbing.HEAD)
	if err != nil {
		return "", fmt.Errorf("read HEAD: %w", err)
	}
	if head.Type() == plumbing.SymbolicReference && head.Target().IsBranch() {
		return head.Target().Short(), nil
	}
	if branch := strings.TrimSpace(target.Branch); branch != "" {
		return branch, nil
	}
	return "", errors.New("HEAD is detached and PEOPLE_BRANCH is not set")
}

// aheadOfRemote reports whether the local branch has commits the remote
// tracking ref lacks. A missing tracking ref counts as ahead.
func aheadOfRemote(repo *git.Repository, remote, branch string) (bool, error) {
	local, err := repo.Reference(plumbing.NewBranchReferenceName(branch), true)
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	tracking, err := repo.Reference(plumbing.NewRemoteReferenceName(remote, branch), true)
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return local.Hash() != tracking.Hash(), nil
}

func (s *Synchronizer) author(repo *git.Repository, opts PublishOptions) *object.Signature {
	name := strings.TrimSpace(opts.AuthorName)
	email := strings.TrimSpace(opts.AuthorEmail)
	if name == "" || email == "" {
		if cfg, err := repo.ConfigScoped(gitconfig.GlobalScope); err == nil {
			if name == "" {
				name = cfg.User.Name
			}
			if email == "" {
				email = cfg.User.Email
			}
		}
	}
	if name == "" {
		name = DefaultAuthorName
	}
	if email == "" {
		email = DefaultAuthorEmail
	}
	return &object.Signature{Name: name, Email: email, When: time.Now()}
}

func commitMessage(opts PublishOptions) string {
	if msg := strings.TrimSpace(opts.Message); msg != "" {
		return msg
	}
	return "chore: sync posters & docs - " + time.Now().Format("2006-01-02 15:04")
}

// DefaultMessage builds the automatic commit message for style.
func DefaultMessage(style string, now time.Time) string {
	return fmt.Sprintf("chore: sync posters & docs [%s] - %s", style, now.Format("2006-01-02 15:04"))
}
