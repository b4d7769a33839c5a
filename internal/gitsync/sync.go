package gitsync

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/format/index"

	"peoplepipe/internal/logging"
)

// Synchronizer mirrors and publishes target repositories.
type Synchronizer struct {
	logger *slog.Logger
	cli    gitCLI

	// Replaced in tests to inject failures.
	rename     func(oldpath, newpath string) error
	afterReset func() error
}

// Option customizes a Synchronizer.
type Option func(*Synchronizer)

// WithGitBinary overrides the git executable used for network operations.
func WithGitBinary(path string) Option {
	return func(s *Synchronizer) { s.cli.binary = path }
}

// New constructs a Synchronizer.
func New(logger *slog.Logger, opts ...Option) *Synchronizer {
	s := &Synchronizer{logger: logging.NewComponentLogger(logger, "gitsync")}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SyncResult describes a completed sync.
type SyncResult struct {
	Target  Target
	Branch  string
	Commit  string
	Removed int
}

// Sync makes target's working tree byte-identical to its remote branch tip,
// including the absence of untracked and ignored files.
//
// Phases: open, fetch and resolve only read local state or update remote
// refs, so failures there leave the repository pre-sync. Reset and clean run
// as one unit; a failure inside it rolls the tree back to the pre-sync HEAD
// with local content restored.
func (s *Synchronizer) Sync(ctx context.Context, target Target) (SyncResult, error) {
	repo, err := openRepo(target)
	if err != nil {
		return SyncResult{}, err
	}
	remote := target.remote()
	if _, err := repo.Remote(remote); err != nil {
		if errors.Is(err, git.ErrRemoteNotFound) {
			return SyncResult{}, repoInvalid(target, fmt.Sprintf("remote %q not configured", remote), err)
		}
		return SyncResult{}, repoInvalid(target, "read remote", err)
	}

	logger := s.logger.With(logging.String("repo", target.Name()), logging.String("remote", remote))
	logger.Debug("fetching", logging.String(logging.FieldEventType, "repo_fetch"))
	if _, err := s.cli.run(ctx, target.Root, "fetch", "--prune", remote); err != nil {
		return SyncResult{}, syncFailure(target, "fetch", StatePreSync, err)
	}

	branch, err := s.resolveBranch(ctx, repo, target)
	if err != nil {
		return SyncResult{}, syncFailure(target, "resolve branch", StatePreSync, err)
	}
	remoteRef, err := repo.Reference(plumbing.NewRemoteReferenceName(remote, branch), true)
	if err != nil {
		return SyncResult{}, syncFailure(target, "resolve branch", StatePreSync,
			fmt.Errorf("branch %q not found on %s: %w", branch, remote, err))
	}
	commit, err := repo.CommitObject(remoteRef.Hash())
	if err != nil {
		return SyncResult{}, syncFailure(target, "resolve branch", StatePreSync, err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return SyncResult{}, syncFailure(target, "resolve branch", StatePreSync, err)
	}
	tracked, err := newTrackedSet(tree)
	if err != nil {
		return SyncResult{}, syncFailure(target, "resolve branch", StatePreSync, err)
	}

	if err := ctx.Err(); err != nil {
		return SyncResult{}, syncFailure(target, "reset", StatePreSync, err)
	}
	removed, err := s.resetAndClean(repo, target, branch, remoteRef.Hash(), tracked)
	if err != nil {
		return SyncResult{}, err
	}

	result := SyncResult{Target: target, Branch: branch, Commit: remoteRef.Hash().String(), Removed: removed}
	logger.Info("repository synced",
		logging.String(logging.FieldEventType, "repo_synced"),
		logging.String("branch", branch),
		logging.String("commit", shortHash(result.Commit)),
		logging.Int("removed_paths", removed),
	)
	return result, nil
}

// resolveBranch returns the explicit branch, else the remote's advertised
// default, else the locally recorded refs/remotes/<remote>/HEAD.
func (s *Synchronizer) resolveBranch(ctx context.Context, repo *git.Repository, target Target) (string, error) {
	if branch := strings.TrimSpace(target.Branch); branch != "" {
		return branch, nil
	}
	remote := target.remote()
	out, err := s.cli.run(ctx, target.Root, "ls-remote", "--symref", remote, "HEAD")
	if err == nil {
		if branch := parseSymref(out); branch != "" {
			return branch, nil
		}
	} else {
		s.logger.Debug("ls-remote failed; trying local remote HEAD", logging.Error(err))
	}
	ref, refErr := repo.Reference(plumbing.NewRemoteHEADReferenceName(remote), false)
	if refErr == nil && ref.Type() == plumbing.SymbolicReference {
		prefix := "refs/remotes/" + remote + "/"
		if branch, ok := strings.CutPrefix(ref.Target().String(), prefix); ok && branch != "" {
			return branch, nil
		}
	}
	return "", fmt.Errorf("cannot determine default branch of %s; set PEOPLE_BRANCH", remote)
}

// resetAndClean moves the local branch to hash, hard-resets the worktree and
// removes everything the target tree does not contain.
//
// Before any ref moves, every path a hard reset could lose (untracked,
// ignored, modified or type-changed) is moved into a quarantine on the same
// filesystem. Success discards the quarantine; failure resets back to the
// old HEAD, moves the quarantined paths back and restores the saved index.
func (s *Synchronizer) resetAndClean(repo *git.Repository, target Target, branch string, hash plumbing.Hash, tracked trackedSet) (int, error) {
	wt, err := repo.Worktree()
	if err != nil {
		return 0, syncFailure(target, "reset", StatePreSync, err)
	}
	snap, err := takeSnapshot(repo, branch)
	if err != nil {
		return 0, syncFailure(target, "reset", StatePreSync, err)
	}
	before, err := commitSet(repo, snap.headHash)
	if err != nil {
		return 0, syncFailure(target, "reset", StatePreSync, err)
	}
	stale, err := untrackedPaths(wt.Filesystem, before)
	if err != nil {
		return 0, syncFailure(target, "clean", StatePreSync, err)
	}
	extra, err := untrackedPaths(wt.Filesystem, tracked)
	if err != nil {
		return 0, syncFailure(target, "clean", StatePreSync, err)
	}
	dirty, missing, err := localChanges(wt, target.Root)
	if err != nil {
		return 0, syncFailure(target, "clean", StatePreSync, err)
	}

	q, err := newQuarantine(target.Root, s.rename)
	if err != nil {
		return 0, syncFailure(target, "clean", StatePreSync, err)
	}
	if err := q.stash(outermost(stale, extra, dirty)); err != nil {
		if rbErr := q.unstash(); rbErr != nil {
			return 0, s.rollbackFailed(target, "clean", q, err, rbErr)
		}
		_ = q.discard()
		return 0, syncFailure(target, "clean", StatePreSync, err)
	}

	branchRef := plumbing.NewBranchReferenceName(branch)
	apply := func() error {
		if err := repo.Storer.SetReference(plumbing.NewHashReference(branchRef, hash)); err != nil {
			return err
		}
		if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, branchRef)); err != nil {
			return err
		}
		if err := wt.Reset(&git.ResetOptions{Commit: hash, Mode: git.HardReset}); err != nil {
			return err
		}
		// Everything local is quarantined, so what remains untracked was
		// left behind by the reset itself.
		leftover, err := untrackedPaths(wt.Filesystem, tracked)
		if err != nil {
			return err
		}
		if err := removePaths(wt.Filesystem, leftover); err != nil {
			return err
		}
		if s.afterReset != nil {
			return s.afterReset()
		}
		return nil
	}
	if err := apply(); err != nil {
		if rbErr := snap.restore(repo, wt, before, missing); rbErr != nil {
			// Local content is still quarantined; finishing the sync is the
			// only other clean state.
			if fwdErr := apply(); fwdErr == nil {
				s.logger.Error("rollback failed; repository synced instead",
					logging.String(logging.FieldEventType, "repo_rollback_failed"),
					logging.String("repo", target.Name()),
					logging.String("quarantine", q.dir),
					logging.Error(rbErr),
					logging.String(logging.FieldErrorHint, "local changes were kept in the quarantine directory"),
				)
				return 0, syncFailure(target, "reset", StateSynced,
					fmt.Errorf("%w; local changes kept in %s", errors.Join(err, rbErr), q.dir))
			}
			return 0, s.rollbackFailed(target, "reset", q, err, rbErr)
		}
		if rbErr := q.unstash(); rbErr != nil {
			return 0, s.rollbackFailed(target, "reset", q, err, rbErr)
		}
		if rbErr := repo.Storer.SetIndex(snap.index); rbErr != nil {
			return 0, s.rollbackFailed(target, "reset", q, err, rbErr)
		}
		_ = q.discard()
		return 0, syncFailure(target, "reset", StatePreSync, err)
	}
	if err := q.discard(); err != nil {
		s.logger.Warn("quarantine cleanup failed",
			logging.String(logging.FieldEventType, "repo_quarantine_cleanup_failed"),
			logging.String("quarantine", q.dir),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove the directory by hand"),
		)
	}
	return len(extra), nil
}

func (s *Synchronizer) rollbackFailed(target Target, phase string, q *quarantine, err, rbErr error) error {
	s.logger.Error("rollback failed",
		logging.String(logging.FieldEventType, "repo_rollback_failed"),
		logging.String("repo", target.Name()),
		logging.String("quarantine", q.dir),
		logging.Error(rbErr),
		logging.String(logging.FieldErrorHint, "inspect the repository with git status; local changes are in the quarantine directory"),
	)
	return syncFailure(target, phase, StateIndeterminate,
		fmt.Errorf("%w; local changes kept in %s", errors.Join(err, rbErr), q.dir))
}

// snapshot records the refs and index a sync rewrites.
type snapshot struct {
	head       *plumbing.Reference
	headHash   plumbing.Hash
	branch     plumbing.ReferenceName
	branchPrev *plumbing.Reference
	index      *index.Index
}

func takeSnapshot(repo *git.Repository, branch string) (snapshot, error) {
	snap := snapshot{branch: plumbing.NewBranchReferenceName(branch)}
	head, err := repo.Storer.Reference(plumbing.HEAD)
	if err != nil {
		return snap, fmt.Errorf("read HEAD: %w", err)
	}
	snap.head = head
	if resolved, err := repo.Head(); err == nil {
		snap.headHash = resolved.Hash()
	} else if !errors.Is(err, plumbing.ErrReferenceNotFound) {
		return snap, fmt.Errorf("resolve HEAD: %w", err)
	}
	prev, err := repo.Storer.Reference(snap.branch)
	switch {
	case err == nil:
		snap.branchPrev = prev
	case errors.Is(err, plumbing.ErrReferenceNotFound):
	default:
		return snap, fmt.Errorf("read %s: %w", snap.branch, err)
	}
	idx, err := repo.Storer.Index()
	if err != nil {
		return snap, fmt.Errorf("read index: %w", err)
	}
	snap.index = idx
	return snap, nil
}

// restore puts refs and tracked content back to the snapshot. It leaves the
// tree as a clean checkout of the old HEAD minus the paths that were missing
// before the sync; quarantined content is restored by the caller.
func (s snapshot) restore(repo *git.Repository, wt *git.Worktree, before trackedSet, missing []string) error {
	if s.branchPrev != nil {
		if err := repo.Storer.SetReference(s.branchPrev); err != nil {
			return err
		}
	} else if err := repo.Storer.RemoveReference(s.branch); err != nil && !errors.Is(err, plumbing.ErrReferenceNotFound) {
		return err
	}
	if err := repo.Storer.SetReference(s.head); err != nil {
		return err
	}
	if !s.headHash.IsZero() {
		if err := wt.Reset(&git.ResetOptions{Commit: s.headHash, Mode: git.HardReset}); err != nil {
			return err
		}
	}
	leftover, err := untrackedPaths(wt.Filesystem, before)
	if err != nil {
		return err
	}
	if err := removePaths(wt.Filesystem, leftover); err != nil {
		return err
	}
	return removePaths(wt.Filesystem, missing)
}

// commitSet returns the tracked set of the commit at hash; the zero hash
// (unborn HEAD) tracks nothing.
func commitSet(repo *git.Repository, hash plumbing.Hash) (trackedSet, error) {
	if hash.IsZero() {
		return trackedSet{files: map[string]struct{}{}, dirs: map[string]struct{}{}}, nil
	}
	commit, err := repo.CommitObject(hash)
	if err != nil {
		return trackedSet{}, fmt.Errorf("read HEAD commit: %w", err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return trackedSet{}, fmt.Errorf("read HEAD tree: %w", err)
	}
	return newTrackedSet(tree)
}

func openRepo(target Target) (*git.Repository, error) {
	root := strings.TrimSpace(target.Root)
	if root == "" {
		return nil, repoNotFound(target, errors.New("repository path is empty"))
	}
	if _, err := os.Stat(root); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, repoNotFound(target, err)
		}
		return nil, repoInvalid(target, "stat", err)
	}
	repo, err := git.PlainOpen(root)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, repoNotFound(target, err)
	}
	if err != nil {
		return nil, repoInvalid(target, "open repository", err)
	}
	return repo, nil
}

func shortHash(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}
