package gitsync_test

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peoplepipe/internal/config"
	"peoplepipe/internal/fileutil"
	"peoplepipe/internal/gitsync"
	"peoplepipe/internal/logging"
	"peoplepipe/internal/services"
)

type fixture struct {
	base   string
	remote string
	seed   string
	local  string
}

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
}

func runGit(t *testing.T, dir string, args ...string) string {
	t.Helper()
	full := append([]string{
		"-c", "user.name=Test",
		"-c", "user.email=test@example.com",
		"-c", "commit.gpgsign=false",
	}, args...)
	cmd := exec.Command("git", full...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %s: %s", strings.Join(args, " "), out)
	return strings.TrimSpace(string(out))
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// newFixture builds a bare remote on main, a seed clone used to move the
// remote, and the local clone under test.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	requireGit(t)
	t.Setenv("HOME", t.TempDir())
	t.Setenv("GIT_CONFIG_NOSYSTEM", "1")

	base := t.TempDir()
	f := &fixture{
		base:   base,
		remote: filepath.Join(base, "remote.git"),
		seed:   filepath.Join(base, "seed"),
		local:  filepath.Join(base, "local"),
	}
	runGit(t, base, "init", "--bare", f.remote)
	runGit(t, f.remote, "symbolic-ref", "HEAD", "refs/heads/main")

	runGit(t, base, "init", f.seed)
	runGit(t, f.seed, "symbolic-ref", "HEAD", "refs/heads/main")
	writeFile(t, f.seed, ".gitignore", "*.log\n")
	writeFile(t, f.seed, "README.md", "# people\n")
	writeFile(t, f.seed, "a/actor.png", "png-bytes")
	runGit(t, f.seed, "add", "-A")
	runGit(t, f.seed, "commit", "-m", "initial")
	runGit(t, f.seed, "remote", "add", "origin", f.remote)
	runGit(t, f.seed, "push", "origin", "main")

	runGit(t, base, "clone", f.remote, f.local)
	return f
}

// advanceRemote pushes a new commit from the seed clone.
func (f *fixture) advanceRemote(t *testing.T, rel, content string) {
	t.Helper()
	writeFile(t, f.seed, rel, content)
	runGit(t, f.seed, "add", "-A")
	runGit(t, f.seed, "commit", "-m", "remote change "+rel)
	runGit(t, f.seed, "push", "origin", "HEAD")
}

// freshClone returns a new checkout of branch for comparison.
func (f *fixture) freshClone(t *testing.T, branch string) string {
	t.Helper()
	dir := filepath.Join(f.base, "fresh-"+branch)
	runGit(t, f.base, "clone", "--branch", branch, f.remote, dir)
	return dir
}

// contentSet maps every non-.git path to its content hash.
func contentSet(t *testing.T, root string) map[string]string {
	t.Helper()
	out := map[string]string{}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(root, path)
		if d.IsDir() {
			if rel == ".git" {
				return filepath.SkipDir
			}
			if rel != "." {
				out[filepath.ToSlash(rel)+"/"] = "dir"
			}
			return nil
		}
		hash, err := fileutil.HashFile(path)
		if err != nil {
			return err
		}
		out[filepath.ToSlash(rel)] = hash
		return nil
	})
	require.NoError(t, err)
	return out
}

func newSynchronizer() *gitsync.Synchronizer {
	return gitsync.New(logging.NewNop())
}

func TestSyncRemoteAlwaysWins(t *testing.T) {
	perturbations := map[string]func(t *testing.T, dir string){
		"added file": func(t *testing.T, dir string) {
			writeFile(t, dir, "new.png", "local only")
		},
		"modified tracked file": func(t *testing.T, dir string) {
			writeFile(t, dir, "README.md", "# people, edited locally with more bytes\n")
		},
		"deleted tracked file": func(t *testing.T, dir string) {
			require.NoError(t, os.Remove(filepath.Join(dir, "a", "actor.png")))
		},
		"ignored and untracked directories": func(t *testing.T, dir string) {
			writeFile(t, dir, "debug.log", "ignored")
			writeFile(t, dir, "junk/deep/x.txt", "untracked")
			writeFile(t, dir, "a/extra.log", "ignored inside tracked dir")
		},
		"tracked file replaced by directory": func(t *testing.T, dir string) {
			require.NoError(t, os.Remove(filepath.Join(dir, "README.md")))
			writeFile(t, dir, "README.md/inner.txt", "local dir")
		},
		"tracked directory replaced by file": func(t *testing.T, dir string) {
			require.NoError(t, os.RemoveAll(filepath.Join(dir, "a")))
			writeFile(t, dir, "a", "local file")
		},
		"staged new file": func(t *testing.T, dir string) {
			writeFile(t, dir, "staged.txt", "staged")
			runGit(t, dir, "add", "staged.txt")
		},
		"local commit": func(t *testing.T, dir string) {
			writeFile(t, dir, "committed.txt", "local commit")
			runGit(t, dir, "add", "-A")
			runGit(t, dir, "commit", "-m", "local")
		},
	}

	for name, perturb := range perturbations {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			f.advanceRemote(t, "b/remote.png", "remote bytes")
			perturb(t, f.local)

			result, err := newSynchronizer().Sync(context.Background(), gitsync.Target{Root: f.local})
			require.NoError(t, err)
			assert.Equal(t, "main", result.Branch)

			fresh := f.freshClone(t, "main")
			assert.Equal(t, contentSet(t, fresh), contentSet(t, f.local))
			assert.Equal(t, runGit(t, fresh, "rev-parse", "HEAD"), runGit(t, f.local, "rev-parse", "HEAD"))
			assert.Equal(t, result.Commit, runGit(t, f.local, "rev-parse", "HEAD"))
			assert.Empty(t, runGit(t, f.local, "status", "--porcelain", "--ignored"))
			assert.Empty(t, quarantines(t, f.local))
		})
	}
}

// quarantines lists sync holding directories left inside .git.
func quarantines(t *testing.T, root string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(root, ".git", "peoplepipe-sync-*"))
	require.NoError(t, err)
	return matches
}

// dirtyLocal gives the local clone uncommitted, untracked and ignored content.
func dirtyLocal(t *testing.T, dir string) {
	t.Helper()
	writeFile(t, dir, "README.md", "LOCAL EDIT\n")
	writeFile(t, dir, "keep.txt", "untracked survives")
	writeFile(t, dir, "debug.log", "ignored survives")
	writeFile(t, dir, "junk/deep/x.txt", "nested untracked")
	writeFile(t, dir, "staged.txt", "staged")
	runGit(t, dir, "add", "staged.txt")
}

func TestSyncResetFailureRestoresLocalState(t *testing.T) {
	f := newFixture(t)
	f.advanceRemote(t, "b/remote.png", "remote bytes")
	f.advanceRemote(t, "README.md", "# people v2\n")
	dirtyLocal(t, f.local)

	headBefore := runGit(t, f.local, "rev-parse", "HEAD")
	statusBefore := runGit(t, f.local, "status", "--porcelain", "--ignored")
	before := contentSet(t, f.local)

	syncer := gitsync.New(logging.NewNop(), gitsync.WithAfterReset(func() error {
		return errors.New("disk full")
	}))
	_, err := syncer.Sync(context.Background(), gitsync.Target{Root: f.local})
	require.Error(t, err)
	assert.True(t, errors.Is(err, services.ErrSync))

	var syncErr *gitsync.SyncError
	require.True(t, errors.As(err, &syncErr), "got %v", err)
	assert.Equal(t, gitsync.StatePreSync, syncErr.State)
	assert.Equal(t, "reset", syncErr.Phase)

	assert.Equal(t, before, contentSet(t, f.local))
	assert.Equal(t, headBefore, runGit(t, f.local, "rev-parse", "HEAD"))
	assert.Equal(t, statusBefore, runGit(t, f.local, "status", "--porcelain", "--ignored"))
	assert.Empty(t, quarantines(t, f.local))
}

func TestSyncCleanFailureRestoresLocalState(t *testing.T) {
	f := newFixture(t)
	f.advanceRemote(t, "b/remote.png", "remote bytes")
	dirtyLocal(t, f.local)

	headBefore := runGit(t, f.local, "rev-parse", "HEAD")
	statusBefore := runGit(t, f.local, "status", "--porcelain", "--ignored")
	before := contentSet(t, f.local)

	// keep.txt sorts after README.md, debug.log and junk, so those are
	// already quarantined when the move fails.
	rename := func(oldpath, newpath string) error {
		if filepath.Base(oldpath) == "keep.txt" && strings.Contains(newpath, "peoplepipe-sync-") {
			return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: fs.ErrPermission}
		}
		return os.Rename(oldpath, newpath)
	}
	_, err := gitsync.New(logging.NewNop(), gitsync.WithRename(rename)).
		Sync(context.Background(), gitsync.Target{Root: f.local})

	var syncErr *gitsync.SyncError
	require.True(t, errors.As(err, &syncErr), "got %v", err)
	assert.Equal(t, gitsync.StatePreSync, syncErr.State)
	assert.Equal(t, "clean", syncErr.Phase)

	assert.Equal(t, before, contentSet(t, f.local))
	assert.Equal(t, headBefore, runGit(t, f.local, "rev-parse", "HEAD"))
	assert.Equal(t, statusBefore, runGit(t, f.local, "status", "--porcelain", "--ignored"))
	assert.Empty(t, quarantines(t, f.local))
}

func TestSyncExplicitBranch(t *testing.T) {
	f := newFixture(t)
	runGit(t, f.seed, "checkout", "-b", "dev")
	f.advanceRemote(t, "dev-only.txt", "dev")

	result, err := newSynchronizer().Sync(context.Background(), gitsync.Target{Root: f.local, Branch: "dev"})
	require.NoError(t, err)
	assert.Equal(t, "dev", result.Branch)
	assert.Equal(t, "dev", runGit(t, f.local, "rev-parse", "--abbrev-ref", "HEAD"))
	assert.Equal(t, contentSet(t, f.freshClone(t, "dev")), contentSet(t, f.local))
}

func TestSyncRepositoryErrors(t *testing.T) {
	requireGit(t)
	base := t.TempDir()
	syncer := newSynchronizer()

	_, err := syncer.Sync(context.Background(), gitsync.Target{Root: filepath.Join(base, "missing")})
	assert.True(t, errors.Is(err, services.ErrRepoNotFound), "missing path: %v", err)

	plain := filepath.Join(base, "plain")
	require.NoError(t, os.MkdirAll(plain, 0o755))
	_, err = syncer.Sync(context.Background(), gitsync.Target{Root: plain})
	assert.True(t, errors.Is(err, services.ErrRepoNotFound), "not a repo: %v", err)

	f := newFixture(t)
	_, err = syncer.Sync(context.Background(), gitsync.Target{Root: f.local, Remote: "upstream"})
	assert.True(t, errors.Is(err, services.ErrRepoInvalid), "unknown remote: %v", err)
}

func TestSyncFetchFailureLeavesRepoPreSync(t *testing.T) {
	f := newFixture(t)
	runGit(t, f.local, "remote", "set-url", "origin", filepath.Join(f.base, "gone.git"))
	writeFile(t, f.local, "keep.txt", "untracked survives")
	before := contentSet(t, f.local)

	_, err := newSynchronizer().Sync(context.Background(), gitsync.Target{Root: f.local, Branch: "main"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, services.ErrSync))

	var syncErr *gitsync.SyncError
	require.True(t, errors.As(err, &syncErr))
	assert.Equal(t, gitsync.StatePreSync, syncErr.State)
	assert.Equal(t, "fetch", syncErr.Phase)
	assert.Equal(t, before, contentSet(t, f.local))
}

func TestSyncUnknownBranchLeavesRepoPreSync(t *testing.T) {
	f := newFixture(t)
	writeFile(t, f.local, "keep.txt", "untracked survives")

	_, err := newSynchronizer().Sync(context.Background(), gitsync.Target{Root: f.local, Branch: "nope"})
	var syncErr *gitsync.SyncError
	require.True(t, errors.As(err, &syncErr), "got %v", err)
	assert.Equal(t, gitsync.StatePreSync, syncErr.State)
	assert.FileExists(t, filepath.Join(f.local, "keep.txt"))
}

func TestPublishNoOp(t *testing.T) {
	f := newFixture(t)
	before := runGit(t, f.remote, "rev-parse", "main")

	result, err := newSynchronizer().Publish(context.Background(), gitsync.Target{Root: f.local}, gitsync.PublishOptions{})
	require.NoError(t, err)
	assert.True(t, result.NoOp)
	assert.False(t, result.Pushed)
	assert.Empty(t, result.Commit)
	assert.Equal(t, before, runGit(t, f.remote, "rev-parse", "main"))
}

func TestPublishCommitsAndPushes(t *testing.T) {
	f := newFixture(t)
	writeFile(t, f.local, "c/new-person.png", "new")
	require.NoError(t, os.Remove(filepath.Join(f.local, "a", "actor.png")))

	result, err := newSynchronizer().Publish(context.Background(), gitsync.Target{Root: f.local}, gitsync.PublishOptions{
		Message:     "chore: test publish",
		AuthorName:  "Poster Bot",
		AuthorEmail: "bot@example.com",
	})
	require.NoError(t, err)
	assert.False(t, result.NoOp)
	assert.True(t, result.Pushed)
	assert.Equal(t, "main", result.Branch)
	assert.Equal(t, result.Commit, runGit(t, f.remote, "rev-parse", "main"))
	assert.Equal(t, "Poster Bot", runGit(t, f.remote, "log", "-1", "--format=%an"))
	assert.Equal(t, "chore: test publish", runGit(t, f.remote, "log", "-1", "--format=%s"))

	files := runGit(t, f.remote, "ls-tree", "-r", "--name-only", "main")
	assert.Contains(t, files, "c/new-person.png")
	assert.NotContains(t, files, "a/actor.png")
}

func TestPublishRejectedPushIsNotRetried(t *testing.T) {
	f := newFixture(t)
	f.advanceRemote(t, "remote.txt", "moved ahead")
	remoteTip := runGit(t, f.remote, "rev-parse", "main")
	writeFile(t, f.local, "local.txt", "change")

	result, err := newSynchronizer().Publish(context.Background(), gitsync.Target{Root: f.local}, gitsync.PublishOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, services.ErrPublish))
	assert.False(t, result.Pushed)
	assert.Equal(t, remoteTip, runGit(t, f.remote, "rev-parse", "main"))
}

func TestTargets(t *testing.T) {
	requireGit(t)
	root := t.TempDir()
	cfg := config.Default()
	cfg.Repo.Root = root
	cfg.Repo.Branch = "main"

	_, err := gitsync.Targets(&cfg)
	assert.True(t, errors.Is(err, services.ErrRepoNotFound), "no repos: %v", err)

	runGit(t, root, "init", "-q", ".")
	targets, err := gitsync.Targets(&cfg)
	require.NoError(t, err)
	require.Len(t, targets, 1)
	assert.Equal(t, root, targets[0].Root)

	for _, category := range []string{"bw", "transparent"} {
		runGit(t, root, "init", "-q", category)
	}
	require.NoError(t, os.MkdirAll(filepath.Join(root, "rainier"), 0o755))
	targets, err = gitsync.Targets(&cfg)
	require.NoError(t, err)
	require.Len(t, targets, 2)
	assert.Equal(t, "bw", targets[0].Name())
	assert.Equal(t, "transparent", targets[1].Name())
	assert.Equal(t, "main", targets[1].Branch)
	assert.Equal(t, "origin", targets[1].Remote)

	cfg.Repo.Root = filepath.Join(root, "missing")
	_, err = gitsync.Targets(&cfg)
	assert.True(t, errors.Is(err, services.ErrRepoNotFound))
}
