package gitsync

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/go-git/go-git/v5"
	"github.com/google/uuid"
	"golang.org/x/sys/unix"
)

// quarantine holds worktree paths moved aside while a sync rewrites the
// tree. Entries keep their relative layout under dir so they can be moved
// back verbatim.
type quarantine struct {
	root   string
	dir    string
	moved  []string
	rename func(oldpath, newpath string) error
}

// quarantineDir picks a holding directory on the same filesystem as root:
// inside .git when it is a directory, otherwise next to the worktree.
func quarantineDir(root string) (string, error) {
	name := "peoplepipe-sync-" + uuid.NewString()
	gitDir := filepath.Join(root, ".git")
	if info, err := os.Stat(gitDir); err == nil && info.IsDir() {
		dir := filepath.Join(gitDir, name)
		return dir, os.Mkdir(dir, 0o700)
	}
	return os.MkdirTemp(filepath.Dir(filepath.Clean(root)), "."+filepath.Base(root)+"."+name+"-")
}

func newQuarantine(root string, rename func(string, string) error) (*quarantine, error) {
	dir, err := quarantineDir(root)
	if err != nil {
		return nil, fmt.Errorf("create quarantine: %w", err)
	}
	if rename == nil {
		rename = os.Rename
	}
	return &quarantine{root: root, dir: dir, rename: rename}, nil
}

// stash moves each path out of the worktree. On error the paths moved so far
// stay recorded; the caller restores them.
func (q *quarantine) stash(paths []string) error {
	for _, rel := range paths {
		dst := filepath.Join(q.dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(dst), 0o700); err != nil {
			return fmt.Errorf("quarantine %s: %w", rel, err)
		}
		if err := q.rename(filepath.Join(q.root, filepath.FromSlash(rel)), dst); err != nil {
			return fmt.Errorf("quarantine %s: %w", rel, err)
		}
		q.moved = append(q.moved, rel)
	}
	return nil
}

// unstash moves every stashed path back into the worktree, replacing
// whatever the sync put there.
func (q *quarantine) unstash() error {
	for i := len(q.moved) - 1; i >= 0; i-- {
		rel := q.moved[i]
		dst := filepath.Join(q.root, filepath.FromSlash(rel))
		if err := os.RemoveAll(dst); err != nil {
			return fmt.Errorf("restore %s: %w", rel, err)
		}
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return fmt.Errorf("restore %s: %w", rel, err)
		}
		if err := q.rename(filepath.Join(q.dir, filepath.FromSlash(rel)), dst); err != nil {
			return fmt.Errorf("restore %s: %w", rel, err)
		}
		q.moved = q.moved[:i]
	}
	return nil
}

func (q *quarantine) discard() error {
	return os.RemoveAll(q.dir)
}

// localChanges returns the worktree paths that differ from a clean
// checkout of HEAD and the tracked paths that are absent from disk. Index
// changes count as local changes.
func localChanges(wt *git.Worktree, root string) (dirty, missing []string, err error) {
	status, err := wt.Status()
	if err != nil {
		return nil, nil, fmt.Errorf("status: %w", err)
	}
	for name, st := range status {
		if st.Staging == git.Unmodified && st.Worktree == git.Unmodified {
			continue
		}
		if _, statErr := os.Lstat(filepath.Join(root, filepath.FromSlash(name))); statErr != nil {
			// ENOTDIR: a tracked file whose parent is now a local file.
			if errors.Is(statErr, os.ErrNotExist) || errors.Is(statErr, unix.ENOTDIR) {
				missing = append(missing, name)
				continue
			}
			return nil, nil, statErr
		}
		dirty = append(dirty, name)
	}
	sort.Strings(dirty)
	sort.Strings(missing)
	return dirty, missing, nil
}

// outermost merges path lists and drops every path that sits inside another
// listed path.
func outermost(lists ...[]string) []string {
	seen := map[string]struct{}{}
	var all []string
	for _, list := range lists {
		for _, p := range list {
			p = path.Clean(p)
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			all = append(all, p)
		}
	}
	sort.Strings(all)
	var out []string
	for _, p := range all {
		nested := false
		for dir := path.Dir(p); dir != "." && dir != "/"; dir = path.Dir(dir) {
			if _, ok := seen[dir]; ok {
				nested = true
				break
			}
		}
		if !nested {
			out = append(out, p)
		}
	}
	return out
}
