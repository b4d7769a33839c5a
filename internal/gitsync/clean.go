package gitsync

import (
	"errors"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// trackedSet holds the files of one commit tree and every directory that
// contains at least one of them.
type trackedSet struct {
	files map[string]struct{}
	dirs  map[string]struct{}
}

func newTrackedSet(tree *object.Tree) (trackedSet, error) {
	set := trackedSet{files: map[string]struct{}{}, dirs: map[string]struct{}{}}
	err := tree.Files().ForEach(func(f *object.File) error {
		set.files[f.Name] = struct{}{}
		for dir := path.Dir(f.Name); dir != "." && dir != "/"; dir = path.Dir(dir) {
			set.dirs[dir] = struct{}{}
		}
		return nil
	})
	return set, err
}

// untrackedPaths walks the worktree and returns every path, ignored or not,
// that a fresh checkout of the tracked set would not contain. Directories
// holding no tracked file are returned whole.
func untrackedPaths(fsys billy.Filesystem, tracked trackedSet) ([]string, error) {
	var extra []string
	err := util.Walk(fsys, "", func(name string, info os.FileInfo, err error) error {
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return err
		}
		rel := filepath.ToSlash(strings.TrimPrefix(name, "/"))
		if rel == "" || rel == "." {
			return nil
		}
		if rel == ".git" || strings.HasPrefix(rel, ".git/") {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() {
			if _, ok := tracked.dirs[rel]; ok {
				return nil
			}
			extra = append(extra, rel)
			return filepath.SkipDir
		}
		if _, ok := tracked.files[rel]; !ok {
			extra = append(extra, rel)
		}
		return nil
	})
	sort.Strings(extra)
	return extra, err
}

// removePaths deletes each path from the worktree.
func removePaths(fsys billy.Filesystem, paths []string) error {
	var errs []error
	for _, p := range paths {
		if err := util.RemoveAll(fsys, p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
