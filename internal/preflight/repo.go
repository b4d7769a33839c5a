package preflight

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"peoplepipe/internal/services"
)

// RepoStructure is the outcome of inspecting the people-images repository.
type RepoStructure struct {
	Root    string
	Missing []string
}

// OK reports whether every category folder is present.
func (r RepoStructure) OK() bool {
	return len(r.Missing) == 0
}

// CheckRepoStructure verifies that root exists and holds a folder for every
// category. A missing root is ErrRepoNotFound; missing category folders are
// ErrRepoInvalid naming each one.
func CheckRepoStructure(root string, categories []string) (RepoStructure, error) {
	result := RepoStructure{Root: root}
	if strings.TrimSpace(root) == "" {
		return result, services.Wrap(services.ErrRepoNotFound, "", "repo structure",
			"PEOPLE_IMAGES_DIR is not set", nil)
	}
	info, err := os.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return result, services.Wrap(services.ErrRepoNotFound, "", "repo structure",
				fmt.Sprintf("%s does not exist", root), nil)
		}
		return result, services.Wrap(services.ErrRepoInvalid, "", "repo structure", root, err)
	}
	if !info.IsDir() {
		return result, services.Wrap(services.ErrRepoInvalid, "", "repo structure",
			fmt.Sprintf("%s is not a directory", root), nil)
	}
	for _, category := range categories {
		dir := filepath.Join(root, category)
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			result.Missing = append(result.Missing, category)
		}
	}
	if !result.OK() {
		return result, services.Wrap(services.ErrRepoInvalid, "", "repo structure",
			"missing folders: "+strings.Join(result.Missing, ", "), nil)
	}
	return result, nil
}
