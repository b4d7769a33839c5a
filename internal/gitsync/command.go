package gitsync

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// gitCLI runs git subcommands for operations that need the operator's
// credentials: fetch, ls-remote and push.
type gitCLI struct {
	binary string
}

func (g gitCLI) run(ctx context.Context, dir string, args ...string) (string, error) {
	binary := g.binary
	if binary == "" {
		binary = "git"
	}
	full := append([]string{"-C", dir}, args...)
	cmd := exec.CommandContext(ctx, binary, full...)
	// Never block on an interactive credential prompt.
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = strings.TrimSpace(stdout.String())
		}
		if detail != "" {
			return "", fmt.Errorf("git %s: %w: %s", args[0], err, detail)
		}
		return "", fmt.Errorf("git %s: %w", args[0], err)
	}
	return stdout.String(), nil
}

// parseSymref extracts the branch from `git ls-remote --symref <remote> HEAD`
// output, e.g. "ref: refs/heads/main\tHEAD".
func parseSymref(output string) string {
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "ref:") {
			continue
		}
		fields := strings.Fields(strings.TrimPrefix(line, "ref:"))
		if len(fields) == 0 {
			continue
		}
		if branch, ok := strings.CutPrefix(fields[0], "refs/heads/"); ok {
			return branch
		}
	}
	return ""
}
