package preflight

import (
	"fmt"
	"strings"

	"peoplepipe/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name     string
	Passed   bool
	Optional bool
	Detail   string
}

// RunAll executes every readiness check for the given config. The Kometa
// logs directory is only checked when configured.
func RunAll(cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	results = append(results, repoResult(cfg))
	results = append(results, CheckCreatableDirectory("Checkpoint directory", cfg.Orchestrator.CheckpointDir))
	results = append(results, CheckCreatableDirectory("Run log directory", cfg.Orchestrator.RunLogDir))
	if cfg.Orchestrator.KometaLogsDir != "" {
		results = append(results, CheckDirectoryAccess("Kometa logs", cfg.Orchestrator.KometaLogsDir))
	}

	for _, status := range CheckSystemDeps(cfg) {
		detail := status.Path
		if !status.Available {
			detail = status.Detail
		}
		results = append(results, Result{
			Name:     status.Name,
			Passed:   status.Available,
			Optional: status.Optional,
			Detail:   detail,
		})
	}
	return results
}

// Failed returns the failing checks that are not optional.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed && !r.Optional {
			out = append(out, r)
		}
	}
	return out
}

func repoResult(cfg *config.Config) Result {
	const name = "People images repo"
	structure, err := CheckRepoStructure(cfg.Repo.Root, cfg.Repo.Categories)
	if err != nil {
		detail := err.Error()
		if len(structure.Missing) > 0 {
			detail = fmt.Sprintf("%s (missing: %s)", cfg.Repo.Root, strings.Join(structure.Missing, ", "))
		}
		return Result{Name: name, Detail: detail}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%d folders)", cfg.Repo.Root, len(cfg.Repo.Categories))}
}
