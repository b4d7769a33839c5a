package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"peoplepipe/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config rooted in a fresh temp directory. The
// repository root exists but holds no category folders unless
// WithCategories is given.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.TMDBKey = "test"
	cfgVal.ProjectDir = base
	cfgVal.EnvFile = filepath.Join(base, config.DefaultEnvFile)
	cfgVal.Repo.Root = filepath.Join(base, "people-images")
	cfgVal.Repo.Categories = nil
	cfgVal.Orchestrator.KometaLogsDir = filepath.Join(base, "kometa-logs")
	cfgVal.Orchestrator.CheckpointDir = filepath.Join(base, "checkpoints")
	cfgVal.Orchestrator.RunLogDir = filepath.Join(base, "logs")
	cfgVal.Orchestrator.ScriptsDir = base

	for _, dir := range []string{cfgVal.Repo.Root, cfgVal.Orchestrator.KometaLogsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithTMDBKey sets the TMDB API key on the test config.
func WithTMDBKey(key string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.TMDBKey = key
	}
}

// WithCategories configures the category subrepos and creates each one
// under the repository root with an empty .git directory.
func WithCategories(names ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Repo.Categories = append([]string(nil), names...)
		for _, name := range names {
			dir := filepath.Join(b.cfg.Repo.Root, name, ".git")
			if err := os.MkdirAll(dir, 0o755); err != nil {
				b.t.Fatalf("mkdir %s: %v", dir, err)
			}
		}
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, the interpreters the script
// steps use are stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"python3", "pwsh"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return cfg.ProjectDir
}
