package config

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/sethvargo/go-envconfig"
	"github.com/spf13/viper"

	"peoplepipe/internal/fileutil"
	"peoplepipe/internal/services"
)

//go:embed sample.env
var sampleEnv string

// DefaultEnvFile is the environment file location relative to the working directory.
const DefaultEnvFile = "config/.env"

// Repo contains the people-images repository settings.
type Repo struct {
	Root       string   `env:"IMAGES_DIR"`
	Branch     string   `env:"BRANCH"`
	Remote     string   `env:"REMOTE, default=origin"`
	Categories []string `env:"CATEGORIES"`
}

// Orchestrator contains pipeline runner settings.
type Orchestrator struct {
	KometaLogsDir     string `env:"LOGS_DIR"`
	Style             string `env:"STYLE, default=transparent"`
	CommitMessage     string `env:"COMMIT_MESSAGE"`
	GitUserName       string `env:"GIT_USER_NAME"`
	GitUserEmail      string `env:"GIT_USER_EMAIL"`
	CheckpointDir     string `env:"CHECKPOINT_DIR, default=config/checkpoints"`
	CheckpointBackend string `env:"CHECKPOINT_BACKEND, default=file"`
	RunLogDir         string `env:"RUN_LOG_DIR, default=config/logs"`
	LogLevel          string `env:"LOG_LEVEL, default=info"`
	LogFormat         string `env:"LOG_FORMAT, default=console"`
	Python            string `env:"PYTHON, default=python3"`
	PowerShell        string `env:"PWSH, default=pwsh"`
	ScriptsDir        string `env:"SCRIPTS_DIR"`
	NtfyTopic         string `env:"NTFY_TOPIC"`
	NtfyTimeout       int    `env:"NTFY_TIMEOUT, default=10"`
}

// Config encapsulates every recognized configuration key.
//
// Sections by key prefix:
//   - TMDB_KEY: TMDB API key for the poster download step
//   - PEOPLE_*: repository root, branch, remote and category subrepos
//   - ORCH_*: runner settings (style, checkpoints, logging, interpreters)
//
// EnvFile and ProjectDir are derived during Resolve and never read from the
// environment.
type Config struct {
	TMDBKey      string       `env:"TMDB_KEY"`
	Repo         Repo         `env:", prefix=PEOPLE_"`
	Orchestrator Orchestrator `env:", prefix=ORCH_"`

	EnvFile    string
	ProjectDir string
}

// Options controls Resolve.
type Options struct {
	// EnvFile is the environment file path. Defaults to DefaultEnvFile.
	EnvFile string
	// Overrides holds CLI-supplied values keyed by environment key
	// (e.g. PEOPLE_IMAGES_DIR). Empty values are ignored.
	Overrides map[string]string
	// Environ replaces the process environment lookup, mainly for tests.
	Environ envconfig.Lookuper
}

// Resolve loads configuration, merging in increasing precedence: built-in
// defaults, environment-file values, process environment, CLI overrides.
//
// When the environment file does not exist a template is written in its place
// and the returned error wraps services.ErrConfigMissing; callers must stop and
// ask the operator to edit the file.
func Resolve(ctx context.Context, opts Options) (*Config, error) {
	envPath := strings.TrimSpace(opts.EnvFile)
	if envPath == "" {
		envPath = DefaultEnvFile
	}
	envPath, err := expandPath(envPath, "")
	if err != nil {
		return nil, err
	}

	_, statErr := os.Stat(envPath)
	switch {
	case errors.Is(statErr, fs.ErrNotExist):
		if err := Bootstrap(envPath); err != nil {
			return nil, err
		}
		return nil, services.Wrap(services.ErrConfigMissing, "", "bootstrap",
			fmt.Sprintf("created %s from template; set at least TMDB_KEY and PEOPLE_IMAGES_DIR, then re-run", envPath), nil)
	case statErr != nil:
		return nil, fmt.Errorf("stat env file: %w", statErr)
	}

	fileValues, err := readEnvFile(envPath)
	if err != nil {
		return nil, err
	}

	environ := opts.Environ
	if environ == nil {
		environ = envconfig.OsLookuper()
	}

	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target: &cfg,
		Lookuper: envconfig.MultiLookuper(
			nonEmpty{envconfig.MapLookuper(opts.Overrides)},
			nonEmpty{environ},
			nonEmpty{envconfig.MapLookuper(fileValues)},
		),
	}); err != nil {
		return nil, services.Wrap(services.ErrConfigInvalid, "", "parse", envPath, err)
	}

	cfg.EnvFile = envPath
	cfg.ProjectDir = projectDirFor(envPath)
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Bootstrap writes the template environment file at path. An .env.example in
// the same directory or the project root takes priority over the embedded
// sample.
func Bootstrap(path string) error {
	content := sampleEnv
	dir := filepath.Dir(path)
	for _, candidate := range []string{
		filepath.Join(dir, ".env.example"),
		filepath.Join(projectDirFor(path), ".env.example"),
	} {
		data, err := os.ReadFile(candidate)
		if err == nil {
			content = string(data)
			break
		}
	}

	if err := fileutil.WriteFileAtomic(path, []byte(content), 0o600); err != nil {
		return fmt.Errorf("write env template: %w", err)
	}
	return nil
}

// Sample returns the embedded environment template.
func Sample() string {
	return sampleEnv
}

func readEnvFile(path string) (map[string]string, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		return nil, services.Wrap(services.ErrConfigInvalid, "", "read env file", path, err)
	}
	values := make(map[string]string, len(v.AllKeys()))
	for _, key := range v.AllKeys() {
		values[strings.ToUpper(key)] = v.GetString(key)
	}
	return values, nil
}

// nonEmpty treats blank values as unset so template placeholders such as
// "PEOPLE_BRANCH=" fall through to lower-precedence sources and defaults.
type nonEmpty struct {
	envconfig.Lookuper
}

func (n nonEmpty) Lookup(key string) (string, bool) {
	value, ok := n.Lookuper.Lookup(key)
	if !ok || strings.TrimSpace(value) == "" {
		return "", false
	}
	return strings.TrimSpace(value), true
}

// projectDirFor returns the directory scripts and relative paths hang off:
// the parent of a "config" directory, otherwise the env file's own directory.
func projectDirFor(envPath string) string {
	dir := filepath.Dir(envPath)
	if strings.EqualFold(filepath.Base(dir), "config") {
		return filepath.Dir(dir)
	}
	return dir
}

func expandPath(pathValue, base string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	pathValue = os.ExpandEnv(pathValue)
	if !filepath.IsAbs(pathValue) && base != "" {
		pathValue = filepath.Join(base, pathValue)
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the path expansion rules for other packages. Relative
// paths resolve against base when it is non-empty.
func ExpandPath(pathValue, base string) (string, error) {
	return expandPath(pathValue, base)
}

// EnsureDirectories creates the checkpoint and run log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Orchestrator.CheckpointDir, c.Orchestrator.RunLogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// StyleDir returns the repository folder for the configured style.
func (c *Config) StyleDir() string {
	if c.Repo.Root == "" {
		return ""
	}
	return filepath.Join(c.Repo.Root, c.Orchestrator.Style)
}

// PeopleDirsStyleDir returns the local mirror folder for the configured style.
func (c *Config) PeopleDirsStyleDir() string {
	return filepath.Join(c.ProjectDir, "config", "people_dirs", c.Orchestrator.Style)
}

// HasRepoRoot reports whether a repository root is configured.
func (c *Config) HasRepoRoot() bool {
	return strings.TrimSpace(c.Repo.Root) != ""
}
