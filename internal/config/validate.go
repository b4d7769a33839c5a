package config

import (
	"fmt"
	"strings"

	"peoplepipe/internal/services"
)

// Validate ensures the configuration is usable. Keys that only some steps need
// (TMDB_KEY, ORCH_LOGS_DIR, PEOPLE_IMAGES_DIR) are checked through Require when
// those steps are scheduled.
func (c *Config) Validate() error {
	if err := c.validateRepo(); err != nil {
		return err
	}
	if err := c.validateOrchestrator(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateRepo() error {
	if c.Repo.Remote == "" {
		return invalid("PEOPLE_REMOTE", "must be set")
	}
	if len(c.Repo.Categories) == 0 {
		return invalid("PEOPLE_CATEGORIES", "must include at least one category")
	}
	for _, category := range c.Repo.Categories {
		if strings.ContainsAny(category, `/\`) || category == "." || category == ".." {
			return invalid("PEOPLE_CATEGORIES", fmt.Sprintf("category %q must be a plain folder name", category))
		}
	}
	return nil
}

func (c *Config) validateOrchestrator() error {
	o := c.Orchestrator
	if o.Style == "" {
		return invalid("ORCH_STYLE", "must be set")
	}
	if strings.ContainsAny(o.Style, `/\`) {
		return invalid("ORCH_STYLE", "must be a plain folder name")
	}
	switch o.CheckpointBackend {
	case "file", "sqlite":
	default:
		return invalid("ORCH_CHECKPOINT_BACKEND", fmt.Sprintf("unsupported value %q (want file or sqlite)", o.CheckpointBackend))
	}
	switch o.LogFormat {
	case "console", "json":
	default:
		return invalid("ORCH_LOG_FORMAT", fmt.Sprintf("unsupported value %q (want console or json)", o.LogFormat))
	}
	if o.CheckpointDir == "" {
		return invalid("ORCH_CHECKPOINT_DIR", "must be set")
	}
	if o.NtfyTimeout < 0 {
		return invalid("ORCH_NTFY_TIMEOUT", "must not be negative")
	}
	if o.Python == "" {
		return invalid("ORCH_PYTHON", "must be set")
	}
	return nil
}

// Require returns an ErrConfigInvalid error naming the first key that resolves
// to an empty value.
func (c *Config) Require(keys ...string) error {
	for _, key := range keys {
		value, known := c.Value(key)
		if !known {
			return invalid(key, "is not a recognized configuration key")
		}
		if strings.TrimSpace(value) == "" {
			return invalid(key, fmt.Sprintf("is required; set it in %s or pass the matching flag", c.envFileLabel()))
		}
	}
	return nil
}

func (c *Config) envFileLabel() string {
	if c.EnvFile == "" {
		return DefaultEnvFile
	}
	return c.EnvFile
}

func invalid(key, message string) error {
	return services.Wrap(services.ErrConfigInvalid, "", key, message, nil)
}
