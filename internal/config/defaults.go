package config

import (
	"context"

	"github.com/sethvargo/go-envconfig"
)

const (
	defaultRemote            = "origin"
	defaultStyle             = "transparent"
	defaultCheckpointBackend = "file"
	defaultLogLevel          = "info"
	defaultLogFormat         = "console"
)

// DefaultCategories lists the category subrepositories inside the people-images root.
var DefaultCategories = []string{
	"bw",
	"diiivoy",
	"diiivoycolor",
	"original",
	"rainier",
	"signature",
	"transparent",
}

// Default returns a Config populated with built-in defaults only. Paths are
// left relative; Resolve anchors them to the project directory.
func Default() Config {
	var cfg Config
	_ = envconfig.ProcessWith(context.Background(), &envconfig.Config{
		Target:   &cfg,
		Lookuper: envconfig.MapLookuper(map[string]string{}),
	})
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if len(c.Repo.Categories) == 0 {
		c.Repo.Categories = append([]string(nil), DefaultCategories...)
	}
	if c.Repo.Remote == "" {
		c.Repo.Remote = defaultRemote
	}
	if c.Orchestrator.Style == "" {
		c.Orchestrator.Style = defaultStyle
	}
	if c.Orchestrator.CheckpointBackend == "" {
		c.Orchestrator.CheckpointBackend = defaultCheckpointBackend
	}
	if c.Orchestrator.LogLevel == "" {
		c.Orchestrator.LogLevel = defaultLogLevel
	}
	if c.Orchestrator.LogFormat == "" {
		c.Orchestrator.LogFormat = defaultLogFormat
	}
}
