package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	c.applyDefaults()
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeRepo()
	c.normalizeOrchestrator()
	return nil
}

func (c *Config) normalizePaths() error {
	base := c.ProjectDir
	var err error
	if c.Repo.Root, err = expandPath(strings.TrimSpace(c.Repo.Root), base); err != nil {
		return fmt.Errorf("PEOPLE_IMAGES_DIR: %w", err)
	}
	if c.Orchestrator.KometaLogsDir, err = expandPath(strings.TrimSpace(c.Orchestrator.KometaLogsDir), base); err != nil {
		return fmt.Errorf("ORCH_LOGS_DIR: %w", err)
	}
	if c.Orchestrator.CheckpointDir, err = expandPath(strings.TrimSpace(c.Orchestrator.CheckpointDir), base); err != nil {
		return fmt.Errorf("ORCH_CHECKPOINT_DIR: %w", err)
	}
	if c.Orchestrator.RunLogDir, err = expandPath(strings.TrimSpace(c.Orchestrator.RunLogDir), base); err != nil {
		return fmt.Errorf("ORCH_RUN_LOG_DIR: %w", err)
	}
	scripts := strings.TrimSpace(c.Orchestrator.ScriptsDir)
	if scripts == "" {
		scripts = base
	}
	if c.Orchestrator.ScriptsDir, err = expandPath(scripts, base); err != nil {
		return fmt.Errorf("ORCH_SCRIPTS_DIR: %w", err)
	}
	return nil
}

func (c *Config) normalizeRepo() {
	c.Repo.Branch = strings.TrimSpace(c.Repo.Branch)
	c.Repo.Remote = strings.TrimSpace(c.Repo.Remote)
	categories := make([]string, 0, len(c.Repo.Categories))
	seen := make(map[string]struct{}, len(c.Repo.Categories))
	for _, category := range c.Repo.Categories {
		category = strings.TrimSpace(category)
		if category == "" {
			continue
		}
		if _, ok := seen[category]; ok {
			continue
		}
		seen[category] = struct{}{}
		categories = append(categories, category)
	}
	c.Repo.Categories = categories
}

func (c *Config) normalizeOrchestrator() {
	o := &c.Orchestrator
	o.Style = strings.TrimSpace(o.Style)
	o.CheckpointBackend = strings.ToLower(strings.TrimSpace(o.CheckpointBackend))
	o.LogLevel = strings.ToLower(strings.TrimSpace(o.LogLevel))
	o.LogFormat = strings.ToLower(strings.TrimSpace(o.LogFormat))
	o.Python = strings.TrimSpace(o.Python)
	o.PowerShell = strings.TrimSpace(o.PowerShell)
	o.CommitMessage = strings.TrimSpace(o.CommitMessage)
	o.GitUserName = strings.TrimSpace(o.GitUserName)
	o.GitUserEmail = strings.TrimSpace(o.GitUserEmail)
	o.NtfyTopic = strings.TrimSpace(o.NtfyTopic)
}
