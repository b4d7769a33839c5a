package config

import (
	"strconv"
	"strings"
)

// Entry is one recognized configuration key with its resolved value.
type Entry struct {
	Key    string
	Value  string
	Secret bool
}

// Entries lists every recognized key in table order.
func (c *Config) Entries() []Entry {
	o := c.Orchestrator
	return []Entry{
		{Key: "TMDB_KEY", Value: c.TMDBKey, Secret: true},
		{Key: "PEOPLE_IMAGES_DIR", Value: c.Repo.Root},
		{Key: "PEOPLE_BRANCH", Value: c.Repo.Branch},
		{Key: "PEOPLE_REMOTE", Value: c.Repo.Remote},
		{Key: "PEOPLE_CATEGORIES", Value: strings.Join(c.Repo.Categories, ",")},
		{Key: "ORCH_LOGS_DIR", Value: o.KometaLogsDir},
		{Key: "ORCH_STYLE", Value: o.Style},
		{Key: "ORCH_COMMIT_MESSAGE", Value: o.CommitMessage},
		{Key: "ORCH_GIT_USER_NAME", Value: o.GitUserName},
		{Key: "ORCH_GIT_USER_EMAIL", Value: o.GitUserEmail},
		{Key: "ORCH_CHECKPOINT_DIR", Value: o.CheckpointDir},
		{Key: "ORCH_CHECKPOINT_BACKEND", Value: o.CheckpointBackend},
		{Key: "ORCH_RUN_LOG_DIR", Value: o.RunLogDir},
		{Key: "ORCH_LOG_LEVEL", Value: o.LogLevel},
		{Key: "ORCH_LOG_FORMAT", Value: o.LogFormat},
		{Key: "ORCH_PYTHON", Value: o.Python},
		{Key: "ORCH_PWSH", Value: o.PowerShell},
		{Key: "ORCH_SCRIPTS_DIR", Value: o.ScriptsDir},
		{Key: "ORCH_NTFY_TOPIC", Value: o.NtfyTopic},
		{Key: "ORCH_NTFY_TIMEOUT", Value: strconv.Itoa(o.NtfyTimeout)},
	}
}

// Value returns the resolved value for a recognized key.
func (c *Config) Value(key string) (string, bool) {
	key = strings.ToUpper(strings.TrimSpace(key))
	for _, entry := range c.Entries() {
		if entry.Key == key {
			return entry.Value, true
		}
	}
	return "", false
}

// Masked renders a value for display, hiding secrets.
func (e Entry) Masked() string {
	if !e.Secret || e.Value == "" {
		return e.Value
	}
	if len(e.Value) <= 4 {
		return "****"
	}
	return e.Value[:2] + strings.Repeat("*", len(e.Value)-4) + e.Value[len(e.Value)-2:]
}
