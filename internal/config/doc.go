// Package config resolves orchestrator configuration from the environment
// file, the process environment, and CLI overrides.
//
// It bootstraps a template environment file on first run, expands user paths
// (including tilde shortcuts) relative to the project directory, and exposes
// one typed Config whose struct tags double as the table of recognized keys
// and defaults. Configuration is resolved once at startup and never re-read
// mid-run.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths and clear ErrConfigInvalid errors naming the offending key.
package config
