package stage

import (
	"context"
	"fmt"
	"log/slog"

	"peoplepipe/internal/collaborator"
	"peoplepipe/internal/config"
	"peoplepipe/internal/steps"
)

// Handler describes the contract the pipeline runner needs from each step.
type Handler interface {
	Execute(context.Context, *config.Config) error
	// Describe renders what Execute would do, for dry runs.
	Describe(*config.Config) string
	HealthCheck(context.Context, *config.Config) Health
}

// LoggerAware handlers accept a logger carrying run and step context.
type LoggerAware interface {
	SetLogger(*slog.Logger)
}

// Deps are the collaborators handlers are built from.
type Deps struct {
	Logger *slog.Logger
	Runner collaborator.Runner
	Repos  Repos
}

// Build returns the handler for step. Native steps map by key; every other
// step runs its collaborator command.
func Build(step steps.Step, deps Deps) (Handler, error) {
	switch step.Key {
	case steps.EnsureRepo:
		return NewEnsureRepo(deps.Logger), nil
	case steps.Update:
		if deps.Repos == nil {
			return nil, fmt.Errorf("stage %s: repository synchronizer unavailable", step.Name)
		}
		return NewUpdate(deps.Repos, deps.Logger), nil
	case steps.Push:
		if deps.Repos == nil {
			return nil, fmt.Errorf("stage %s: repository synchronizer unavailable", step.Name)
		}
		return NewPublish(deps.Repos, deps.Logger), nil
	}
	if step.Native() {
		return nil, fmt.Errorf("stage %s: no native handler", step.Name)
	}
	if deps.Runner == nil {
		return nil, fmt.Errorf("stage %s: collaborator runner unavailable", step.Name)
	}
	return NewScript(step, deps.Runner), nil
}

// BuildAll builds a handler for every step in the registry.
func BuildAll(registry *steps.Registry, deps Deps) (map[steps.Key]Handler, error) {
	handlers := make(map[steps.Key]Handler, len(registry.Ordered()))
	for _, step := range registry.Ordered() {
		handler, err := Build(step, deps)
		if err != nil {
			return nil, err
		}
		handlers[step.Key] = handler
	}
	return handlers, nil
}
