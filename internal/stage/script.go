package stage

import (
	"context"
	"fmt"

	"peoplepipe/internal/collaborator"
	"peoplepipe/internal/config"
	"peoplepipe/internal/steps"
)

// ScriptHandler runs an external collaborator script from the scripts
// directory.
type ScriptHandler struct {
	step   steps.Step
	runner collaborator.Runner
}

// NewScript constructs a handler for a step with a collaborator command.
func NewScript(step steps.Step, runner collaborator.Runner) *ScriptHandler {
	return &ScriptHandler{step: step, runner: runner}
}

// Command builds the collaborator command for cfg.
func (h *ScriptHandler) Command(cfg *config.Config) collaborator.Command {
	inv := h.step.Command(cfg)
	cmd := collaborator.Command{Dir: cfg.Orchestrator.ScriptsDir}
	switch inv.Interpreter {
	case steps.PowerShell:
		cmd.Name = cfg.Orchestrator.PowerShell
		cmd.Args = append([]string{"-NoProfile", "-File", inv.Script}, inv.Args...)
	default:
		cmd.Name = cfg.Orchestrator.Python
		cmd.Args = append([]string{inv.Script}, inv.Args...)
		cmd.Env = []string{"PYTHONUNBUFFERED=1"}
	}
	return cmd
}

func (h *ScriptHandler) Execute(ctx context.Context, cfg *config.Config) error {
	return h.runner.Run(ctx, h.Command(cfg))
}

func (h *ScriptHandler) Describe(cfg *config.Config) string {
	return h.Command(cfg).Describe()
}

func (h *ScriptHandler) HealthCheck(_ context.Context, cfg *config.Config) Health {
	name := h.Command(cfg).Name
	if !h.runner.Available(name) {
		return Unhealthy(h.step.Name, fmt.Sprintf("interpreter %q not found", name))
	}
	return Healthy(h.step.Name)
}
