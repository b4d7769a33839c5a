package steps

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"golang.org/x/text/cases"

	"peoplepipe/internal/services"
)

// Registry is the ordered step catalog. It is built once and never mutated.
type Registry struct {
	steps  []Step
	lookup map[string]int
}

// Default returns the registry for the people-poster pipeline.
func Default() *Registry {
	registry, err := NewRegistry(catalog())
	if err != nil {
		panic(err)
	}
	return registry
}

// NewRegistry builds a registry from steps listed in execution order. Names
// and aliases must be unique after case folding.
func NewRegistry(list []Step) (*Registry, error) {
	r := &Registry{
		steps:  make([]Step, len(list)),
		lookup: make(map[string]int, len(list)*3),
	}
	for idx, step := range list {
		step.Order = idx + 1
		step.Aliases = slices.Clone(step.Aliases)
		step.RequiredKeys = slices.Clone(step.RequiredKeys)
		r.steps[idx] = step
		for _, name := range append([]string{step.Name}, step.Aliases...) {
			key := r.fold(name)
			if key == "" {
				return nil, fmt.Errorf("steps: empty name or alias for step %d", idx+1)
			}
			if prev, ok := r.lookup[key]; ok {
				return nil, fmt.Errorf("steps: %q registered for both %s and %s", name, r.steps[prev].Name, step.Name)
			}
			r.lookup[key] = idx
		}
	}
	return r, nil
}

// fold normalizes a name for lookup. A Caser is stateful, so each call gets its own.
func (r *Registry) fold(name string) string {
	name = strings.ReplaceAll(strings.TrimSpace(name), "-", "_")
	return cases.Fold().String(name)
}

// Ordered returns every step in execution order.
func (r *Registry) Ordered() []Step {
	return slices.Clone(r.steps)
}

// Names returns every step name in execution order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.steps))
	for i, step := range r.steps {
		names[i] = step.Name
	}
	return names
}

// Lookup returns the step for key.
func (r *Registry) Lookup(key Key) (Step, bool) {
	for _, step := range r.steps {
		if step.Key == key {
			return step, true
		}
	}
	return Step{}, false
}

// Resolve maps a name or alias to its step, ignoring case.
func (r *Registry) Resolve(nameOrAlias string) (Step, error) {
	idx, ok := r.lookup[r.fold(nameOrAlias)]
	if !ok {
		return Step{}, services.Wrap(services.ErrUnknownStep, strings.TrimSpace(nameOrAlias), "resolve",
			"valid steps: "+strings.Join(r.Names(), ", "), nil)
	}
	return r.steps[idx], nil
}

// Select resolves every requested name before returning anything. Unknown
// names are reported together and nothing is returned for a partially valid
// list. The result is deduplicated and in registry order.
func (r *Registry) Select(names []string) ([]Step, error) {
	var unknown []string
	seen := make(map[Key]struct{}, len(names))
	selected := make([]Step, 0, len(names))
	for _, name := range names {
		if strings.TrimSpace(name) == "" {
			continue
		}
		idx, ok := r.lookup[r.fold(name)]
		if !ok {
			unknown = append(unknown, strings.TrimSpace(name))
			continue
		}
		step := r.steps[idx]
		if _, dup := seen[step.Key]; dup {
			continue
		}
		seen[step.Key] = struct{}{}
		selected = append(selected, step)
	}
	if len(unknown) > 0 {
		return nil, services.Wrap(services.ErrUnknownStep, strings.Join(unknown, ", "), "select",
			"valid steps: "+strings.Join(r.Names(), ", "), nil)
	}
	sort.SliceStable(selected, func(i, j int) bool { return selected[i].Order < selected[j].Order })
	return selected, nil
}
