package workload

import (
	"context"
	"fmt"
)

// State is whatever a workload's Setup builds and its Run consumes.
type State any

// SetupFunc prepares state for one parameter combination.
type SetupFunc func(ctx context.Context, env Env) (State, error)

// RunFunc is the measured unit. A non-nil error marks the iteration as failed.
type RunFunc func(ctx context.Context, state State) error

// TeardownFunc releases state built by Setup.
type TeardownFunc func(ctx context.Context, state State) error

// Descriptor describes a parameterized workload
type Descriptor struct {
	Name        string
	Description string
	Axes        []Axis
	Fixtures    []string // Shared fixtures, acquired in this order
	Setup       SetupFunc
	Run         RunFunc
	Teardown    TeardownFunc
}

// Space returns the parameter space of the descriptor
func (d Descriptor) Space() Space {
	return Space{axes: d.Axes}
}

// Validate checks that the descriptor can be registered
func (d Descriptor) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("workload name is required")
	}
	if d.Run == nil {
		return fmt.Errorf("workload %q: run function is required", d.Name)
	}

	seen := make(map[string]bool, len(d.Axes))
	for i, axis := range d.Axes {
		if axis.Name == "" {
			return fmt.Errorf("workload %q: axis %d has no name", d.Name, i)
		}
		if seen[axis.Name] {
			return fmt.Errorf("workload %q: axis %q declared twice", d.Name, axis.Name)
		}
		if len(axis.Values) == 0 {
			return fmt.Errorf("workload %q: axis %q has no values", d.Name, axis.Name)
		}
		seen[axis.Name] = true
	}

	for i, name := range d.Fixtures {
		if name == "" {
			return fmt.Errorf("workload %q: fixture %d has no name", d.Name, i)
		}
	}

	return nil
}

// Env is passed to Setup. It carries the parameter combination and the
// resources of the fixtures the descriptor declared.
type Env struct {
	Params    Params
	resources map[string]any
}

// NewEnv creates an Env for a Setup call
func NewEnv(params Params, resources map[string]any) Env {
	return Env{Params: params, resources: resources}
}

// Resource returns the resource of an acquired fixture
func (e Env) Resource(name string) (any, bool) {
	r, ok := e.resources[name]
	return r, ok
}

// ResourceAs returns the named fixture resource converted to T.
func ResourceAs[T any](env Env, name string) (T, error) {
	var zero T

	r, ok := env.Resource(name)
	if !ok {
		return zero, fmt.Errorf("fixture %q was not acquired", name)
	}

	typed, ok := r.(T)
	if !ok {
		return zero, fmt.Errorf("fixture %q has type %T, want %T", name, r, zero)
	}

	return typed, nil
}
