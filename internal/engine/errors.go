package engine

import (
	"fmt"
	"time"
)

// Phase names the step of a run in which a workload failed
type Phase string

const (
	PhaseSetup    Phase = "setup"
	PhaseWarmup   Phase = "warmup"
	PhaseMeasure  Phase = "measure"
	PhaseTeardown Phase = "teardown"
)

// WorkloadError is returned when a workload's own code fails in a phase
// that aborts the run.
type WorkloadError struct {
	Workload  string
	Params    string
	Phase     Phase
	Iteration int // zero-based; only meaningful for warmup
	Err       error
}

func (e *WorkloadError) Error() string {
	name := e.Workload
	if e.Params != "" {
		name += "[" + e.Params + "]"
	}
	if e.Phase == PhaseWarmup {
		return fmt.Sprintf("workload %s: %s iteration %d: %v", name, e.Phase, e.Iteration, e.Err)
	}
	return fmt.Sprintf("workload %s: %s: %v", name, e.Phase, e.Err)
}

func (e *WorkloadError) Unwrap() error {
	return e.Err
}

// TimeoutError is returned with a partial report when a run hits its deadline.
type TimeoutError struct {
	Workload  string
	Params    string
	Completed int // measured iterations recorded before the deadline
	Timeout   time.Duration
}

func (e *TimeoutError) Error() string {
	name := e.Workload
	if e.Params != "" {
		name += "[" + e.Params + "]"
	}
	if e.Timeout > 0 {
		return fmt.Sprintf("workload %s timed out after %s (%d iterations completed)", name, e.Timeout, e.Completed)
	}
	return fmt.Sprintf("workload %s: deadline exceeded (%d iterations completed)", name, e.Completed)
}
