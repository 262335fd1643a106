package engine

import (
	"fmt"
	"time"
)

const maxIterations = 1_000_000

// Options controls one run
type Options struct {
	Warmup           int
	Iterations       int
	Timeout          time.Duration // 0 means only the caller's context bounds the run
	TrackAllocations bool
}

// Validate checks the options
func (o Options) Validate() error {
	if o.Warmup < 0 {
		return fmt.Errorf("warmup must not be negative, got %d", o.Warmup)
	}
	if o.Iterations < 1 || o.Iterations > maxIterations {
		return fmt.Errorf("iterations must be between 1 and %d, got %d", maxIterations, o.Iterations)
	}
	if o.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative, got %s", o.Timeout)
	}
	return nil
}
