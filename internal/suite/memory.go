package suite

import (
	"context"
	"fmt"

	"github.com/studiowebux/benchkit/internal/workload"
)

var intSink []int

func memoryWorkloads() []workload.Descriptor {
	sizeAxis := workload.Axis{Name: "size", Values: []any{10_000}}

	return []workload.Descriptor{
		{
			Name:        "memory.alloc-slice",
			Description: "Allocate and fill an int slice",
			Axes:        []workload.Axis{sizeAxis},
			Setup: func(_ context.Context, env workload.Env) (workload.State, error) {
				return env.Params.Int("size", 10_000), nil
			},
			Run: func(_ context.Context, state workload.State) error {
				s := make([]int, state.(int))
				for i := range s {
					s[i] = i
				}
				intSink = s
				return nil
			},
		},
		{
			Name:        "memory.sum-slice",
			Description: "Sum a preallocated int slice",
			Axes:        []workload.Axis{sizeAxis},
			Setup: func(_ context.Context, env workload.Env) (workload.State, error) {
				s := make([]int, env.Params.Int("size", 10_000))
				for i := range s {
					s[i] = i
				}
				return s, nil
			},
			Run: func(_ context.Context, state workload.State) error {
				s := state.([]int)
				sum := 0
				for _, v := range s {
					sum += v
				}
				if want := len(s) * (len(s) - 1) / 2; sum != want {
					return fmt.Errorf("sum = %d, want %d", sum, want)
				}
				return nil
			},
		},
	}
}
