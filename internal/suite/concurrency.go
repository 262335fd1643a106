package suite

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sync"

	"github.com/studiowebux/benchkit/internal/workload"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

func concurrencyWorkloads() []workload.Descriptor {
	params := func(_ context.Context, env workload.Env) (workload.State, error) {
		return env.Params, nil
	}

	return []workload.Descriptor{
		{
			Name:        "concurrency.parallel-for",
			Description: "Spread a numeric loop over a bounded errgroup",
			Axes:        []workload.Axis{{Name: "n", Values: []any{100_000}}},
			Setup: func(_ context.Context, env workload.Env) (workload.State, error) {
				return make([]float64, env.Params.Int("n", 100_000)), nil
			},
			Run: func(ctx context.Context, state workload.State) error {
				return parallelFor(ctx, state.([]float64))
			},
		},
		{
			Name:        "concurrency.goroutine-spawn",
			Description: "Start goroutines and wait for all of them",
			Axes:        []workload.Axis{{Name: "count", Values: []any{1_000}}},
			Setup:       params,
			Run: func(_ context.Context, state workload.State) error {
				n := state.(workload.Params).Int("count", 1_000)
				results := make([]int, n)

				var wg sync.WaitGroup
				for i := 0; i < n; i++ {
					wg.Add(1)
					go func() {
						defer wg.Done()
						results[i] = i * 2
					}()
				}
				wg.Wait()

				if results[n-1] != (n-1)*2 {
					return fmt.Errorf("goroutine %d did not run", n-1)
				}
				return nil
			},
		},
		{
			Name:        "concurrency.channel-throughput",
			Description: "One producer and one consumer over a bounded channel",
			Axes: []workload.Axis{
				{Name: "items", Values: []any{10_000}},
				{Name: "buffer", Values: []any{1_000}},
			},
			Setup: params,
			Run: func(ctx context.Context, state workload.State) error {
				p := state.(workload.Params)
				return channelThroughput(ctx, p.Int("items", 10_000), p.Int("buffer", 1_000))
			},
		},
		{
			Name:        "concurrency.mutex-contention",
			Description: "Goroutines incrementing a shared counter under a mutex",
			Axes: []workload.Axis{
				{Name: "goroutines", Values: []any{8}},
				{Name: "ops", Values: []any{10_000}},
			},
			Setup: params,
			Run: func(_ context.Context, state workload.State) error {
				p := state.(workload.Params)
				return mutexContention(p.Int("goroutines", 8), p.Int("ops", 10_000))
			},
		},
		{
			Name:        "concurrency.semaphore-contention",
			Description: "Goroutines competing for a weighted semaphore",
			Axes: []workload.Axis{
				{Name: "goroutines", Values: []any{8}},
				{Name: "permits", Values: []any{2}},
				{Name: "ops", Values: []any{1_000}},
			},
			Setup: params,
			Run: func(ctx context.Context, state workload.State) error {
				p := state.(workload.Params)
				return semaphoreContention(ctx, p.Int("goroutines", 8), int64(p.Int("permits", 2)), p.Int("ops", 1_000))
			},
		},
	}
}

func parallelFor(ctx context.Context, out []float64) error {
	workers := runtime.GOMAXPROCS(0)
	chunk := (len(out) + workers - 1) / workers

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for lo := 0; lo < len(out); lo += chunk {
		hi := min(lo+chunk, len(out))
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				out[i] = math.Sqrt(float64(i))
			}
			return ctx.Err()
		})
	}
	return g.Wait()
}

func channelThroughput(ctx context.Context, items, buffer int) error {
	ch := make(chan int, buffer)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(ch)
		for i := 0; i < items; i++ {
			select {
			case ch <- i:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	received := 0
	g.Go(func() error {
		for range ch {
			received++
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	if received != items {
		return fmt.Errorf("received %d items, want %d", received, items)
	}
	return nil
}

func mutexContention(goroutines, ops int) error {
	var mu sync.Mutex
	counter := 0

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < ops; i++ {
				mu.Lock()
				counter++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if want := goroutines * ops; counter != want {
		return fmt.Errorf("counter = %d, want %d", counter, want)
	}
	return nil
}

func semaphoreContention(ctx context.Context, goroutines int, permits int64, ops int) error {
	sem := semaphore.NewWeighted(permits)

	var mu sync.Mutex
	inside, peak := int64(0), int64(0)

	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < goroutines; w++ {
		g.Go(func() error {
			for i := 0; i < ops; i++ {
				if err := sem.Acquire(ctx, 1); err != nil {
					return err
				}
				mu.Lock()
				inside++
				peak = max(peak, inside)
				inside--
				mu.Unlock()
				sem.Release(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if peak > permits {
		return fmt.Errorf("%d holders inside a semaphore of %d", peak, permits)
	}
	return nil
}
