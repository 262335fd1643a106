// Package engine runs workloads: it acquires their fixtures, calls setup,
// discards warmup iterations, times measured iterations and hands the
// samples to the report package.
package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/studiowebux/benchkit/internal/fixture"
	"github.com/studiowebux/benchkit/internal/report"
	"github.com/studiowebux/benchkit/internal/workload"
	"go.uber.org/zap"
)

const (
	// DefaultGracePeriod is how long a timed-out run may take to notice
	// cancellation before the engine stops waiting for it
	DefaultGracePeriod = 2 * time.Second

	// Teardown and fixture release get their own deadline because the run
	// context may already have expired
	cleanupTimeout = 30 * time.Second
)

// Fixtures hands out shared fixtures by name. *fixture.Manager implements it.
type Fixtures interface {
	Acquire(ctx context.Context, name string) (*fixture.Handle, error)
}

// Engine executes workloads
type Engine struct {
	fixtures Fixtures
	logger   *zap.Logger
	grace    time.Duration
}

// Option configures an Engine
type Option func(*Engine)

// WithGracePeriod overrides DefaultGracePeriod
func WithGracePeriod(d time.Duration) Option {
	return func(e *Engine) {
		e.grace = d
	}
}

// New creates an engine. fixtures may be nil when no workload declares any.
func New(fixtures Fixtures, logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		fixtures: fixtures,
		logger:   logger.Named("engine"),
		grace:    DefaultGracePeriod,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// recorder collects samples from the run goroutine so a timed-out run can
// still report what it measured.
type recorder struct {
	mu      sync.Mutex
	samples []report.Sample
}

func (r *recorder) add(s report.Sample) {
	r.mu.Lock()
	r.samples = append(r.samples, s)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []report.Sample {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]report.Sample, len(r.samples))
	copy(out, r.samples)
	return out
}

// RunWorkload runs one parameter combination of desc.
//
// Measurement failures are recorded as failed samples and the run goes on.
// Setup and warmup failures abort with *WorkloadError, fixture start
// failures with *fixture.StartError. When the deadline passes, the partial
// report is returned together with *TimeoutError.
func (e *Engine) RunWorkload(ctx context.Context, desc workload.Descriptor, params workload.Params, opts Options) (report.Report, error) {
	if err := opts.Validate(); err != nil {
		return report.Report{}, fmt.Errorf("workload %s: %w", desc.Name, err)
	}

	id := report.Identity{Workload: desc.Name, Params: params.Key()}
	logger := e.logger.With(zap.String("workload", desc.Name), zap.String("params", id.Params))

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	handles, resources, err := e.acquire(ctx, desc)
	if err != nil {
		return report.Report{}, err
	}

	rec := &recorder{}
	done := make(chan error, 1)

	// The run goroutine owns setup, iterations, teardown and the fixture
	// references, so an abandoned run still cleans up once Run returns.
	go func() {
		err := e.execute(ctx, logger, desc, params, resources, opts, rec)
		e.release(ctx, logger, handles)
		done <- err
	}()

	var runErr error
	select {
	case runErr = <-done:
	case <-ctx.Done():
		timer := time.NewTimer(e.grace)
		select {
		case runErr = <-done:
		case <-timer.C:
			logger.Warn("workload ignored cancellation, abandoning run", zap.Duration("grace", e.grace))
			runErr = ctx.Err()
		}
		timer.Stop()
	}

	r := report.Aggregate(id, rec.snapshot())

	if ctxErr := ctx.Err(); ctxErr != nil {
		var wlErr *WorkloadError
		if errors.As(runErr, &wlErr) && wlErr.Phase != PhaseTeardown && !errors.Is(wlErr.Err, ctxErr) {
			// The workload failed on its own before the deadline
			return report.Report{}, runErr
		}

		r.TimedOut = true
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			logger.Warn("workload timed out", zap.Int("completed", r.Count))
			return r, &TimeoutError{
				Workload:  desc.Name,
				Params:    id.Params,
				Completed: r.Count,
				Timeout:   opts.Timeout,
			}
		}
		return r, fmt.Errorf("workload %s: %w", desc.Name, ctxErr)
	}

	if runErr != nil {
		var wlErr *WorkloadError
		if errors.As(runErr, &wlErr) && wlErr.Phase == PhaseTeardown {
			// Measurements are complete; surface the report with the error
			return r, runErr
		}
		return report.Report{}, runErr
	}

	logger.Debug("workload finished",
		zap.Int("successes", r.Successes),
		zap.Int("failures", r.Failures),
		zap.Duration("mean", r.Mean),
	)
	return r, nil
}

// execute runs the phases in order. It returns nil when measurement
// completed or stopped because ctx ended.
func (e *Engine) execute(ctx context.Context, logger *zap.Logger, desc workload.Descriptor, params workload.Params, resources map[string]any, opts Options, rec *recorder) (err error) {
	id := params.Key()

	var state workload.State
	if desc.Setup != nil {
		logger.Debug("setup")
		state, err = desc.Setup(ctx, workload.NewEnv(params, resources))
		if err != nil {
			return &WorkloadError{Workload: desc.Name, Params: id, Phase: PhaseSetup, Err: err}
		}
	}

	if desc.Teardown != nil {
		defer func() {
			cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
			defer cancel()

			logger.Debug("teardown")
			if tdErr := desc.Teardown(cleanupCtx, state); tdErr != nil {
				logger.Warn("teardown failed", zap.Error(tdErr))
				if err == nil {
					err = &WorkloadError{Workload: desc.Name, Params: id, Phase: PhaseTeardown, Err: tdErr}
				}
			}
		}()
	}

	logger.Debug("warmup", zap.Int("iterations", opts.Warmup))
	for i := 0; i < opts.Warmup; i++ {
		if ctx.Err() != nil {
			return nil
		}
		if err := desc.Run(ctx, state); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return &WorkloadError{Workload: desc.Name, Params: id, Phase: PhaseWarmup, Iteration: i, Err: err}
		}
	}

	logger.Debug("measure", zap.Int("iterations", opts.Iterations))
	for i := 0; i < opts.Iterations; i++ {
		if ctx.Err() != nil {
			return nil
		}

		sample := measure(ctx, desc.Run, state, opts.TrackAllocations)
		if sample.Err != nil && ctx.Err() != nil {
			// Interrupted by the deadline, not a workload failure
			return nil
		}
		if sample.Err != nil {
			logger.Debug("iteration failed", zap.Int("iteration", i), zap.Error(sample.Err))
		}
		rec.add(sample)
	}

	return nil
}

// measure times one Run call. Allocation counters are read outside the
// timed region.
func measure(ctx context.Context, run workload.RunFunc, state workload.State, trackAlloc bool) report.Sample {
	var before, after runtime.MemStats
	if trackAlloc {
		runtime.ReadMemStats(&before)
	}

	start := time.Now()
	err := run(ctx, state)
	elapsed := time.Since(start)

	s := report.Sample{Duration: elapsed, Err: err}
	if trackAlloc {
		runtime.ReadMemStats(&after)
		s.AllocTracked = true
		s.AllocBytes = after.TotalAlloc - before.TotalAlloc
		s.Allocs = after.Mallocs - before.Mallocs
	}
	return s
}

// acquire takes the descriptor's fixtures in declaration order. On failure
// the fixtures already taken are released.
func (e *Engine) acquire(ctx context.Context, desc workload.Descriptor) ([]*fixture.Handle, map[string]any, error) {
	if len(desc.Fixtures) == 0 {
		return nil, nil, nil
	}
	if e.fixtures == nil {
		return nil, nil, fmt.Errorf("workload %s needs fixtures %v but the engine has none", desc.Name, desc.Fixtures)
	}

	handles := make([]*fixture.Handle, 0, len(desc.Fixtures))
	resources := make(map[string]any, len(desc.Fixtures))

	for _, name := range desc.Fixtures {
		h, err := e.fixtures.Acquire(ctx, name)
		if err != nil {
			e.release(ctx, e.logger, handles)
			return nil, nil, fmt.Errorf("workload %s: %w", desc.Name, err)
		}
		handles = append(handles, h)
		resources[name] = h.Resource()
	}

	return handles, resources, nil
}

// release drops fixture references in reverse acquisition order
func (e *Engine) release(ctx context.Context, logger *zap.Logger, handles []*fixture.Handle) {
	if len(handles) == 0 {
		return
	}

	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	for i := len(handles) - 1; i >= 0; i-- {
		if err := handles[i].Release(cleanupCtx); err != nil {
			logger.Warn("fixture release failed", zap.String("fixture", handles[i].Name()), zap.Error(err))
		}
	}
}
