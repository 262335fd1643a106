package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/studiowebux/benchkit/internal/fixture"
	"github.com/studiowebux/benchkit/internal/workload"
)

// eventLog records fixture lifecycle calls in order
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(e string) {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
}

func (l *eventLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

type loggedResource struct {
	name     string
	log      *eventLog
	startErr error
}

func (r *loggedResource) Start(context.Context) error {
	if r.startErr != nil {
		return r.startErr
	}
	r.log.add("start " + r.name)
	return nil
}

func (r *loggedResource) Stop(context.Context) error {
	r.log.add("stop " + r.name)
	return nil
}

// counters tracks how often each phase ran
type counters struct {
	setup    atomic.Int32
	run      atomic.Int32
	teardown atomic.Int32
}

func countingDescriptor(c *counters, run workload.RunFunc) workload.Descriptor {
	return workload.Descriptor{
		Name: "counting",
		Setup: func(ctx context.Context, env workload.Env) (workload.State, error) {
			c.setup.Add(1)
			return "state", nil
		},
		Run: func(ctx context.Context, state workload.State) error {
			c.run.Add(1)
			if run != nil {
				return run(ctx, state)
			}
			return nil
		},
		Teardown: func(ctx context.Context, state workload.State) error {
			c.teardown.Add(1)
			return nil
		},
	}
}

func opts(warmup, iterations int) Options {
	return Options{Warmup: warmup, Iterations: iterations}
}

// TestEngine_RunsPhases tests setup, warmup, measurement and teardown counts
func TestEngine_RunsPhases(t *testing.T) {
	c := &counters{}
	var seenState workload.State
	desc := countingDescriptor(c, func(ctx context.Context, state workload.State) error {
		seenState = state
		return nil
	})

	r, err := New(nil, nil).RunWorkload(context.Background(), desc, nil, opts(3, 20))
	require.NoError(t, err)

	assert.Equal(t, int32(1), c.setup.Load())
	assert.Equal(t, int32(23), c.run.Load())
	assert.Equal(t, int32(1), c.teardown.Load())
	assert.Equal(t, "state", seenState)

	assert.Equal(t, "counting", r.Workload)
	assert.Equal(t, 20, r.Count)
	assert.Equal(t, 20, r.Successes)
	assert.False(t, r.TimedOut)
	assert.Nil(t, r.Alloc)
}

// TestEngine_AlwaysFail tests that measurement failures are counted and the run continues
func TestEngine_AlwaysFail(t *testing.T) {
	c := &counters{}
	desc := countingDescriptor(c, func(context.Context, workload.State) error {
		return errors.New("always fails")
	})

	r, err := New(nil, nil).RunWorkload(context.Background(), desc, nil, opts(0, 100))
	require.NoError(t, err)

	assert.Equal(t, 0, r.Successes)
	assert.Equal(t, 100, r.Failures)
	assert.Equal(t, []string{"always fails"}, r.Errors)
	assert.Equal(t, int32(1), c.teardown.Load())
}

// TestEngine_WarmupFailureAborts tests that a warmup error stops the run
func TestEngine_WarmupFailureAborts(t *testing.T) {
	log := &eventLog{}
	m := fixture.NewManager(nil)
	require.NoError(t, m.Register("db", &loggedResource{name: "db", log: log}))

	c := &counters{}
	desc := countingDescriptor(c, func(context.Context, workload.State) error {
		if c.run.Load() == 2 {
			return errors.New("cold cache")
		}
		return nil
	})
	desc.Fixtures = []string{"db"}

	_, err := New(m, nil).RunWorkload(context.Background(), desc, nil, opts(3, 10))

	var wlErr *WorkloadError
	require.ErrorAs(t, err, &wlErr)
	assert.Equal(t, PhaseWarmup, wlErr.Phase)
	assert.Equal(t, 1, wlErr.Iteration)
	assert.ErrorContains(t, err, "cold cache")

	assert.Equal(t, int32(2), c.run.Load())
	assert.Equal(t, int32(1), c.teardown.Load())
	assert.Equal(t, []string{"start db", "stop db"}, log.list())
}

// TestEngine_SetupFailure tests that setup errors skip teardown but release fixtures
func TestEngine_SetupFailure(t *testing.T) {
	log := &eventLog{}
	m := fixture.NewManager(nil)
	require.NoError(t, m.Register("db", &loggedResource{name: "db", log: log}))

	c := &counters{}
	desc := countingDescriptor(c, nil)
	desc.Fixtures = []string{"db"}
	desc.Setup = func(context.Context, workload.Env) (workload.State, error) {
		return nil, errors.New("no schema")
	}

	_, err := New(m, nil).RunWorkload(context.Background(), desc, nil, opts(1, 1))

	var wlErr *WorkloadError
	require.ErrorAs(t, err, &wlErr)
	assert.Equal(t, PhaseSetup, wlErr.Phase)
	assert.Equal(t, int32(0), c.run.Load())
	assert.Equal(t, int32(0), c.teardown.Load())
	assert.Equal(t, []string{"start db", "stop db"}, log.list())
}

// TestEngine_FixtureOrder tests acquisition in declaration order and release in reverse
func TestEngine_FixtureOrder(t *testing.T) {
	log := &eventLog{}
	m := fixture.NewManager(nil)
	first := &loggedResource{name: "first", log: log}
	require.NoError(t, m.Register("first", first))
	require.NoError(t, m.Register("second", &loggedResource{name: "second", log: log}))

	desc := workload.Descriptor{
		Name:     "uses-two",
		Fixtures: []string{"first", "second"},
		Setup: func(ctx context.Context, env workload.Env) (workload.State, error) {
			res, err := workload.ResourceAs[*loggedResource](env, "first")
			if err != nil {
				return nil, err
			}
			log.add("setup with " + res.name)
			return nil, nil
		},
		Run: func(context.Context, workload.State) error { return nil },
	}

	_, err := New(m, nil).RunWorkload(context.Background(), desc, nil, opts(0, 1))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"start first",
		"start second",
		"setup with first",
		"stop second",
		"stop first",
	}, log.list())
}

// TestEngine_FixtureStartError tests that start failures propagate and
// release what was already acquired
func TestEngine_FixtureStartError(t *testing.T) {
	log := &eventLog{}
	m := fixture.NewManager(nil)
	require.NoError(t, m.Register("ok", &loggedResource{name: "ok", log: log}))
	require.NoError(t, m.Register("broken", &loggedResource{name: "broken", log: log, startErr: errors.New("port taken")}))

	c := &counters{}
	desc := countingDescriptor(c, nil)
	desc.Fixtures = []string{"ok", "broken"}

	_, err := New(m, nil).RunWorkload(context.Background(), desc, nil, opts(0, 1))

	var startErr *fixture.StartError
	require.ErrorAs(t, err, &startErr)
	assert.Equal(t, "broken", startErr.Name)
	assert.Equal(t, int32(0), c.setup.Load())
	assert.Equal(t, []string{"start ok", "stop ok"}, log.list())
}

// TestEngine_MissingFixtureManager tests a fixture-dependent workload without a manager
func TestEngine_MissingFixtureManager(t *testing.T) {
	desc := countingDescriptor(&counters{}, nil)
	desc.Fixtures = []string{"db"}

	_, err := New(nil, nil).RunWorkload(context.Background(), desc, nil, opts(0, 1))
	assert.Error(t, err)
}

// TestEngine_Timeout tests that a deadline yields a partial report and TimeoutError
func TestEngine_Timeout(t *testing.T) {
	c := &counters{}
	desc := countingDescriptor(c, func(ctx context.Context, _ workload.State) error {
		select {
		case <-time.After(20 * time.Millisecond):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	o := opts(0, 1000)
	o.Timeout = 150 * time.Millisecond

	r, err := New(nil, nil).RunWorkload(context.Background(), desc, nil, o)

	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, 150*time.Millisecond, timeoutErr.Timeout)
	assert.Greater(t, timeoutErr.Completed, 0)
	assert.Less(t, timeoutErr.Completed, 1000)

	assert.True(t, r.TimedOut)
	assert.Equal(t, timeoutErr.Completed, r.Count)
	assert.Equal(t, 0, r.Failures, "the interrupted iteration is not a failure")
	assert.Equal(t, int32(1), c.teardown.Load())
}

// TestEngine_TimeoutUncooperativeWorkload tests that the engine stops waiting
// for a workload that ignores cancellation
func TestEngine_TimeoutUncooperativeWorkload(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	desc := workload.Descriptor{
		Name: "stuck",
		Run: func(context.Context, workload.State) error {
			<-release
			return nil
		},
	}

	o := opts(0, 5)
	o.Timeout = 50 * time.Millisecond

	start := time.Now()
	r, err := New(nil, nil, WithGracePeriod(20*time.Millisecond)).RunWorkload(context.Background(), desc, nil, o)

	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, 0, timeoutErr.Completed)
	assert.True(t, r.TimedOut)
	assert.Less(t, time.Since(start), time.Second)
}

// TestEngine_CallerCancellation tests a cancelled parent context
func TestEngine_CallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	desc := countingDescriptor(&counters{}, func(context.Context, workload.State) error {
		cancel()
		return nil
	})

	r, err := New(nil, nil).RunWorkload(ctx, desc, nil, opts(0, 10))

	assert.ErrorIs(t, err, context.Canceled)
	var timeoutErr *TimeoutError
	assert.False(t, errors.As(err, &timeoutErr))
	assert.True(t, r.TimedOut)
}

var sink []byte

// TestEngine_TrackAllocations tests allocation deltas
func TestEngine_TrackAllocations(t *testing.T) {
	desc := workload.Descriptor{
		Name: "alloc",
		Run: func(context.Context, workload.State) error {
			sink = make([]byte, 1<<20)
			return nil
		},
	}

	o := opts(1, 5)
	o.TrackAllocations = true

	r, err := New(nil, nil).RunWorkload(context.Background(), desc, nil, o)
	require.NoError(t, err)
	require.NotNil(t, r.Alloc)
	assert.GreaterOrEqual(t, r.Alloc.BytesPerOp, float64(1<<20))
	assert.GreaterOrEqual(t, r.Alloc.AllocsPerOp, 1.0)
}

// TestEngine_InvalidOptions tests option validation
func TestEngine_InvalidOptions(t *testing.T) {
	desc := countingDescriptor(&counters{}, nil)
	e := New(nil, nil)

	for _, o := range []Options{
		{Warmup: 0, Iterations: 0},
		{Warmup: -1, Iterations: 1},
		{Warmup: 0, Iterations: maxIterations + 1},
		{Warmup: 0, Iterations: 1, Timeout: -time.Second},
	} {
		_, err := e.RunWorkload(context.Background(), desc, nil, o)
		assert.Error(t, err, "options %+v", o)
	}
}

// TestEngine_TeardownFailure tests that a teardown error keeps the report
func TestEngine_TeardownFailure(t *testing.T) {
	desc := countingDescriptor(&counters{}, nil)
	desc.Teardown = func(context.Context, workload.State) error {
		return errors.New("temp dir busy")
	}

	r, err := New(nil, nil).RunWorkload(context.Background(), desc, nil, opts(0, 4))

	var wlErr *WorkloadError
	require.ErrorAs(t, err, &wlErr)
	assert.Equal(t, PhaseTeardown, wlErr.Phase)
	assert.Equal(t, 4, r.Count)
}

func sizedDescriptor(name string, failSize int) workload.Descriptor {
	return workload.Descriptor{
		Name: name,
		Axes: []workload.Axis{
			{Name: "size", Values: []any{1, 2, 3}},
			{Name: "mode", Values: []any{"a", "b"}},
		},
		Setup: func(ctx context.Context, env workload.Env) (workload.State, error) {
			if env.Params.Int("size", 0) == failSize {
				return nil, fmt.Errorf("size %d unsupported", failSize)
			}
			return nil, nil
		},
		Run: func(context.Context, workload.State) error { return nil },
	}
}

// TestEngine_Sweep tests that a sweep runs selected combinations in order and
// continues past failures
func TestEngine_Sweep(t *testing.T) {
	desc := sizedDescriptor("sized", 2)
	sel := workload.Selector{"mode": {"a"}}

	reports, err := New(nil, nil).Sweep(context.Background(), desc, sel, opts(0, 2))

	var wlErr *WorkloadError
	require.ErrorAs(t, err, &wlErr)
	assert.Equal(t, "size=2,mode=a", wlErr.Params)

	require.Len(t, reports, 2)
	assert.Equal(t, "size=1,mode=a", reports[0].Params)
	assert.Equal(t, "size=3,mode=a", reports[1].Params)
}

// TestEngine_SweepUnknownAxis tests selector validation
func TestEngine_SweepUnknownAxis(t *testing.T) {
	desc := sizedDescriptor("sized", 0)

	_, err := New(nil, nil).Sweep(context.Background(), desc, workload.Selector{"colour": {"red"}}, opts(0, 1))
	assert.ErrorContains(t, err, "colour")
}

// TestEngine_RunSuite tests name expansion, selector restriction and unknown names
func TestEngine_RunSuite(t *testing.T) {
	reg := workload.NewRegistry()
	reg.MustRegister(
		sizedDescriptor("sized", 0),
		workload.Descriptor{Name: "plain", Run: func(context.Context, workload.State) error { return nil }},
	)
	e := New(nil, nil)

	reports, err := e.RunSuite(context.Background(), reg, []string{AllWorkloads}, workload.Selector{"size": {"3"}}, opts(0, 1))
	require.NoError(t, err)

	var names []string
	for _, r := range reports {
		names = append(names, r.Name())
	}
	assert.Equal(t, []string{"sized[size=3,mode=a]", "sized[size=3,mode=b]", "plain"}, names)

	reports, err = e.RunSuite(context.Background(), reg, []string{"missing", "plain"}, nil, opts(0, 1))
	var nfErr *workload.NotFoundError
	assert.ErrorAs(t, err, &nfErr)
	assert.Len(t, reports, 1)

	_, err = e.RunSuite(context.Background(), reg, []string{"plain"}, workload.Selector{"size": {"1"}}, opts(0, 1))
	assert.ErrorContains(t, err, `unknown parameter "size"`)
}

// TestEngine_RunSuiteStartsFixturesOnce tests that fixtures shared by several
// workloads and combinations start once for the whole suite
func TestEngine_RunSuiteStartsFixturesOnce(t *testing.T) {
	log := &eventLog{}
	m := fixture.NewManager(nil)
	require.NoError(t, m.Register("server", &loggedResource{name: "server", log: log}))
	require.NoError(t, m.Register("db", &loggedResource{name: "db", log: log}))

	sized := sizedDescriptor("sized", 0)
	sized.Fixtures = []string{"server"}
	both := workload.Descriptor{
		Name:     "both",
		Fixtures: []string{"server", "db"},
		Run:      func(context.Context, workload.State) error { return nil },
	}

	reg := workload.NewRegistry()
	reg.MustRegister(sized, both)

	reports, err := New(m, nil).RunSuite(context.Background(), reg, []string{AllWorkloads}, nil, opts(1, 2))
	require.NoError(t, err)
	assert.Len(t, reports, 7)

	assert.Equal(t, []string{"start server", "start db", "stop db", "stop server"}, log.list())
	for _, name := range []string{"server", "db"} {
		stats, err := m.Stats(name)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Starts, name)
		assert.Equal(t, 1, stats.Stops, name)
		assert.Equal(t, "idle", stats.State, name)
	}
}

// TestEngine_SweepFixtureStartError tests that a fixture failing to start
// before the sweep still surfaces as a start error from each run
func TestEngine_SweepFixtureStartError(t *testing.T) {
	m := fixture.NewManager(nil)
	require.NoError(t, m.Register("broken", &loggedResource{name: "broken", log: &eventLog{}, startErr: errors.New("port taken")}))

	desc := sizedDescriptor("sized", 0)
	desc.Fixtures = []string{"broken"}

	reports, err := New(m, nil).Sweep(context.Background(), desc, workload.Selector{"mode": {"a"}}, opts(0, 1))

	var startErr *fixture.StartError
	require.ErrorAs(t, err, &startErr)
	assert.Equal(t, "broken", startErr.Name)
	assert.Empty(t, reports)
}
