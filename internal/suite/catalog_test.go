package suite

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/studiowebux/benchkit/internal/echo"
	"github.com/studiowebux/benchkit/internal/engine"
	"github.com/studiowebux/benchkit/internal/fixture"
	"github.com/studiowebux/benchkit/internal/workload"
)

// newHarness returns a registry holding the catalog and an engine backed
// by live fixtures
func newHarness(t *testing.T) (*workload.Registry, *engine.Engine, *fixture.Manager) {
	t.Helper()

	reg := workload.NewRegistry()
	require.NoError(t, Register(reg))

	m := fixture.NewManager(nil)
	_, err := RegisterFixtures(m, echo.Options{Host: "127.0.0.1"}, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		m.Shutdown(ctx)
	})

	return reg, engine.New(m, nil), m
}

// TestCatalog_Register tests that every catalog workload registers once
func TestCatalog_Register(t *testing.T) {
	reg := workload.NewRegistry()
	require.NoError(t, Register(reg))
	assert.Equal(t, len(Descriptors()), reg.Len())

	err := Register(reg)
	require.Error(t, err)
	var dup *workload.DuplicateNameError
	assert.ErrorAs(t, err, &dup)
}

// TestCatalog_Areas tests that workload names carry their area prefix and
// that only database and network workloads need fixtures
func TestCatalog_Areas(t *testing.T) {
	areas := map[string]bool{"cpu": true, "memory": true, "concurrency": true, "io": true, "json": true, "yaml": true, "db": true, "http": true, "ws": true}

	for _, d := range Descriptors() {
		area, _, ok := strings.Cut(d.Name, ".")
		require.True(t, ok, d.Name)
		assert.True(t, areas[area], "unexpected area in %s", d.Name)
		assert.NotEmpty(t, d.Description, d.Name)

		switch area {
		case "db":
			assert.Equal(t, []string{FixtureSQLite}, d.Fixtures, d.Name)
		case "http", "ws":
			assert.Equal(t, []string{FixtureEchoServer}, d.Fixtures, d.Name)
		default:
			assert.Empty(t, d.Fixtures, d.Name)
		}
	}
}

// TestCatalog_RunAll runs every combination of every workload once
func TestCatalog_RunAll(t *testing.T) {
	if testing.Short() {
		t.Skip("runs the full catalog")
	}

	reg, eng, m := newHarness(t)

	reports, err := eng.RunSuite(context.Background(), reg, []string{engine.AllWorkloads}, nil, engine.Options{Iterations: 1})
	require.NoError(t, err)

	total := 0
	for _, d := range Descriptors() {
		total += d.Space().Count()
	}
	assert.Len(t, reports, total)

	for _, r := range reports {
		assert.Equal(t, 1, r.Successes, "%s: %v", r.Name(), r.Errors)
		assert.Zero(t, r.Failures, "%s: %v", r.Name(), r.Errors)
	}

	// Fixtures start once for the suite and are released at its end
	for _, name := range m.Names() {
		stats, err := m.Stats(name)
		require.NoError(t, err)
		assert.Equal(t, "idle", stats.State, name)
		assert.Equal(t, 1, stats.Starts, name)
		assert.Equal(t, 1, stats.Stops, name)
	}
}

// TestCatalog_FixturesStartOnce tests that network and database workloads
// share one echo server and one database across workloads
func TestCatalog_FixturesStartOnce(t *testing.T) {
	reg, eng, m := newHarness(t)

	sel, err := workload.ParseSelector([]string{"size=256", "type=binary"})
	require.NoError(t, err)

	names := []string{"ws.echo", "ws.connect-close", "db.find-by-id", "db.insert"}
	reports, err := eng.RunSuite(context.Background(), reg, names, sel, engine.Options{Iterations: 2})
	require.NoError(t, err)
	require.Len(t, reports, 4)
	for _, r := range reports {
		assert.Equal(t, 2, r.Successes, "%s: %v", r.Name(), r.Errors)
	}

	for _, name := range []string{FixtureEchoServer, FixtureSQLite} {
		stats, err := m.Stats(name)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Starts, name)
		assert.Equal(t, 1, stats.Stops, name)
	}
}

// TestCatalog_Selector tests narrowing a sweep to one axis value
func TestCatalog_Selector(t *testing.T) {
	reg, eng, _ := newHarness(t)

	sel, err := workload.ParseSelector([]string{"size=256", "type=text"})
	require.NoError(t, err)

	reports, err := eng.RunSuite(context.Background(), reg, []string{"ws.echo"}, sel, engine.Options{Warmup: 1, Iterations: 3})
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, "ws.echo[size=256,type=text]", reports[0].Name())
	assert.Equal(t, 3, reports[0].Successes, reports[0].Errors)
}
