package report

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

func successes(durations ...time.Duration) []Sample {
	samples := make([]Sample, len(durations))
	for i, d := range durations {
		samples[i] = Sample{Duration: d}
	}
	return samples
}

// TestAggregate_Percentiles tests interpolated percentiles over 1..100ms
func TestAggregate_Percentiles(t *testing.T) {
	var durations []time.Duration
	// Out of order on purpose
	for i := 100; i >= 1; i-- {
		durations = append(durations, ms(i))
	}

	r := Aggregate(Identity{Workload: "cpu.sha256", Params: "bytes=1024"}, successes(durations...))

	assert.Equal(t, 100, r.Count)
	assert.Equal(t, 100, r.Successes)
	assert.Equal(t, 0, r.Failures)
	assert.Equal(t, ms(1), r.Min)
	assert.Equal(t, ms(100), r.Max)
	assert.InDelta(t, float64(50500*time.Microsecond), float64(r.Mean), float64(time.Microsecond))
	assert.InDelta(t, float64(50500*time.Microsecond), float64(r.P50), float64(time.Microsecond))
	assert.InDelta(t, float64(95050*time.Microsecond), float64(r.P95), float64(time.Microsecond))
	assert.InDelta(t, float64(99010*time.Microsecond), float64(r.P99), float64(time.Microsecond))
	assert.NotEmpty(t, r.RunID)
	assert.Equal(t, "cpu.sha256[bytes=1024]", r.Name())
}

// TestAggregate_StdDev tests the sample standard deviation
func TestAggregate_StdDev(t *testing.T) {
	r := Aggregate(Identity{Workload: "w"}, successes(ms(2), ms(4), ms(4), ms(4), ms(5), ms(5), ms(7), ms(9)))

	assert.Equal(t, ms(5), r.Mean)
	// sqrt(32/7) ms
	assert.InDelta(t, 2.138090, r.StdDev.Seconds()*1000, 1e-5)

	single := Aggregate(Identity{Workload: "w"}, successes(ms(3)))
	assert.Equal(t, time.Duration(0), single.StdDev)
	assert.Equal(t, ms(3), single.P99)
	assert.Equal(t, "w", single.Name())
}

// TestAggregate_AllFailures tests that failed samples are counted, never dropped
func TestAggregate_AllFailures(t *testing.T) {
	samples := make([]Sample, 100)
	for i := range samples {
		samples[i] = Sample{Duration: ms(1), Err: errors.New("boom")}
	}

	r := Aggregate(Identity{Workload: "always-fail"}, samples)

	assert.Equal(t, 100, r.Count)
	assert.Equal(t, 0, r.Successes)
	assert.Equal(t, 100, r.Failures)
	assert.Equal(t, time.Duration(0), r.Mean)
	assert.Equal(t, float64(0), r.Throughput)
	assert.Equal(t, []string{"boom"}, r.Errors)
}

// TestAggregate_Mixed tests that statistics only cover successful samples
func TestAggregate_Mixed(t *testing.T) {
	samples := []Sample{
		{Duration: ms(250)},
		{Duration: ms(999), Err: errors.New("timeout")},
		{Duration: ms(250)},
		{Duration: ms(250)},
		{Duration: ms(250)},
	}

	r := Aggregate(Identity{Workload: "w"}, samples)

	assert.Equal(t, 5, r.Count)
	assert.Equal(t, 4, r.Successes)
	assert.Equal(t, 1, r.Failures)
	assert.Equal(t, ms(250), r.Max)
	assert.InDelta(t, 4.0, r.Throughput, 1e-9)
}

// TestAggregate_DistinctErrorsCapped tests the error message list limit
func TestAggregate_DistinctErrorsCapped(t *testing.T) {
	var samples []Sample
	for i := 0; i < 20; i++ {
		samples = append(samples, Sample{Err: fmt.Errorf("error %d", i%8)})
	}

	r := Aggregate(Identity{Workload: "w"}, samples)

	assert.Equal(t, []string{"error 0", "error 1", "error 2", "error 3", "error 4"}, r.Errors)
	assert.Equal(t, 20, r.Failures)
}

// TestAggregate_Alloc tests allocation averages
func TestAggregate_Alloc(t *testing.T) {
	samples := []Sample{
		{Duration: ms(1), AllocTracked: true, AllocBytes: 100, Allocs: 2},
		{Duration: ms(1), AllocTracked: true, AllocBytes: 300, Allocs: 4},
		{Duration: ms(1), Err: errors.New("x"), AllocTracked: true, AllocBytes: 1 << 20, Allocs: 99},
	}

	r := Aggregate(Identity{Workload: "w"}, samples)
	require.NotNil(t, r.Alloc)
	assert.Equal(t, 200.0, r.Alloc.BytesPerOp)
	assert.Equal(t, 3.0, r.Alloc.AllocsPerOp)
	assert.Equal(t, uint64(400), r.Alloc.TotalBytes)

	untracked := Aggregate(Identity{Workload: "w"}, successes(ms(1)))
	assert.Nil(t, untracked.Alloc)
}

// TestAggregate_Empty tests a run with no samples
func TestAggregate_Empty(t *testing.T) {
	r := Aggregate(Identity{Workload: "w"}, nil)

	assert.Equal(t, 0, r.Count)
	assert.Equal(t, time.Duration(0), r.P50)
}

// TestPercentile tests interpolation edge cases
func TestPercentile(t *testing.T) {
	sorted := []time.Duration{10, 20, 30, 40}

	assert.Equal(t, time.Duration(10), Percentile(sorted, 0))
	assert.Equal(t, time.Duration(40), Percentile(sorted, 100))
	assert.Equal(t, time.Duration(25), Percentile(sorted, 50))
	assert.Equal(t, time.Duration(0), Percentile(nil, 50))
}
