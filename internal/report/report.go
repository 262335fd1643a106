// Package report turns measured samples into statistics and renders them.
package report

import (
	"math"
	"slices"
	"time"

	"github.com/google/uuid"
)

// maxErrors is how many distinct error messages a report keeps
const maxErrors = 5

// Sample is the outcome of one measured call
type Sample struct {
	Duration time.Duration
	Err      error

	// Allocation deltas, set when the engine tracks allocations
	AllocTracked bool
	AllocBytes   uint64
	Allocs       uint64
}

// Identity names what a report measured
type Identity struct {
	Workload string
	Params   string // canonical parameter key, e.g. "size=256,type=binary"
}

// AllocStats summarizes allocation deltas over successful samples
type AllocStats struct {
	BytesPerOp  float64 `json:"bytesPerOp" yaml:"bytesPerOp"`
	AllocsPerOp float64 `json:"allocsPerOp" yaml:"allocsPerOp"`
	TotalBytes  uint64  `json:"totalBytes" yaml:"totalBytes"`
	TotalAllocs uint64  `json:"totalAllocs" yaml:"totalAllocs"`
}

// Report is the aggregated result of one workload run. Durations are
// computed over successful samples only; failures are counted separately.
type Report struct {
	RunID      string        `json:"runId" yaml:"runId"`
	Workload   string        `json:"workload" yaml:"workload"`
	Params     string        `json:"params" yaml:"params"`
	Count      int           `json:"count" yaml:"count"`
	Successes  int           `json:"successes" yaml:"successes"`
	Failures   int           `json:"failures" yaml:"failures"`
	Mean       time.Duration `json:"meanNs" yaml:"mean"`
	StdDev     time.Duration `json:"stdDevNs" yaml:"stdDev"`
	Min        time.Duration `json:"minNs" yaml:"min"`
	Max        time.Duration `json:"maxNs" yaml:"max"`
	P50        time.Duration `json:"p50Ns" yaml:"p50"`
	P95        time.Duration `json:"p95Ns" yaml:"p95"`
	P99        time.Duration `json:"p99Ns" yaml:"p99"`
	Throughput float64       `json:"throughput" yaml:"throughput"` // successful ops per second
	Alloc      *AllocStats   `json:"alloc,omitempty" yaml:"alloc,omitempty"`
	Errors     []string      `json:"errors,omitempty" yaml:"errors,omitempty"`
	TimedOut   bool          `json:"timedOut" yaml:"timedOut"`
}

// Name returns the workload name with its parameters, if any
func (r Report) Name() string {
	if r.Params == "" {
		return r.Workload
	}
	return r.Workload + "[" + r.Params + "]"
}

// Aggregate computes a report from the samples of one run
func Aggregate(id Identity, samples []Sample) Report {
	r := Report{
		RunID:    uuid.NewString(),
		Workload: id.Workload,
		Params:   id.Params,
		Count:    len(samples),
	}

	durations := make([]time.Duration, 0, len(samples))
	var total time.Duration
	var alloc AllocStats
	tracked := 0

	for _, s := range samples {
		if s.Err != nil {
			r.Failures++
			r.addError(s.Err.Error())
			continue
		}

		r.Successes++
		durations = append(durations, s.Duration)
		total += s.Duration

		if s.AllocTracked {
			tracked++
			alloc.TotalBytes += s.AllocBytes
			alloc.TotalAllocs += s.Allocs
		}
	}

	if len(durations) == 0 {
		return r
	}

	slices.Sort(durations)
	r.Min = durations[0]
	r.Max = durations[len(durations)-1]
	r.Mean = total / time.Duration(len(durations))
	r.StdDev = stdDev(durations, r.Mean)
	r.P50 = Percentile(durations, 50)
	r.P95 = Percentile(durations, 95)
	r.P99 = Percentile(durations, 99)

	if total > 0 {
		r.Throughput = float64(r.Successes) / total.Seconds()
	}

	if tracked > 0 {
		alloc.BytesPerOp = float64(alloc.TotalBytes) / float64(tracked)
		alloc.AllocsPerOp = float64(alloc.TotalAllocs) / float64(tracked)
		r.Alloc = &alloc
	}

	return r
}

func (r *Report) addError(msg string) {
	if len(r.Errors) >= maxErrors || slices.Contains(r.Errors, msg) {
		return
	}
	r.Errors = append(r.Errors, msg)
}

// stdDev is the sample standard deviation (n-1 denominator)
func stdDev(durations []time.Duration, mean time.Duration) time.Duration {
	if len(durations) < 2 {
		return 0
	}

	var sum float64
	for _, d := range durations {
		diff := float64(d - mean)
		sum += diff * diff
	}
	return time.Duration(math.Sqrt(sum / float64(len(durations)-1)))
}

// Percentile returns the p-th percentile (0-100) of sorted durations,
// interpolating linearly between the two nearest ranks.
func Percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}

	index := (p / 100.0) * float64(len(sorted)-1)
	lower := int(index)
	upper := lower + 1

	if upper >= len(sorted) {
		return sorted[len(sorted)-1]
	}

	weight := index - float64(lower)
	return time.Duration(float64(sorted[lower])*(1-weight) + float64(sorted[upper])*weight)
}
