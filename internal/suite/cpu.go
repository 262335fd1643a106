package suite

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"math/rand"
	"runtime"
	"sync/atomic"

	"github.com/studiowebux/benchkit/internal/workload"
	"golang.org/x/sync/errgroup"
)

// Seed used for every generated input so runs are comparable
const inputSeed = 42

// Known prime counts used to check sieve results
var primeCounts = map[int]int{
	100_000:   9_592,
	1_000_000: 78_498,
}

var (
	digestSink []byte
	floatSink  float64
)

func randomBytes(size int) []byte {
	b := make([]byte, size)
	rand.New(rand.NewSource(inputSeed)).Read(b)
	return b
}

type matrixState struct {
	n       int
	a, b, c []float64
}

type hashState struct {
	data []byte
}

func cpuWorkloads() []workload.Descriptor {
	hashAxis := workload.Axis{Name: "bytes", Values: []any{1024, 1024 * 1024}}

	hashSetup := func(_ context.Context, env workload.Env) (workload.State, error) {
		return &hashState{data: randomBytes(env.Params.Int("bytes", 1024))}, nil
	}

	return []workload.Descriptor{
		{
			Name:        "cpu.matrix",
			Description: "Naive dense matrix multiplication of two size×size float64 matrices",
			Axes:        []workload.Axis{{Name: "size", Values: []any{64, 128}}},
			Setup: func(_ context.Context, env workload.Env) (workload.State, error) {
				n := env.Params.Int("size", 64)
				rng := rand.New(rand.NewSource(inputSeed))
				s := &matrixState{
					n: n,
					a: make([]float64, n*n),
					b: make([]float64, n*n),
					c: make([]float64, n*n),
				}
				for i := range s.a {
					s.a[i] = rng.Float64()
					s.b[i] = rng.Float64()
				}
				return s, nil
			},
			Run: func(_ context.Context, state workload.State) error {
				s := state.(*matrixState)
				multiply(s.n, s.a, s.b, s.c)
				floatSink = s.c[len(s.c)-1]
				return nil
			},
		},
		{
			Name:        "cpu.sha256",
			Description: "SHA-256 digest of a random buffer",
			Axes:        []workload.Axis{hashAxis},
			Setup:       hashSetup,
			Run: func(_ context.Context, state workload.State) error {
				sum := sha256.Sum256(state.(*hashState).data)
				digestSink = sum[:]
				return nil
			},
		},
		{
			Name:        "cpu.sha512",
			Description: "SHA-512 digest of a random buffer",
			Axes:        []workload.Axis{hashAxis},
			Setup:       hashSetup,
			Run: func(_ context.Context, state workload.State) error {
				sum := sha512.Sum512(state.(*hashState).data)
				digestSink = sum[:]
				return nil
			},
		},
		{
			Name:        "cpu.hmac-sha256",
			Description: "HMAC-SHA256 of a random buffer keyed with itself",
			Axes:        []workload.Axis{hashAxis},
			Setup:       hashSetup,
			Run: func(_ context.Context, state workload.State) error {
				data := state.(*hashState).data
				mac := hmac.New(sha256.New, data)
				mac.Write(data)
				digestSink = mac.Sum(nil)
				return nil
			},
		},
		{
			Name:        "cpu.sieve",
			Description: "Count primes up to n, with a sieve or parallel trial division",
			Axes: []workload.Axis{
				{Name: "n", Values: []any{100_000, 1_000_000}},
				{Name: "mode", Values: []any{"single", "parallel"}},
			},
			Setup: func(_ context.Context, env workload.Env) (workload.State, error) {
				return env.Params, nil
			},
			Run: func(ctx context.Context, state workload.State) error {
				params := state.(workload.Params)
				n := params.Int("n", 100_000)

				var count int
				var err error
				if params.String("mode", "single") == "parallel" {
					count, err = countPrimesParallel(ctx, n)
				} else {
					count = sieve(n)
				}
				if err != nil {
					return err
				}
				if want, ok := primeCounts[n]; ok && count != want {
					return fmt.Errorf("counted %d primes up to %d, want %d", count, n, want)
				}
				return nil
			},
		},
		{
			Name:        "cpu.fibonacci",
			Description: "Naive recursive Fibonacci",
			Axes:        []workload.Axis{{Name: "n", Values: []any{20}}},
			Setup: func(_ context.Context, env workload.Env) (workload.State, error) {
				return env.Params.Int("n", 20), nil
			},
			Run: func(_ context.Context, state workload.State) error {
				n := state.(int)
				if got := fibonacci(n); n == 20 && got != 6765 {
					return fmt.Errorf("fibonacci(20) = %d", got)
				}
				return nil
			},
		},
	}
}

// multiply computes c = a×b for row-major n×n matrices
func multiply(n int, a, b, c []float64) {
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			var sum float64
			for k := 0; k < n; k++ {
				sum += a[i*n+k] * b[k*n+j]
			}
			c[i*n+j] = sum
		}
	}
}

func sieve(n int) int {
	composite := make([]bool, n+1)
	for p := 2; p*p <= n; p++ {
		if composite[p] {
			continue
		}
		for i := p * p; i <= n; i += p {
			composite[i] = true
		}
	}

	count := 0
	for i := 2; i <= n; i++ {
		if !composite[i] {
			count++
		}
	}
	return count
}

func isPrime(n int) bool {
	if n < 2 {
		return false
	}
	if n%2 == 0 {
		return n == 2
	}
	for i := 3; i*i <= n; i += 2 {
		if n%i == 0 {
			return false
		}
	}
	return true
}

// countPrimesParallel splits [2, n] into one chunk per CPU
func countPrimesParallel(ctx context.Context, n int) (int, error) {
	workers := runtime.GOMAXPROCS(0)
	chunk := (n + workers - 1) / workers

	var count atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	for lo := 2; lo <= n; lo += chunk {
		hi := min(lo+chunk-1, n)
		g.Go(func() error {
			local := 0
			for i := lo; i <= hi; i++ {
				if isPrime(i) {
					local++
				}
			}
			count.Add(int64(local))
			return ctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return int(count.Load()), nil
}

func fibonacci(n int) int {
	if n < 2 {
		return n
	}
	return fibonacci(n-1) + fibonacci(n-2)
}
