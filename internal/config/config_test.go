package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), FilePermissions))
	return path
}

// TestDefault tests the built-in defaults
func TestDefault(t *testing.T) {
	s := Default()
	require.NoError(t, s.Validate())

	assert.Equal(t, 3, s.Warmup)
	assert.Equal(t, 20, s.Iterations)
	assert.Equal(t, "table", s.Format)
	assert.Equal(t, "127.0.0.1", s.Server.Host)
	assert.Equal(t, 0, s.Server.Port)
	assert.Equal(t, int64(64<<20), s.Server.ReadLimit)

	timeout, err := s.GetTimeout()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, timeout)
}

// TestLoad_YAML tests a YAML suite that overrides some defaults
func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "suite.yaml", `
iterations: 50
timeout: 30s
format: markdown
server:
  port: 9090
workloads:
  - name: ws.echo
    params:
      size: [256, 4096]
      type: binary
  - name: cpu.fibonacci
`)

	s, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 3, s.Warmup, "default kept")
	assert.Equal(t, 50, s.Iterations)
	assert.Equal(t, "markdown", s.Format)
	assert.Equal(t, 9090, s.Server.Port)
	assert.Equal(t, "127.0.0.1", s.Server.Host, "default kept")

	require.Len(t, s.Workloads, 2)
	assert.Equal(t, []string{"size=256", "size=4096", "type=binary"}, s.Workloads[0].Selector())
	assert.Empty(t, s.Workloads[1].Selector())

	timeout, err := s.GetTimeout()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, timeout)
}

// TestLoad_JSON tests a JSON suite
func TestLoad_JSON(t *testing.T) {
	path := writeFile(t, "suite.json", `{
  "warmup": 0,
  "iterations": 5,
  "trackAllocations": true,
  "format": "json",
  "workloads": [{"name": "cpu.sieve", "params": {"n": 100000}}]
}`)

	s, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 0, s.Warmup)
	assert.True(t, s.TrackAllocations)
	assert.Equal(t, []string{"n=100000"}, s.Workloads[0].Selector())
}

// TestLoad_JSONC tests comments, trailing commas and large integers
func TestLoad_JSONC(t *testing.T) {
	path := writeFile(t, "suite.jsonc", `{
  // quick smoke run
  "iterations": 2,
  "workloads": [
    {"name": "cpu.sieve", "params": {"n": 1000000, "mode": ["single", "parallel",]}},
  ],
}`)

	s, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 2, s.Iterations)
	assert.Equal(t, []string{"mode=parallel", "mode=single", "n=1000000"}, s.Workloads[0].Selector())
}

// TestLoad_Errors tests unreadable, unsupported and invalid files
func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read")

	_, err = Load(writeFile(t, "suite.toml", "iterations = 1"))
	assert.ErrorContains(t, err, "unsupported suite file format")

	_, err = Load(writeFile(t, "bad.yaml", "iterations: [1"))
	assert.ErrorContains(t, err, "failed to parse YAML")

	_, err = Load(writeFile(t, "bad.json", `{"iterations": "many"}`))
	assert.ErrorContains(t, err, "failed to parse JSON")

	_, err = Load(writeFile(t, "invalid.yaml", "iterations: 0"))
	assert.ErrorContains(t, err, "iterations must be greater than 0")
}

// TestSuite_Validate tests validation rules
func TestSuite_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(s *Suite)
		errMsg string
	}{
		{"negative warmup", func(s *Suite) { s.Warmup = -1 }, "warmup cannot be negative"},
		{"zero iterations", func(s *Suite) { s.Iterations = 0 }, "iterations must be greater than 0"},
		{"too many iterations", func(s *Suite) { s.Iterations = 1_000_001 }, "cannot exceed"},
		{"bad timeout", func(s *Suite) { s.Timeout = "soon" }, "invalid timeout"},
		{"negative timeout", func(s *Suite) { s.Timeout = "-1s" }, "timeout cannot be negative"},
		{"unknown format", func(s *Suite) { s.Format = "html" }, "format must be one of"},
		{"port too high", func(s *Suite) { s.Server.Port = 70000 }, "server port"},
		{"negative port", func(s *Suite) { s.Server.Port = -1 }, "server port"},
		{"unnamed workload", func(s *Suite) { s.Workloads = []Workload{{}} }, "name is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Default()
			tt.modify(s)
			assert.ErrorContains(t, s.Validate(), tt.errMsg)
		})
	}

	s := Default()
	s.Timeout = "0"
	require.NoError(t, s.Validate())
	timeout, _ := s.GetTimeout()
	assert.Equal(t, time.Duration(0), timeout)
}
