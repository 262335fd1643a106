// Package config loads benchmark suite files.
package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/studiowebux/benchkit/internal/report"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

const (
	// FilePermissions is the default permission mode for regular files (read/write for owner, read for others)
	FilePermissions = 0644
	// DirPermissions is the default permission mode for directories (rwxr-xr-x)
	DirPermissions = 0755

	maxIterations = 1_000_000
)

// Server configures the echo server fixture
type Server struct {
	Host           string `yaml:"host" json:"host"`
	Port           int    `yaml:"port" json:"port"`
	ReadLimit      int64  `yaml:"readLimit" json:"readLimit"`
	MaxUploadBytes int64  `yaml:"maxUploadBytes" json:"maxUploadBytes"`
}

// Workload selects one workload and optionally pins some of its axes
type Workload struct {
	Name   string         `yaml:"name" json:"name"`
	Params map[string]any `yaml:"params,omitempty" json:"params,omitempty"`
}

// Suite is the content of a suite file
type Suite struct {
	Warmup           int        `yaml:"warmup" json:"warmup"`
	Iterations       int        `yaml:"iterations" json:"iterations"`
	Timeout          string     `yaml:"timeout" json:"timeout"` // Go duration, e.g. "90s"; "0" disables
	TrackAllocations bool       `yaml:"trackAllocations" json:"trackAllocations"`
	Format           string     `yaml:"format" json:"format"`
	Server           Server     `yaml:"server" json:"server"`
	Workloads        []Workload `yaml:"workloads,omitempty" json:"workloads,omitempty"`
}

// Default returns the settings used when no suite file is given
func Default() *Suite {
	return &Suite{
		Warmup:     3,
		Iterations: 20,
		Timeout:    "2m",
		Format:     report.FormatTable,
		Server: Server{
			Host:           "127.0.0.1",
			Port:           0,
			ReadLimit:      64 << 20,
			MaxUploadBytes: 1 << 30,
		},
	}
}

// Load reads a suite file. Fields absent from the file keep their defaults.
func Load(path string) (*Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read suite file: %w", err)
	}

	suite := Default()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, suite); err != nil {
			return nil, fmt.Errorf("failed to parse YAML suite: %w", err)
		}
	case ".json", ".jsonc":
		// Comments and trailing commas are allowed in JSON suites
		if err := json.Unmarshal(jsonc.ToJSON(data), suite); err != nil {
			return nil, fmt.Errorf("failed to parse JSON suite: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported suite file format: %s (use .yaml, .yml, .json, or .jsonc)", ext)
	}

	if err := suite.Validate(); err != nil {
		return nil, fmt.Errorf("invalid suite %s: %w", path, err)
	}

	return suite, nil
}

// Validate validates the suite settings
func (s *Suite) Validate() error {
	if s.Warmup < 0 {
		return fmt.Errorf("warmup cannot be negative")
	}
	if s.Iterations <= 0 {
		return fmt.Errorf("iterations must be greater than 0")
	}
	if s.Iterations > maxIterations {
		return fmt.Errorf("iterations cannot exceed 1,000,000")
	}
	if _, err := s.GetTimeout(); err != nil {
		return err
	}
	if !report.ValidFormat(s.Format) {
		return fmt.Errorf("format must be one of %s, got %q", strings.Join(report.Formats(), ", "), s.Format)
	}
	if s.Server.Port < 0 || s.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 0 and 65535")
	}
	if s.Server.ReadLimit < 0 {
		return fmt.Errorf("server readLimit cannot be negative")
	}
	if s.Server.MaxUploadBytes < 0 {
		return fmt.Errorf("server maxUploadBytes cannot be negative")
	}

	for i, w := range s.Workloads {
		if w.Name == "" {
			return fmt.Errorf("workload %d: name is required", i)
		}
	}

	return nil
}

// GetTimeout returns the per-run timeout. Zero means no timeout.
func (s *Suite) GetTimeout() (time.Duration, error) {
	if s.Timeout == "" || s.Timeout == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(s.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q: %w", s.Timeout, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("timeout cannot be negative")
	}
	return d, nil
}

// Selector returns the workload's pinned parameters as sorted name=value
// pairs. A list value pins the axis to each of its elements.
func (w Workload) Selector() []string {
	pairs := make([]string, 0, len(w.Params))
	for name, value := range w.Params {
		if list, ok := value.([]any); ok {
			for _, v := range list {
				pairs = append(pairs, name+"="+formatParam(v))
			}
			continue
		}
		pairs = append(pairs, name+"="+formatParam(value))
	}
	slices.Sort(pairs)
	return pairs
}

// formatParam prints JSON numbers without an exponent so 1000000 matches
// the axis value 1000000
func formatParam(v any) string {
	if f, ok := v.(float64); ok && f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return strconv.FormatInt(int64(f), 10)
	}
	return fmt.Sprint(v)
}
