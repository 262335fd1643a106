package report

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func sampleReports() []Report {
	return []Report{
		{
			RunID:      "run-1",
			Workload:   "cpu.sha256",
			Params:     "bytes=1024",
			Count:      20,
			Successes:  20,
			Mean:       ms(2),
			P50:        ms(2),
			P95:        ms(3),
			P99:        ms(4),
			Min:        ms(1),
			Max:        ms(4),
			Throughput: 500,
			Alloc:      &AllocStats{BytesPerOp: 2048, AllocsPerOp: 3},
		},
		{
			RunID:     "run-2",
			Workload:  "ws.echo",
			Count:     10,
			Successes: 8,
			Failures:  2,
			Errors:    []string{"read: connection reset | peer"},
			TimedOut:  true,
		},
	}
}

// TestRender_JSON tests that JSON output round-trips the report fields
func TestRender_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, FormatJSON, sampleReports()))

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, "cpu.sha256", decoded[0]["workload"])
	assert.Equal(t, float64(2_000_000), decoded[0]["meanNs"])
	assert.Equal(t, true, decoded[1]["timedOut"])
	assert.NotContains(t, decoded[1], "alloc")
}

// TestRender_JSONEmpty tests that no reports render as an empty array
func TestRender_JSONEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, FormatJSON, nil))
	assert.Equal(t, "[]\n", buf.String())
}

// TestRender_YAML tests YAML output
func TestRender_YAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, FormatYAML, sampleReports()))

	var decoded []map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, "ws.echo", decoded[1]["workload"])
	assert.Equal(t, 2, decoded[1]["failures"])
}

// TestRender_Markdown tests the markdown table and error list
func TestRender_Markdown(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, FormatMarkdown, sampleReports()))
	out := buf.String()

	assert.Contains(t, out, "| Workload | Params | N |")
	assert.Contains(t, out, "| cpu.sha256 | bytes=1024 | 20 | 20 | 0 | 2.00ms |")
	assert.Contains(t, out, "2 KB")
	assert.Contains(t, out, "timed out")
	assert.Contains(t, out, `connection reset \| peer`)
	assert.Contains(t, out, "### Errors: ws.echo")
}

// TestRender_Table tests the terminal table
func TestRender_Table(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, FormatTable, sampleReports()))
	out := buf.String()

	assert.Contains(t, out, "Workload")
	assert.Contains(t, out, "cpu.sha256")
	assert.Contains(t, out, "ws.echo")
	assert.Contains(t, out, "500.00")
}

// TestRender_UnknownFormat tests format validation
func TestRender_UnknownFormat(t *testing.T) {
	err := Render(&bytes.Buffer{}, "html", nil)
	assert.Error(t, err)
	assert.False(t, ValidFormat("html"))
	for _, f := range Formats() {
		assert.True(t, ValidFormat(f))
	}
}

// TestFormatBytes tests byte formatting
func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in       uint64
		expected string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1024, "1 KB"},
		{1536, "1.5 KB"},
		{10 * 1024 * 1024, "10 MB"},
		{3 << 30, "3 GB"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, formatBytes(tt.in))
	}
}

// TestFormatDuration tests duration formatting
func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "-", FormatDuration(0))
	assert.Equal(t, "850ns", FormatDuration(850))
	assert.Equal(t, "1.50µs", FormatDuration(1500))
	assert.Equal(t, "2.00ms", FormatDuration(ms(2)))
	assert.Equal(t, "1.25s", FormatDuration(ms(1250)))
}
