// Package filter narrows and reshapes JSON reports with JMESPath. A query
// written as $(command) pipes the document through a shell command instead.
package filter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/jmespath/go-jmespath"
	"github.com/studiowebux/benchkit/internal/report"
)

const (
	// QueryShellTimeout is the maximum time allowed for query shell command execution
	QueryShellTimeout = 30 * time.Second
)

var (
	// Shell command pattern: $(command)
	shellPattern = regexp.MustCompile(`^\$\((.+)\)$`)
)

// Query is a compiled filter and query. The filter runs first and narrows
// the report list (e.g. [?failures > `0`]); the query then selects or
// reshapes what is left (e.g. [].{name: workload, p99: p99Ns}).
type Query struct {
	filter *jmespath.JMESPath
	query  *jmespath.JMESPath
	shell  string
}

// Compile parses both expressions so mistakes surface before any workload
// runs. Either may be empty.
func Compile(filter, query string) (*Query, error) {
	q := &Query{}

	if filter != "" {
		jp, err := jmespath.Compile(filter)
		if err != nil {
			return nil, fmt.Errorf("invalid filter '%s': %w", filter, err)
		}
		q.filter = jp
	}

	switch m := shellPattern.FindStringSubmatch(query); {
	case len(m) > 1:
		q.shell = m[1]
	case query != "":
		jp, err := jmespath.Compile(query)
		if err != nil {
			return nil, fmt.Errorf("invalid query '%s': %w", query, err)
		}
		q.query = jp
	}

	return q, nil
}

// Empty reports whether q leaves the reports as they are
func (q *Query) Empty() bool {
	return q == nil || (q.filter == nil && q.query == nil && q.shell == "")
}

// Run applies q to reports. The result is indented JSON, or the trimmed
// output of the shell command for a $(...) query.
func (q *Query) Run(ctx context.Context, reports []report.Report) (string, error) {
	doc, err := document(reports)
	if err != nil {
		return "", err
	}

	if q.filter != nil {
		if doc, err = q.filter.Search(doc); err != nil {
			return "", fmt.Errorf("failed to apply filter: %w", err)
		}
	}
	if q.query != nil {
		if doc, err = q.query.Search(doc); err != nil {
			return "", fmt.Errorf("failed to apply query: %w", err)
		}
	}

	// A filter or query that matches nothing yields null
	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal result: %w", err)
	}

	if q.shell != "" {
		return pipe(ctx, q.shell, out)
	}
	return string(out), nil
}

// document converts reports into the generic form JMESPath walks, keyed by
// their JSON field names.
func document(reports []report.Report) (any, error) {
	if reports == nil {
		reports = []report.Report{}
	}
	data, err := json.Marshal(reports)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal reports: %w", err)
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode reports: %w", err)
	}
	return doc, nil
}

// pipe runs command with sh, feeding input on stdin
func pipe(ctx context.Context, command string, input []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryShellTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Stdin = bytes.NewReader(input)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", fmt.Errorf("query command '%s' failed: %s", command, msg)
	}

	return strings.TrimSpace(stdout.String()), nil
}
