package suite

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"time"

	"github.com/jmespath/go-jmespath"
	"github.com/studiowebux/benchkit/internal/workload"
	"gopkg.in/yaml.v3"
)

// record is the document shape shared by the serialization workloads
type record struct {
	ID        int               `json:"id" yaml:"id"`
	Name      string            `json:"name" yaml:"name"`
	Email     string            `json:"email" yaml:"email"`
	Age       int               `json:"age" yaml:"age"`
	Active    bool              `json:"active" yaml:"active"`
	Score     float64           `json:"score" yaml:"score"`
	Tags      []string          `json:"tags" yaml:"tags"`
	Labels    map[string]string `json:"labels" yaml:"labels"`
	CreatedAt time.Time         `json:"createdAt" yaml:"createdAt"`
}

var (
	encodedSink []byte
	recordSink  []record
	anySink     any
)

func makeRecords(n int) []record {
	rng := rand.New(rand.NewSource(inputSeed))
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	records := make([]record, n)
	for i := range records {
		records[i] = record{
			ID:        i + 1,
			Name:      fmt.Sprintf("user-%d", i+1),
			Email:     fmt.Sprintf("user-%d@example.com", i+1),
			Age:       18 + rng.Intn(60),
			Active:    rng.Intn(2) == 0,
			Score:     rng.Float64() * 100,
			Tags:      []string{"alpha", "beta", fmt.Sprintf("t%d", i%7)},
			Labels:    map[string]string{"region": fmt.Sprintf("r%d", i%4)},
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
	}
	return records
}

// nested builds a document nested depth levels deep
func nested(depth int) map[string]any {
	doc := map[string]any{"value": depth}
	for i := depth - 1; i > 0; i-- {
		doc = map[string]any{"value": i, "child": doc}
	}
	return doc
}

func nestingDepth(doc any) int {
	depth := 0
	for doc != nil {
		m, ok := doc.(map[string]any)
		if !ok {
			break
		}
		depth++
		doc = m["child"]
	}
	return depth
}

type encodedState struct {
	records []record
	encoded []byte
	count   int
}

type queryState struct {
	doc   any
	query *jmespath.JMESPath
	want  int
}

func jsonWorkloads() []workload.Descriptor {
	countAxis := workload.Axis{Name: "count", Values: []any{100}}

	encodedSetup := func(_ context.Context, env workload.Env) (workload.State, error) {
		records := makeRecords(env.Params.Int("count", 100))
		encoded, err := json.Marshal(records)
		if err != nil {
			return nil, err
		}
		return &encodedState{records: records, encoded: encoded, count: len(records)}, nil
	}

	return []workload.Descriptor{
		{
			Name:        "json.marshal",
			Description: "Encode a slice of records to JSON",
			Axes:        []workload.Axis{countAxis},
			Setup:       encodedSetup,
			Run: func(_ context.Context, state workload.State) error {
				b, err := json.Marshal(state.(*encodedState).records)
				encodedSink = b
				return err
			},
		},
		{
			Name:        "json.unmarshal",
			Description: "Decode a JSON array into records",
			Axes:        []workload.Axis{countAxis},
			Setup:       encodedSetup,
			Run: func(_ context.Context, state workload.State) error {
				s := state.(*encodedState)
				var out []record
				if err := json.Unmarshal(s.encoded, &out); err != nil {
					return err
				}
				if len(out) != s.count {
					return fmt.Errorf("decoded %d records, want %d", len(out), s.count)
				}
				recordSink = out
				return nil
			},
		},
		{
			Name:        "json.deep-nesting",
			Description: "Round-trip a deeply nested document",
			Axes:        []workload.Axis{{Name: "depth", Values: []any{25}}},
			Setup: func(_ context.Context, env workload.Env) (workload.State, error) {
				return env.Params.Int("depth", 25), nil
			},
			Run: func(_ context.Context, state workload.State) error {
				depth := state.(int)
				b, err := json.Marshal(nested(depth))
				if err != nil {
					return err
				}
				var out any
				if err := json.Unmarshal(b, &out); err != nil {
					return err
				}
				if got := nestingDepth(out); got != depth {
					return fmt.Errorf("decoded depth %d, want %d", got, depth)
				}
				anySink = out
				return nil
			},
		},
		{
			Name:        "json.stream-tokens",
			Description: "Walk a JSON array token by token with a streaming decoder",
			Axes:        []workload.Axis{{Name: "count", Values: []any{1_000}}},
			Setup:       encodedSetup,
			Run: func(_ context.Context, state workload.State) error {
				s := state.(*encodedState)
				dec := json.NewDecoder(bytes.NewReader(s.encoded))

				depth, objects := 0, 0
				for {
					tok, err := dec.Token()
					if errors.Is(err, io.EOF) {
						break
					}
					if err != nil {
						return err
					}
					d, ok := tok.(json.Delim)
					if !ok {
						continue
					}
					switch d {
					case '{', '[':
						// Records open directly inside the top-level array
						if d == '{' && depth == 1 {
							objects++
						}
						depth++
					default:
						depth--
					}
				}
				if objects != s.count {
					return fmt.Errorf("saw %d records, want %d", objects, s.count)
				}
				return nil
			},
		},
		{
			Name:        "json.jmespath-query",
			Description: "Evaluate a compiled JMESPath filter over decoded records",
			Axes:        []workload.Axis{countAxis},
			Setup: func(_ context.Context, env workload.Env) (workload.State, error) {
				records := makeRecords(env.Params.Int("count", 100))
				b, err := json.Marshal(records)
				if err != nil {
					return nil, err
				}
				var doc any
				if err := json.Unmarshal(b, &doc); err != nil {
					return nil, err
				}
				query, err := jmespath.Compile("[?active && age > `30`].name")
				if err != nil {
					return nil, err
				}
				want := 0
				for _, r := range records {
					if r.Active && r.Age > 30 {
						want++
					}
				}
				return &queryState{doc: doc, query: query, want: want}, nil
			},
			Run: func(_ context.Context, state workload.State) error {
				s := state.(*queryState)
				result, err := s.query.Search(s.doc)
				if err != nil {
					return err
				}
				names, ok := result.([]any)
				if !ok {
					return fmt.Errorf("query returned %T", result)
				}
				if len(names) != s.want {
					return fmt.Errorf("query matched %d records, want %d", len(names), s.want)
				}
				return nil
			},
		},
		{
			Name:        "yaml.marshal",
			Description: "Encode a slice of records to YAML",
			Axes:        []workload.Axis{countAxis},
			Setup:       encodedSetup,
			Run: func(_ context.Context, state workload.State) error {
				b, err := yaml.Marshal(state.(*encodedState).records)
				encodedSink = b
				return err
			},
		},
	}
}
