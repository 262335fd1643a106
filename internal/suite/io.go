package suite

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/studiowebux/benchkit/internal/config"
	"github.com/studiowebux/benchkit/internal/workload"
)

type fileState struct {
	dir  string
	path string
	data []byte
}

func ioWorkloads() []workload.Descriptor {
	return []workload.Descriptor{
		{
			Name:        "io.file-write-read",
			Description: "Write a buffer to a temporary file and read it back",
			Axes:        []workload.Axis{{Name: "size", Values: []any{1 << 20, 16 << 20}}},
			Setup: func(_ context.Context, env workload.Env) (workload.State, error) {
				dir, err := os.MkdirTemp("", "benchkit-io-")
				if err != nil {
					return nil, fmt.Errorf("create temp dir: %w", err)
				}
				return &fileState{
					dir:  dir,
					path: filepath.Join(dir, "payload.bin"),
					data: randomBytes(env.Params.Int("size", 1<<20)),
				}, nil
			},
			Run: func(_ context.Context, state workload.State) error {
				s := state.(*fileState)
				if err := os.WriteFile(s.path, s.data, config.FilePermissions); err != nil {
					return fmt.Errorf("write: %w", err)
				}
				got, err := os.ReadFile(s.path)
				if err != nil {
					return fmt.Errorf("read: %w", err)
				}
				if !bytes.Equal(got, s.data) {
					return fmt.Errorf("read back %d bytes that differ from the %d written", len(got), len(s.data))
				}
				return nil
			},
			Teardown: func(_ context.Context, state workload.State) error {
				return os.RemoveAll(state.(*fileState).dir)
			},
		},
	}
}
