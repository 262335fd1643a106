package fixture

import (
	"context"
	"sync"
)

// Handle is one reference to a live fixture.
type Handle struct {
	mgr        *Manager
	entry      *entry
	generation uint64
	once       sync.Once
}

func newHandle(m *Manager, e *entry) *Handle {
	return &Handle{mgr: m, entry: e, generation: e.generation}
}

// Name returns the fixture name
func (h *Handle) Name() string {
	return h.entry.name
}

// Resource returns the underlying resource
func (h *Handle) Resource() Resource {
	return h.entry.res
}

// Release drops this reference. Only the first call has any effect; the
// error is that of the resource's Stop when this was the last reference.
func (h *Handle) Release(ctx context.Context) error {
	var err error
	h.once.Do(func() {
		err = h.mgr.release(ctx, h)
	})
	return err
}
