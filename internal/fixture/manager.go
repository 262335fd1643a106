package fixture

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Resource is a shared resource with a start/stop lifecycle.
type Resource interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

type lifecycle int

const (
	stateIdle lifecycle = iota
	stateStarting
	stateLive
	stateStopping
)

func (l lifecycle) String() string {
	switch l {
	case stateIdle:
		return "idle"
	case stateStarting:
		return "starting"
	case stateLive:
		return "live"
	case stateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

type entry struct {
	name       string
	res        Resource
	state      lifecycle
	refs       int
	generation uint64
	transition chan struct{} // closed when a start or stop finishes
	starts     int
	stops      int
}

// Stats describes a fixture's lifecycle counters
type Stats struct {
	Name   string
	State  string
	Refs   int
	Starts int
	Stops  int
}

// Manager owns named fixtures and their reference counts.
//
// The mutex only guards bookkeeping. Start and Stop run outside it, and
// callers that find a fixture mid-transition wait on that fixture alone.
type Manager struct {
	mu      sync.Mutex
	entries map[string]*entry
	order   []string
	logger  *zap.Logger
}

// NewManager creates an empty manager. A nil logger disables logging.
func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		entries: make(map[string]*entry),
		logger:  logger.Named("fixture"),
	}
}

// Register binds a resource to a name
func (m *Manager) Register(name string, res Resource) error {
	if name == "" {
		return fmt.Errorf("fixture name is required")
	}
	if res == nil {
		return fmt.Errorf("fixture %q: resource is nil", name)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.entries[name]; exists {
		return fmt.Errorf("fixture %q is already registered", name)
	}

	m.entries[name] = &entry{name: name, res: res}
	m.order = append(m.order, name)
	return nil
}

// Names returns registered fixture names in registration order
func (m *Manager) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, len(m.order))
	copy(names, m.order)
	return names
}

// Acquire returns a handle on the named fixture, starting it if nobody
// holds it. A failed start returns *StartError and changes nothing.
func (m *Manager) Acquire(ctx context.Context, name string) (*Handle, error) {
	for {
		m.mu.Lock()
		e, ok := m.entries[name]
		if !ok {
			m.mu.Unlock()
			return nil, &NotFoundError{Name: name}
		}

		switch e.state {
		case stateLive:
			e.refs++
			h := newHandle(m, e)
			m.mu.Unlock()
			return h, nil

		case stateStarting, stateStopping:
			ch := e.transition
			m.mu.Unlock()

			select {
			case <-ch:
				continue
			case <-ctx.Done():
				return nil, ctx.Err()
			}

		default:
			ch := make(chan struct{})
			e.state = stateStarting
			e.transition = ch
			m.mu.Unlock()

			m.logger.Debug("starting fixture", zap.String("fixture", name))
			err := e.res.Start(ctx)

			m.mu.Lock()
			if err != nil {
				e.state = stateIdle
				e.transition = nil
				close(ch)
				m.mu.Unlock()

				m.logger.Warn("fixture failed to start",
					zap.String("fixture", name),
					zap.Error(err),
				)
				return nil, &StartError{Name: name, Err: err}
			}

			e.state = stateLive
			e.starts++
			e.generation++
			e.refs = 1
			e.transition = nil
			close(ch)
			h := newHandle(m, e)
			m.mu.Unlock()

			m.logger.Debug("fixture started", zap.String("fixture", name))
			return h, nil
		}
	}
}

// release drops one reference held by h and stops the resource when it was
// the last one. Handles from an earlier live period are ignored.
func (m *Manager) release(ctx context.Context, h *Handle) error {
	m.mu.Lock()
	e := h.entry
	if e.state != stateLive || e.generation != h.generation || e.refs == 0 {
		m.mu.Unlock()
		return nil
	}

	e.refs--
	if e.refs > 0 {
		m.mu.Unlock()
		return nil
	}

	ch := make(chan struct{})
	e.state = stateStopping
	e.transition = ch
	m.mu.Unlock()

	return m.stop(ctx, e, ch)
}

// stop runs the resource's Stop outside the lock and returns the entry to idle.
func (m *Manager) stop(ctx context.Context, e *entry, ch chan struct{}) error {
	m.logger.Debug("stopping fixture", zap.String("fixture", e.name))
	err := e.res.Stop(ctx)

	m.mu.Lock()
	e.state = stateIdle
	e.stops++
	e.transition = nil
	close(ch)
	m.mu.Unlock()

	if err != nil {
		m.logger.Warn("fixture stop failed",
			zap.String("fixture", e.name),
			zap.Error(err),
		)
		return fmt.Errorf("stop fixture %q: %w", e.name, err)
	}
	return nil
}

// Shutdown stops every live fixture whatever its reference count.
// Handles still outstanding become no-ops. Calling it more than once is safe.
func (m *Manager) Shutdown(ctx context.Context) error {
	names := m.Names()

	var errs []error
	for i := len(names) - 1; i >= 0; i-- {
		if err := m.forceStop(ctx, names[i]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) forceStop(ctx context.Context, name string) error {
	for {
		m.mu.Lock()
		e := m.entries[name]

		switch e.state {
		case stateIdle:
			m.mu.Unlock()
			return nil

		case stateStarting, stateStopping:
			ch := e.transition
			m.mu.Unlock()

			select {
			case <-ch:
				continue
			case <-ctx.Done():
				return fmt.Errorf("shutdown fixture %q: %w", name, ctx.Err())
			}

		default:
			if e.refs > 0 {
				m.logger.Info("forcing fixture shutdown",
					zap.String("fixture", name),
					zap.Int("refs", e.refs),
				)
			}
			ch := make(chan struct{})
			e.refs = 0
			e.state = stateStopping
			e.transition = ch
			m.mu.Unlock()

			return m.stop(ctx, e, ch)
		}
	}
}

// Stats returns the lifecycle counters of a fixture
func (m *Manager) Stats(name string) (Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[name]
	if !ok {
		return Stats{}, &NotFoundError{Name: name}
	}

	return Stats{
		Name:   e.name,
		State:  e.state.String(),
		Refs:   e.refs,
		Starts: e.starts,
		Stops:  e.stops,
	}, nil
}
