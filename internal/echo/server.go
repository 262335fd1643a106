package echo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// DefaultReadLimit caps one reassembled WebSocket message
	DefaultReadLimit int64 = 64 << 20
	// DefaultMaxUploadBytes caps one /upload request body
	DefaultMaxUploadBytes int64 = 1 << 30

	writeWait         = 10 * time.Second
	closeGrace        = 2 * time.Second
	readHeaderTimeout = 10 * time.Second
)

// Options configures a Server
type Options struct {
	Host           string
	Port           int // 0 picks a free port
	ReadLimit      int64
	MaxUploadBytes int64

	// OnStateChange, when set, is called for every connection state change.
	OnStateChange StateChangeFunc
}

// Server is the echo fixture
type Server struct {
	opts     Options
	logger   *zap.Logger
	metrics  *Metrics
	upgrader websocket.Upgrader

	mu         sync.Mutex
	httpServer *http.Server
	addr       string
	lifetime   context.Context
	cancel     context.CancelFunc
	stopping   bool
	conns      sync.WaitGroup
}

// NewServer creates a server. It does not listen until Start.
func NewServer(opts Options, logger *zap.Logger) *Server {
	if opts.Host == "" {
		opts.Host = "127.0.0.1"
	}
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = DefaultReadLimit
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Server{
		opts:    opts,
		logger:  logger.Named("echo"),
		metrics: newMetrics(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}

// Handler returns the router with all three endpoints
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /noop", s.handleNoop)
	mux.HandleFunc("GET /echo", s.handleEcho)
	mux.HandleFunc("POST /upload", s.handleUpload)
	return mux
}

// Metrics returns the server's collectors
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Addr returns the bound host:port, or "" when the server is not running
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Start binds the listener and serves in the background
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.httpServer != nil {
		return fmt.Errorf("echo server already running on %s", s.addr)
	}

	addr := net.JoinHostPort(s.opts.Host, strconv.Itoa(s.opts.Port))
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	lifetime, cancel := context.WithCancel(context.Background())
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return lifetime },
		ErrorLog:          zap.NewStdLog(s.logger),
	}

	s.httpServer = srv
	s.addr = ln.Addr().String()
	s.lifetime = lifetime
	s.cancel = cancel

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("echo server stopped", zap.Error(err))
		}
	}()

	s.logger.Info("echo server listening", zap.String("addr", s.addr))
	return nil
}

// Stop shuts the server down. Open WebSocket connections are sent a
// going-away close frame, and Stop waits for them until ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	if srv == nil {
		s.mu.Unlock()
		return nil
	}
	cancel := s.cancel
	addr := s.addr
	s.stopping = true
	s.mu.Unlock()

	cancel()
	err := srv.Shutdown(ctx)

	done := make(chan struct{})
	go func() {
		s.conns.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
		srv.Close()
	}

	s.mu.Lock()
	s.httpServer = nil
	s.addr = ""
	s.lifetime = nil
	s.cancel = nil
	s.stopping = false
	s.mu.Unlock()

	if err != nil {
		return fmt.Errorf("stop echo server on %s: %w", addr, err)
	}
	s.logger.Info("echo server stopped", zap.String("addr", addr))
	return nil
}

// track registers a WebSocket handler so Stop can wait for it. It returns
// the context that is cancelled when the server shuts down.
func (s *Server) track() (context.Context, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopping {
		return nil, false
	}
	s.conns.Add(1)
	if s.lifetime == nil {
		// Served through Handler() without Start
		return context.Background(), true
	}
	return s.lifetime, true
}

func (s *Server) handleNoop(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleEcho(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		s.reject(w, http.StatusBadRequest, "not_upgrade", &ProtocolError{Reason: "websocket upgrade required"})
		return
	}

	ctx, ok := s.track()
	if !ok {
		s.reject(w, http.StatusServiceUnavailable, "shutting_down", &ProtocolError{Reason: "server is shutting down"})
		return
	}
	defer s.conns.Done()

	c := newConnection(s)
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written the error response
		s.metrics.Rejected.WithLabelValues("handshake").Inc()
		s.logger.Debug("websocket handshake failed", zap.String("conn", c.id), zap.Error(err))
		c.abandon()
		return
	}

	c.serve(ctx, ws)
}

// reject writes a JSON error body and counts the rejection
func (s *Server) reject(w http.ResponseWriter, status int, reason string, err error) {
	s.metrics.Rejected.WithLabelValues(reason).Inc()
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
