package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/studiowebux/benchkit/internal/echo"
	"go.uber.org/zap"
)

// ServeOptions contains options for the serve command
type ServeOptions struct {
	Addr           string // host:port for the echo endpoints
	MetricsAddr    string // host:port for /metrics; empty disables it
	ReadLimit      int64
	MaxUploadBytes int64
	Verbose        bool
}

// Serve runs the echo server until ctx is cancelled
func Serve(ctx context.Context, opts ServeOptions, stderr io.Writer) error {
	host, portStr, err := net.SplitHostPort(opts.Addr)
	if err != nil {
		return fmt.Errorf("invalid address %q: %w", opts.Addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("invalid port in %q: %w", opts.Addr, err)
	}

	logger := NewLogger(stderr, opts.Verbose)
	defer logger.Sync()

	srv := echo.NewServer(echo.Options{
		Host:           host,
		Port:           port,
		ReadLimit:      opts.ReadLimit,
		MaxUploadBytes: opts.MaxUploadBytes,
		OnStateChange: func(connID string, from, to echo.State) {
			logger.Debug("connection state", zap.String("conn", connID), zap.Stringer("from", from), zap.Stringer("to", to))
		},
	}, logger)

	if err := srv.Start(ctx); err != nil {
		return err
	}

	var metricsSrv *http.Server
	metricsErr := make(chan error, 1)
	if opts.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", srv.Metrics().Handler())
		metricsSrv = &http.Server{
			Addr:              opts.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
			ErrorLog:          zap.NewStdLog(logger),
		}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				metricsErr <- err
			}
		}()
		logger.Info("metrics listening", zap.String("addr", opts.MetricsAddr))
	}

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case serveErr = <-metricsErr:
		logger.Error("metrics server failed", zap.Error(serveErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if metricsSrv != nil {
		metricsSrv.Shutdown(shutdownCtx)
	}
	return errors.Join(serveErr, srv.Stop(shutdownCtx))
}
