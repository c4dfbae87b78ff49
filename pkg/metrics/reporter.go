package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/blobfront/blobfront/internal/logger"
)

const reporterStopTimeout = 5 * time.Second

// Reporter serves the host metrics registry over HTTP at /metrics.
//
// It is the host's instrumentation sink: started before any other component
// so that startup timings of later phases are already exported, and stopped
// after everything else so that shutdown timings are observable until the
// end. A disabled reporter keeps the Start/Stop contract but does nothing.
type Reporter struct {
	enabled  bool
	port     int
	server   *http.Server
	listener net.Listener
	stopOnce sync.Once
}

// NewReporter builds a reporter for the given sink. When enabled is false
// the reporter is inert.
func NewReporter(enabled bool, port int, m *HostMetrics) *Reporter {
	r := &Reporter{enabled: enabled, port: port}
	if !enabled {
		return r
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{}))
	r.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return r
}

// Start begins serving the metrics endpoint. It returns once the listener
// is accepting connections.
func (r *Reporter) Start() error {
	if !r.enabled {
		logger.Debug("metrics reporter disabled")
		return nil
	}

	l, err := net.Listen("tcp", r.server.Addr)
	if err != nil {
		return fmt.Errorf("metrics reporter listen on %s: %w", r.server.Addr, err)
	}
	r.listener = l

	go func() {
		if err := r.server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics reporter serve error", "error", err)
		}
	}()

	logger.Info("metrics reporter listening", "port", r.Port())
	return nil
}

// Stop shuts the metrics endpoint down. Idempotent.
func (r *Reporter) Stop() error {
	if !r.enabled {
		return nil
	}
	var stopErr error
	r.stopOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), reporterStopTimeout)
		defer cancel()
		if err := r.server.Shutdown(ctx); err != nil {
			stopErr = fmt.Errorf("metrics reporter shutdown: %w", err)
		}
	})
	return stopErr
}

// Port returns the port the reporter is actually listening on, useful when
// configured with port 0. Returns the configured port before Start.
func (r *Reporter) Port() int {
	if r.listener != nil {
		if addr, ok := r.listener.Addr().(*net.TCPAddr); ok {
			return addr.Port
		}
	}
	return r.port
}
