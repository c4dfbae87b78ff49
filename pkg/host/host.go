// Package host assembles and runs the blobfront service: it resolves every
// configured role through the factory registry, starts the components in
// dependency order, and tears them down in reverse.
//
// Lifecycle rules:
//   - Assembly is all-or-nothing. The first factory failure aborts New and
//     nothing is started.
//   - Startup is strictly ordered. A component starts only after everything
//     it depends on is running. The health state flips up last.
//   - A startup failure does not roll back already started components; the
//     caller is expected to invoke Shutdown.
//   - Shutdown is best effort. The health state flips down first, then every
//     component is stopped in reverse order; a failing step is logged and
//     counted but never stops the rest of the teardown.
package host

import (
	"fmt"
	"sync"
	"time"

	"github.com/blobfront/blobfront/internal/logger"
	"github.com/blobfront/blobfront/pkg/accesslog"
	"github.com/blobfront/blobfront/pkg/config"
	"github.com/blobfront/blobfront/pkg/health"
	"github.com/blobfront/blobfront/pkg/metrics"
	"github.com/blobfront/blobfront/pkg/router"
	"github.com/blobfront/blobfront/pkg/scaling"
	"github.com/blobfront/blobfront/pkg/service"
	"github.com/blobfront/blobfront/pkg/topology"
	"github.com/blobfront/blobfront/pkg/transport"
)

// Host owns the assembled components and drives their lifecycle.
type Host struct {
	cfg *config.Config

	state    *health.State
	sink     *metrics.HostMetrics
	reporter *metrics.Reporter

	router    router.Router
	responses scaling.ResponseHandler
	service   service.StorageService
	requests  scaling.RequestHandler
	transport transport.Server

	started      bool
	shutdownOnce sync.Once
	done         chan struct{}
}

// New assembles a host from the configuration and registry. Factories run
// in dependency order; the first failure aborts assembly and nothing is
// constructed beyond that point.
func New(cfg *config.Config, reg *Registry) (*Host, error) {
	if cfg == nil {
		return nil, fmt.Errorf("host: configuration is required")
	}
	if reg == nil {
		return nil, fmt.Errorf("host: registry is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	sink := metrics.NewHostMetrics()

	// Resolve every factory before constructing anything, so a typo in one
	// role name cannot leave another role half built.
	routerFactory, err := reg.router(cfg.Router.Factory)
	if err != nil {
		return nil, assemblyFailed(sink, "router", err)
	}
	responseFactory, err := reg.responseHandler(cfg.ResponseHandler.Factory)
	if err != nil {
		return nil, assemblyFailed(sink, "response handler", err)
	}
	serviceFactory, err := reg.service(cfg.StorageService.Factory)
	if err != nil {
		return nil, assemblyFailed(sink, "storage service", err)
	}
	requestFactory, err := reg.requestHandler(cfg.RequestHandler.Factory)
	if err != nil {
		return nil, assemblyFailed(sink, "request handler", err)
	}
	transportFactory, err := reg.transport(cfg.Transport.Factory)
	if err != nil {
		return nil, assemblyFailed(sink, "transport server", err)
	}

	topo, err := topology.New(cfg.Topology)
	if err != nil {
		return nil, assemblyFailed(sink, "topology", err)
	}

	h := &Host{
		cfg:   cfg,
		state: health.New(cfg.HealthCheckPath),
		sink:  sink,
		done:  make(chan struct{}),
	}
	h.reporter = metrics.NewReporter(cfg.Metrics.Enabled, cfg.Metrics.Port, sink)

	access := accesslog.New(cfg.AccessLog.RequestHeaderList(), cfg.AccessLog.ResponseHeaderList())

	if h.router, err = routerFactory(cfg, topo); err != nil {
		return nil, assemblyFailed(sink, "router", err)
	}
	if h.responses, err = responseFactory(cfg.ResponseHandler, sink); err != nil {
		return nil, assemblyFailed(sink, "response handler", err)
	}
	if h.service, err = serviceFactory(cfg, topo, h.responses, h.router); err != nil {
		return nil, assemblyFailed(sink, "storage service", err)
	}
	if h.requests, err = requestFactory(cfg.RequestHandler, sink, h.service); err != nil {
		return nil, assemblyFailed(sink, "request handler", err)
	}
	if h.transport, err = transportFactory(cfg, h.requests, access, h.state); err != nil {
		return nil, assemblyFailed(sink, "transport server", err)
	}

	logger.Debug("host assembled",
		"router", cfg.Router.Factory,
		"service", cfg.StorageService.Factory,
		"transport", cfg.Transport.Factory,
		"cluster", topo.Cluster(),
	)
	return h, nil
}

func assemblyFailed(sink *metrics.HostMetrics, role string, err error) error {
	sink.AssemblyFailures.Inc()
	return &AssemblyError{Role: role, Err: err}
}

// Start brings every component up in dependency order and flips the health
// state up last. On failure the already started components keep running and
// the caller should invoke Shutdown.
func (h *Host) Start() error {
	if h.started {
		return fmt.Errorf("host: already started")
	}
	h.started = true

	logger.Info("host starting")
	startupBegin := time.Now()

	steps := []struct {
		name  string
		start func() error
	}{
		{"metrics reporter", h.reporter.Start},
		{"response handler", h.responses.Start},
		{"storage service", h.service.Start},
		{"request handler", h.requests.Start},
		{"transport server", h.transport.Start},
	}

	for _, step := range steps {
		begin := time.Now()
		if err := step.start(); err != nil {
			h.sink.StartFailures.Inc()
			logger.Error("host start failed", "component", step.name, "error", err)
			return &StartError{Component: step.name, Err: err}
		}
		elapsed := time.Since(begin)
		h.sink.ObservePhase(metrics.StageStart, step.name, elapsed)
		logger.Info(step.name+" start took", "elapsed_ms", elapsed.Milliseconds())
	}

	h.state.MarkUp()
	h.sink.HealthUp.Set(1)
	logger.Info("host started",
		"elapsed_ms", time.Since(startupBegin).Milliseconds(),
		"port", h.transport.Port(),
		"health_path", h.state.ProbePath(),
	)
	return nil
}

// Shutdown tears the host down in reverse start order. The health state
// flips down before anything stops, so load balancers drain the node first.
// Every step runs even if an earlier one fails; step errors are logged and
// counted. Safe to call multiple times.
func (h *Host) Shutdown() {
	h.shutdownOnce.Do(func() {
		logger.Info("host shutting down")
		shutdownBegin := time.Now()

		h.state.MarkDown()
		h.sink.HealthUp.Set(0)

		steps := []struct {
			name string
			stop func() error
		}{
			{"transport server", h.transport.Shutdown},
			{"request handler", h.requests.Shutdown},
			{"storage service", h.service.Shutdown},
			{"response handler", h.responses.Shutdown},
			{"router", h.router.Close},
			{"metrics reporter", h.reporter.Stop},
		}

		for _, step := range steps {
			begin := time.Now()
			if err := step.stop(); err != nil {
				h.sink.ShutdownStepErrors.Inc()
				logger.Error("shutdown step failed", "component", step.name, "error", err)
				continue
			}
			elapsed := time.Since(begin)
			h.sink.ObservePhase(metrics.StageShutdown, step.name, elapsed)
			logger.Info(step.name+" shutdown took", "elapsed_ms", elapsed.Milliseconds())
		}

		logger.Info("host shutdown complete", "elapsed_ms", time.Since(shutdownBegin).Milliseconds())
		close(h.done)
	})
}

// AwaitShutdown blocks until Shutdown has completed.
func (h *Host) AwaitShutdown() {
	<-h.done
}

// Health exposes the component health state.
func (h *Host) Health() *health.State {
	return h.state
}

// Transport exposes the running transport server, mainly so callers can
// learn the bound port when configured with port 0.
func (h *Host) Transport() transport.Server {
	return h.transport
}

// Metrics exposes the host metrics sink.
func (h *Host) Metrics() *metrics.HostMetrics {
	return h.sink
}
