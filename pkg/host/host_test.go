package host

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blobfront/blobfront/pkg/accesslog"
	"github.com/blobfront/blobfront/pkg/config"
	"github.com/blobfront/blobfront/pkg/health"
	"github.com/blobfront/blobfront/pkg/metrics"
	"github.com/blobfront/blobfront/pkg/rest"
	"github.com/blobfront/blobfront/pkg/router"
	"github.com/blobfront/blobfront/pkg/scaling"
	"github.com/blobfront/blobfront/pkg/service"
	"github.com/blobfront/blobfront/pkg/topology"
	"github.com/blobfront/blobfront/pkg/transport"
)

// recorder collects lifecycle events across all fake components.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	copy(out, r.events)
	return out
}

type fakeRouter struct {
	router.Router
	rec      *recorder
	closeErr error
}

func (f *fakeRouter) Close() error {
	f.rec.add("router close")
	return f.closeErr
}

type fakePool struct {
	rec      *recorder
	name     string
	startErr error
	stopErr  error
}

func (f *fakePool) Start() error {
	f.rec.add(f.name + " start")
	return f.startErr
}

func (f *fakePool) Shutdown() error {
	f.rec.add(f.name + " shutdown")
	return f.stopErr
}

type fakeRequestHandler struct{ fakePool }

func (f *fakeRequestHandler) Submit(*rest.Request, rest.ResponseChannel) error { return nil }

type fakeResponseHandler struct{ fakePool }

func (f *fakeResponseHandler) Submit(*rest.Request, rest.ResponseChannel, *rest.Response, error) error {
	return nil
}

type fakeService struct {
	fakePool
}

func (f *fakeService) HandleRequest(*rest.Request, rest.ResponseChannel) {}

type fakeTransport struct {
	fakePool
	state *health.State
}

func (f *fakeTransport) Shutdown() error {
	// Record whether health already flipped down when the first teardown
	// step runs.
	if f.state.IsUp() {
		f.rec.add("transport server shutdown while up")
	} else {
		f.rec.add("transport server shutdown")
	}
	return f.stopErr
}

func (f *fakeTransport) Port() int { return 0 }

// fakes bundles one recorded component set and the errors to inject.
type fakes struct {
	rec *recorder

	routerCloseErr    error
	serviceStartErr   error
	transportStartErr error
	transportStopErr  error
}

// registryWithFakes builds a registry whose factories produce recorded
// fakes under the default factory names.
func registryWithFakes(t *testing.T, f *fakes) *Registry {
	t.Helper()
	reg := NewRegistry()

	require.NoError(t, reg.RegisterRouter("memory", func(*config.Config, *topology.Topology) (router.Router, error) {
		return &fakeRouter{rec: f.rec, closeErr: f.routerCloseErr}, nil
	}))
	require.NoError(t, reg.RegisterResponseHandler("pool", func(config.PoolConfig, *metrics.HostMetrics) (scaling.ResponseHandler, error) {
		return &fakeResponseHandler{fakePool{rec: f.rec, name: "response handler"}}, nil
	}))
	require.NoError(t, reg.RegisterService("blob", func(*config.Config, *topology.Topology, scaling.ResponseHandler, router.Router) (service.StorageService, error) {
		return &fakeService{fakePool{rec: f.rec, name: "storage service", startErr: f.serviceStartErr}}, nil
	}))
	require.NoError(t, reg.RegisterRequestHandler("pool", func(config.PoolConfig, *metrics.HostMetrics, service.StorageService) (scaling.RequestHandler, error) {
		return &fakeRequestHandler{fakePool{rec: f.rec, name: "request handler"}}, nil
	}))
	require.NoError(t, reg.RegisterTransport("http", func(_ *config.Config, _ scaling.RequestHandler, _ *accesslog.Logger, state *health.State) (transport.Server, error) {
		return &fakeTransport{
			fakePool: fakePool{rec: f.rec, name: "transport server", startErr: f.transportStartErr, stopErr: f.transportStopErr},
			state:    state,
		}, nil
	}))
	return reg
}

func newFakeHost(t *testing.T, f *fakes) *Host {
	t.Helper()
	h, err := New(config.Default(), registryWithFakes(t, f))
	require.NoError(t, err)
	return h
}

func TestNewValidatesArgs(t *testing.T) {
	_, err := New(nil, NewRegistry())
	assert.Error(t, err)
	_, err = New(config.Default(), nil)
	assert.Error(t, err)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.RequestHandler.Workers = 0
	_, err := New(cfg, registryWithFakes(t, &fakes{rec: &recorder{}}))
	assert.Error(t, err)
}

func TestUnknownFactoryFailsAssembly(t *testing.T) {
	tests := []struct {
		role   string
		mutate func(*config.Config)
	}{
		{"router", func(c *config.Config) { c.Router.Factory = "carrier-pigeon" }},
		{"storage service", func(c *config.Config) { c.StorageService.Factory = "carrier-pigeon" }},
		{"request handler", func(c *config.Config) { c.RequestHandler.Factory = "carrier-pigeon" }},
		{"response handler", func(c *config.Config) { c.ResponseHandler.Factory = "carrier-pigeon" }},
		{"transport server", func(c *config.Config) { c.Transport.Factory = "carrier-pigeon" }},
	}
	for _, tt := range tests {
		t.Run(tt.role, func(t *testing.T) {
			f := &fakes{rec: &recorder{}}
			cfg := config.Default()
			tt.mutate(cfg)

			_, err := New(cfg, registryWithFakes(t, f))
			var aerr *AssemblyError
			require.ErrorAs(t, err, &aerr)
			assert.Equal(t, tt.role, aerr.Role)
			assert.Empty(t, f.rec.all(), "nothing may be constructed or started")
		})
	}
}

func TestFactoryFailureAbortsAssembly(t *testing.T) {
	f := &fakes{rec: &recorder{}}
	reg := registryWithFakes(t, f)

	boom := errors.New("no such bucket")
	require.NoError(t, reg.RegisterRouter("broken", func(*config.Config, *topology.Topology) (router.Router, error) {
		return nil, boom
	}))

	cfg := config.Default()
	cfg.Router.Factory = "broken"

	_, err := New(cfg, reg)
	var aerr *AssemblyError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, "router", aerr.Role)
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, f.rec.all())
}

func TestStartOrder(t *testing.T) {
	f := &fakes{rec: &recorder{}}
	h := newFakeHost(t, f)

	require.NoError(t, h.Start())
	defer h.Shutdown()

	assert.Equal(t, []string{
		"response handler start",
		"storage service start",
		"request handler start",
		"transport server start",
	}, f.rec.all())
	assert.True(t, h.Health().IsUp())
}

func TestStartTwiceFails(t *testing.T) {
	f := &fakes{rec: &recorder{}}
	h := newFakeHost(t, f)
	require.NoError(t, h.Start())
	defer h.Shutdown()

	assert.Error(t, h.Start())
}

func TestStartFailureStopsSequence(t *testing.T) {
	boom := errors.New("service refused to start")
	f := &fakes{rec: &recorder{}, serviceStartErr: boom}
	h := newFakeHost(t, f)

	err := h.Start()
	var serr *StartError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "storage service", serr.Component)
	assert.ErrorIs(t, err, boom)

	// The request handler and transport never started, and the host never
	// reported healthy.
	assert.Equal(t, []string{
		"response handler start",
		"storage service start",
	}, f.rec.all())
	assert.False(t, h.Health().IsUp())

	// No rollback happened; the caller shuts down explicitly.
	h.Shutdown()
}

func TestTransportStartFailureLeavesStateDown(t *testing.T) {
	boom := errors.New("port in use")
	f := &fakes{rec: &recorder{}, transportStartErr: boom}
	h := newFakeHost(t, f)

	err := h.Start()
	var serr *StartError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "transport server", serr.Component)
	assert.False(t, h.Health().IsUp())

	h.Shutdown()
}

func TestShutdownOrder(t *testing.T) {
	f := &fakes{rec: &recorder{}}
	h := newFakeHost(t, f)
	require.NoError(t, h.Start())

	h.Shutdown()

	events := f.rec.all()[4:] // skip the start events
	assert.Equal(t, []string{
		"transport server shutdown",
		"request handler shutdown",
		"storage service shutdown",
		"response handler shutdown",
		"router close",
	}, events)
	assert.False(t, h.Health().IsUp())
}

func TestShutdownIdempotent(t *testing.T) {
	f := &fakes{rec: &recorder{}}
	h := newFakeHost(t, f)
	require.NoError(t, h.Start())

	h.Shutdown()
	first := len(f.rec.all())
	h.Shutdown()
	assert.Equal(t, first, len(f.rec.all()), "second shutdown must be a no-op")
}

func TestShutdownContinuesPastFailures(t *testing.T) {
	f := &fakes{
		rec:              &recorder{},
		transportStopErr: errors.New("drain timed out"),
		routerCloseErr:   errors.New("already closed"),
	}
	h := newFakeHost(t, f)
	require.NoError(t, h.Start())

	h.Shutdown()

	events := f.rec.all()[4:]
	assert.Equal(t, []string{
		"transport server shutdown",
		"request handler shutdown",
		"storage service shutdown",
		"response handler shutdown",
		"router close",
	}, events, "failing steps must not stop the teardown")
}

func TestAwaitShutdown(t *testing.T) {
	f := &fakes{rec: &recorder{}}
	h := newFakeHost(t, f)
	require.NoError(t, h.Start())

	released := make(chan struct{})
	go func() {
		h.AwaitShutdown()
		close(released)
	}()

	select {
	case <-released:
		t.Fatal("AwaitShutdown returned before Shutdown")
	case <-time.After(50 * time.Millisecond):
	}

	h.Shutdown()

	select {
	case <-released:
	case <-time.After(5 * time.Second):
		t.Fatal("AwaitShutdown never returned")
	}
}

func TestBuiltinRegistryAssembles(t *testing.T) {
	cfg := config.Default()
	cfg.Transport.Port = 0

	h, err := New(cfg, Builtin())
	require.NoError(t, err)
	require.NoError(t, h.Start())
	defer h.Shutdown()

	assert.True(t, h.Health().IsUp())
	assert.NotZero(t, h.Transport().Port())
}
