package host

import (
	"fmt"
	"sync"

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

// RouterFactory builds the backend communication layer.
type RouterFactory func(cfg *config.Config, topo *topology.Topology) (router.Router, error)

// ResponseHandlerFactory builds the outbound scaling unit.
type ResponseHandlerFactory func(cfg config.PoolConfig, sink *metrics.HostMetrics) (scaling.ResponseHandler, error)

// ServiceFactory builds the storage service. It receives the already
// constructed router and response handler.
type ServiceFactory func(cfg *config.Config, topo *topology.Topology, responses scaling.ResponseHandler, rt router.Router) (service.StorageService, error)

// RequestHandlerFactory builds the inbound scaling unit targeting the
// storage service.
type RequestHandlerFactory func(cfg config.PoolConfig, sink *metrics.HostMetrics, svc service.StorageService) (scaling.RequestHandler, error)

// TransportFactory builds the client-facing transport server.
type TransportFactory func(cfg *config.Config, requests scaling.RequestHandler, access *accesslog.Logger, state *health.State) (transport.Server, error)

// Registry maps factory identifiers from the configuration to constructors.
// Alternate implementations register here; the host resolves every role by
// name before constructing anything.
type Registry struct {
	mu sync.RWMutex

	routers          map[string]RouterFactory
	services         map[string]ServiceFactory
	requestHandlers  map[string]RequestHandlerFactory
	responseHandlers map[string]ResponseHandlerFactory
	transports       map[string]TransportFactory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		routers:          make(map[string]RouterFactory),
		services:         make(map[string]ServiceFactory),
		requestHandlers:  make(map[string]RequestHandlerFactory),
		responseHandlers: make(map[string]ResponseHandlerFactory),
		transports:       make(map[string]TransportFactory),
	}
}

// RegisterRouter registers a router factory under the given name.
func (r *Registry) RegisterRouter(name string, f RouterFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := checkRegistration(name, f == nil, "router"); err != nil {
		return err
	}
	if _, dup := r.routers[name]; dup {
		return fmt.Errorf("host: router factory %q already registered", name)
	}
	r.routers[name] = f
	return nil
}

// RegisterService registers a storage service factory.
func (r *Registry) RegisterService(name string, f ServiceFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := checkRegistration(name, f == nil, "service"); err != nil {
		return err
	}
	if _, dup := r.services[name]; dup {
		return fmt.Errorf("host: service factory %q already registered", name)
	}
	r.services[name] = f
	return nil
}

// RegisterRequestHandler registers an inbound scaling unit factory.
func (r *Registry) RegisterRequestHandler(name string, f RequestHandlerFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := checkRegistration(name, f == nil, "request handler"); err != nil {
		return err
	}
	if _, dup := r.requestHandlers[name]; dup {
		return fmt.Errorf("host: request handler factory %q already registered", name)
	}
	r.requestHandlers[name] = f
	return nil
}

// RegisterResponseHandler registers an outbound scaling unit factory.
func (r *Registry) RegisterResponseHandler(name string, f ResponseHandlerFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := checkRegistration(name, f == nil, "response handler"); err != nil {
		return err
	}
	if _, dup := r.responseHandlers[name]; dup {
		return fmt.Errorf("host: response handler factory %q already registered", name)
	}
	r.responseHandlers[name] = f
	return nil
}

// RegisterTransport registers a transport factory.
func (r *Registry) RegisterTransport(name string, f TransportFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := checkRegistration(name, f == nil, "transport"); err != nil {
		return err
	}
	if _, dup := r.transports[name]; dup {
		return fmt.Errorf("host: transport factory %q already registered", name)
	}
	r.transports[name] = f
	return nil
}

func checkRegistration(name string, nilFactory bool, kind string) error {
	if name == "" {
		return fmt.Errorf("host: %s factory name is required", kind)
	}
	if nilFactory {
		return fmt.Errorf("host: %s factory %q is nil", kind, name)
	}
	return nil
}

func (r *Registry) router(name string) (RouterFactory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.routers[name]
	if !ok {
		return nil, fmt.Errorf("unknown router factory %q", name)
	}
	return f, nil
}

func (r *Registry) service(name string) (ServiceFactory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.services[name]
	if !ok {
		return nil, fmt.Errorf("unknown service factory %q", name)
	}
	return f, nil
}

func (r *Registry) requestHandler(name string) (RequestHandlerFactory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.requestHandlers[name]
	if !ok {
		return nil, fmt.Errorf("unknown request handler factory %q", name)
	}
	return f, nil
}

func (r *Registry) responseHandler(name string) (ResponseHandlerFactory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.responseHandlers[name]
	if !ok {
		return nil, fmt.Errorf("unknown response handler factory %q", name)
	}
	return f, nil
}

func (r *Registry) transport(name string) (TransportFactory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.transports[name]
	if !ok {
		return nil, fmt.Errorf("unknown transport factory %q", name)
	}
	return f, nil
}
