package host

import (
	"context"
	"fmt"

	"github.com/blobfront/blobfront/pkg/accesslog"
	"github.com/blobfront/blobfront/pkg/config"
	"github.com/blobfront/blobfront/pkg/health"
	"github.com/blobfront/blobfront/pkg/metrics"
	"github.com/blobfront/blobfront/pkg/router"
	routermemory "github.com/blobfront/blobfront/pkg/router/memory"
	routers3 "github.com/blobfront/blobfront/pkg/router/s3"
	"github.com/blobfront/blobfront/pkg/scaling"
	"github.com/blobfront/blobfront/pkg/service"
	"github.com/blobfront/blobfront/pkg/topology"
	"github.com/blobfront/blobfront/pkg/transport"
	transporthttp "github.com/blobfront/blobfront/pkg/transport/http"
)

// Builtin returns a registry with every built-in factory registered:
// routers "memory" and "s3", service "blob", scaling unit "pool", and
// transport "http".
func Builtin() *Registry {
	r := NewRegistry()

	mustRegister(r.RegisterRouter("memory", func(cfg *config.Config, topo *topology.Topology) (router.Router, error) {
		return routermemory.New(), nil
	}))

	mustRegister(r.RegisterRouter("s3", func(cfg *config.Config, topo *topology.Topology) (router.Router, error) {
		return routers3.New(context.Background(), cfg.Router.Params, topo)
	}))

	mustRegister(r.RegisterService("blob", func(cfg *config.Config, topo *topology.Topology, responses scaling.ResponseHandler, rt router.Router) (service.StorageService, error) {
		return service.NewBlobService(rt, responses)
	}))

	mustRegister(r.RegisterRequestHandler("pool", func(cfg config.PoolConfig, sink *metrics.HostMetrics, svc service.StorageService) (scaling.RequestHandler, error) {
		drain, err := scaling.ParseDrainPolicy(cfg.DrainPolicy)
		if err != nil {
			return nil, err
		}
		return scaling.NewRequestHandler(cfg.Workers, drain, sink, svc)
	}))

	mustRegister(r.RegisterResponseHandler("pool", func(cfg config.PoolConfig, sink *metrics.HostMetrics) (scaling.ResponseHandler, error) {
		drain, err := scaling.ParseDrainPolicy(cfg.DrainPolicy)
		if err != nil {
			return nil, err
		}
		return scaling.NewResponseHandler(cfg.Workers, drain, sink)
	}))

	mustRegister(r.RegisterTransport("http", func(cfg *config.Config, requests scaling.RequestHandler, access *accesslog.Logger, state *health.State) (transport.Server, error) {
		return transporthttp.NewServer(transporthttp.Config{
			Port:            cfg.Transport.Port,
			ReadTimeout:     cfg.Transport.ReadTimeout,
			WriteTimeout:    cfg.Transport.WriteTimeout,
			IdleTimeout:     cfg.Transport.IdleTimeout,
			ShutdownTimeout: cfg.ShutdownTimeout,
		}, requests, access, state)
	}))

	return r
}

// mustRegister panics on registration failure. Built-in names are constants,
// so a failure here is a programming error.
func mustRegister(err error) {
	if err != nil {
		panic(fmt.Sprintf("host: builtin registration failed: %v", err))
	}
}
