// Package http implements the HTTP transport on top of chi. It converts
// inbound HTTP requests into the shared request form, submits them to the
// request-handler scaling unit, and holds each connection open until its
// response channel completes.
package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/xid"

	"github.com/blobfront/blobfront/internal/logger"
	"github.com/blobfront/blobfront/pkg/accesslog"
	"github.com/blobfront/blobfront/pkg/health"
	"github.com/blobfront/blobfront/pkg/rest"
	"github.com/blobfront/blobfront/pkg/scaling"
)

// Config holds the HTTP transport settings.
type Config struct {
	// Port is the listen port. 0 picks an ephemeral port.
	Port int

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// ShutdownTimeout bounds connection draining at teardown.
	ShutdownTimeout time.Duration
}

// Server is the HTTP transport.
type Server struct {
	cfg      Config
	requests scaling.RequestHandler
	access   *accesslog.Logger
	state    *health.State

	server       *http.Server
	listener     net.Listener
	shutdownOnce sync.Once
}

// NewServer builds the HTTP transport. The server is created stopped; Start
// binds the listener.
func NewServer(cfg Config, requests scaling.RequestHandler, access *accesslog.Logger, state *health.State) (*Server, error) {
	if requests == nil {
		return nil, fmt.Errorf("http transport: request handler is required")
	}
	if state == nil {
		return nil, fmt.Errorf("http transport: health state is required")
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}

	s := &Server{
		cfg:      cfg,
		requests: requests,
		access:   access,
		state:    state,
	}
	s.server = &http.Server{
		Handler:      s.routes(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s, nil
}

type contextKey string

const requestIDKey contextKey = "blobfront.request_id"

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	// Middleware stack - order matters
	r.Use(middleware.RealIP)
	r.Use(requestID)
	r.Use(s.accessLogger)
	r.Use(middleware.Recoverer)

	r.Get(s.state.ProbePath(), s.handleHealth)

	r.Route("/blobs", func(r chi.Router) {
		r.Get("/", s.handleOp(rest.OpList))
		r.Post("/", s.handleOp(rest.OpPut))
		r.Get("/{blobID}", s.handleOp(rest.OpGet))
		r.Delete("/{blobID}", s.handleOp(rest.OpDelete))
	})

	return r
}

// requestID assigns every request a unique ID, echoed back in the
// X-Request-Id header.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := xid.New().String()
		w.Header().Set("X-Request-Id", id)
		ctx := context.WithValue(r.Context(), requestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func getRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// accessLogger emits one access log line per completed request.
func (s *Server) accessLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.access == nil {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.access.Log(accesslog.Entry{
			RequestID:      getRequestID(r.Context()),
			RemoteAddr:     r.RemoteAddr,
			Method:         r.Method,
			Path:           r.URL.Path,
			Status:         ww.Status(),
			Bytes:          int64(ww.BytesWritten()),
			Elapsed:        time.Since(start),
			RequestHeader:  r.Header,
			ResponseHeader: ww.Header(),
		})
	})
}

// handleHealth answers the health probe from the component state: 200 while
// the host is up, 503 otherwise.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if s.state.IsUp() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("DOWN"))
}

// handleOp converts the HTTP request into the shared form, submits it to
// the request handler, and blocks until the response channel completes.
func (s *Server) handleOp(op rest.Operation) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := &rest.Request{
			ID:       getRequestID(r.Context()),
			Op:       op,
			BlobID:   chi.URLParam(r, "blobID"),
			Header:   r.Header,
			Size:     r.ContentLength,
			Received: time.Now(),
			Ctx:      r.Context(),
		}
		if op == rest.OpPut {
			req.Body = r.Body
		}

		rc := newResponseChannel(w)
		if err := s.requests.Submit(req, rc); err != nil {
			if errors.Is(err, scaling.ErrQueueClosed) {
				http.Error(w, "shutting down", http.StatusServiceUnavailable)
				return
			}
			logger.Error("request submit failed", "request_id", req.ID, "error", err)
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}

		if err := rc.wait(); err != nil {
			logger.Debug("request completed with error", "request_id", req.ID, "error", err)
		}
	}
}

// Start binds the listener and begins serving on a background goroutine.
// It returns once the server is accepting connections.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.Port))
	if err != nil {
		return fmt.Errorf("http transport: listen on port %d: %w", s.cfg.Port, err)
	}
	s.listener = ln

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http transport serve failed", "error", err)
		}
	}()

	logger.Info("http transport listening", "port", s.Port())
	return nil
}

// Shutdown stops accepting connections and drains in-flight requests within
// the configured timeout. Safe to call multiple times.
func (s *Server) Shutdown() error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()

		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("http transport shutdown: %w", err)
			return
		}
		logger.Info("http transport stopped")
	})
	return shutdownErr
}

// Port returns the bound listen port.
func (s *Server) Port() int {
	if s.listener == nil {
		return s.cfg.Port
	}
	if addr, ok := s.listener.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return s.cfg.Port
}
