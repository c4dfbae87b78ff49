package scaling

import (
	"fmt"
	"io"
	"net/http"

	"github.com/blobfront/blobfront/internal/logger"
	"github.com/blobfront/blobfront/pkg/metrics"
	"github.com/blobfront/blobfront/pkg/rest"
)

// RequestHandler is the inbound scaling unit. The transport server submits
// accepted requests here instead of executing storage logic on its own
// connection goroutines.
type RequestHandler interface {
	Start() error
	Submit(req *rest.Request, rc rest.ResponseChannel) error
	Shutdown() error
}

// ResponseHandler is the outbound scaling unit. The storage service submits
// completed responses here; workers write them to the client through the
// request's response channel.
type ResponseHandler interface {
	Start() error
	Submit(req *rest.Request, rc rest.ResponseChannel, resp *rest.Response, err error) error
	Shutdown() error
}

type requestItem struct {
	req *rest.Request
	rc  rest.ResponseChannel
}

type pooledRequestHandler struct {
	pool *pool[requestItem]
}

// NewRequestHandler builds a pooled RequestHandler that delivers each
// request to the given rest.Handler on one of its workers.
func NewRequestHandler(workers int, drain DrainPolicy, sink *metrics.HostMetrics, target rest.Handler) (RequestHandler, error) {
	if target == nil {
		return nil, fmt.Errorf("scaling: request handler needs a target handler")
	}
	p, err := newPool("requests", workers, drain, sink, func(it requestItem) {
		target.HandleRequest(it.req, it.rc)
	}, dropRequest)
	if err != nil {
		return nil, err
	}
	return &pooledRequestHandler{pool: p}, nil
}

func (h *pooledRequestHandler) Start() error { return h.pool.Start() }

func (h *pooledRequestHandler) Submit(req *rest.Request, rc rest.ResponseChannel) error {
	if req == nil || rc == nil {
		return fmt.Errorf("scaling: request and response channel are required")
	}
	return h.pool.Submit(requestItem{req: req, rc: rc})
}

func (h *pooledRequestHandler) Shutdown() error { return h.pool.Shutdown() }

type responseItem struct {
	req  *rest.Request
	rc   rest.ResponseChannel
	resp *rest.Response
	err  error
}

type pooledResponseHandler struct {
	pool *pool[responseItem]
}

// NewResponseHandler builds a pooled ResponseHandler whose workers write
// responses to each request's response channel.
func NewResponseHandler(workers int, drain DrainPolicy, sink *metrics.HostMetrics) (ResponseHandler, error) {
	p, err := newPool("responses", workers, drain, sink, writeResponse, dropResponse)
	if err != nil {
		return nil, err
	}
	return &pooledResponseHandler{pool: p}, nil
}

func (h *pooledResponseHandler) Start() error { return h.pool.Start() }

func (h *pooledResponseHandler) Submit(req *rest.Request, rc rest.ResponseChannel, resp *rest.Response, err error) error {
	if req == nil || rc == nil {
		return fmt.Errorf("scaling: request and response channel are required")
	}
	return h.pool.Submit(responseItem{req: req, rc: rc, resp: resp, err: err})
}

func (h *pooledResponseHandler) Shutdown() error { return h.pool.Shutdown() }

// dropRequest completes a request discarded at shutdown so the waiting
// connection is released.
func dropRequest(it requestItem) {
	it.rc.SetStatus(http.StatusServiceUnavailable)
	it.rc.Close(ErrQueueClosed)
}

// dropResponse releases a discarded response's waiter and its body.
func dropResponse(it responseItem) {
	if it.resp != nil && it.resp.Body != nil {
		_ = it.resp.Body.Close()
	}
	it.rc.SetStatus(http.StatusServiceUnavailable)
	it.rc.Close(ErrQueueClosed)
}

// writeResponse renders one completed response on a worker goroutine.
// Expected failures were already mapped to statuses by the storage service;
// anything arriving here as an error is unexpected and becomes a 500.
func writeResponse(it responseItem) {
	if it.err != nil {
		logger.Error("request failed", "request_id", it.req.ID, "operation", it.req.Op.String(), "error", it.err)
		it.rc.SetStatus(http.StatusInternalServerError)
		_, _ = it.rc.Write([]byte("internal server error\n"))
		it.rc.Close(it.err)
		return
	}

	resp := it.resp
	if resp == nil {
		resp = rest.NewResponse(http.StatusOK)
	}
	for name, values := range resp.Header {
		for _, v := range values {
			it.rc.SetHeader(name, v)
		}
	}
	it.rc.SetStatus(resp.Status)
	if resp.Body != nil {
		_, err := io.Copy(it.rc, resp.Body)
		if cerr := resp.Body.Close(); cerr != nil {
			logger.Warn("response body close failed", "request_id", it.req.ID, "error", cerr)
		}
		if err != nil {
			logger.Warn("response body write failed", "request_id", it.req.ID, "error", err)
			it.rc.Close(err)
			return
		}
	}
	it.rc.Close(nil)
}
