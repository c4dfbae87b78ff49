// Package rest defines the transport-agnostic request and response plumbing
// shared by the transport server, the scaling units, and the storage service.
//
// A transport implementation converts each inbound client request into a
// Request plus a ResponseChannel, hands the pair to the request-handler
// scaling unit, and blocks the connection until the channel is completed.
// The storage service hands its results to the response-handler scaling unit,
// whose workers write them back through the same channel. Keeping these types
// free of any concrete transport lets alternate transports plug in purely
// through configuration.
package rest

import (
	"context"
	"io"
	"net/http"
	"time"
)

// Operation identifies a storage operation requested by a client.
type Operation int

const (
	OpGet Operation = iota
	OpPut
	OpDelete
	OpList
)

// String returns the operation name for logging.
func (op Operation) String() string {
	switch op {
	case OpGet:
		return "GET"
	case OpPut:
		return "PUT"
	case OpDelete:
		return "DELETE"
	case OpList:
		return "LIST"
	default:
		return "UNKNOWN"
	}
}

// Request is one client request flowing through the scaling units.
//
// Body is owned by the request; whoever finishes processing must close it.
// Ctx carries the client connection's cancellation.
type Request struct {
	// ID uniquely identifies the request for logging and tracing.
	ID string

	// Op is the storage operation the client asked for.
	Op Operation

	// BlobID names the target blob. Empty for OpPut (the service assigns
	// an ID) and OpList.
	BlobID string

	// Header holds the client request headers.
	Header http.Header

	// Body is the request payload, non-nil only for OpPut.
	Body io.ReadCloser

	// Size is the declared payload size in bytes, -1 when unknown.
	Size int64

	// Received is when the transport accepted the request.
	Received time.Time

	// Ctx is the client connection context. Cancelled when the client
	// goes away.
	Ctx context.Context
}

// Context returns the request context, falling back to context.Background.
func (r *Request) Context() context.Context {
	if r.Ctx != nil {
		return r.Ctx
	}
	return context.Background()
}

// Response is a completed storage operation ready to be written back.
//
// The storage service builds a Response for successes and for expected
// failures (for example a missing blob maps to status 404). Unexpected
// failures travel as a separate error and are rendered by the
// response-handler worker.
type Response struct {
	// Status is the HTTP-style status code.
	Status int

	// Header holds response headers to set before the body is written.
	Header http.Header

	// Body is the response payload, may be nil. The response worker
	// closes it after writing.
	Body io.ReadCloser
}

// NewResponse returns a Response with an initialized header map.
func NewResponse(status int) *Response {
	return &Response{Status: status, Header: make(http.Header)}
}

// ResponseChannel is the write path back to one client connection.
//
// Implementations are provided by the transport. SetHeader and SetStatus
// must be called before the first Write. Close completes the response
// exactly once and unblocks the waiting connection; later calls are no-ops.
type ResponseChannel interface {
	// SetHeader sets a response header. No-op once the body started.
	SetHeader(key, value string)

	// SetStatus records the status code sent with the first Write or on
	// Close, whichever comes first.
	SetStatus(code int)

	// Write sends body bytes to the client.
	io.Writer

	// Close completes the response. A non-nil err marks the request
	// failed; the channel renders an error payload if nothing has been
	// written yet.
	Close(err error)
}

// Handler consumes one request synchronously. The storage service
// implements Handler; the request-handler scaling unit invokes it from its
// workers.
type Handler interface {
	HandleRequest(req *Request, rc ResponseChannel)
}
