// Package accesslog emits one structured log line per completed client
// request. Which headers appear in the line is configurable, so deployments
// can capture tracing headers without code changes.
package accesslog

import (
	"net/http"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/blobfront/blobfront/internal/logger"
)

// Entry is one completed request.
type Entry struct {
	RequestID  string
	RemoteAddr string
	Method     string
	Path       string
	Status     int
	Bytes      int64
	Elapsed    time.Duration

	RequestHeader  http.Header
	ResponseHeader http.Header
}

// Logger writes access log lines through the process logger.
type Logger struct {
	requestHeaders  []string
	responseHeaders []string
}

// New builds an access logger recording the given header subsets.
func New(requestHeaders, responseHeaders []string) *Logger {
	return &Logger{
		requestHeaders:  requestHeaders,
		responseHeaders: responseHeaders,
	}
}

// Log emits one access log line.
func (l *Logger) Log(e Entry) {
	args := []any{
		"request_id", e.RequestID,
		"remote", e.RemoteAddr,
		"method", e.Method,
		"path", e.Path,
		"status", e.Status,
		"bytes", humanize.Bytes(uint64(max64(e.Bytes, 0))),
		"elapsed_ms", e.Elapsed.Milliseconds(),
	}
	for _, name := range l.requestHeaders {
		if v := e.RequestHeader.Get(name); v != "" {
			args = append(args, "req_"+name, v)
		}
	}
	for _, name := range l.responseHeaders {
		if v := e.ResponseHeader.Get(name); v != "" {
			args = append(args, "resp_"+name, v)
		}
	}
	logger.Info("access", args...)
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
