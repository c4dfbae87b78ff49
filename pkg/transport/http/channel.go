package http

import (
	"net/http"
	"sync"
)

// responseChannel adapts one http.ResponseWriter to the shared response
// channel contract. The connection handler blocks on done until a
// response-handler worker (or a drop path) calls Close.
type responseChannel struct {
	mu          sync.Mutex
	w           http.ResponseWriter
	status      int
	wroteHeader bool
	closed      bool
	err         error
	done        chan struct{}
}

func newResponseChannel(w http.ResponseWriter) *responseChannel {
	return &responseChannel{w: w, status: http.StatusOK, done: make(chan struct{})}
}

func (c *responseChannel) SetHeader(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.wroteHeader || c.closed {
		return
	}
	c.w.Header().Add(key, value)
}

func (c *responseChannel) SetStatus(code int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.wroteHeader || c.closed {
		return
	}
	c.status = code
}

func (c *responseChannel) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, http.ErrBodyNotAllowed
	}
	c.flushHeaderLocked()
	return c.w.Write(p)
}

// Close completes the response exactly once and releases the waiting
// connection handler. If nothing was written yet the recorded status is
// flushed so the client always gets a response line.
func (c *responseChannel) Close(err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.err = err
	c.flushHeaderLocked()
	c.closed = true
	c.mu.Unlock()
	close(c.done)
}

func (c *responseChannel) flushHeaderLocked() {
	if c.wroteHeader {
		return
	}
	c.wroteHeader = true
	c.w.WriteHeader(c.status)
}

// wait blocks until the response is completed.
func (c *responseChannel) wait() error {
	<-c.done
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}
