// Package transport defines the client-facing server abstraction. A
// transport accepts client requests, converts them into the shared request
// form, and submits them to the request-handler scaling unit.
package transport

// Server is one client-facing transport.
//
// Start binds the listener and returns once the server is accepting
// connections; serving continues on background goroutines. Shutdown stops
// accepting new connections and drains in-flight ones within the configured
// timeout.
type Server interface {
	Start() error
	Shutdown() error

	// Port returns the bound listen port, resolving port 0 to the
	// ephemeral port actually chosen. Valid after Start.
	Port() int
}
