// Package health tracks the single UP/DOWN signal exposed to external load
// balancers.
//
// The state is written only by the service host: DOWN to UP as the very last
// step of startup, UP to DOWN as the very first step of shutdown. Flipping to
// DOWN before any component stops lets a load balancer drain traffic ahead of
// the teardown. The transport's health endpoint reads the flag lock-free.
package health

import "sync/atomic"

// State is the component health flag probed by load balancers.
// The zero value is not usable; create instances with New.
type State struct {
	up   atomic.Bool
	path string
}

// New returns a State in the DOWN position that answers probes at the given
// URI path.
func New(probePath string) *State {
	return &State{path: probePath}
}

// MarkUp transitions the service to UP. Called once, as the final step of a
// successful startup.
func (s *State) MarkUp() {
	s.up.Store(true)
}

// MarkDown transitions the service to DOWN. Called as the first step of
// shutdown, before any component is stopped.
func (s *State) MarkDown() {
	s.up.Store(false)
}

// IsUp reports whether the service is currently advertising itself healthy.
// Safe for concurrent use from the probe path.
func (s *State) IsUp() bool {
	return s.up.Load()
}

// ProbePath returns the URI path the health endpoint is served on.
func (s *State) ProbePath() string {
	return s.path
}
