package host

import "fmt"

// AssemblyError reports a failure while resolving or running a factory. No
// component has been started when this is returned; construction aborts on
// the first failure.
type AssemblyError struct {
	// Role is the logical role whose factory failed.
	Role string

	Err error
}

func (e *AssemblyError) Error() string {
	return fmt.Sprintf("assembly of %s failed: %v", e.Role, e.Err)
}

func (e *AssemblyError) Unwrap() error { return e.Err }

// StartError reports a component that failed to start. Components started
// earlier in the sequence remain running; there is no rollback.
type StartError struct {
	// Component is the lifecycle phase that failed.
	Component string

	Err error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("start of %s failed: %v", e.Component, e.Err)
}

func (e *StartError) Unwrap() error { return e.Err }
