// Package service holds the business logic layer between the scaling units
// and the router.
package service

import (
	"github.com/blobfront/blobfront/pkg/rest"
)

// StorageService executes storage operations. The request-handler scaling
// unit invokes HandleRequest from its workers; completed operations are
// submitted to the response-handler scaling unit.
//
// Start is called after the response handler is running and before the
// request handler starts, so a service never sees a request before Start
// and never submits a response into a dead pool.
type StorageService interface {
	rest.Handler

	Start() error
	Shutdown() error
}
