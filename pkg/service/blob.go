package service

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/blobfront/blobfront/internal/logger"
	"github.com/blobfront/blobfront/pkg/rest"
	"github.com/blobfront/blobfront/pkg/router"
	"github.com/blobfront/blobfront/pkg/scaling"
)

// BlobService implements the blob storage operations on top of a Router.
//
// Expected failures (a missing blob, a malformed request) are converted to
// responses with the matching status code; only unexpected failures travel
// to the response handler as errors.
type BlobService struct {
	router    router.Router
	responses scaling.ResponseHandler
	running   atomic.Bool
}

// NewBlobService builds the blob service. The router and response handler
// must already be constructed; the service does not own their lifecycle.
func NewBlobService(rt router.Router, responses scaling.ResponseHandler) (*BlobService, error) {
	if rt == nil {
		return nil, fmt.Errorf("service: router is required")
	}
	if responses == nil {
		return nil, fmt.Errorf("service: response handler is required")
	}
	return &BlobService{router: rt, responses: responses}, nil
}

// Start marks the service ready to accept requests.
func (s *BlobService) Start() error {
	s.running.Store(true)
	return nil
}

// Shutdown stops accepting requests. In-flight requests already on the
// request-handler workers still complete.
func (s *BlobService) Shutdown() error {
	s.running.Store(false)
	return nil
}

// HandleRequest executes one storage operation on the calling worker and
// submits the result to the response handler.
func (s *BlobService) HandleRequest(req *rest.Request, rc rest.ResponseChannel) {
	if !s.running.Load() {
		s.submit(req, rc, rest.NewResponse(http.StatusServiceUnavailable), nil)
		return
	}

	var resp *rest.Response
	var err error

	switch req.Op {
	case rest.OpPut:
		resp, err = s.putBlob(req)
	case rest.OpGet:
		resp, err = s.getBlob(req)
	case rest.OpDelete:
		resp, err = s.deleteBlob(req)
	case rest.OpList:
		resp, err = s.listBlobs(req)
	default:
		resp = rest.NewResponse(http.StatusBadRequest)
	}

	s.submit(req, rc, resp, err)
}

// submit hands the result to the response handler. If the response pool is
// already closed the result is written inline as a 503 so the client never
// hangs.
func (s *BlobService) submit(req *rest.Request, rc rest.ResponseChannel, resp *rest.Response, err error) {
	serr := s.responses.Submit(req, rc, resp, err)
	if serr == nil {
		return
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if errors.Is(serr, scaling.ErrQueueClosed) {
		logger.Warn("response handler closed, failing request", "request_id", req.ID)
		rc.SetStatus(http.StatusServiceUnavailable)
		rc.Close(serr)
		return
	}
	logger.Error("response submit failed", "request_id", req.ID, "error", serr)
	rc.SetStatus(http.StatusInternalServerError)
	rc.Close(serr)
}

func (s *BlobService) putBlob(req *rest.Request) (*rest.Response, error) {
	if req.Body == nil {
		return rest.NewResponse(http.StatusBadRequest), nil
	}
	defer func() { _ = req.Body.Close() }()

	id := uuid.NewString()
	if err := s.router.PutBlob(req.Context(), id, req.Body, req.Size); err != nil {
		return nil, fmt.Errorf("put blob %s: %w", id, err)
	}
	logger.Debug("blob stored", "request_id", req.ID, "blob_id", id, "size", req.Size)

	body, err := json.Marshal(map[string]string{"id": id})
	if err != nil {
		return nil, err
	}
	resp := rest.NewResponse(http.StatusCreated)
	resp.Header.Set("Location", "/blobs/"+id)
	resp.Header.Set("Content-Type", "application/json")
	resp.Body = io.NopCloser(bytes.NewReader(body))
	return resp, nil
}

func (s *BlobService) getBlob(req *rest.Request) (*rest.Response, error) {
	if req.BlobID == "" {
		return rest.NewResponse(http.StatusBadRequest), nil
	}

	body, size, err := s.router.GetBlob(req.Context(), req.BlobID)
	if err != nil {
		if errors.Is(err, router.ErrBlobNotFound) {
			return rest.NewResponse(http.StatusNotFound), nil
		}
		return nil, fmt.Errorf("get blob %s: %w", req.BlobID, err)
	}

	resp := rest.NewResponse(http.StatusOK)
	resp.Header.Set("Content-Type", "application/octet-stream")
	if size >= 0 {
		resp.Header.Set("Content-Length", fmt.Sprintf("%d", size))
	}
	resp.Body = body
	return resp, nil
}

func (s *BlobService) deleteBlob(req *rest.Request) (*rest.Response, error) {
	if req.BlobID == "" {
		return rest.NewResponse(http.StatusBadRequest), nil
	}

	if err := s.router.DeleteBlob(req.Context(), req.BlobID); err != nil {
		if errors.Is(err, router.ErrBlobNotFound) {
			return rest.NewResponse(http.StatusNotFound), nil
		}
		return nil, fmt.Errorf("delete blob %s: %w", req.BlobID, err)
	}
	logger.Debug("blob deleted", "request_id", req.ID, "blob_id", req.BlobID)
	return rest.NewResponse(http.StatusAccepted), nil
}

func (s *BlobService) listBlobs(req *rest.Request) (*rest.Response, error) {
	blobs, err := s.router.ListBlobs(req.Context())
	if err != nil {
		return nil, fmt.Errorf("list blobs: %w", err)
	}
	if blobs == nil {
		blobs = []router.BlobInfo{}
	}

	body, err := json.Marshal(blobs)
	if err != nil {
		return nil, err
	}
	resp := rest.NewResponse(http.StatusOK)
	resp.Header.Set("Content-Type", "application/json")
	resp.Body = io.NopCloser(bytes.NewReader(body))
	return resp, nil
}
