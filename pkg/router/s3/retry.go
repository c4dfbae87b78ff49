package s3

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/blobfront/blobfront/internal/logger"
)

// isRetryableError returns true if the error is transient and the operation
// should be retried.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	// Context errors are not retryable
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	// Network errors are retryable
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "Throttling", "ThrottlingException", "RequestThrottled", "SlowDown":
			return true
		case "InternalError", "ServiceUnavailable", "ServiceException":
			return true
		case "NoSuchKey", "NotFound", "AccessDenied", "Forbidden", "InvalidRequest":
			return false
		}
	}

	errStr := err.Error()
	return strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "i/o timeout")
}

// isNotFoundError returns true if the error indicates the object doesn't
// exist.
func isNotFoundError(err error) bool {
	if err == nil {
		return false
	}

	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return true
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		if code == "NoSuchKey" || code == "NotFound" || code == "404" {
			return true
		}
	}

	errStr := err.Error()
	return strings.Contains(errStr, "StatusCode: 404") ||
		strings.Contains(errStr, "NotFound") ||
		strings.Contains(errStr, "NoSuchKey")
}

// calculateBackoff returns the backoff duration for a given attempt.
func (r *Router) calculateBackoff(attempt int) time.Duration {
	backoff := float64(r.retry.initialBackoff)
	for i := 0; i < attempt; i++ {
		backoff *= r.retry.backoffMultiplier
	}
	if backoff > float64(r.retry.maxBackoff) {
		backoff = float64(r.retry.maxBackoff)
	}
	return time.Duration(backoff)
}

// withRetry runs op, retrying transient failures with exponential backoff.
// Not found and other permanent errors return immediately.
func (r *Router) withRetry(ctx context.Context, opName, key string, op func() error) error {
	var lastErr error
	for attempt := 0; attempt <= r.retry.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := r.calculateBackoff(attempt - 1)
			logger.Debug("retrying S3 operation", "operation", opName, "key", key, "attempt", attempt, "backoff", backoff)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if isNotFoundError(lastErr) || !isRetryableError(lastErr) {
			return lastErr
		}

		logger.Debug("transient S3 error", "operation", opName, "key", key, "attempt", attempt+1, "error", lastErr)
	}
	return lastErr
}
