package s3

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blobfront/blobfront/pkg/topology"
)

func testRouter(cfg Config) *Router {
	return newWithClient(nil, cfg)
}

func TestNewRequiresBucket(t *testing.T) {
	_, err := New(context.Background(), map[string]any{}, nil)
	assert.Error(t, err)
}

func TestNewRejectsBadParams(t *testing.T) {
	_, err := New(context.Background(), map[string]any{"max_retries": "lots"}, nil)
	assert.Error(t, err)
}

func TestConfigDecode(t *testing.T) {
	topo, err := topology.New(topology.Config{
		Cluster: "test",
		Nodes:   []topology.Node{{Name: "minio1", Address: "10.0.0.5:9000"}},
	})
	require.NoError(t, err)

	cfg := Config{Region: "us-east-1", MaxRetries: 3}
	require.NoError(t, decodeParams(map[string]any{
		"bucket":     "blobs",
		"region":     "eu-west-1",
		"key_prefix": "front/",
	}, &cfg))

	assert.Equal(t, "blobs", cfg.Bucket)
	assert.Equal(t, "eu-west-1", cfg.Region)
	assert.Equal(t, "front/", cfg.KeyPrefix)

	// Endpoint default comes from the first topology node.
	node, ok := topo.First()
	require.True(t, ok)
	assert.Equal(t, "10.0.0.5:9000", node.Address)
}

func TestObjectKey(t *testing.T) {
	r := testRouter(Config{Bucket: "b"})
	assert.Equal(t, "abc", r.objectKey("abc"))
	assert.Equal(t, "abc", r.blobID("abc"))

	r = testRouter(Config{Bucket: "b", KeyPrefix: "front/"})
	assert.Equal(t, "front/abc", r.objectKey("abc"))
	assert.Equal(t, "abc", r.blobID("front/abc"))

	r = testRouter(Config{Bucket: "b", KeyPrefix: "front"})
	assert.Equal(t, "front/abc", r.objectKey("abc"))
	assert.Equal(t, "abc", r.blobID("front/abc"))
}

func TestIsNotFoundError(t *testing.T) {
	assert.False(t, isNotFoundError(nil))
	assert.True(t, isNotFoundError(&types.NoSuchKey{}))
	assert.True(t, isNotFoundError(&types.NotFound{}))
	assert.True(t, isNotFoundError(&smithy.GenericAPIError{Code: "NoSuchKey"}))
	assert.True(t, isNotFoundError(fmt.Errorf("request failed, StatusCode: 404")))
	assert.False(t, isNotFoundError(errors.New("connection refused")))
}

func TestIsRetryableError(t *testing.T) {
	assert.False(t, isRetryableError(nil))
	assert.False(t, isRetryableError(context.Canceled))
	assert.False(t, isRetryableError(context.DeadlineExceeded))
	assert.True(t, isRetryableError(&smithy.GenericAPIError{Code: "SlowDown"}))
	assert.True(t, isRetryableError(&smithy.GenericAPIError{Code: "InternalError"}))
	assert.False(t, isRetryableError(&smithy.GenericAPIError{Code: "AccessDenied"}))
	assert.False(t, isRetryableError(&smithy.GenericAPIError{Code: "NoSuchKey"}))
	assert.True(t, isRetryableError(errors.New("read tcp: connection reset by peer")))
}

func TestCalculateBackoff(t *testing.T) {
	r := testRouter(Config{Bucket: "b", MaxRetries: 3})
	assert.Equal(t, 100*time.Millisecond, r.calculateBackoff(0))
	assert.Equal(t, 200*time.Millisecond, r.calculateBackoff(1))
	assert.Equal(t, 400*time.Millisecond, r.calculateBackoff(2))
	assert.Equal(t, 5*time.Second, r.calculateBackoff(20), "capped at max backoff")
}

func TestWithRetryStopsOnPermanentError(t *testing.T) {
	r := testRouter(Config{Bucket: "b", MaxRetries: 3})

	calls := 0
	err := r.withRetry(context.Background(), "op", "key", func() error {
		calls++
		return &smithy.GenericAPIError{Code: "AccessDenied"}
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestWithRetryRetriesTransientError(t *testing.T) {
	r := testRouter(Config{Bucket: "b", MaxRetries: 3})
	r.retry.initialBackoff = time.Millisecond

	calls := 0
	err := r.withRetry(context.Background(), "op", "key", func() error {
		calls++
		if calls < 3 {
			return &smithy.GenericAPIError{Code: "SlowDown"}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithRetryHonorsContext(t *testing.T) {
	r := testRouter(Config{Bucket: "b", MaxRetries: 5})
	r.retry.initialBackoff = time.Minute

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- r.withRetry(ctx, "op", "key", func() error {
			return &smithy.GenericAPIError{Code: "SlowDown"}
		})
	}()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("withRetry did not honor cancellation")
	}
}

func TestOperationsAfterClose(t *testing.T) {
	r := testRouter(Config{Bucket: "b"})
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())

	ctx := context.Background()
	assert.Error(t, r.PutBlob(ctx, "id", nil, 0))
	_, _, err := r.GetBlob(ctx, "id")
	assert.Error(t, err)
	assert.Error(t, r.DeleteBlob(ctx, "id"))
	_, err = r.ListBlobs(ctx)
	assert.Error(t, err)
}
