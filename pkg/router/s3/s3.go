// Package s3 implements a router backed by an S3-compatible object store.
// Each blob is one object; the blob ID is the object key under an optional
// prefix.
package s3

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/mitchellh/mapstructure"

	"github.com/blobfront/blobfront/internal/logger"
	"github.com/blobfront/blobfront/pkg/router"
	"github.com/blobfront/blobfront/pkg/topology"
)

// Config holds the S3 router settings, decoded from the router role's
// params block.
type Config struct {
	// Bucket is the target bucket. Required.
	Bucket string `mapstructure:"bucket"`

	// Region defaults to us-east-1.
	Region string `mapstructure:"region"`

	// Endpoint overrides the AWS endpoint, for MinIO or localstack. When
	// empty and the topology has nodes, the first node's address is used.
	Endpoint string `mapstructure:"endpoint"`

	// AccessKeyID and SecretAccessKey set static credentials. When empty
	// the default AWS credential chain applies.
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`

	// KeyPrefix is prepended to every object key.
	KeyPrefix string `mapstructure:"key_prefix"`

	// MaxRetries bounds retry attempts for transient errors.
	MaxRetries int `mapstructure:"max_retries"`

	// ForcePathStyle enables path-style addressing. Always on when a
	// custom endpoint is set.
	ForcePathStyle bool `mapstructure:"force_path_style"`
}

type retryConfig struct {
	maxRetries        int
	initialBackoff    time.Duration
	maxBackoff        time.Duration
	backoffMultiplier float64
}

// Router stores blobs as S3 objects.
type Router struct {
	client *s3.Client
	bucket string
	prefix string
	retry  retryConfig

	closeOnce sync.Once
	closed    chan struct{}
}

// New builds an S3 router from the role params and the cluster topology.
func New(ctx context.Context, params map[string]any, topo *topology.Topology) (*Router, error) {
	cfg := Config{Region: "us-east-1", MaxRetries: 3}
	if err := decodeParams(params, &cfg); err != nil {
		return nil, fmt.Errorf("s3 router: decode params: %w", err)
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 router: bucket is required")
	}

	if cfg.Endpoint == "" && topo != nil {
		if node, ok := topo.First(); ok {
			cfg.Endpoint = "http://" + node.Address
			logger.Debug("s3 router endpoint from topology", "node", node.Name, "endpoint", cfg.Endpoint)
		}
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3 router: load AWS config: %w", err)
	}

	var client *s3.Client
	if cfg.Endpoint != "" {
		client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true // Required for localstack/MinIO
		})
	} else {
		client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.UsePathStyle = cfg.ForcePathStyle
		})
	}

	return newWithClient(client, cfg), nil
}

func decodeParams(params map[string]any, cfg *Config) error {
	return mapstructure.Decode(params, cfg)
}

func newWithClient(client *s3.Client, cfg Config) *Router {
	return &Router{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.KeyPrefix,
		retry: retryConfig{
			maxRetries:        cfg.MaxRetries,
			initialBackoff:    100 * time.Millisecond,
			maxBackoff:        5 * time.Second,
			backoffMultiplier: 2.0,
		},
		closed: make(chan struct{}),
	}
}

func (r *Router) objectKey(id string) string {
	if r.prefix == "" {
		return id
	}
	return strings.TrimSuffix(r.prefix, "/") + "/" + id
}

func (r *Router) blobID(key string) string {
	if r.prefix == "" {
		return key
	}
	return strings.TrimPrefix(key, strings.TrimSuffix(r.prefix, "/")+"/")
}

func (r *Router) isClosed() bool {
	select {
	case <-r.closed:
		return true
	default:
		return false
	}
}

// PutBlob uploads the body as one object.
func (r *Router) PutBlob(ctx context.Context, id string, body io.Reader, size int64) error {
	if r.isClosed() {
		return router.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	key := r.objectKey(id)
	input := &s3.PutObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
		Body:   body,
	}
	if size >= 0 {
		input.ContentLength = aws.Int64(size)
	}

	// No retry loop here: the body reader cannot be rewound after a
	// partial upload.
	if _, err := r.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("s3 router: put %s: %w", key, err)
	}
	return nil
}

// GetBlob streams one object's bytes.
func (r *Router) GetBlob(ctx context.Context, id string) (io.ReadCloser, int64, error) {
	if r.isClosed() {
		return nil, 0, router.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	key := r.objectKey(id)
	var result *s3.GetObjectOutput

	err := r.withRetry(ctx, "GetBlob", key, func() error {
		var err error
		result, err = r.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(r.bucket),
			Key:    aws.String(key),
		})
		return err
	})
	if err != nil {
		if isNotFoundError(err) {
			return nil, 0, fmt.Errorf("blob %s: %w", id, router.ErrBlobNotFound)
		}
		return nil, 0, fmt.Errorf("s3 router: get %s: %w", key, err)
	}

	size := int64(-1)
	if result.ContentLength != nil {
		size = *result.ContentLength
	}
	return result.Body, size, nil
}

// DeleteBlob removes one object. S3 deletes are idempotent, so existence is
// checked first to surface ErrBlobNotFound.
func (r *Router) DeleteBlob(ctx context.Context, id string) error {
	if r.isClosed() {
		return router.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	key := r.objectKey(id)

	err := r.withRetry(ctx, "HeadBlob", key, func() error {
		_, err := r.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(r.bucket),
			Key:    aws.String(key),
		})
		return err
	})
	if err != nil {
		if isNotFoundError(err) {
			return fmt.Errorf("blob %s: %w", id, router.ErrBlobNotFound)
		}
		return fmt.Errorf("s3 router: head %s: %w", key, err)
	}

	err = r.withRetry(ctx, "DeleteBlob", key, func() error {
		_, err := r.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(r.bucket),
			Key:    aws.String(key),
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("s3 router: delete %s: %w", key, err)
	}
	return nil
}

// ListBlobs pages through the bucket under the configured prefix.
func (r *Router) ListBlobs(ctx context.Context) ([]router.BlobInfo, error) {
	if r.isClosed() {
		return nil, router.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	input := &s3.ListObjectsV2Input{Bucket: aws.String(r.bucket)}
	if r.prefix != "" {
		input.Prefix = aws.String(strings.TrimSuffix(r.prefix, "/") + "/")
	}

	var out []router.BlobInfo
	paginator := s3.NewListObjectsV2Paginator(r.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3 router: list: %w", err)
		}
		for _, obj := range page.Contents {
			info := router.BlobInfo{ID: r.blobID(aws.ToString(obj.Key))}
			if obj.Size != nil {
				info.Size = *obj.Size
			}
			out = append(out, info)
		}
	}
	return out, nil
}

// Close marks the router closed. The underlying SDK client holds no
// long-lived connections that need tearing down.
func (r *Router) Close() error {
	r.closeOnce.Do(func() { close(r.closed) })
	return nil
}
