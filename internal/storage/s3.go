package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	smithy "github.com/aws/smithy-go"

	"downloads-gateway/internal/config"
	"downloads-gateway/internal/metrics"
)

// webIdentityDuration is the lifetime of assumed web identity role sessions.
const webIdentityDuration = time.Hour

// S3API is the subset of the S3 client used by S3Store.
type S3API interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Store is an ObjectStore backed by S3 or an S3-compatible service.
type S3Store struct {
	client  S3API
	timeout time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewS3Store wraps an S3 client. timeout bounds each call until the response
// headers arrive; zero disables it. The metrics parameter is optional.
func NewS3Store(client S3API, timeout time.Duration, logger *slog.Logger, m *metrics.Metrics) *S3Store {
	return &S3Store{
		client:  client,
		timeout: timeout,
		logger:  logger.With("component", "s3_store"),
		metrics: m,
	}
}

// NewS3Factory returns a Factory that builds the S3 client on first use from
// the default AWS credential chain and reuses it afterwards. A failed build is
// not cached.
//
// When AWS_WEB_IDENTITY_TOKEN_FILE is set the chain assumes AWS_ROLE_ARN with a
// session named "<role_session_name>-<hostname>".
func NewS3Factory(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) Factory {
	var (
		mu    sync.Mutex
		store *S3Store
	)
	timeout := time.Duration(cfg.Upstream.TimeoutSeconds) * time.Second

	return func(ctx context.Context) (ObjectStore, error) {
		mu.Lock()
		defer mu.Unlock()

		if store != nil {
			return store, nil
		}

		client, err := newS3Client(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		store = NewS3Store(client, timeout, logger, m)
		logger.Info("s3 client initialised",
			"region", cfg.S3.Region,
			"endpoint", cfg.S3.Endpoint,
		)
		return store, nil
	}
}

func newS3Client(ctx context.Context, cfg config.S3Config) (*s3.Client, error) {
	sessionName := cfg.RoleSessionName
	if hostname, err := os.Hostname(); err == nil {
		sessionName += "-" + hostname
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithWebIdentityRoleCredentialOptions(func(o *stscreds.WebIdentityRoleOptions) {
			o.RoleSessionName = sessionName
			o.Duration = webIdentityDuration
		}),
	}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3: load aws config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	}), nil
}

// Exists issues a HEAD for the object.
func (s *S3Store) Exists(ctx context.Context, bucket, key string) (bool, error) {
	_, err := s.head(ctx, bucket, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Stat issues a HEAD for the object and returns its metadata.
func (s *S3Store) Stat(ctx context.Context, bucket, key string) (ObjectInfo, error) {
	out, err := s.head(ctx, bucket, key)
	if err != nil {
		return ObjectInfo{}, err
	}

	info := ObjectInfo{
		Size:        -1,
		ContentType: aws.ToString(out.ContentType),
		ETag:        aws.ToString(out.ETag),
	}
	if out.ContentLength != nil {
		info.Size = *out.ContentLength
	}
	if out.LastModified != nil {
		info.LastModified = *out.LastModified
	}
	return info, nil
}

// Open starts a GET for the object. The timeout applies only until the
// response headers arrive; the body then lives as long as ctx.
func (s *S3Store) Open(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	ctx, cancel := context.WithCancel(ctx)
	var timer *time.Timer
	if s.timeout > 0 {
		timer = time.AfterFunc(s.timeout, cancel)
	}

	start := time.Now()
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	s.observe("get", start)
	if timer != nil {
		timer.Stop()
	}
	if err != nil {
		cancel()
		return nil, s.wrapError(err, bucket, key, "get")
	}

	return &cancelOnClose{ReadCloser: out.Body, cancel: cancel}, nil
}

func (s *S3Store) head(ctx context.Context, bucket, key string) (*s3.HeadObjectOutput, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	s.observe("head", start)
	if err != nil {
		return nil, s.wrapError(err, bucket, key, "head")
	}
	return out, nil
}

func (s *S3Store) observe(op string, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObjectStoreDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
}

func (s *S3Store) wrapError(err error, bucket, key, op string) error {
	if isNotFound(err) {
		s.logger.Debug("object not found", "op", op, "bucket", bucket, "key", key)
		return fmt.Errorf("s3: %s %s/%s: %w", op, bucket, key, ErrNotFound)
	}
	return fmt.Errorf("s3: %s %s/%s: %w", op, bucket, key, err)
}

func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "NoSuchBucket":
			return true
		}
	}
	var statusErr interface{ HTTPStatusCode() int }
	if errors.As(err, &statusErr) {
		return statusErr.HTTPStatusCode() == http.StatusNotFound
	}
	return false
}

// cancelOnClose releases the request context once the body is closed.
type cancelOnClose struct {
	io.ReadCloser
	cancel   context.CancelFunc
	closeErr error
	once     sync.Once
}

func (c *cancelOnClose) Close() error {
	c.once.Do(func() {
		c.closeErr = c.ReadCloser.Close()
		c.cancel()
	})
	return c.closeErr
}
