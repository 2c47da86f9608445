package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/lifecycle"
)

// ExportPrefix is the key prefix every export lives under; the retention
// rule is scoped to it.
const ExportPrefix = "key-transactions/"

const retentionRuleID = "discover-export-retention"

var errNotInitialized = errors.New("minio store not initialized")

func NewMinIOClient(cfg Config) (*minio.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	dialer := &net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}
	return minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			DialContext:         dialer.DialContext,
			ForceAttemptHTTP2:   true,
			MaxIdleConns:        20,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 5 * time.Second,
		},
	})
}

// MinioStore keeps key transaction CSV exports in one bucket and hands out
// presigned download URLs for them.
type MinioStore struct {
	client        *minio.Client
	bucket        string
	region        string
	retentionDays int
}

func NewMinioStore(client *minio.Client, cfg Config) (*MinioStore, error) {
	if client == nil {
		return nil, errors.New("minio client is required")
	}
	if cfg.BucketExports == "" {
		return nil, errors.New("bucket is required")
	}
	return &MinioStore{
		client:        client,
		bucket:        cfg.BucketExports,
		region:        cfg.Region,
		retentionDays: cfg.RetentionDays,
	}, nil
}

func (s *MinioStore) Bucket() string {
	return s.bucket
}

// EnsureBucket creates the bucket if needed and installs the retention rule.
func (s *MinioStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("bucket exists: %w", err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
			return fmt.Errorf("make bucket %s: %w", s.bucket, err)
		}
	}
	if s.retentionDays <= 0 {
		return nil
	}
	if err := s.client.SetBucketLifecycle(ctx, s.bucket, retentionRule(s.retentionDays)); err != nil {
		return fmt.Errorf("set lifecycle %s: %w", s.bucket, err)
	}
	return nil
}

func retentionRule(days int) *lifecycle.Configuration {
	cfg := lifecycle.NewConfiguration()
	cfg.Rules = []lifecycle.Rule{{
		ID:         retentionRuleID,
		Status:     "Enabled",
		RuleFilter: lifecycle.Filter{Prefix: ExportPrefix},
		Expiration: lifecycle.Expiration{Days: lifecycle.ExpirationDays(days)},
	}}
	return cfg
}

func (s *MinioStore) CheckBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("bucket exists: %w", err)
	}
	if !exists {
		return fmt.Errorf("bucket missing: %s", s.bucket)
	}
	return nil
}

func (s *MinioStore) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	if s == nil || s.client == nil {
		return errNotInitialized
	}
	_, err := s.client.PutObject(ctx, s.bucket, key, body, size, minio.PutObjectOptions{
		ContentType:        contentType,
		ContentDisposition: attachment(key),
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

// PresignGet signs a download URL that forces a file download in browsers.
func (s *MinioStore) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if s == nil || s.client == nil {
		return "", errNotInitialized
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	params := url.Values{"response-content-disposition": {attachment(key)}}
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, ttl, params)
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return u.String(), nil
}

func attachment(key string) string {
	return fmt.Sprintf("attachment; filename=%q", path.Base(key))
}
