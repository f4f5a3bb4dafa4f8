package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"newsdigest/internal/config"
	"newsdigest/internal/digest"
	"newsdigest/internal/logging"
)

// Mirror uploads rendered digest artifacts to an S3-compatible bucket.
type Mirror struct {
	client *minio.Client
	bucket string
	prefix string
	logger *slog.Logger

	bucketOnce sync.Once
	bucketErr  error
}

// Enabled reports whether cfg names an endpoint and bucket.
func Enabled(cfg config.Artifacts) bool {
	return strings.TrimSpace(cfg.S3Endpoint) != "" && strings.TrimSpace(cfg.S3Bucket) != ""
}

// New constructs a mirror. No request is made until the first Upload.
func New(cfg config.Artifacts, logger *slog.Logger) (*Mirror, error) {
	if !Enabled(cfg) {
		return nil, errors.New("object store: s3_endpoint and s3_bucket are required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	client, err := minio.New(strings.TrimSpace(cfg.S3Endpoint), &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		Secure: cfg.S3UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("object store client: %w", err)
	}
	return &Mirror{
		client: client,
		bucket: strings.TrimSpace(cfg.S3Bucket),
		prefix: strings.Trim(strings.TrimSpace(cfg.S3Prefix), "/"),
		logger: logger.With(logging.String(logging.FieldComponent, "objectstore")),
	}, nil
}

// ObjectKey returns the key an artifact is stored under:
// <prefix>/<date>/<name>, without the prefix segment when it is empty.
func ObjectKey(prefix, date, name string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return path.Join(date, name)
	}
	return path.Join(prefix, date, name)
}

// Upload writes every artifact under the digest date and returns the keys.
func (m *Mirror) Upload(ctx context.Context, date string, artifacts []digest.Artifact) ([]string, error) {
	if err := m.ensureBucket(ctx); err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(artifacts))
	for _, artifact := range artifacts {
		key := ObjectKey(m.prefix, date, artifact.Name)
		_, err := m.client.PutObject(ctx, m.bucket, key,
			bytes.NewReader(artifact.Data), int64(len(artifact.Data)),
			minio.PutObjectOptions{ContentType: artifact.ContentType},
		)
		if err != nil {
			return keys, fmt.Errorf("upload %s: %w", key, err)
		}
		keys = append(keys, key)
	}
	m.logger.Info("artifacts mirrored",
		logging.String("bucket", m.bucket),
		logging.Int("objects", len(keys)),
	)
	return keys, nil
}

func (m *Mirror) ensureBucket(ctx context.Context) error {
	m.bucketOnce.Do(func() {
		exists, err := m.client.BucketExists(ctx, m.bucket)
		if err != nil {
			m.bucketErr = fmt.Errorf("check bucket %s: %w", m.bucket, err)
			return
		}
		if exists {
			return
		}
		if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{}); err != nil {
			m.bucketErr = fmt.Errorf("create bucket %s: %w", m.bucket, err)
			return
		}
		m.logger.Info("created bucket", logging.String("bucket", m.bucket))
	})
	return m.bucketErr
}
