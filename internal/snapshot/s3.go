package snapshot

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/archlens/archlens/internal/apperr"
	"github.com/archlens/archlens/internal/graph"
)

// S3Config locates the bucket holding snapshots.
type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	UseSSL    bool   `yaml:"useSSL"`
}

// S3 stores the snapshot as the object <prefix>/<file>.
type S3 struct {
	client   *minio.Client
	bucket   string
	region   string
	key      string
	initOnce sync.Once
	initErr  error
}

// NewS3 creates an S3-compatible store.
func NewS3(cfg S3Config, file string) (*S3, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("snapshot: s3 endpoint is required: %w", apperr.ErrConfig)
	}
	access := strings.TrimSpace(cfg.AccessKey)
	secret := strings.TrimSpace(cfg.SecretKey)
	if access == "" || secret == "" {
		return nil, fmt.Errorf("snapshot: s3 access key and secret key are required: %w", apperr.ErrConfig)
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("snapshot: s3 bucket is required: %w", apperr.ErrConfig)
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}
	if file == "" {
		file = DefaultFile
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("snapshot: init s3 client: %w", err)
	}
	return &S3{
		client: client,
		bucket: bucket,
		region: region,
		key:    ObjectKey(cfg.Prefix, file),
	}, nil
}

// ObjectKey joins prefix and file into an object key.
func ObjectKey(prefix, file string) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return file
	}
	return path.Join(prefix, file)
}

// Key returns the object key of the snapshot.
func (s *S3) Key() string { return s.key }

func (s *S3) ensureBucket(ctx context.Context) error {
	s.initOnce.Do(func() {
		exists, err := s.client.BucketExists(ctx, s.bucket)
		if err != nil {
			s.initErr = err
			return
		}
		if exists {
			return
		}
		s.initErr = s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region})
	})
	return s.initErr
}

// Load downloads and decodes the snapshot. A missing object or bucket is
// not an error.
func (s *S3) Load(ctx context.Context) (*graph.Entity, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, s.key, minio.GetObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("snapshot: s3 get %s: %w", s.key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("snapshot: s3 read %s: %w", s.key, err)
	}
	root, err := graph.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("snapshot: s3 %s: %w", s.key, err)
	}
	return root, nil
}

// Save encodes root and uploads it.
func (s *S3) Save(ctx context.Context, root *graph.Entity) error {
	data, err := graph.Encode(root)
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	if err := s.ensureBucket(ctx); err != nil {
		return fmt.Errorf("snapshot: ensure bucket: %w", err)
	}
	_, err = s.client.PutObject(ctx, s.bucket, s.key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("snapshot: s3 put %s: %w", s.key, err)
	}
	return nil
}

func isNotFound(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NoSuchBucket"
}
