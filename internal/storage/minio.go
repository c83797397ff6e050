package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioConfig holds MinIO (or any S3-compatible) connection settings.
type MinioConfig struct {
	Endpoint   string
	AccessKey  string
	SecretKey  string
	Region     string
	UseSSL     bool
	PublicBase string
}

// MinioObjectStore implements ObjectStore using minio-go.
type MinioObjectStore struct {
	client     *minio.Client
	publicBase string
}

// NewMinioObjectStore creates a MinIO client for cfg.
func NewMinioObjectStore(cfg MinioConfig) (*MinioObjectStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:       cfg.UseSSL,
		Region:       cfg.Region,
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &MinioObjectStore{
		client:     client,
		publicBase: strings.TrimRight(cfg.PublicBase, "/"),
	}, nil
}

// EnsureBucket checks if a bucket exists, and creates it if it does not.
func (s *MinioObjectStore) EnsureBucket(ctx context.Context, bucket string) error {
	exists, err := s.client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("check bucket existence: %w", err)
	}

	if !exists {
		if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket %q: %w", bucket, err)
		}
		slog.Info("Created bucket", "bucket", bucket)
	}
	return nil
}

// Put uploads the file at localPath to bucket/key.
func (s *MinioObjectStore) Put(ctx context.Context, localPath string, bucket string, key string) (string, error) {
	_, err := s.client.FPutObject(ctx, bucket, key, localPath, minio.PutObjectOptions{
		ContentType: ContentTypeForKey(key),
	})
	if err != nil {
		return "", fmt.Errorf("put object %q to bucket %q: %w", key, bucket, err)
	}

	if s.publicBase != "" {
		return s.publicBase + "/" + key, nil
	}
	endpoint := strings.TrimRight(s.client.EndpointURL().String(), "/")
	return endpoint + "/" + bucket + "/" + key, nil
}
