package storage

import (
	"context"
	"fmt"
	"path/filepath"

	"dualstore/internal/config"
)

// NewObjectStore creates the object store selected by cfg.Objects.Backend.
func NewObjectStore(ctx context.Context, cfg config.Config) (ObjectStore, error) {
	switch cfg.Objects.Backend {
	case config.ObjectStoreS3:
		return NewS3ObjectStore(ctx, S3Config{
			Region:          cfg.S3.Region,
			Endpoint:        cfg.Objects.Endpoint,
			AccessKeyID:     cfg.Objects.AccessKey,
			SecretAccessKey: cfg.Objects.SecretKey,
			PublicBase:      cfg.Objects.PublicBase,
		})

	case config.ObjectStoreMinio:
		store, err := NewMinioObjectStore(MinioConfig{
			Endpoint:   cfg.Objects.Endpoint,
			AccessKey:  cfg.Objects.AccessKey,
			SecretKey:  cfg.Objects.SecretKey,
			Region:     cfg.S3.Region,
			UseSSL:     cfg.Objects.UseSSL,
			PublicBase: cfg.Objects.PublicBase,
		})
		if err != nil {
			return nil, err
		}
		if err := store.EnsureBucket(ctx, cfg.S3.Bucket); err != nil {
			return nil, err
		}
		return store, nil

	case config.ObjectStoreLocal:
		return NewLocalObjectStore(filepath.Join(cfg.LocalDataDir, "objects")), nil

	default:
		return nil, fmt.Errorf("unsupported object store: %s (supported: s3, minio, local)", cfg.Objects.Backend)
	}
}

// NewContentStore creates the content store selected by cfg.Content.Backend.
func NewContentStore(cfg config.Config) (ContentStore, error) {
	switch cfg.Content.Backend {
	case config.ContentStoreIPFS:
		return NewIPFSContentStore(IPFSConfig{
			APIURL:  cfg.Content.IPFSAPIURL,
			Timeout: cfg.Content.IPFSTimeout,
		}), nil

	case config.ContentStoreLocal:
		return NewLocalContentStore(filepath.Join(cfg.LocalDataDir, "content")), nil

	default:
		return nil, fmt.Errorf("unsupported content store: %s (supported: ipfs, local)", cfg.Content.Backend)
	}
}
