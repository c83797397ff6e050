package storage

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// LocalObjectStore is an ObjectStore that mirrors bucket/key addressing on
// the local filesystem as <dataDir>/<bucket>/<key>.
type LocalObjectStore struct {
	dataDir string
}

// NewLocalObjectStore creates a new LocalObjectStore rooted at dataDir.
func NewLocalObjectStore(dataDir string) *LocalObjectStore {
	return &LocalObjectStore{dataDir: dataDir}
}

// objectPath resolves bucket/key below dataDir, rejecting anything that
// would escape it.
func (s *LocalObjectStore) objectPath(bucket string, key string) (string, error) {
	if bucket == "" || key == "" {
		return "", fmt.Errorf("bucket and key must not be empty")
	}

	root, err := filepath.Abs(s.dataDir)
	if err != nil {
		return "", err
	}

	p := filepath.Join(root, bucket, filepath.FromSlash(key))
	if !strings.HasPrefix(p, filepath.Join(root, bucket)+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return p, nil
}

// Put copies the file at localPath to bucket/key and returns a file:// URL.
func (s *LocalObjectStore) Put(ctx context.Context, localPath string, bucket string, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	objPath, err := s.objectPath(bucket, key)
	if err != nil {
		return "", err
	}

	if err := publishFile(localPath, objPath); err != nil {
		return "", fmt.Errorf("store object %s/%s: %w", bucket, key, err)
	}

	u := url.URL{Scheme: "file", Path: filepath.ToSlash(objPath)}
	return u.String(), nil
}
