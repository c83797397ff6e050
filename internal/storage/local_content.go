package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// LocalContentStore is a ContentStore that keeps payloads on the local
// filesystem under a content-addressed layout rooted at dataDir. Objects are
// addressed by their SHA-256 hexadecimal hash, with the first two characters
// used as a subdirectory prefix.
type LocalContentStore struct {
	dataDir string
}

// NewLocalContentStore creates a new LocalContentStore rooted at dataDir.
func NewLocalContentStore(dataDir string) *LocalContentStore {
	return &LocalContentStore{dataDir: dataDir}
}

// ObjectPath computes the filesystem path for the payload identified by
// hashHex.
func ObjectPath(directory string, hashHex string) (string, error) {
	if len(hashHex) < 2 {
		return "", fmt.Errorf("invalid hash length: %d", len(hashHex))
	}
	return filepath.Join(directory, hashHex[:2], hashHex), nil
}

// HashFile returns the SHA-256 hexadecimal digest and size of the file at
// path, reading it as a stream.
func HashFile(ctx context.Context, path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(h, contextReader{ctx: ctx, r: f})
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// Put stores the file at localPath and returns its SHA-256 address. If a
// payload with the same hash and size is already present it is reused.
func (s *LocalContentStore) Put(ctx context.Context, localPath string) (string, error) {
	hashHex, size, err := HashFile(ctx, localPath)
	if err != nil {
		return "", fmt.Errorf("hash payload: %w", err)
	}

	objPath, err := ObjectPath(s.dataDir, hashHex)
	if err != nil {
		return "", err
	}

	stored, err := has(objPath, size)
	if err != nil {
		return "", fmt.Errorf("stat payload %s: %w", hashHex, err)
	}
	if stored {
		return hashHex, nil
	}

	if err := publishFile(localPath, objPath); err != nil {
		return "", fmt.Errorf("store payload %s: %w", hashHex, err)
	}
	return hashHex, nil
}

// has reports whether a regular file of the given size is already stored
// at objPath.
func has(objPath string, size int64) (bool, error) {
	info, err := os.Stat(objPath)
	switch {
	case err == nil:
		return info.Mode().IsRegular() && info.Size() == size, nil
	case os.IsNotExist(err):
		return false, nil
	default:
		return false, err
	}
}

// contextReader stops reading once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
