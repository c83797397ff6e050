// Package storage defines the two replication targets of an upload and their
// adapters. Object stores are addressed by caller-chosen bucket and key;
// content stores derive the address from the bytes themselves.
package storage

import "context"

// ObjectStore uploads a local file to a bucket/key-addressed store.
type ObjectStore interface {
	// Put stores the file at localPath under bucket/key and returns a
	// locator (URL) for the stored object.
	Put(ctx context.Context, localPath string, bucket string, key string) (string, error)
}

// ContentStore uploads a local file to a content-addressed store.
type ContentStore interface {
	// Put stores the file at localPath and returns its content address.
	// Identical content yields the same address on every call.
	Put(ctx context.Context, localPath string) (string, error)
}
