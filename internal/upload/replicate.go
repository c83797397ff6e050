package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"dualstore/internal/storage"

	"golang.org/x/sync/errgroup"
)

const (
	BackendObjectStore  = "object_store"
	BackendContentStore = "content_store"
)

var (
	errEmptyLocator = errors.New("backend returned an empty locator")
	errEmptyAddress = errors.New("backend returned an empty content address")
)

// Outcome holds the locators produced by replication. After a failed
// replication it carries whichever side succeeded, for logging only.
type Outcome struct {
	ObjectLocator  string
	ContentAddress string
}

// Partial reports whether exactly one backend produced a result.
func (o Outcome) Partial() bool {
	return (o.ObjectLocator == "") != (o.ContentAddress == "")
}

// Replicator puts a staged file into both backends concurrently.
type Replicator struct {
	objects  storage.ObjectStore
	contents storage.ContentStore
	observer Observer
}

// NewReplicator returns a Replicator over the given backends.
func NewReplicator(objects storage.ObjectStore, contents storage.ContentStore, observer Observer) *Replicator {
	if observer == nil {
		observer = nopObserver{}
	}
	return &Replicator{objects: objects, contents: contents, observer: observer}
}

// Replicate uploads the file at path to the object store under bucket/key
// and to the content store. Both calls run concurrently and are always
// awaited. The first failure cancels the sibling call and is returned; a
// backend that already succeeded is not rolled back.
func (r *Replicator) Replicate(ctx context.Context, path string, bucket string, key string) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, &ReplicationError{Err: err}
	}

	var (
		locator string
		address string
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		defer recoverBackend(BackendObjectStore, &err)

		start := time.Now()
		loc, err := r.objects.Put(gctx, path, bucket, key)
		if err == nil && loc == "" {
			err = errEmptyLocator
		}
		r.observer.ObserveReplication(BackendObjectStore, time.Since(start), err)
		if err != nil {
			return &ObjectStoreError{Err: err}
		}

		locator = loc
		return nil
	})

	g.Go(func() (err error) {
		defer recoverBackend(BackendContentStore, &err)

		start := time.Now()
		addr, err := r.contents.Put(gctx, path)
		if err == nil && addr == "" {
			err = errEmptyAddress
		}
		r.observer.ObserveReplication(BackendContentStore, time.Since(start), err)
		if err != nil {
			return &ContentStoreError{Err: err}
		}

		address = addr
		return nil
	})

	err := g.Wait()
	outcome := Outcome{ObjectLocator: locator, ContentAddress: address}
	if err != nil {
		if outcome.Partial() {
			slog.Warn("Partial replication",
				"key", key,
				"s3_url", outcome.ObjectLocator,
				"ipfs_hash", outcome.ContentAddress,
				"err", err,
			)
		}
		return outcome, err
	}

	return outcome, nil
}

// recoverBackend converts a panic inside a backend call into an error.
func recoverBackend(backend string, err *error) {
	if rvr := recover(); rvr != nil {
		slog.Error("Panic in backend put", "backend", backend, "error", rvr)
		*err = &ReplicationError{Err: fmt.Errorf("%s: panic: %v", backend, rvr)}
	}
}
