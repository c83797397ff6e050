package upload

import (
	"errors"
	"fmt"
)

// Error kinds reported to callers and recorded in the ledger.
const (
	KindNoFile            = "no_file"
	KindSizeLimitExceeded = "size_limit_exceeded"
	KindIO                = "io_error"
	KindMultipart         = "multipart_error"
	KindObjectStore       = "object_store_error"
	KindContentStore      = "content_store_error"
	KindUpload            = "upload_error"
	KindInternal          = "internal_error"
)

// ErrNoFile is returned when the multipart body has no file field.
var ErrNoFile = errors.New("no file found in upload request")

// SizeLimitError is returned when the uploaded stream exceeds the configured
// maximum file size.
type SizeLimitError struct {
	Limit int64
}

func (e *SizeLimitError) Error() string {
	return fmt.Sprintf("file exceeds maximum size of %d bytes", e.Limit)
}

// IOError wraps a local filesystem failure while staging the upload.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("file I/O error: %s: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// MultipartError wraps a malformed or truncated multipart body.
type MultipartError struct {
	Err error
}

func (e *MultipartError) Error() string {
	return fmt.Sprintf("failed to parse multipart form data: %v", e.Err)
}

func (e *MultipartError) Unwrap() error { return e.Err }

// ObjectStoreError wraps a failure reported by the object store backend.
type ObjectStoreError struct {
	Err error
}

func (e *ObjectStoreError) Error() string {
	return fmt.Sprintf("object store operation failed: %v", e.Err)
}

func (e *ObjectStoreError) Unwrap() error { return e.Err }

// ContentStoreError wraps a failure reported by the content-addressed store.
type ContentStoreError struct {
	Err error
}

func (e *ContentStoreError) Error() string {
	return fmt.Sprintf("content store operation failed: %v", e.Err)
}

func (e *ContentStoreError) Unwrap() error { return e.Err }

// ReplicationError is a replication-stage failure that cannot be attributed
// to a specific backend.
type ReplicationError struct {
	Err error
}

func (e *ReplicationError) Error() string {
	return fmt.Sprintf("upload processing failed: %v", e.Err)
}

func (e *ReplicationError) Unwrap() error { return e.Err }

// Kind classifies err into one of the Kind* codes.
func Kind(err error) string {
	var (
		sizeErr    *SizeLimitError
		ioErr      *IOError
		mpErr      *MultipartError
		objErr     *ObjectStoreError
		contentErr *ContentStoreError
		replErr    *ReplicationError
	)

	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNoFile):
		return KindNoFile
	case errors.As(err, &sizeErr):
		return KindSizeLimitExceeded
	case errors.As(err, &mpErr):
		return KindMultipart
	case errors.As(err, &ioErr):
		return KindIO
	case errors.As(err, &objErr):
		return KindObjectStore
	case errors.As(err, &contentErr):
		return KindContentStore
	case errors.As(err, &replErr):
		return KindUpload
	default:
		return KindInternal
	}
}
