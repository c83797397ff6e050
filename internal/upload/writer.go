package upload

import (
	"context"
	"errors"
	"io"
	"net/http"
)

const chunkSize = 32 * 1024

// WriteBounded streams src into dst chunk by chunk, enforcing limit on the
// running total. When the limit is exceeded or any read/write fails, dst is
// released before returning. On success the data is synced to disk and the
// number of bytes written is returned.
func WriteBounded(ctx context.Context, dst *TransientFile, src io.Reader, limit int64) (int64, error) {
	buf := make([]byte, chunkSize)
	var total int64

	fail := func(err error) (int64, error) {
		dst.Release()
		return total, err
	}

	for {
		if err := ctx.Err(); err != nil {
			return fail(&ReplicationError{Err: err})
		}

		n, readErr := src.Read(buf)
		if n > 0 {
			written, err := dst.Write(buf[:n])
			total += int64(written)
			if err != nil {
				return fail(&IOError{Op: "write", Err: err})
			}
			if total > limit {
				return fail(&SizeLimitError{Limit: limit})
			}
		}

		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			// A client disconnect surfaces as a truncated body, not as a
			// context error.
			if err := ctx.Err(); err != nil {
				return fail(&ReplicationError{Err: err})
			}
			return fail(classifyReadError(readErr, limit))
		}
	}

	if err := dst.Commit(); err != nil {
		return fail(&IOError{Op: "flush", Err: err})
	}

	return total, nil
}

// classifyReadError maps an error from the inbound body to an error kind.
// Tripping the request body cap is a size violation, not a parse failure.
func classifyReadError(err error, limit int64) error {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return &SizeLimitError{Limit: limit}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &ReplicationError{Err: err}
	}
	return &MultipartError{Err: err}
}
