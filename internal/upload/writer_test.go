package upload

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type failingReader struct {
	err error
}

func (r failingReader) Read([]byte) (int, error) {
	return 0, r.err
}

func TestWriteBoundedWritesContent(t *testing.T) {
	t.Parallel()

	tf, err := CreateTransient(t.TempDir())
	require.NoError(t, err)
	defer tf.Release()

	payload := bytes.Repeat([]byte("abcdefgh"), 10_000)
	n, err := WriteBounded(context.Background(), tf, bytes.NewReader(payload), int64(len(payload)))
	require.NoError(t, err)
	require.Equal(t, int64(len(payload)), n)

	got, err := os.ReadFile(tf.Path())
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestWriteBoundedExceedsLimitRemovesFile(t *testing.T) {
	t.Parallel()

	tf, err := CreateTransient(t.TempDir())
	require.NoError(t, err)

	_, err = WriteBounded(context.Background(), tf, strings.NewReader(strings.Repeat("x", 101)), 100)

	var sizeErr *SizeLimitError
	require.ErrorAs(t, err, &sizeErr)
	require.True(t, tf.Released())

	_, statErr := os.Stat(tf.Path())
	require.True(t, os.IsNotExist(statErr), "transient file should be removed")

	// A second release is a no-op.
	tf.Release()
}

func TestWriteBoundedReadErrorIsMultipartError(t *testing.T) {
	t.Parallel()

	tf, err := CreateTransient(t.TempDir())
	require.NoError(t, err)

	_, err = WriteBounded(context.Background(), tf, failingReader{err: errors.New("unexpected EOF")}, 100)
	require.Equal(t, KindMultipart, Kind(err))
	require.True(t, tf.Released())
}

// cancellingReader cancels its context and then reports a truncated body,
// the way a client disconnect looks to the handler.
type cancellingReader struct {
	cancel context.CancelFunc
}

func (r cancellingReader) Read([]byte) (int, error) {
	r.cancel()
	return 0, io.ErrUnexpectedEOF
}

func TestWriteBoundedDisconnectIsUploadError(t *testing.T) {
	t.Parallel()

	tf, err := CreateTransient(t.TempDir())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err = WriteBounded(ctx, tf, cancellingReader{cancel: cancel}, 100)
	require.Equal(t, KindUpload, Kind(err))
	require.ErrorIs(t, err, context.Canceled)
	require.True(t, tf.Released())
}

func TestClassifyReadError(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	body := http.MaxBytesReader(rec, io.NopCloser(strings.NewReader("toolong")), 3)
	_, maxErr := io.ReadAll(body)
	require.Equal(t, KindSizeLimitExceeded, Kind(classifyReadError(maxErr, 3)))

	require.Equal(t, KindSizeLimitExceeded, Kind(classifyReadError(&http.MaxBytesError{Limit: 10}, 10)))
	require.Equal(t, KindUpload, Kind(classifyReadError(context.Canceled, 10)))
	require.Equal(t, KindMultipart, Kind(classifyReadError(errors.New("bad boundary"), 10)))
}

func TestKind(t *testing.T) {
	t.Parallel()

	cause := errors.New("cause")
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{ErrNoFile, KindNoFile},
		{&SizeLimitError{Limit: 1}, KindSizeLimitExceeded},
		{&IOError{Op: "write", Err: cause}, KindIO},
		{&MultipartError{Err: cause}, KindMultipart},
		{&ObjectStoreError{Err: cause}, KindObjectStore},
		{&ContentStoreError{Err: cause}, KindContentStore},
		{&ReplicationError{Err: cause}, KindUpload},
		{cause, KindInternal},
	}

	for _, tt := range tests {
		require.Equal(t, tt.want, Kind(tt.err), "Kind(%v)", tt.err)
		if tt.err != nil && tt.want != KindInternal && tt.want != KindNoFile && tt.want != KindSizeLimitExceeded {
			require.ErrorIs(t, tt.err, cause)
		}
	}
}
