package ledger_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"dualstore/internal/ledger"
	"dualstore/internal/upload"

	"github.com/stretchr/testify/require"
)

func openTestLedger(t *testing.T) *ledger.Ledger {
	t.Helper()

	l, err := ledger.Open(context.Background(), filepath.Join(t.TempDir(), "nested", "ledger.db"))
	require.NoError(t, err, "Open error")
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestLedgerRecordAndRecent(t *testing.T) {
	t.Parallel()

	l := openTestLedger(t)
	ctx := context.Background()
	created := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, l.Record(ctx, upload.Report{
		Key:            "uploads/abc_hello.txt",
		Filename:       "hello.txt",
		Size:           10,
		ObjectLocator:  "https://bucket.s3.amazonaws.com/uploads/abc_hello.txt",
		ContentAddress: "QmHash",
		Status:         upload.StatusSucceeded,
		Stage:          upload.StateSucceeded,
		Duration:       150 * time.Millisecond,
		CreatedAt:      created,
	}))

	require.NoError(t, l.Record(ctx, upload.Report{
		Key:            "uploads/def_other.txt",
		Filename:       "other.txt",
		Size:           5,
		ContentAddress: "QmOther",
		Status:         upload.StatusPartial,
		ErrorKind:      upload.KindObjectStore,
		Stage:          upload.StateReplicating,
		CreatedAt:      created.Add(time.Second),
	}))

	entries, err := l.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// Newest first.
	require.Equal(t, "other.txt", entries[0].Filename)
	require.Equal(t, upload.StatusPartial, entries[0].Status)
	require.Equal(t, upload.KindObjectStore, entries[0].ErrorKind)
	require.Equal(t, "replicating", entries[0].Stage)
	require.Empty(t, entries[0].ObjectLocator)

	require.Equal(t, "hello.txt", entries[1].Filename)
	require.Equal(t, "uploads/abc_hello.txt", entries[1].Key)
	require.Equal(t, int64(10), entries[1].Size)
	require.Equal(t, "QmHash", entries[1].ContentAddress)
	require.Equal(t, int64(150), entries[1].DurationMS)
	require.True(t, created.Equal(entries[1].CreatedAt), "created_at mismatch: %v", entries[1].CreatedAt)
}

func TestLedgerRecentLimit(t *testing.T) {
	t.Parallel()

	l := openTestLedger(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, l.Record(ctx, upload.Report{
			Key:       fmt.Sprintf("uploads/%d_f.txt", i),
			Filename:  "f.txt",
			Status:    upload.StatusSucceeded,
			Stage:     upload.StateSucceeded,
			CreatedAt: time.Now(),
		}))
	}

	entries, err := l.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "uploads/4_f.txt", entries[0].Key)

	// Non-positive limits fall back to the default.
	entries, err = l.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 5)
}

func TestLedgerRecentEmpty(t *testing.T) {
	t.Parallel()

	l := openTestLedger(t)

	entries, err := l.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.NotNil(t, entries)
	require.Empty(t, entries)
}

func TestLedgerReopenKeepsRecords(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "ledger.db")
	ctx := context.Background()

	l, err := ledger.Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, l.Record(ctx, upload.Report{Key: "k", Status: upload.StatusFailed, ErrorKind: upload.KindNoFile, CreatedAt: time.Now()}))
	require.NoError(t, l.Close())

	l, err = ledger.Open(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	entries, err := l.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, upload.KindNoFile, entries[0].ErrorKind)
}

func TestOpenEmptyPath(t *testing.T) {
	t.Parallel()

	_, err := ledger.Open(context.Background(), "")
	require.Error(t, err)
}
