package upload

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
)

// TransientFile is the staging file for a single upload. It is created
// exclusively for one pipeline instance and removed exactly once by Release.
type TransientFile struct {
	path string
	file *os.File

	once    sync.Once
	removed bool
}

// CreateTransient creates a new uniquely named staging file in dir.
func CreateTransient(dir string) (*TransientFile, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}

	f, err := os.CreateTemp(dir, "upload-*.part")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}

	return &TransientFile{path: f.Name(), file: f}, nil
}

// Path returns the filesystem path of the staging file.
func (t *TransientFile) Path() string {
	return t.path
}

// Write appends p to the staging file.
func (t *TransientFile) Write(p []byte) (int, error) {
	return t.file.Write(p)
}

// Commit flushes written data to stable storage and closes the write handle.
// The file stays on disk until Release.
func (t *TransientFile) Commit() error {
	if err := t.file.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := t.file.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	return nil
}

// Release closes and removes the staging file. Only the first call has any
// effect. Failures are logged and never returned.
func (t *TransientFile) Release() {
	t.once.Do(func() {
		if err := t.file.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			slog.Debug("Failed to close temp upload file", "path", t.path, "err", err)
		}

		err := os.Remove(t.path)
		switch {
		case err == nil:
		case os.IsNotExist(err):
			slog.Warn("Temp upload file already removed", "path", t.path)
		default:
			slog.Warn("Failed to remove temp upload file", "path", t.path, "err", err)
		}
		t.removed = true
	})
}

// Released reports whether Release has run.
func (t *TransientFile) Released() bool {
	return t.removed
}
