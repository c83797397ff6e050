// Package ledger keeps a SQLite record of every finished upload attempt,
// including partial replications that left an object in only one backend.
package ledger

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"dualstore/internal/upload"

	_ "github.com/mattn/go-sqlite3"
)

const (
	DefaultLimit = 50
	MaxLimit     = 500
)

var (
	//go:embed migrations
	migrationsFS embed.FS

	_ upload.Recorder = (*Ledger)(nil)
)

// Entry is a stored upload record.
type Entry struct {
	ID             int64     `json:"id"`
	Key            string    `json:"key"`
	Filename       string    `json:"filename"`
	Size           int64     `json:"size"`
	ObjectLocator  string    `json:"s3_url"`
	ContentAddress string    `json:"ipfs_hash"`
	Status         string    `json:"status"`
	ErrorKind      string    `json:"error_kind,omitempty"`
	Stage          string    `json:"stage"`
	DurationMS     int64     `json:"duration_ms"`
	CreatedAt      time.Time `json:"created_at"`
}

// Ledger records upload reports in SQLite.
type Ledger struct {
	db *sql.DB
}

// initSchema applies all SQL files in the embedded migrations in
// lexicographical order.
func initSchema(ctx context.Context, db *sql.DB) error {
	return fs.WalkDir(migrationsFS, "migrations", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		content, readError := migrationsFS.ReadFile(path)
		if readError != nil {
			return fmt.Errorf("error reading SQL file: %w", readError)
		}

		slog.Info("Running migration", "path", path)
		_, execError := db.ExecContext(ctx, string(content))
		return execError
	})
}

// Open opens (creating if needed) the ledger database at path.
func Open(ctx context.Context, path string) (*Ledger, error) {
	if path == "" {
		return nil, errors.New("ledger path must not be empty")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create ledger dir: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	// Uploads finish concurrently; a single connection serializes writers
	// instead of surfacing SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := initSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &Ledger{db: db}, nil
}

// Close closes the underlying database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Record stores report.
func (l *Ledger) Record(ctx context.Context, report upload.Report) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO uploads(object_key, filename, size, s3_url, ipfs_hash, status, error_kind, stage, duration_ms, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		report.Key,
		report.Filename,
		report.Size,
		report.ObjectLocator,
		report.ContentAddress,
		report.Status,
		report.ErrorKind,
		report.Stage.String(),
		report.Duration.Milliseconds(),
		report.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert upload record: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first. Out of range limits are
// clamped to [1, MaxLimit].
func (l *Ledger) Recent(ctx context.Context, limit int) ([]Entry, error) {
	switch {
	case limit <= 0:
		limit = DefaultLimit
	case limit > MaxLimit:
		limit = MaxLimit
	}

	rows, err := l.db.QueryContext(ctx,
		`SELECT id, object_key, filename, size, s3_url, ipfs_hash, status, error_kind, stage, duration_ms, created_at
		 FROM uploads
		 ORDER BY id DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query uploads: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		var e Entry
		if err := rows.Scan(
			&e.ID,
			&e.Key,
			&e.Filename,
			&e.Size,
			&e.ObjectLocator,
			&e.ContentAddress,
			&e.Status,
			&e.ErrorKind,
			&e.Stage,
			&e.DurationMS,
			&e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan upload: %w", err)
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate uploads: %w", err)
	}
	return entries, nil
}
