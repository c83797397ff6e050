package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// copyFile copies the contents of srcPath into a new file at destPath and
// syncs it.
func copyFile(srcPath string, destPath string) error {
	srcFile, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	destFile, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}

	if _, err := destFile.ReadFrom(srcFile); err != nil {
		_ = destFile.Close()
		return err
	}
	if err := destFile.Sync(); err != nil {
		_ = destFile.Close()
		return err
	}
	return destFile.Close()
}

// linkOrCopyFile places the contents of srcPath at destPath, preferring a
// hard link and falling back to a copy when linking fails (for example,
// across filesystems). The source is never modified.
func linkOrCopyFile(srcPath string, destPath string) error {
	if srcPath == destPath {
		return nil
	}

	// Break any existing link at destPath first, otherwise copying onto it
	// would truncate the file it shares an inode with.
	if err := os.Remove(destPath); err != nil && !os.IsNotExist(err) {
		return err
	}

	if err := os.Link(srcPath, destPath); err == nil {
		return nil
	}

	return copyFile(srcPath, destPath)
}

// publishFile atomically installs the contents of srcPath at destPath by
// staging a sibling file and renaming it into place. Concurrent publishers
// of the same destination never observe a partially written file.
func publishFile(srcPath string, destPath string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("create parent dir: %w", err)
	}

	staged := destPath + ".tmp-" + uuid.NewString()
	if err := linkOrCopyFile(srcPath, staged); err != nil {
		return fmt.Errorf("stage file: %w", err)
	}

	if err := os.Rename(staged, destPath); err != nil {
		_ = os.Remove(staged)
		return fmt.Errorf("rename into place: %w", err)
	}

	return nil
}
