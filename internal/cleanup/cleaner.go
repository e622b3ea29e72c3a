package cleanup

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"snapsync/internal/logging"
)

// Cleaner removes imported files and prunes the empty directories they leave
// behind, without ever deleting a directory that gained new content in the
// meantime.
type Cleaner struct {
	logger *slog.Logger
}

// NewCleaner constructs a directory cleaner.
func NewCleaner(logger *slog.Logger) *Cleaner {
	return &Cleaner{logger: logging.WithComponent(logger, "cleanup")}
}

// Remove deletes the file at path, then walks up toward root removing each
// parent directory that is empty at the moment of removal. The walk stops at
// the first non-empty directory and never touches root itself. A file that
// already vanished is not an error.
func (c *Cleaner) Remove(path, root string) error {
	root = filepath.Clean(root)
	path = filepath.Clean(path)
	if !strings.HasPrefix(path, root+string(os.PathSeparator)) {
		return fmt.Errorf("refusing to remove %q outside %q", path, root)
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", path, err)
	}

	for dir := filepath.Dir(path); dir != root; dir = filepath.Dir(dir) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("list %s: %w", dir, err)
		}
		if len(entries) > 0 {
			return nil
		}
		if err := os.Remove(dir); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			// A file may land between the listing and the removal. That
			// directory is live again, so stop.
			c.logger.Debug("directory no longer removable; stopping cleanup",
				logging.String(logging.FieldPath, dir),
				logging.Error(err),
			)
			return nil
		}
	}
	return nil
}
