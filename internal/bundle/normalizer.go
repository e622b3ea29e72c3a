package bundle

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"

	"snapsync/internal/fileutil"
	"snapsync/internal/logging"
	"snapsync/internal/media"
)

// Normalizer flattens a recognized nested export layout into a single
// directory of media files.
type Normalizer struct {
	logger *slog.Logger
}

// NewNormalizer constructs a bundle normalizer.
func NewNormalizer(logger *slog.Logger) *Normalizer {
	return &Normalizer{logger: logging.WithComponent(logger, "normalizer")}
}

// Normalize inspects workDir and, when it matches a known export layout,
// deletes sidecar metadata and junk documents, moves every media file to the
// workDir root (renaming on collision), and removes now-empty
// subdirectories. It returns the number of media files at the root and
// whether the layout was recognized. An unrecognized layout is left exactly
// as extracted; later stages discover media recursively instead.
func (n *Normalizer) Normalize(workDir string) (int, bool, error) {
	matched, err := DetectLayout(DirLister(workDir))
	if err != nil {
		return 0, false, err
	}
	if !matched {
		n.logger.Debug("layout not recognized; leaving directory as extracted",
			logging.String(logging.FieldPath, workDir))
		return 0, false, nil
	}

	payload, err := PayloadDir(DirLister(workDir))
	if err != nil {
		return 0, true, err
	}
	n.logger.Debug("export layout recognized",
		logging.String(logging.FieldPath, workDir),
		logging.String("payload_dir", payload),
	)

	if err := n.removeMetadata(workDir); err != nil {
		return 0, true, err
	}
	if err := n.flattenMedia(workDir); err != nil {
		return 0, true, err
	}
	if err := removeEmptyDirs(workDir); err != nil {
		return 0, true, err
	}

	count, err := countRootMedia(workDir)
	if err != nil {
		return 0, true, err
	}
	n.logger.Info("bundle normalized",
		logging.String(logging.FieldPath, workDir),
		logging.Int("media_files", count),
	)
	return count, true, nil
}

// removeMetadata deletes sidecar documents and known junk anywhere under
// workDir.
func (n *Normalizer) removeMetadata(workDir string) error {
	return filepath.WalkDir(workDir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if entry.IsDir() {
			return nil
		}
		if !IsSidecar(entry.Name()) && !IsJunk(entry.Name()) {
			return nil
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		return nil
	})
}

// flattenMedia moves every media file found anywhere under workDir up to the
// workDir root. Names are NFC-normalized (archives written on macOS carry
// NFD names) and suffixed on collision so nothing is overwritten.
func (n *Normalizer) flattenMedia(workDir string) error {
	var moves []string
	err := filepath.WalkDir(workDir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if entry.IsDir() || !media.IsMedia(entry.Name()) {
			return nil
		}
		moves = append(moves, path)
		return nil
	})
	if err != nil {
		return err
	}

	for _, path := range moves {
		name := norm.NFC.String(filepath.Base(path))
		target := filepath.Join(workDir, name)
		if path == target {
			continue
		}
		if filepath.Dir(path) == workDir && name == filepath.Base(path) {
			continue
		}
		target, err := fileutil.UniquePath(target)
		if err != nil {
			return err
		}
		if err := fileutil.MoveFile(path, target); err != nil {
			return err
		}
	}
	return nil
}

// removeEmptyDirs deletes empty subdirectories bottom-up until only the
// flattened root remains.
func removeEmptyDirs(workDir string) error {
	var dirs []string
	err := filepath.WalkDir(workDir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if entry.IsDir() && path != workDir {
			dirs = append(dirs, path)
		}
		return nil
	})
	if err != nil {
		return err
	}

	// Deepest first so parents empty out as children disappear.
	sort.Slice(dirs, func(i, j int) bool {
		return strings.Count(dirs[i], string(os.PathSeparator)) > strings.Count(dirs[j], string(os.PathSeparator))
	})
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return err
		}
		if len(entries) == 0 {
			if err := os.Remove(dir); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}
		}
	}
	return nil
}

func countRootMedia(workDir string) (int, error) {
	entries, err := os.ReadDir(workDir)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, entry := range entries {
		if !entry.IsDir() && media.IsMedia(entry.Name()) {
			count++
		}
	}
	return count, nil
}
