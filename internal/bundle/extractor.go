package bundle

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"snapsync/internal/logging"
)

// ErrMalformedArchive marks an archive that failed validation before any
// bytes were extracted. The caller leaves the file in place for retry or
// manual intervention.
var ErrMalformedArchive = errors.New("malformed archive")

const (
	// bombAbsoluteBytes and bombRatioMultiple together flag a suspicious
	// decompression ratio. Both must trip: photo collections compress
	// poorly, so either signal alone is a common false positive.
	bombAbsoluteBytes = 10 << 30
	bombRatioMultiple = 100
)

// Extractor expands a stability-confirmed archive into a private working
// directory scoped to the account directory.
type Extractor struct {
	logger *slog.Logger
	now    func() time.Time

	// freeSpace returns available bytes on the volume holding dir.
	freeSpace func(dir string) (uint64, error)
}

// NewExtractor constructs an archive extractor.
func NewExtractor(logger *slog.Logger) *Extractor {
	return &Extractor{
		logger:    logging.WithComponent(logger, "extractor"),
		now:       time.Now,
		freeSpace: availableBytes,
	}
}

// Result describes one completed extraction.
type Result struct {
	// WorkDir is the private directory the archive expanded into.
	WorkDir string
	// Flagged is set when the uncompressed payload tripped the
	// decompression-suspicion thresholds. Extraction still completed.
	Flagged bool
	// UncompressedBytes is the total payload size announced by the archive.
	UncompressedBytes uint64
}

// Extract validates archivePath, expands it under accountDir, and preserves
// entry modification times so extracted media can pass the age gate. On any
// error the partially-created working directory is removed and the original
// archive is left untouched.
func (e *Extractor) Extract(ctx context.Context, archivePath, accountDir string) (*Result, error) {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformedArchive, filepath.Base(archivePath), err)
	}
	defer reader.Close()

	var uncompressed, compressed uint64
	for _, file := range reader.File {
		uncompressed += file.UncompressedSize64
		compressed += file.CompressedSize64
	}

	flagged := uncompressed > bombAbsoluteBytes && compressed > 0 && uncompressed > compressed*bombRatioMultiple
	if flagged {
		e.logger.Warn("archive announces an extreme decompression ratio; extracting anyway",
			logging.String(logging.FieldPath, archivePath),
			logging.Uint64("compressed_bytes", compressed),
			logging.Uint64("uncompressed_bytes", uncompressed),
		)
	}

	if avail, err := e.freeSpace(accountDir); err == nil && uncompressed > avail {
		return nil, fmt.Errorf("extract %s: payload needs %d bytes but volume has %d free",
			filepath.Base(archivePath), uncompressed, avail)
	}

	base := strings.TrimSuffix(filepath.Base(archivePath), filepath.Ext(archivePath))
	workDir := filepath.Join(accountDir, fmt.Sprintf("%s.extract-%d", base, e.now().Unix()))
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("create working directory: %w", err)
	}

	if err := e.extractAll(ctx, &reader.Reader, workDir); err != nil {
		if removeErr := os.RemoveAll(workDir); removeErr != nil {
			e.logger.Warn("failed to remove partial extraction",
				logging.String(logging.FieldPath, workDir),
				logging.Error(removeErr),
			)
		}
		return nil, err
	}

	e.logger.Info("archive extracted",
		logging.String(logging.FieldPath, archivePath),
		logging.String("work_dir", workDir),
		logging.Int("entries", len(reader.File)),
	)
	return &Result{WorkDir: workDir, Flagged: flagged, UncompressedBytes: uncompressed}, nil
}

func (e *Extractor) extractAll(ctx context.Context, reader *zip.Reader, workDir string) error {
	for _, file := range reader.File {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := extractEntry(file, workDir); err != nil {
			return fmt.Errorf("extract %s: %w", file.Name, err)
		}
	}
	return nil
}

func extractEntry(file *zip.File, workDir string) error {
	target, err := sanitizePath(workDir, file.Name)
	if err != nil {
		return err
	}

	if file.FileInfo().IsDir() {
		return os.MkdirAll(target, 0o755)
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	in, err := file.Open()
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}

	// Keep the original timestamps: the stability gate and the upload
	// metadata both read mtime.
	if mod := file.Modified; !mod.IsZero() {
		if err := os.Chtimes(target, mod, mod); err != nil {
			return err
		}
	}
	return nil
}

func sanitizePath(workDir, name string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(cleaned) || strings.HasPrefix(cleaned, ".."+string(os.PathSeparator)) || cleaned == ".." {
		return "", fmt.Errorf("%w: entry %q escapes the working directory", ErrMalformedArchive, name)
	}
	return filepath.Join(workDir, cleaned), nil
}

func availableBytes(dir string) (uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(dir, &stat); err != nil {
		return 0, err
	}
	return stat.Bavail * uint64(stat.Bsize), nil
}
