package dedup

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"snapsync/internal/immich"
	"snapsync/internal/logging"
)

const (
	// maxBatchSize caps one bulk-check request.
	maxBatchSize = 250
	// batchTimeoutFloor plus batchTimeoutPerEntry scale the request deadline
	// with the batch size.
	batchTimeoutFloor    = 15 * time.Second
	batchTimeoutPerEntry = 200 * time.Millisecond

	hashChunkSize = 32 * 1024
)

// Status is the pre-upload verdict for one candidate file.
type Status int

const (
	// StatusUnknown means the remote answer is unavailable. The file goes to
	// upload, where server-side detection still catches duplicates.
	StatusUnknown Status = iota
	// StatusNew means the store does not hold this content yet.
	StatusNew
	// StatusDuplicate means the store already holds this content.
	StatusDuplicate
)

func (s Status) String() string {
	switch s {
	case StatusNew:
		return "new"
	case StatusDuplicate:
		return "duplicate"
	default:
		return "unknown"
	}
}

// RemoteChecker is the slice of the store client the checker needs.
type RemoteChecker interface {
	BulkCheck(ctx context.Context, apiKey string, entries []immich.CheckEntry) ([]immich.CheckResult, error)
}

// Checker fingerprints candidate files and asks the remote store which of
// them it already holds, in bounded batches.
type Checker struct {
	client RemoteChecker
	logger *slog.Logger
}

// NewChecker constructs a duplicate checker over the given store client.
func NewChecker(client RemoteChecker, logger *slog.Logger) *Checker {
	return &Checker{
		client: client,
		logger: logging.WithComponent(logger, "dedup"),
	}
}

// Check returns a status per input path. Every input path appears in the
// result: hash failures and failed batches degrade to StatusUnknown rather
// than blocking the cycle.
func (c *Checker) Check(ctx context.Context, apiKey string, paths []string) map[string]Status {
	statuses := make(map[string]Status, len(paths))

	var entries []immich.CheckEntry
	for _, path := range paths {
		statuses[path] = StatusUnknown
		checksum, err := HashFile(path)
		if err != nil {
			c.logger.Warn("failed to fingerprint file; deferring to upload-time detection",
				logging.String(logging.FieldPath, path),
				logging.Error(err),
			)
			continue
		}
		entries = append(entries, immich.CheckEntry{ID: path, Checksum: checksum})
	}

	for start := 0; start < len(entries); start += maxBatchSize {
		end := start + maxBatchSize
		if end > len(entries) {
			end = len(entries)
		}
		c.checkBatch(ctx, apiKey, entries[start:end], statuses)
	}
	return statuses
}

func (c *Checker) checkBatch(ctx context.Context, apiKey string, batch []immich.CheckEntry, statuses map[string]Status) {
	timeout := batchTimeoutFloor + time.Duration(len(batch))*batchTimeoutPerEntry
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	results, err := c.client.BulkCheck(ctx, apiKey, batch)
	if err != nil {
		c.logger.Warn("bulk duplicate check failed; batch defers to upload-time detection",
			logging.Int("batch_size", len(batch)),
			logging.Error(err),
		)
		return
	}

	for _, result := range results {
		if _, known := statuses[result.ID]; !known {
			c.logger.Warn("bulk check returned a result for an unrequested id",
				logging.String("id", result.ID))
			continue
		}
		switch {
		case result.Action == immich.ActionReject && result.Reason == immich.ReasonDuplicate:
			statuses[result.ID] = StatusDuplicate
		case result.Action == immich.ActionAccept:
			statuses[result.ID] = StatusNew
		}
	}
}

// HashFile computes the hex SHA-1 of the file contents in fixed-size chunks.
func HashFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open for hashing: %w", err)
	}
	defer file.Close()

	digest := sha1.New()
	buf := make([]byte, hashChunkSize)
	if _, err := io.CopyBuffer(digest, file, buf); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(digest.Sum(nil)), nil
}
