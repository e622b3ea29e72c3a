package stability

import (
	"context"
	"log/slog"
	"os"
	"time"

	"snapsync/internal/config"
	"snapsync/internal/logging"
)

// Gate decides whether a filesystem entry has stopped changing and is safe to
// touch. A file passes only when it exists, its modification time is older
// than the minimum age, and its size is non-zero and unchanged across the
// re-check delay. Every failure mode is a not-stable verdict, never an error:
// the next cycle simply looks again.
type Gate struct {
	minFileAge    time.Duration
	minArchiveAge time.Duration
	recheckDelay  time.Duration
	logger        *slog.Logger

	now   func() time.Time
	sleep func(context.Context, time.Duration) bool
}

// NewGate constructs a stability gate from configuration.
func NewGate(cfg config.Stability, logger *slog.Logger) *Gate {
	return &Gate{
		minFileAge:    time.Duration(cfg.MinFileAge) * time.Second,
		minArchiveAge: time.Duration(cfg.MinArchiveAge) * time.Second,
		recheckDelay:  time.Duration(cfg.RecheckDelay) * time.Second,
		logger:        logging.WithComponent(logger, "stability"),
		now:           time.Now,
		sleep:         sleepContext,
	}
}

// CheckFile reports whether a plain media file is stable.
func (g *Gate) CheckFile(ctx context.Context, path string) bool {
	return g.check(ctx, path, g.minFileAge)
}

// CheckArchive reports whether an archive is stable. Archives use a longer
// minimum age because large transfers take longer to complete.
func (g *Gate) CheckArchive(ctx context.Context, path string) bool {
	return g.check(ctx, path, g.minArchiveAge)
}

func (g *Gate) check(ctx context.Context, path string, minAge time.Duration) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	if info.Size() == 0 {
		g.logger.Debug("zero-size file is not stable", logging.String(logging.FieldPath, path))
		return false
	}
	if g.now().Sub(info.ModTime()) < minAge {
		g.logger.Debug("file too young",
			logging.String(logging.FieldPath, path),
			logging.Duration("age", g.now().Sub(info.ModTime())),
			logging.Duration("min_age", minAge),
		)
		return false
	}

	firstSize := info.Size()
	if !g.sleep(ctx, g.recheckDelay) {
		return false
	}

	recheck, err := os.Stat(path)
	if err != nil {
		return false
	}
	if recheck.Size() != firstSize {
		g.logger.Debug("size changed during re-check window",
			logging.String(logging.FieldPath, path),
			logging.Int64("first_size", firstSize),
			logging.Int64("second_size", recheck.Size()),
		)
		return false
	}
	return true
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
