package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"

	"github.com/gofrs/flock"

	"snapsync/internal/config"
	"snapsync/internal/logging"
	"snapsync/internal/scan"
)

// Daemon wraps the scan orchestrator with single-instance enforcement. A
// lock file under the log directory keeps a second snapsync process from
// racing the first over the same watch root.
type Daemon struct {
	cfg          *config.Config
	logger       *slog.Logger
	orchestrator *scan.Orchestrator

	lockPath string
	pidPath  string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// New constructs a daemon around an orchestrator.
func New(cfg *config.Config, orchestrator *scan.Orchestrator, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || orchestrator == nil {
		return nil, errors.New("daemon requires config and orchestrator")
	}
	logDir := cfg.Paths.LogDir
	lockPath := filepath.Join(logDir, "snapsync.lock")
	return &Daemon{
		cfg:          cfg,
		logger:       logging.WithComponent(logger, "daemon"),
		orchestrator: orchestrator,
		lockPath:     lockPath,
		pidPath:      filepath.Join(logDir, "snapsync.pid"),
		lock:         flock.New(lockPath),
	}, nil
}

// Start acquires the instance lock, writes the PID file, and launches the
// scan loop.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another snapsync instance is already running")
	}

	if err := os.WriteFile(d.pidPath, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644); err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("write pid file: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.orchestrator.Start(runCtx); err != nil {
		cancel()
		_ = os.Remove(d.pidPath)
		_ = d.lock.Unlock()
		return fmt.Errorf("start scan loop: %w", err)
	}
	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop shuts down the scan loop and releases the instance lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	d.orchestrator.Stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if err := os.Remove(d.pidPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		d.logger.Warn("failed to remove pid file", logging.Error(err))
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("daemon stopped")
}

// Running reports whether the daemon has been started and not yet stopped.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// LockPath returns the lock file location, for status output.
func (d *Daemon) LockPath() string {
	return d.lockPath
}
