package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"snapsync/internal/account"
	"snapsync/internal/bundle"
	"snapsync/internal/cleanup"
	"snapsync/internal/config"
	"snapsync/internal/dedup"
	"snapsync/internal/immich"
	"snapsync/internal/ledger"
	"snapsync/internal/logging"
	"snapsync/internal/notifications"
	"snapsync/internal/stability"
)

// Uploader is the slice of the store client the orchestrator uploads through.
type Uploader interface {
	Upload(ctx context.Context, apiKey, path string) (immich.Outcome, error)
}

// Checker answers which candidate files the store already holds.
type Checker interface {
	Check(ctx context.Context, apiKey string, paths []string) map[string]dedup.Status
}

// Recorder receives completed cycles for the audit trail. It is write-only:
// no scan decision ever reads recorded history.
type Recorder interface {
	RecordCycle(ctx context.Context, cycle ledger.Cycle) (int64, error)
	RecordOutcome(ctx context.Context, outcome ledger.Outcome) error
}

// Orchestrator drives the poll loop: every cycle it walks each account
// directory, extracts stable archives, filters stable media, checks for
// remote duplicates, uploads, and cleans up after terminal success.
type Orchestrator struct {
	cfg        *config.Config
	accounts   []account.Account
	gate       *stability.Gate
	extractor  *bundle.Extractor
	normalizer *bundle.Normalizer
	checker    Checker
	uploader   Uploader
	cleaner    *cleanup.Cleaner
	recorder   Recorder
	notifier   notifications.Service
	logger     *slog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New wires an orchestrator from configuration. recorder may be nil when no
// ledger is available; notifier must not be nil (use the noop service).
func New(cfg *config.Config, accounts []account.Account, client *immich.Client, recorder Recorder, notifier notifications.Service, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:        cfg,
		accounts:   accounts,
		gate:       stability.NewGate(cfg.Stability, logger),
		extractor:  bundle.NewExtractor(logger),
		normalizer: bundle.NewNormalizer(logger),
		checker:    dedup.NewChecker(client, logger),
		uploader:   client,
		cleaner:    cleanup.NewCleaner(logger),
		recorder:   recorder,
		notifier:   notifier,
		logger:     logging.WithComponent(logger, "scan"),
	}
}

// Start begins background polling. It returns immediately; Stop waits for
// the in-flight cycle to finish.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return errors.New("scan loop already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.running = true
	o.wg.Add(1)
	o.mu.Unlock()

	go o.runLoop(runCtx)
	return nil
}

// Stop terminates background polling and waits for completion.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	cancel := o.cancel
	o.running = false
	o.cancel = nil
	o.mu.Unlock()

	cancel()
	o.wg.Wait()
}

func (o *Orchestrator) runLoop(ctx context.Context) {
	defer o.wg.Done()
	interval := time.Duration(o.cfg.Scan.Interval) * time.Second

	for {
		if err := o.RunOnce(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			o.logger.Error("scan cycle failed", logging.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

// RunOnce executes one full cycle across every account. Per-account failures
// are logged, recorded, and reported; only context cancellation aborts the
// cycle.
func (o *Orchestrator) RunOnce(ctx context.Context) error {
	runID := uuid.NewString()
	logger := o.logger.With(logging.String(logging.FieldRunID, runID))

	for _, acct := range o.accounts {
		started := time.Now()
		stats, outcomes, err := o.runAccount(ctx, acct)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			logger.Error("account scan failed",
				logging.String(logging.FieldAccount, acct.Name),
				logging.Error(err),
			)
			if notifyErr := o.notifier.NotifyScanError(ctx, acct.Name, err); notifyErr != nil {
				logger.Warn("failed to send error notification", logging.Error(notifyErr))
			}
		}

		o.record(ctx, logger, ledger.Cycle{
			RunID:      runID,
			Account:    acct.Name,
			StartedAt:  started,
			FinishedAt: time.Now(),
			Uploaded:   stats.uploaded,
			Duplicates: stats.duplicates,
			Failed:     stats.failed,
			Extracted:  stats.extracted,
			Error:      errText(err),
		}, outcomes)

		if stats.uploaded > 0 || stats.failed > 0 {
			if notifyErr := o.notifier.NotifyCycleSummary(ctx, acct.Name, stats.uploaded, stats.duplicates, stats.failed); notifyErr != nil {
				logger.Warn("failed to send cycle summary", logging.Error(notifyErr))
			}
		}
		logger.Info("account cycle complete",
			logging.String(logging.FieldAccount, acct.Name),
			logging.Int("uploaded", stats.uploaded),
			logging.Int("duplicates", stats.duplicates),
			logging.Int("failed", stats.failed),
			logging.Int("extracted", stats.extracted),
		)
	}
	return nil
}

type accountStats struct {
	uploaded   int
	duplicates int
	failed     int
	extracted  int
}

type fileOutcome struct {
	path    string
	outcome string
	detail  string
}

func (o *Orchestrator) runAccount(ctx context.Context, acct account.Account) (accountStats, []fileOutcome, error) {
	var stats accountStats
	var outcomes []fileOutcome
	logger := o.logger.With(logging.String(logging.FieldAccount, acct.Name))

	if err := o.processArchives(ctx, acct, logger, &stats, &outcomes); err != nil {
		return stats, outcomes, err
	}

	candidates, err := Collect(acct.Dir)
	if err != nil {
		return stats, outcomes, fmt.Errorf("enumerate %s: %w", acct.Dir, err)
	}

	var stable []string
	for _, path := range candidates.Media {
		if err := ctx.Err(); err != nil {
			return stats, outcomes, err
		}
		if o.gate.CheckFile(ctx, path) {
			stable = append(stable, path)
		}
	}
	if len(stable) == 0 {
		return stats, outcomes, nil
	}

	statuses := o.checker.Check(ctx, acct.APIKey, stable)
	for _, path := range stable {
		if err := ctx.Err(); err != nil {
			return stats, outcomes, err
		}
		switch statuses[path] {
		case dedup.StatusDuplicate:
			stats.duplicates++
			outcomes = append(outcomes, fileOutcome{path: path, outcome: "duplicate", detail: "bulk check"})
			if o.cfg.Scan.DeleteAfterImport {
				if err := o.cleaner.Remove(path, acct.Dir); err != nil {
					logger.Warn("failed to remove confirmed duplicate",
						logging.String(logging.FieldPath, path),
						logging.Error(err),
					)
				}
			}
		default:
			if err := o.uploadOne(ctx, acct, logger, path, &stats, &outcomes); err != nil {
				return stats, outcomes, err
			}
		}
	}
	return stats, outcomes, nil
}

// uploadOne attempts one upload and classifies the failure modes. A vanished
// file is expected churn, not a failure; a transport-level failure aborts the
// account because the remaining uploads would hit the same outage.
func (o *Orchestrator) uploadOne(ctx context.Context, acct account.Account, logger *slog.Logger, path string, stats *accountStats, outcomes *[]fileOutcome) error {
	outcome, err := o.uploader.Upload(ctx, acct.APIKey, path)
	switch outcome {
	case immich.OutcomeUploaded:
		stats.uploaded++
		*outcomes = append(*outcomes, fileOutcome{path: path, outcome: outcome.String()})
	case immich.OutcomeDuplicate:
		stats.duplicates++
		*outcomes = append(*outcomes, fileOutcome{path: path, outcome: outcome.String(), detail: "detected at upload"})
	default:
		if vanished(err) {
			logger.Debug("file vanished before upload",
				logging.String(logging.FieldPath, path),
				logging.Error(ErrVanished),
			)
			*outcomes = append(*outcomes, fileOutcome{path: path, outcome: "vanished"})
			return nil
		}
		stats.failed++
		*outcomes = append(*outcomes, fileOutcome{path: path, outcome: outcome.String(), detail: errText(err)})
		if remoteFailure(err) {
			return fmt.Errorf("%w: %v", ErrRemote, err)
		}
		logger.Warn("upload failed; file stays for next cycle",
			logging.String(logging.FieldPath, path),
			logging.Error(err),
		)
		return nil
	}

	if o.cfg.Scan.DeleteAfterImport {
		if err := o.cleaner.Remove(path, acct.Dir); err != nil {
			logger.Warn("failed to remove imported file",
				logging.String(logging.FieldPath, path),
				logging.Error(err),
			)
		}
	}
	return nil
}

func (o *Orchestrator) processArchives(ctx context.Context, acct account.Account, logger *slog.Logger, stats *accountStats, outcomes *[]fileOutcome) error {
	candidates, err := Collect(acct.Dir)
	if err != nil {
		return fmt.Errorf("enumerate %s: %w", acct.Dir, err)
	}

	for _, archive := range candidates.Archives {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !o.cfg.Scan.DeleteAfterImport && hasExtraction(archive) {
			// The archive stays on disk when deletion is off; without this
			// check every cycle would expand it again.
			continue
		}
		if !o.gate.CheckArchive(ctx, archive) {
			continue
		}

		result, err := o.extractor.Extract(ctx, archive, acct.Dir)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			if errors.Is(err, bundle.ErrMalformedArchive) {
				logger.Warn("skipping malformed archive",
					logging.String(logging.FieldPath, archive),
					logging.Error(err),
				)
				*outcomes = append(*outcomes, fileOutcome{path: archive, outcome: "skipped", detail: "malformed archive"})
				continue
			}
			logger.Warn("archive extraction failed; will retry next cycle",
				logging.String(logging.FieldPath, archive),
				logging.Error(err),
			)
			continue
		}

		stats.extracted++
		if result.Flagged {
			if notifyErr := o.notifier.NotifyBundleFlagged(ctx, acct.Name, archive, result.UncompressedBytes); notifyErr != nil {
				logger.Warn("failed to send flagged-archive notification", logging.Error(notifyErr))
			}
		}

		if _, _, err := o.normalizer.Normalize(result.WorkDir); err != nil {
			logger.Warn("bundle normalization failed; media will be discovered in place",
				logging.String(logging.FieldPath, result.WorkDir),
				logging.Error(err),
			)
		}
		*outcomes = append(*outcomes, fileOutcome{path: archive, outcome: "extracted"})

		if o.cfg.Scan.DeleteAfterImport {
			if err := o.cleaner.Remove(archive, acct.Dir); err != nil {
				logger.Warn("failed to remove extracted archive",
					logging.String(logging.FieldPath, archive),
					logging.Error(err),
				)
			}
		}
	}
	return nil
}

// hasExtraction reports whether a working directory for this archive already
// exists next to it. Matched by prefix rather than a glob so archive names
// carrying pattern metacharacters still find their own directory.
func hasExtraction(archive string) bool {
	base := strings.TrimSuffix(filepath.Base(archive), filepath.Ext(archive))
	entries, err := os.ReadDir(filepath.Dir(archive))
	if err != nil {
		return false
	}
	for _, entry := range entries {
		if entry.IsDir() && strings.HasPrefix(entry.Name(), base+".extract-") {
			return true
		}
	}
	return false
}

func (o *Orchestrator) record(ctx context.Context, logger *slog.Logger, cycle ledger.Cycle, outcomes []fileOutcome) {
	if o.recorder == nil {
		return
	}
	cycleID, err := o.recorder.RecordCycle(ctx, cycle)
	if err != nil {
		logger.Warn("failed to record cycle", logging.Error(err))
		return
	}
	for _, outcome := range outcomes {
		record := ledger.Outcome{
			CycleID: cycleID,
			Path:    outcome.path,
			Outcome: outcome.outcome,
			Detail:  outcome.detail,
		}
		if err := o.recorder.RecordOutcome(ctx, record); err != nil {
			logger.Warn("failed to record outcome",
				logging.String(logging.FieldPath, outcome.path),
				logging.Error(err),
			)
		}
	}
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
