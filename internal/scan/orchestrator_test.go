package scan

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"snapsync/internal/account"
	"snapsync/internal/bundle"
	"snapsync/internal/cleanup"
	"snapsync/internal/config"
	"snapsync/internal/dedup"
	"snapsync/internal/immich"
	"snapsync/internal/ledger"
	"snapsync/internal/logging"
	"snapsync/internal/stability"
	"snapsync/internal/testsupport"
)

type fakeUploader struct {
	calls   []string
	outcome immich.Outcome
	err     error
}

func (f *fakeUploader) Upload(_ context.Context, _ string, path string) (immich.Outcome, error) {
	f.calls = append(f.calls, path)
	return f.outcome, f.err
}

type fakeChecker struct {
	calls    [][]string
	statuses map[string]dedup.Status
}

func (f *fakeChecker) Check(_ context.Context, _ string, paths []string) map[string]dedup.Status {
	f.calls = append(f.calls, paths)
	statuses := make(map[string]dedup.Status, len(paths))
	for _, path := range paths {
		status := dedup.StatusNew
		if f.statuses != nil {
			if s, ok := f.statuses[filepath.Base(path)]; ok {
				status = s
			}
		}
		statuses[path] = status
	}
	return statuses
}

type fakeRecorder struct {
	mu       sync.Mutex
	cycles   []ledger.Cycle
	outcomes []ledger.Outcome
}

func (f *fakeRecorder) RecordCycle(_ context.Context, cycle ledger.Cycle) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cycles = append(f.cycles, cycle)
	return int64(len(f.cycles)), nil
}

func (f *fakeRecorder) RecordOutcome(_ context.Context, outcome ledger.Outcome) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes = append(f.outcomes, outcome)
	return nil
}

func (f *fakeRecorder) cycleCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cycles)
}

type fakeNotifier struct {
	summaries int
	flagged   int
	errored   int
}

func (f *fakeNotifier) NotifyCycleSummary(context.Context, string, int, int, int) error {
	f.summaries++
	return nil
}

func (f *fakeNotifier) NotifyBundleFlagged(context.Context, string, string, uint64) error {
	f.flagged++
	return nil
}

func (f *fakeNotifier) NotifyScanError(context.Context, string, error) error {
	f.errored++
	return nil
}

func (f *fakeNotifier) TestNotification(context.Context) error { return nil }

type testHarness struct {
	orch     *Orchestrator
	cfg      *config.Config
	acctDir  string
	uploader *fakeUploader
	checker  *fakeChecker
	recorder *fakeRecorder
	notifier *fakeNotifier
}

func newHarness(t *testing.T, opts ...testsupport.ConfigOption) *testHarness {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)

	acct := account.Account{
		Name:   "alice",
		APIKey: "key-alice",
		Dir:    filepath.Join(cfg.Paths.WatchRoot, "alice"),
	}
	if err := os.MkdirAll(acct.Dir, 0o755); err != nil {
		t.Fatal(err)
	}

	logger := logging.NewNop()
	uploader := &fakeUploader{outcome: immich.OutcomeUploaded}
	checker := &fakeChecker{}
	recorder := &fakeRecorder{}
	notifier := &fakeNotifier{}

	orch := &Orchestrator{
		cfg:        cfg,
		accounts:   []account.Account{acct},
		gate:       stability.NewGate(cfg.Stability, logger),
		extractor:  bundle.NewExtractor(logger),
		normalizer: bundle.NewNormalizer(logger),
		checker:    checker,
		uploader:   uploader,
		cleaner:    cleanup.NewCleaner(logger),
		recorder:   recorder,
		notifier:   notifier,
		logger:     logger,
	}
	return &testHarness{
		orch:     orch,
		cfg:      cfg,
		acctDir:  acct.Dir,
		uploader: uploader,
		checker:  checker,
		recorder: recorder,
		notifier: notifier,
	}
}

type archiveEntry struct{ name, body string }

func writeArchive(t *testing.T, path string, age time.Duration, entries ...archiveEntry) {
	t.Helper()
	out, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	writer := zip.NewWriter(out)
	modified := time.Now().Add(-age)
	for _, entry := range entries {
		w, err := writer.CreateHeader(&zip.FileHeader{Name: entry.name, Method: zip.Deflate, Modified: modified})
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(entry.body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatal(err)
	}
	if err := out.Close(); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(path, modified, modified); err != nil {
		t.Fatal(err)
	}
}

func TestRunOnceUploadsStableMediaAndCleansUp(t *testing.T) {
	h := newHarness(t)
	path := filepath.Join(h.acctDir, "camera", "IMG_1.jpg")
	testsupport.WriteAgedFile(t, path, "jpegdata", time.Hour)

	if err := h.orch.RunOnce(context.Background()); err != nil {
		t.Fatal(err)
	}

	if len(h.uploader.calls) != 1 || h.uploader.calls[0] != path {
		t.Fatalf("uploader calls = %v", h.uploader.calls)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("imported file should be removed, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(h.acctDir, "camera")); !os.IsNotExist(err) {
		t.Errorf("empty parent should be pruned, got %v", err)
	}
	if len(h.recorder.cycles) != 1 || h.recorder.cycles[0].Uploaded != 1 {
		t.Errorf("recorded cycles = %+v", h.recorder.cycles)
	}
	if h.notifier.summaries != 1 {
		t.Errorf("summaries sent = %d", h.notifier.summaries)
	}
}

func TestRunOnceLeavesYoungFileAlone(t *testing.T) {
	h := newHarness(t, testsupport.WithStability(3600, 3600, 0))
	path := filepath.Join(h.acctDir, "incoming.mp4")
	testsupport.WriteAgedFile(t, path, "partial bytes", 0)

	if err := h.orch.RunOnce(context.Background()); err != nil {
		t.Fatal(err)
	}

	if len(h.uploader.calls) != 0 {
		t.Fatalf("young file must not be uploaded: %v", h.uploader.calls)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("young file must stay in place: %v", err)
	}
}

func TestRunOnceLeavesFileWhenUploadFails(t *testing.T) {
	h := newHarness(t)
	h.uploader.outcome = immich.OutcomeFailed
	h.uploader.err = errors.New("store returned 503")
	path := filepath.Join(h.acctDir, "IMG_1.jpg")
	testsupport.WriteAgedFile(t, path, "jpegdata", time.Hour)

	if err := h.orch.RunOnce(context.Background()); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Errorf("failed upload must leave the file for the next cycle: %v", err)
	}
	if len(h.recorder.cycles) != 1 || h.recorder.cycles[0].Failed != 1 {
		t.Errorf("recorded cycles = %+v", h.recorder.cycles)
	}
}

func TestRunOnceVanishedFileIsNotAFailure(t *testing.T) {
	h := newHarness(t)
	h.uploader.outcome = immich.OutcomeFailed
	h.uploader.err = fmt.Errorf("stat upload source: %w", fs.ErrNotExist)
	testsupport.WriteAgedFile(t, filepath.Join(h.acctDir, "IMG_1.jpg"), "jpegdata", time.Hour)

	if err := h.orch.RunOnce(context.Background()); err != nil {
		t.Fatal(err)
	}

	cycle := h.recorder.cycles[0]
	if cycle.Failed != 0 || cycle.Uploaded != 0 {
		t.Errorf("vanished file must not count as failed: %+v", cycle)
	}
	var vanished bool
	for _, outcome := range h.recorder.outcomes {
		if outcome.Outcome == "vanished" {
			vanished = true
		}
	}
	if !vanished {
		t.Errorf("expected a vanished outcome, got %+v", h.recorder.outcomes)
	}
	if h.notifier.errored != 0 {
		t.Errorf("vanished file must not raise an error notification: %d", h.notifier.errored)
	}
}

func TestRunOnceRemoteOutageAbortsAccount(t *testing.T) {
	h := newHarness(t)
	h.uploader.outcome = immich.OutcomeFailed
	h.uploader.err = &url.Error{Op: "Post", URL: "http://immich/api/assets", Err: errors.New("connection refused")}
	testsupport.WriteAgedFile(t, filepath.Join(h.acctDir, "IMG_1.jpg"), "jpegdata", time.Hour)
	testsupport.WriteAgedFile(t, filepath.Join(h.acctDir, "IMG_2.jpg"), "jpegdata", time.Hour)

	if err := h.orch.RunOnce(context.Background()); err != nil {
		t.Fatal(err)
	}

	if len(h.uploader.calls) != 1 {
		t.Fatalf("an unreachable store must abort the remaining uploads: %v", h.uploader.calls)
	}
	if h.recorder.cycles[0].Error == "" {
		t.Errorf("cycle should record the outage: %+v", h.recorder.cycles[0])
	}
	if h.notifier.errored != 1 {
		t.Errorf("error notifications sent = %d", h.notifier.errored)
	}
	for _, name := range []string{"IMG_1.jpg", "IMG_2.jpg"} {
		if _, err := os.Stat(filepath.Join(h.acctDir, name)); err != nil {
			t.Errorf("%s must stay for the next cycle: %v", name, err)
		}
	}
}

func TestRunOnceDeletesConfirmedDuplicateWithoutUpload(t *testing.T) {
	h := newHarness(t)
	h.checker.statuses = map[string]dedup.Status{"IMG_1.jpg": dedup.StatusDuplicate}
	path := filepath.Join(h.acctDir, "IMG_1.jpg")
	testsupport.WriteAgedFile(t, path, "jpegdata", time.Hour)

	if err := h.orch.RunOnce(context.Background()); err != nil {
		t.Fatal(err)
	}

	if len(h.uploader.calls) != 0 {
		t.Fatalf("confirmed duplicate must not be uploaded: %v", h.uploader.calls)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("confirmed duplicate should be removed, got %v", err)
	}
	if h.recorder.cycles[0].Duplicates != 1 {
		t.Errorf("recorded cycle = %+v", h.recorder.cycles[0])
	}
}

func TestRunOnceKeepsDuplicateWhenDeletionDisabled(t *testing.T) {
	h := newHarness(t, testsupport.WithDeleteAfterImport(false))
	h.checker.statuses = map[string]dedup.Status{"IMG_1.jpg": dedup.StatusDuplicate}
	path := filepath.Join(h.acctDir, "IMG_1.jpg")
	testsupport.WriteAgedFile(t, path, "jpegdata", time.Hour)

	if err := h.orch.RunOnce(context.Background()); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Errorf("duplicate must stay when deletion is disabled: %v", err)
	}
	if len(h.uploader.calls) != 0 {
		t.Fatalf("duplicate must not be uploaded: %v", h.uploader.calls)
	}
}

func TestRunOnceUnknownStatusGoesToUpload(t *testing.T) {
	h := newHarness(t)
	h.checker.statuses = map[string]dedup.Status{"IMG_1.jpg": dedup.StatusUnknown}
	testsupport.WriteAgedFile(t, filepath.Join(h.acctDir, "IMG_1.jpg"), "jpegdata", time.Hour)

	if err := h.orch.RunOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(h.uploader.calls) != 1 {
		t.Fatalf("unknown status must fall through to upload: %v", h.uploader.calls)
	}
}

func TestRunOnceArchiveEndToEnd(t *testing.T) {
	h := newHarness(t)
	writeArchive(t, filepath.Join(h.acctDir, "takeout-001.zip"), 2*time.Hour,
		archiveEntry{"Takeout/Google Photos/IMG_1.jpg", "jpegdata"},
		archiveEntry{"Takeout/Google Photos/IMG_1.jpg.json", "{}"},
	)

	if err := h.orch.RunOnce(context.Background()); err != nil {
		t.Fatal(err)
	}

	if len(h.uploader.calls) != 1 || filepath.Base(h.uploader.calls[0]) != "IMG_1.jpg" {
		t.Fatalf("uploader calls = %v", h.uploader.calls)
	}
	entries, err := os.ReadDir(h.acctDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("account dir should be empty after a full import: %v", entries)
	}
	cycle := h.recorder.cycles[0]
	if cycle.Extracted != 1 || cycle.Uploaded != 1 {
		t.Errorf("recorded cycle = %+v", cycle)
	}
}

func TestRunOnceDoesNotReextractWhenDeletionDisabled(t *testing.T) {
	h := newHarness(t, testsupport.WithDeleteAfterImport(false))
	archive := filepath.Join(h.acctDir, "takeout-001.zip")
	writeArchive(t, archive, 2*time.Hour,
		archiveEntry{"Takeout/Google Photos/IMG_1.jpg", "jpegdata"},
	)

	for i := 0; i < 2; i++ {
		if err := h.orch.RunOnce(context.Background()); err != nil {
			t.Fatal(err)
		}
	}

	if got := countExtractions(t, h.acctDir, "takeout-001"); got != 1 {
		t.Fatalf("archive must be extracted exactly once, got %d working dirs", got)
	}
	if _, err := os.Stat(archive); err != nil {
		t.Errorf("archive must stay when deletion is disabled: %v", err)
	}
}

func TestRunOnceReusesExtractionForGlobMetacharacterName(t *testing.T) {
	h := newHarness(t, testsupport.WithDeleteAfterImport(false))
	archive := filepath.Join(h.acctDir, "photos[2024].zip")
	writeArchive(t, archive, 2*time.Hour,
		archiveEntry{"Takeout/Google Photos/IMG_1.jpg", "jpegdata"},
	)

	for i := 0; i < 2; i++ {
		if err := h.orch.RunOnce(context.Background()); err != nil {
			t.Fatal(err)
		}
	}

	if got := countExtractions(t, h.acctDir, "photos[2024]"); got != 1 {
		t.Fatalf("archive must be extracted exactly once, got %d working dirs", got)
	}
}

func countExtractions(t *testing.T, dir, base string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	count := 0
	for _, entry := range entries {
		if entry.IsDir() && strings.HasPrefix(entry.Name(), base+".extract-") {
			count++
		}
	}
	return count
}

func TestRunOnceSkipsMalformedArchive(t *testing.T) {
	h := newHarness(t)
	archive := filepath.Join(h.acctDir, "broken.zip")
	testsupport.WriteAgedFile(t, archive, "not a zip", time.Hour)

	if err := h.orch.RunOnce(context.Background()); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(archive); err != nil {
		t.Errorf("malformed archive must stay in place: %v", err)
	}
	if h.recorder.cycles[0].Extracted != 0 {
		t.Errorf("recorded cycle = %+v", h.recorder.cycles[0])
	}
}

func TestRunOnceRespectsCancellation(t *testing.T) {
	h := newHarness(t)
	testsupport.WriteAgedFile(t, filepath.Join(h.acctDir, "IMG_1.jpg"), "jpegdata", time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := h.orch.RunOnce(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
	if len(h.uploader.calls) != 0 {
		t.Fatalf("cancelled cycle must not upload: %v", h.uploader.calls)
	}
}

func TestStartStopLoop(t *testing.T) {
	h := newHarness(t)
	h.cfg.Scan.Interval = 1
	testsupport.WriteAgedFile(t, filepath.Join(h.acctDir, "IMG_1.jpg"), "jpegdata", time.Hour)

	if err := h.orch.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := h.orch.Start(context.Background()); err == nil {
		h.orch.Stop()
		t.Fatal("second Start must fail while running")
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if h.recorder.cycleCount() > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	h.orch.Stop()

	if h.recorder.cycleCount() == 0 {
		t.Fatal("loop never completed a cycle")
	}
	h.orch.Stop()
}
