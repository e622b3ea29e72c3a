package logging

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestCleanupOldLogsRemovesExpired(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "snapsync-old.log")
	fresh := filepath.Join(dir, "snapsync-fresh.log")
	keep := filepath.Join(dir, "snapsync-current.log")

	for _, path := range []string{old, fresh, keep} {
		if err := os.WriteFile(path, []byte("log"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	stale := time.Now().AddDate(0, 0, -10)
	if err := os.Chtimes(old, stale, stale); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(keep, stale, stale); err != nil {
		t.Fatal(err)
	}

	CleanupOldLogs(NewNop(), dir, "snapsync-*.log", 7, keep)

	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Fatalf("expected old log removed, stat err=%v", err)
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Fatalf("fresh log should remain: %v", err)
	}
	if _, err := os.Stat(keep); err != nil {
		t.Fatalf("excluded log should remain: %v", err)
	}
}

func TestCleanupOldLogsExcludeResolvesAgainstDir(t *testing.T) {
	dir := t.TempDir()
	active := filepath.Join(dir, "snapsync.log")
	if err := os.WriteFile(active, []byte("log"), 0o644); err != nil {
		t.Fatal(err)
	}
	stale := time.Now().AddDate(0, 0, -90)
	if err := os.Chtimes(active, stale, stale); err != nil {
		t.Fatal(err)
	}

	// The test's working directory is not dir, so a CWD-relative resolution
	// of the bare name would miss and unlink the active log file.
	CleanupOldLogs(NewNop(), dir, "*.log", 60, "snapsync.log")

	if _, err := os.Stat(active); err != nil {
		t.Fatalf("active log file was pruned despite the exclusion: %v", err)
	}
}

func TestCleanupOldLogsDisabled(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snapsync-old.log")
	if err := os.WriteFile(path, []byte("log"), 0o644); err != nil {
		t.Fatal(err)
	}
	stale := time.Now().AddDate(0, 0, -30)
	if err := os.Chtimes(path, stale, stale); err != nil {
		t.Fatal(err)
	}

	CleanupOldLogs(NewNop(), dir, "snapsync-*.log", 0)

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("retention disabled, file should remain: %v", err)
	}
}
