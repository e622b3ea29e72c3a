package fileutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestMoveFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.jpg")
	dst := filepath.Join(dir, "nested", "dst.jpg")

	if err := os.WriteFile(src, []byte("pixels"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := MoveFile(src, dst); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Fatalf("source should be gone, stat err=%v", err)
	}
	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "pixels" {
		t.Fatalf("content mismatch: %q", got)
	}
}

func TestCopyFallbackPreservesModTime(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.jpg")
	dst := filepath.Join(dir, "dst.jpg")

	if err := os.WriteFile(src, []byte("pixels"), 0o644); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(src, old, old); err != nil {
		t.Fatal(err)
	}

	if err := copyFileContents(src, dst); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(dst)
	if err != nil {
		t.Fatal(err)
	}
	if diff := info.ModTime().Sub(old); diff < -2*time.Second || diff > 2*time.Second {
		t.Fatalf("copy must keep the source mtime, got %v want %v", info.ModTime(), old)
	}
}

func TestMoveFile_MissingSource(t *testing.T) {
	dir := t.TempDir()
	if err := MoveFile(filepath.Join(dir, "nope"), filepath.Join(dir, "dst")); err == nil {
		t.Fatal("expected error for missing source")
	}
}

func TestUniquePathFreeSlot(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "photo.jpg")
	got, err := UniquePath(path)
	if err != nil {
		t.Fatal(err)
	}
	if got != path {
		t.Fatalf("free path should be returned unchanged: %q", got)
	}
}

func TestUniquePathSuffixesBeforeExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "photo.jpg")
	if err := os.WriteFile(path, []byte("a"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := UniquePath(path)
	if err != nil {
		t.Fatal(err)
	}
	if got != filepath.Join(dir, "photo (1).jpg") {
		t.Fatalf("unexpected collision name: %q", got)
	}

	if err := os.WriteFile(got, []byte("b"), 0o644); err != nil {
		t.Fatal(err)
	}
	got2, err := UniquePath(path)
	if err != nil {
		t.Fatal(err)
	}
	if got2 != filepath.Join(dir, "photo (2).jpg") {
		t.Fatalf("suffix should increment: %q", got2)
	}
}
