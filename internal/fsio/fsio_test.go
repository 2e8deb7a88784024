package fsio

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir string, name string, size int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	data := bytes.Repeat([]byte("a"), size)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	return path
}

func TestReadEmptyFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "empty.txt", 0)

	content, err := Read(path)
	if err != nil {
		t.Fatalf("Read() failed: %v", err)
	}
	defer content.Close()

	if content.Size() != 0 {
		t.Errorf("expected size 0, got %d", content.Size())
	}
	if len(content.Bytes()) != 0 {
		t.Errorf("expected empty content, got %d bytes", len(content.Bytes()))
	}
}

func TestReadDirectTier(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "small.txt", 1024)

	content, err := Read(path)
	if err != nil {
		t.Fatalf("Read() failed: %v", err)
	}
	defer content.Close()

	if content.Size() != 1024 {
		t.Errorf("expected size 1024, got %d", content.Size())
	}
	if len(content.Bytes()) != 1024 {
		t.Errorf("expected 1024 bytes read, got %d", len(content.Bytes()))
	}
}

func TestReadMmapTier(t *testing.T) {
	dir := t.TempDir()
	size := DirectReadCeiling + 1024
	path := writeFile(t, dir, "mid.txt", size)

	content, err := Read(path)
	if err != nil {
		t.Fatalf("Read() failed: %v", err)
	}
	defer content.Close()

	if content.Size() != int64(size) {
		t.Errorf("expected size %d, got %d", size, content.Size())
	}
	if len(content.Bytes()) != size {
		t.Errorf("expected %d bytes read, got %d", size, len(content.Bytes()))
	}
}

func TestReadTooLarge(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "huge.txt")

	f, err := os.Create(path) // #nosec G304 -- test fixture path under t.TempDir()
	if err != nil {
		t.Fatalf("creating fixture: %v", err)
	}
	if err := f.Truncate(MmapCeiling + 1); err != nil {
		t.Fatalf("truncating fixture: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("closing fixture: %v", err)
	}

	_, err = Read(path)
	if err == nil {
		t.Fatal("expected error for oversized file")
	}
}

func TestReadMissingFile(t *testing.T) {
	if _, err := Read(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Error("expected error for missing file")
	}
}
