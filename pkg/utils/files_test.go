package utils

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file.txt")
	if FileExists(path) {
		t.Errorf("FileExists = true for missing file")
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	if !FileExists(path) {
		t.Errorf("FileExists = false for existing file")
	}
	if FileExists(dir) {
		t.Errorf("FileExists = true for a directory")
	}
}

func TestDirExistsAndEnsureDir(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "a", "b")
	if DirExists(nested) {
		t.Errorf("DirExists = true for missing directory")
	}
	if err := EnsureDir(nested); err != nil {
		t.Fatalf("EnsureDir returned error: %v", err)
	}
	if !DirExists(nested) {
		t.Errorf("DirExists = false after EnsureDir")
	}
	// Second call is a no-op.
	if err := EnsureDir(nested); err != nil {
		t.Fatalf("EnsureDir on existing directory returned error: %v", err)
	}
}

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	dst := filepath.Join(dir, "dst.txt")
	if err := os.WriteFile(src, []byte("payload"), 0o640); err != nil {
		t.Fatalf("failed to write source: %v", err)
	}
	if err := CopyFile(src, dst); err != nil {
		t.Fatalf("CopyFile returned error: %v", err)
	}
	data, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("failed to read destination: %v", err)
	}
	if string(data) != "payload" {
		t.Errorf("destination content = %q", data)
	}
	info, err := os.Stat(dst)
	if err != nil {
		t.Fatalf("failed to stat destination: %v", err)
	}
	if info.Mode().Perm() != 0o640 {
		t.Errorf("destination mode = %v; want 0640", info.Mode().Perm())
	}
}

func TestAbsPath(t *testing.T) {
	got, err := AbsPath("relative/path")
	if err != nil {
		t.Fatalf("AbsPath returned error: %v", err)
	}
	if !filepath.IsAbs(got) {
		t.Errorf("AbsPath = %q; want absolute", got)
	}
}
