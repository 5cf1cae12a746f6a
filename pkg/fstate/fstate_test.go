package fstate

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestHashFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.md")
	if err := os.WriteFile(path, []byte("hello\n"), 0o644); err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	// sha256 of "hello\n"
	expected := "5891b5b522d5df086d0ff0b110fbd9d21bb4fc7163af34d08286a2e846f6be03"
	got, err := HashFile(path)
	if err != nil {
		t.Fatalf("HashFile failed: %v", err)
	}
	if got != expected {
		t.Errorf("HashFile = %q, expected %q", got, expected)
	}

	if _, err := HashFile(filepath.Join(t.TempDir(), "missing.md")); err == nil {
		t.Error("expected error for a missing file")
	}
}

func TestStateOf(t *testing.T) {
	dir := t.TempDir()
	absPath := filepath.Join(dir, "notes", "a.md")
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	content := []byte("state capture")
	if err := os.WriteFile(absPath, content, 0o644); err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	modTime := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	st, err := StateOf(FileInfo{
		RelPath: "notes/a.md",
		AbsPath: absPath,
		ModTime: modTime,
		Size:    int64(len(content)),
	})
	if err != nil {
		t.Fatalf("StateOf failed: %v", err)
	}
	if st.RelPath != "notes/a.md" {
		t.Errorf("unexpected RelPath %q", st.RelPath)
	}
	if st.ModTime != modTime.UnixMilli() {
		t.Errorf("ModTime = %d, expected %d", st.ModTime, modTime.UnixMilli())
	}
	if st.Size != int64(len(content)) {
		t.Errorf("Size = %d, expected %d", st.Size, len(content))
	}
	if len(st.Hash) != 64 {
		t.Errorf("Hash should be a hex sha256 digest, got %q", st.Hash)
	}
}
