package backup

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/driftsync/driftsync/pkg/store"
)

func newTestWriter(t *testing.T, format Format) (*Writer, string) {
	t.Helper()
	root := t.TempDir()
	w := NewWriter(root, format, 0)
	w.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }
	return w, root
}

func TestParseFormat(t *testing.T) {
	testCases := []struct {
		raw      string
		expected Format
		wantErr  bool
	}{
		{"none", FormatNone, false},
		{"gz", FormatGz, false},
		{"zst", FormatZst, false},
		{"ZST", FormatZst, false},
		{"", FormatNone, false},
		{"zip", "", true},
	}

	for _, tc := range testCases {
		got, err := ParseFormat(tc.raw)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseFormat(%q) expected error, got %q", tc.raw, got)
			}
			continue
		}
		if err != nil || got != tc.expected {
			t.Errorf("ParseFormat(%q) = %q, %v, expected %q", tc.raw, got, err, tc.expected)
		}
	}
}

func TestBackupRoundTrip(t *testing.T) {
	for _, format := range []Format{FormatNone, FormatGz, FormatZst} {
		t.Run(string(format), func(t *testing.T) {
			w, root := newTestWriter(t, format)
			srcPath := filepath.Join(root, "notes", "a.md")
			if err := os.MkdirAll(filepath.Dir(srcPath), 0o755); err != nil {
				t.Fatalf("setup failed: %v", err)
			}
			content := strings.Repeat("recoverable content\n", 50)
			if err := os.WriteFile(srcPath, []byte(content), 0o644); err != nil {
				t.Fatalf("setup failed: %v", err)
			}

			bakPath, err := w.Backup("notes/a.md")
			if err != nil {
				t.Fatalf("Backup failed: %v", err)
			}
			if !strings.Contains(bakPath, store.BackupDirName) {
				t.Errorf("backup %q not under %s", bakPath, store.BackupDirName)
			}
			if !strings.Contains(bakPath, "a.md.20240301-120000.bak") {
				t.Errorf("backup name missing timestamp: %q", bakPath)
			}
			if format.suffix() != "" && !strings.HasSuffix(bakPath, format.suffix()) {
				t.Errorf("backup %q missing suffix %q", bakPath, format.suffix())
			}

			restored, err := Restore(bakPath)
			if err != nil {
				t.Fatalf("Restore failed: %v", err)
			}
			if string(restored) != content {
				t.Errorf("restored content differs: got %d bytes, expected %d", len(restored), len(content))
			}
		})
	}
}

func TestBackupPrunesOldestBeyondLimit(t *testing.T) {
	w, root := newTestWriter(t, FormatNone)
	w.maxPerFile = 2

	srcPath := filepath.Join(root, "a.md")
	if err := os.WriteFile(srcPath, []byte("content"), 0o644); err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	// A sibling whose name starts with "a.md." must survive pruning.
	bakDir := filepath.Join(root, store.BackupDirName)
	if err := os.MkdirAll(bakDir, 0o755); err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	sibling := filepath.Join(bakDir, "a.md.extra.md.20240101-000000.bak")
	if err := os.WriteFile(sibling, []byte("sibling"), 0o644); err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	stamps := []time.Time{
		time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 1, 12, 0, 1, 0, time.UTC),
		time.Date(2024, 3, 1, 12, 0, 2, 0, time.UTC),
	}
	var baks []string
	for _, stamp := range stamps {
		w.now = func() time.Time { return stamp }
		bakPath, err := w.Backup("a.md")
		if err != nil {
			t.Fatalf("Backup failed: %v", err)
		}
		baks = append(baks, bakPath)
	}

	if _, err := os.Stat(baks[0]); !os.IsNotExist(err) {
		t.Errorf("oldest backup %q should have been pruned", baks[0])
	}
	for _, bak := range baks[1:] {
		if _, err := os.Stat(bak); err != nil {
			t.Errorf("recent backup %q should survive pruning: %v", bak, err)
		}
	}
	if _, err := os.Stat(sibling); err != nil {
		t.Errorf("sibling backup %q should survive pruning: %v", sibling, err)
	}
}

func TestBackupMissingSourceIsNoOp(t *testing.T) {
	w, _ := newTestWriter(t, FormatNone)
	bakPath, err := w.Backup("never-existed.md")
	if err != nil {
		t.Fatalf("Backup of a missing file should not fail: %v", err)
	}
	if bakPath != "" {
		t.Errorf("expected empty backup path, got %q", bakPath)
	}
}
