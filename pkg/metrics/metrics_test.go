package metrics

import (
	"bytes"
	"strings"
	"testing"

	"github.com/driftsync/driftsync/pkg/plog"
)

func TestSyncMetricsAccumulate(t *testing.T) {
	m := &SyncMetrics{}
	m.AddFilesCopied(2)
	m.AddFilesCopied(1)
	m.AddFilesUpdated(1)
	m.AddConflicts(1)
	m.AddErrors(1)

	if got := m.FilesCopied.Load(); got != 3 {
		t.Errorf("FilesCopied = %d, expected 3", got)
	}
	if got := m.FilesUpdated.Load(); got != 1 {
		t.Errorf("FilesUpdated = %d, expected 1", got)
	}
	if got := m.FilesSkipped.Load(); got != 0 {
		t.Errorf("FilesSkipped = %d, expected 0", got)
	}
}

func TestSyncMetricsLogWritesSummary(t *testing.T) {
	var buf bytes.Buffer
	plog.SetOutput(&buf)

	m := &SyncMetrics{}
	m.AddFilesCopied(2)
	m.AddFilesDeleted(1)
	m.Log()

	out := buf.String()
	if !strings.Contains(out, "SUM") {
		t.Errorf("summary line missing from output: %q", out)
	}
	if !strings.Contains(out, "filesCopied=2") || !strings.Contains(out, "filesDeleted=1") {
		t.Errorf("counters missing from summary: %q", out)
	}
}
