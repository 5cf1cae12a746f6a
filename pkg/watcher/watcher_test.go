package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/driftsync/driftsync/pkg/store"
)

func collectBatches(w *Watcher) chan []Event {
	batches := make(chan []Event, 8)
	w.OnBatch(func(batch []Event) { batches <- batch })
	return batches
}

func TestCoalescingKeepsLatestEventPerPath(t *testing.T) {
	w := New(50 * time.Millisecond)
	batches := collectBatches(w)

	w.record(Event{MappingID: "main", Side: SideProject, RelPath: "a.md", Op: OpCreate})
	w.record(Event{MappingID: "main", Side: SideProject, RelPath: "a.md", Op: OpWrite})
	w.record(Event{MappingID: "main", Side: SideProject, RelPath: "a.md", Op: OpWrite})
	w.record(Event{MappingID: "main", Side: SideVault, RelPath: "a.md", Op: OpCreate})

	select {
	case batch := <-batches:
		if len(batch) != 2 {
			t.Fatalf("expected 2 coalesced events, got %d: %v", len(batch), batch)
		}
		for _, event := range batch {
			if event.Side == SideProject && event.Op != OpWrite {
				t.Errorf("latest op should win, got %q", event.Op)
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatal("batch never flushed")
	}

	select {
	case batch := <-batches:
		t.Fatalf("unexpected second flush: %v", batch)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestIdleTimerResetsOnNewEvents(t *testing.T) {
	w := New(100 * time.Millisecond)
	batches := collectBatches(w)

	// Keep feeding events faster than the idle window; no flush may happen
	// until the stream goes quiet.
	for i := 0; i < 5; i++ {
		w.record(Event{MappingID: "main", Side: SideProject, RelPath: "a.md", Op: OpWrite})
		select {
		case batch := <-batches:
			t.Fatalf("flush fired while events were still arriving: %v", batch)
		case <-time.After(40 * time.Millisecond):
		}
	}

	select {
	case batch := <-batches:
		if len(batch) != 1 {
			t.Errorf("expected 1 event after quiet period, got %v", batch)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("batch never flushed after the stream went quiet")
	}
}

func TestStopDiscardsPendingEvents(t *testing.T) {
	w := New(100 * time.Millisecond)
	batches := collectBatches(w)

	w.record(Event{MappingID: "main", Side: SideProject, RelPath: "a.md", Op: OpWrite})
	w.Stop()

	select {
	case batch := <-batches:
		t.Fatalf("no batch should flush after Stop: %v", batch)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestHandleFiltersExcludedAndMismatchedFiles(t *testing.T) {
	root := t.TempDir()
	for _, relPath := range []string{"keep.md", "skip.txt", "drafts/wip.md"} {
		absPath := filepath.Join(root, filepath.FromSlash(relPath))
		if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
			t.Fatalf("setup failed: %v", err)
		}
		if err := os.WriteFile(absPath, []byte("x"), 0o644); err != nil {
			t.Fatalf("setup failed: %v", err)
		}
	}

	w := New(30 * time.Millisecond)
	batches := collectBatches(w)
	sub := Subscription{
		MappingID: "main",
		Side:      SideProject,
		Root:      root,
		Filter: store.NewPathFilter(store.ListOptions{
			FileTypes:       []string{".md"},
			ExcludePatterns: []string{"drafts"},
		}),
	}

	for _, relPath := range []string{"keep.md", "skip.txt", "drafts/wip.md"} {
		w.handle(nil, sub, fsnotify.Event{
			Name: filepath.Join(root, filepath.FromSlash(relPath)),
			Op:   fsnotify.Write,
		})
	}
	// Remove events are observed but never forwarded.
	w.handle(nil, sub, fsnotify.Event{Name: filepath.Join(root, "keep.md"), Op: fsnotify.Remove})

	select {
	case batch := <-batches:
		if len(batch) != 1 || batch[0].RelPath != "keep.md" {
			t.Errorf("expected only keep.md, got %v", batch)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("batch never flushed")
	}
}
