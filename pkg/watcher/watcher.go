// Package watcher observes both sides of every enabled mapping and coalesces
// bursty file events into one deduplicated batch per quiet period. Editors
// save through temp files and multiple writes; without coalescing every save
// would trigger several redundant sync runs.
package watcher

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/driftsync/driftsync/pkg/plog"
	"github.com/driftsync/driftsync/pkg/store"
	"github.com/driftsync/driftsync/pkg/util"
)

// Side identifies which tree of a mapping an event came from.
type Side string

const (
	SideProject Side = "project"
	SideVault   Side = "vault"
)

// Op is the observed change kind. Deletions are deliberately absent: they
// propagate through snapshot comparison at sync time, not through live
// events, so a transient editor rename never looks like a deletion.
type Op string

const (
	OpCreate Op = "create"
	OpWrite  Op = "write"
)

// Event is one coalesced file change.
type Event struct {
	MappingID string
	Side      Side
	RelPath   string
	Op        Op
}

type eventKey struct {
	mappingID string
	side      Side
	relPath   string
}

// Subscription describes one tree to watch.
type Subscription struct {
	MappingID string
	Side      Side
	Root      string
	Filter    *store.PathFilter
}

// BatchFunc receives one flushed batch. Batches are delivered sequentially
// from a single goroutine.
type BatchFunc func([]Event)

// Watcher owns the fsnotify subscriptions and the shared idle timer.
type Watcher struct {
	idleWindow time.Duration
	callbacks  []BatchFunc

	mu      sync.Mutex
	pending map[eventKey]Event
	timer   *time.Timer

	watchers []*fsnotify.Watcher
	roots    map[*fsnotify.Watcher]Subscription

	stopOnce sync.Once
	done     chan struct{}
	wg       sync.WaitGroup
}

// New creates a watcher with the given quiet period. Events arriving within
// the window keep pushing the flush out; the batch fires only after the tree
// has been idle for the full window.
func New(idleWindow time.Duration) *Watcher {
	return &Watcher{
		idleWindow: idleWindow,
		pending:    make(map[eventKey]Event),
		roots:      make(map[*fsnotify.Watcher]Subscription),
		done:       make(chan struct{}),
	}
}

// OnBatch registers a callback. Must be called before Start.
func (w *Watcher) OnBatch(fn BatchFunc) {
	w.callbacks = append(w.callbacks, fn)
}

// Start opens one fsnotify subscription per entry and begins observing.
// Directories are added recursively; directories created later are picked up
// from their create events.
func (w *Watcher) Start(subs []Subscription) error {
	for _, sub := range subs {
		fsw, err := fsnotify.NewWatcher()
		if err != nil {
			w.Stop()
			return fmt.Errorf("could not create watcher for %s/%s: %w", sub.MappingID, sub.Side, err)
		}
		w.watchers = append(w.watchers, fsw)
		w.roots[fsw] = sub

		if err := addRecursive(fsw, sub.Root, sub); err != nil {
			w.Stop()
			return err
		}

		w.wg.Add(1)
		go w.run(fsw, sub)
		plog.Debug("Watching tree", "mapping", sub.MappingID, "side", sub.Side, "root", sub.Root)
	}
	return nil
}

// Stop closes every subscription, discards pending events and waits for the
// event goroutines to exit. No batch is flushed for events still pending.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.done) })
	for _, fsw := range w.watchers {
		fsw.Close()
	}
	w.wg.Wait()

	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.pending = make(map[eventKey]Event)
	w.mu.Unlock()
}

func addRecursive(fsw *fsnotify.Watcher, dir string, sub Subscription) error {
	if err := fsw.Add(dir); err != nil {
		return fmt.Errorf("could not watch %s: %w", dir, err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		plog.Debug("Skipping unreadable directory", "path", dir, "error", err)
		return nil
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		absPath := filepath.Join(dir, entry.Name())
		relPathKey, err := util.NormalizedRelPath(sub.Root, absPath)
		if err != nil || sub.Filter.SkipsDir(relPathKey) {
			continue
		}
		if err := addRecursive(fsw, absPath, sub); err != nil {
			return err
		}
	}
	return nil
}

func (w *Watcher) run(fsw *fsnotify.Watcher, sub Subscription) {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.handle(fsw, sub, event)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			plog.Warn("Watcher error", "mapping", sub.MappingID, "side", sub.Side, "error", err)
		}
	}
}

func (w *Watcher) handle(fsw *fsnotify.Watcher, sub Subscription, event fsnotify.Event) {
	relPathKey, err := util.NormalizedRelPath(sub.Root, event.Name)
	if err != nil {
		return
	}

	if event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename) {
		// Observed only. Deletion propagation is decided against the
		// snapshot during the next run.
		plog.Debug("Ignoring remove event", "mapping", sub.MappingID, "side", sub.Side, "path", relPathKey)
		return
	}
	if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) {
		return
	}

	info, statErr := os.Stat(event.Name)
	if statErr == nil && info.IsDir() {
		if event.Op.Has(fsnotify.Create) && !sub.Filter.SkipsDir(relPathKey) {
			if err := addRecursive(fsw, event.Name, sub); err != nil {
				plog.Warn("Could not watch new directory", "path", event.Name, "error", err)
			}
		}
		return
	}

	if !sub.Filter.AdmitsFile(relPathKey) {
		return
	}

	op := OpWrite
	if event.Op.Has(fsnotify.Create) {
		op = OpCreate
	}
	w.record(Event{MappingID: sub.MappingID, Side: sub.Side, RelPath: relPathKey, Op: op})
}

// record stores the event, latest wins per key, and pushes the shared idle
// timer out.
func (w *Watcher) record(event Event) {
	w.mu.Lock()
	defer w.mu.Unlock()

	select {
	case <-w.done:
		return
	default:
	}

	w.pending[eventKey{event.MappingID, event.Side, event.RelPath}] = event

	if w.timer == nil {
		w.timer = time.AfterFunc(w.idleWindow, w.flush)
	} else {
		w.timer.Reset(w.idleWindow)
	}
}

func (w *Watcher) flush() {
	w.mu.Lock()
	if len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}
	batch := make([]Event, 0, len(w.pending))
	for _, event := range w.pending {
		batch = append(batch, event)
	}
	w.pending = make(map[eventKey]Event)
	w.mu.Unlock()

	plog.Debug("Flushing change batch", "events", len(batch))
	for _, fn := range w.callbacks {
		fn(batch)
	}
}
