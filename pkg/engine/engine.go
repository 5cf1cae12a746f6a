// Package engine implements the synchronization core: it diffs the two live
// listings of a mapping against the persisted prior-sync snapshot, classifies
// every path into an action, resolves concurrent edits, detects deletions
// without tombstones and either executes the actions or emits a dry-run plan.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/driftsync/driftsync/pkg/config"
	"github.com/driftsync/driftsync/pkg/hints"
	"github.com/driftsync/driftsync/pkg/metrics"
	"github.com/driftsync/driftsync/pkg/plog"
	"github.com/driftsync/driftsync/pkg/snapshot"
)

// ErrRunInProgress is returned when a run for a mapping is requested while
// another run of the same mapping is still active. The new run is skipped,
// not queued: the active run's snapshot write will reflect the tree anyway.
// It is a hint, not a failure.
var ErrRunInProgress = hints.New("a sync run for this mapping is already in progress")

// ConflictDecider is the host's answer point for conflicts under the ask
// strategy. The engine suspends the mapping's file loop until it returns.
type ConflictDecider func(ConflictInfo) Decision

// DeletionConfirmer is the host's yes/no on a non-empty set of detected
// deletions. Returning false skips all deletions for this run.
type DeletionConfirmer func([]DetectedDeletion) bool

// Engine orchestrates sync runs over the configured mappings.
type Engine struct {
	cfg       *config.Config
	snapshots *snapshot.Store
	metrics   metrics.Metrics

	// ConflictDecider is consulted for the ask strategy. When nil, asked
	// conflicts are skipped.
	ConflictDecider ConflictDecider
	// DeletionConfirmer is consulted when confirm-deletions is on and
	// detections are non-empty. When nil, deletions are declined.
	DeletionConfirmer DeletionConfirmer

	mu    sync.Mutex
	locks map[string]*semaphore.Weighted
}

// New creates an engine over the given configuration and snapshot store.
// Passing nil metrics disables collection.
func New(cfg *config.Config, snapshots *snapshot.Store, m metrics.Metrics) *Engine {
	if m == nil {
		m = &metrics.NoopMetrics{}
	}
	return &Engine{
		cfg:       cfg,
		snapshots: snapshots,
		metrics:   m,
		locks:     make(map[string]*semaphore.Weighted),
	}
}

// Metrics returns the collector this engine reports into, so hosts can log
// the accumulated summary after a set of runs.
func (e *Engine) Metrics() metrics.Metrics {
	return e.metrics
}

// lockFor returns the per-mapping run lock, creating it on first use.
func (e *Engine) lockFor(mappingID string) *semaphore.Weighted {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.locks[mappingID]
	if !ok {
		lock = semaphore.NewWeighted(1)
		e.locks[mappingID] = lock
	}
	return lock
}

// RunAll syncs the given mapping IDs, or every enabled mapping when ids is
// empty. Mappings are processed strictly sequentially so only one conflict
// or deletion dialogue is ever active at a time; one mapping's failure does
// not abort the rest.
func (e *Engine) RunAll(ctx context.Context, ids []string, dryRun bool) ([]*Result, error) {
	var mappings []*config.Mapping
	if len(ids) == 0 {
		mappings = e.cfg.EnabledMappings()
	} else {
		for _, id := range ids {
			m, ok := e.cfg.MappingByID(id)
			if !ok {
				return nil, fmt.Errorf("no mapping with id %q", id)
			}
			mappings = append(mappings, m)
		}
	}

	results := make([]*Result, 0, len(mappings))
	for _, m := range mappings {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		results = append(results, e.Run(ctx, m, dryRun))
	}
	return results, nil
}

// Run syncs a single mapping and always returns a Result; a fatal error is
// carried in Result.Err.
func (e *Engine) Run(ctx context.Context, m *config.Mapping, dryRun bool) *Result {
	res := &Result{MappingID: m.ID, DryRun: dryRun, Start: time.Now()}
	defer func() {
		res.End = time.Now()
		res.Success = res.Err == nil && res.Errors == 0
	}()

	lock := e.lockFor(m.ID)
	if !lock.TryAcquire(1) {
		plog.Notice("Skipping mapping, run already in progress", "mapping", m.ID)
		res.Err = ErrRunInProgress
		return res
	}
	defer lock.Release(1)

	policy, err := e.cfg.EffectivePolicy(m)
	if err != nil {
		res.Err = fmt.Errorf("invalid policy for mapping %s: %w", m.ID, err)
		return res
	}

	if dryRun {
		plog.Notice("PLAN", "mapping", m.ID, "direction", string(policy.Direction))
	} else {
		plog.Notice("SYNC", "mapping", m.ID, "direction", string(policy.Direction))
	}

	e.runMapping(ctx, m, policy, dryRun, res)

	if res.Err != nil {
		plog.Error("Run failed", "mapping", m.ID, "error", res.Err)
	} else {
		plog.Info("Run finished",
			"mapping", m.ID,
			"dryRun", dryRun,
			"processed", res.Processed(),
			"copied", res.Copied,
			"updated", res.Updated,
			"skipped", res.Skipped,
			"deleted", res.Deleted,
			"conflicts", res.Conflicts,
			"errors", res.Errors,
			"duration", res.Duration().Round(time.Millisecond).String(),
		)
	}
	return res
}
