package engine

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/driftsync/driftsync/pkg/backup"
	"github.com/driftsync/driftsync/pkg/config"
	"github.com/driftsync/driftsync/pkg/conflict"
	"github.com/driftsync/driftsync/pkg/fstate"
	"github.com/driftsync/driftsync/pkg/plog"
	"github.com/driftsync/driftsync/pkg/preflight"
	"github.com/driftsync/driftsync/pkg/snapshot"
	"github.com/driftsync/driftsync/pkg/store"
)

// runState carries everything one mapping run needs between phases. The
// listing maps are live: the deletion pass prunes entries so the copy pass
// cannot resurrect a just-deleted file.
type runState struct {
	mapping *config.Mapping
	policy  config.EffectivePolicy
	dryRun  bool
	res     *Result

	project store.Store
	vault   store.Store

	projectFiles map[string]fstate.FileInfo
	vaultFiles   map[string]fstate.FileInfo

	projectBackups *backup.Writer
	vaultBackups   *backup.Writer

	// prior is the snapshot entry this run diffs against.
	prior *snapshot.Mapping
	// declined holds detections the host refused to apply. Their prior
	// snapshot entries are carried over so the next run detects them again
	// instead of copying the surviving file back.
	declined []DetectedDeletion
}

func (e *Engine) runMapping(ctx context.Context, m *config.Mapping, policy config.EffectivePolicy, dryRun bool, res *Result) {
	projectRoot := m.EffectiveProjectRoot()
	vaultRoot := m.EffectiveVaultRoot()

	if err := preflight.CheckNotNested(projectRoot, vaultRoot); err != nil {
		res.Err = err
		return
	}
	if err := preflight.CheckProjectRoot(projectRoot); err != nil {
		res.Err = err
		return
	}

	vaultStore := store.NewVaultStore(vaultRoot)
	if !dryRun {
		if err := preflight.CheckVaultRoot(vaultRoot); err != nil {
			res.Err = err
			return
		}
		if err := vaultStore.EnsureRoot(); err != nil {
			res.Err = err
			return
		}
		if err := preflight.CheckVaultWritable(vaultRoot); err != nil {
			res.Err = err
			return
		}
	}

	run := &runState{
		mapping: m,
		policy:  policy,
		dryRun:  dryRun,
		res:     res,
		project: store.NewDirStore(projectRoot),
		vault:   vaultStore,
	}
	if policy.CreateBackups {
		run.projectBackups = backup.NewWriter(projectRoot, policy.BackupFormat, policy.MaxBackupsPerFile)
		run.vaultBackups = backup.NewWriter(vaultRoot, policy.BackupFormat, policy.MaxBackupsPerFile)
	}

	opts := store.ListOptions{
		FileTypes:       policy.FileTypes,
		ExcludePatterns: policy.ExcludePatterns,
		FollowSymlinks:  policy.FollowSymlinks,
	}

	projectList, err := run.project.List(ctx, opts)
	if err != nil {
		res.Err = fmt.Errorf("could not list project tree: %w", err)
		return
	}
	var vaultList []fstate.FileInfo
	if _, statErr := os.Stat(vaultRoot); statErr == nil {
		vaultList, err = run.vault.List(ctx, opts)
		if err != nil {
			res.Err = fmt.Errorf("could not list vault tree: %w", err)
			return
		}
	}
	// A vault root that does not exist yet lists as empty; the run then
	// behaves like a first sync into a fresh vault.

	run.projectFiles = asFileMap(projectList)
	run.vaultFiles = asFileMap(vaultList)

	if !dryRun {
		var totalBytes int64
		for _, info := range projectList {
			totalBytes += info.Size
		}
		if err := preflight.CheckFreeSpace(vaultRoot, totalBytes); err != nil {
			// Advisory only. Most runs touch a fraction of the tree.
			plog.Warn("Free space check failed", "mapping", m.ID, "error", err)
		}
	}

	run.prior = e.snapshots.Mapping(m.ID)
	if policy.SyncDeletions && !run.prior.IsEmpty() {
		e.deletionPass(run)
	}

	e.reconcile(ctx, run)
	if res.Err != nil {
		return
	}

	if !dryRun {
		e.updateSnapshot(ctx, run, opts)
	}
}

// deletionPass finds paths recorded in the prior snapshot that vanished from
// their side while still existing on the other, and removes the surviving
// copy. Never reached on a first sync: with no prior snapshot every
// destination file would look deleted relative to an empty baseline.
func (e *Engine) deletionPass(run *runState) {
	prior := run.prior
	projectPresent := presentSet(run.projectFiles)
	vaultPresent := presentSet(run.vaultFiles)

	var detections []DetectedDeletion
	// Deletions on the source side always propagate; deletions on the sink
	// side only do for bidirectional mappings.
	if run.policy.Direction != config.VaultToProject {
		for _, relPath := range snapshot.MissingFrom(prior.ProjectFiles, projectPresent) {
			if info, ok := run.vaultFiles[relPath]; ok {
				detections = append(detections, DetectedDeletion{
					RelPath:       relPath,
					DeletedFrom:   SideProject,
					ExistsIn:      SideVault,
					TargetAbsPath: info.AbsPath,
				})
			}
		}
	}
	if run.policy.Direction != config.ProjectToVault {
		for _, relPath := range snapshot.MissingFrom(prior.VaultFiles, vaultPresent) {
			if info, ok := run.projectFiles[relPath]; ok {
				detections = append(detections, DetectedDeletion{
					RelPath:       relPath,
					DeletedFrom:   SideVault,
					ExistsIn:      SideProject,
					TargetAbsPath: info.AbsPath,
				})
			}
		}
	}
	run.res.Deletions = detections
	if len(detections) == 0 {
		return
	}

	if run.dryRun {
		for _, d := range detections {
			run.res.Planned = append(run.res.Planned, PlannedAction{
				RelPath: d.RelPath,
				Kind:    ActionDelete,
				Flow:    FlowNone,
				Reason:  fmt.Sprintf("deleted from %s since last sync", d.DeletedFrom),
			})
			run.res.Deleted++
			run.pruneListing(d)
		}
		return
	}

	if run.policy.ConfirmDeletions {
		if e.DeletionConfirmer == nil || !e.DeletionConfirmer(detections) {
			plog.Notice("Deletions not confirmed, keeping all files this run",
				"mapping", run.mapping.ID, "count", len(detections))
			// Withhold the surviving copies from reconciliation so the copy
			// pass does not turn a declined delete into a resurrection, and
			// keep the prior snapshot entries so the next run asks again.
			for _, d := range detections {
				run.declined = append(run.declined, d)
				run.pruneListing(d)
			}
			return
		}
	}

	for _, d := range detections {
		targetStore := run.project
		backups := run.projectBackups
		if d.ExistsIn == SideVault {
			targetStore = run.vault
			backups = run.vaultBackups
		}

		if backups != nil {
			if _, err := backups.Backup(d.RelPath); err != nil {
				// Without the safety copy the delete does not happen.
				e.failFile(run, d.RelPath, ActionDelete, FlowNone, err)
				continue
			}
		}
		if err := targetStore.Delete(d.RelPath); err != nil {
			e.failFile(run, d.RelPath, ActionDelete, FlowNone, err)
			continue
		}

		plog.Notice("DELETE", "mapping", run.mapping.ID, "path", d.RelPath, "side", string(d.ExistsIn))
		run.res.Files = append(run.res.Files, FileResult{
			RelPath: d.RelPath, Kind: ActionDelete, Flow: FlowNone, Success: true,
		})
		run.res.Deleted++
		e.metrics.AddFilesDeleted(1)
		run.pruneListing(d)
	}
}

// reconcile walks both listings in sorted order and turns every path into an
// action, applying it immediately. Files are handled strictly one at a time
// so backup-then-overwrite stays atomic relative to the rest of the run.
func (e *Engine) reconcile(ctx context.Context, run *runState) {
	// Pass 1, project to vault. Skipped for vault-to-project mappings where
	// the vault is the authoritative source.
	if run.policy.Direction != config.VaultToProject {
		for _, relPath := range sortedKeys(run.projectFiles) {
			if err := ctx.Err(); err != nil {
				run.res.Err = err
				return
			}
			pInfo := run.projectFiles[relPath]
			vInfo, inVault := run.vaultFiles[relPath]
			if !inVault {
				e.act(run, relPath, ActionCopy, FlowToVault, "missing from vault", pInfo)
				continue
			}

			pMS, vMS := pInfo.ModTime.UnixMilli(), vInfo.ModTime.UnixMilli()
			if !conflict.ModTimeDiffers(pMS, vMS) {
				e.act(run, relPath, ActionSkip, FlowNone, "unchanged", pInfo)
				continue
			}

			if run.policy.Direction == config.ProjectToVault {
				// Unidirectional: the vault's own edits are discarded
				// without a dialogue.
				if pMS > vMS {
					e.act(run, relPath, ActionUpdate, FlowToVault, "project newer", pInfo)
				} else {
					e.act(run, relPath, ActionSkip, FlowNone, "vault-side change ignored", pInfo)
				}
				continue
			}

			info := ConflictInfo{
				MappingID:   run.mapping.ID,
				RelPath:     relPath,
				Project:     pInfo,
				Vault:       vInfo,
				Significant: conflict.Significant(pInfo.Size, vInfo.Size, pMS, vMS),
			}
			run.res.Conflicts++
			run.res.ConflictFiles = append(run.res.ConflictFiles, info)
			e.metrics.AddConflicts(1)
			winner := conflict.Resolve(run.policy.ConflictStrategy, pMS, vMS)
			if winner == conflict.WinnerUndecided && !run.dryRun && e.ConflictDecider != nil {
				switch e.ConflictDecider(info) {
				case DecisionKeepProject:
					winner = conflict.WinnerProject
				case DecisionKeepVault:
					winner = conflict.WinnerVault
				}
			}

			switch winner {
			case conflict.WinnerProject:
				e.act(run, relPath, ActionUpdate, FlowToVault, "conflict resolved for project side", pInfo)
			case conflict.WinnerVault:
				e.act(run, relPath, ActionUpdate, FlowToProject, "conflict resolved for vault side", vInfo)
			default:
				e.act(run, relPath, ActionSkip, FlowNone, "conflict left unresolved", pInfo)
			}
		}
	}

	// Pass 2, vault to project. Bidirectional mappings pick up vault-only
	// files here; vault-to-project mappings do their whole reconciliation
	// here.
	if run.policy.Direction == config.Bidirectional || run.policy.Direction == config.VaultToProject {
		for _, relPath := range sortedKeys(run.vaultFiles) {
			if err := ctx.Err(); err != nil {
				run.res.Err = err
				return
			}
			vInfo := run.vaultFiles[relPath]
			pInfo, inProject := run.projectFiles[relPath]
			if !inProject {
				e.act(run, relPath, ActionCopy, FlowToProject, "missing from project", vInfo)
				continue
			}
			if run.policy.Direction != config.VaultToProject {
				continue // shared paths were classified in pass 1
			}

			pMS, vMS := pInfo.ModTime.UnixMilli(), vInfo.ModTime.UnixMilli()
			switch {
			case !conflict.ModTimeDiffers(pMS, vMS):
				e.act(run, relPath, ActionSkip, FlowNone, "unchanged", vInfo)
			case vMS > pMS:
				e.act(run, relPath, ActionUpdate, FlowToProject, "vault newer", vInfo)
			default:
				e.act(run, relPath, ActionSkip, FlowNone, "project-side change ignored", vInfo)
			}
		}
	}
}

// act records one classified action and, outside dry runs, executes it.
// src is the side whose content wins; its recorded mod time is stamped onto
// the destination so reconciliation keeps comparing content-origin time.
func (e *Engine) act(run *runState, relPath string, kind ActionKind, flow Flow, reason string, src fstate.FileInfo) {
	if run.dryRun {
		run.res.Planned = append(run.res.Planned, PlannedAction{
			RelPath: relPath, Kind: kind, Flow: flow, Reason: reason,
		})
		run.count(kind)
		e.countMetrics(kind)
		return
	}

	if kind == ActionSkip {
		run.res.Files = append(run.res.Files, FileResult{
			RelPath: relPath, Kind: kind, Flow: flow, Success: true,
		})
		run.count(kind)
		e.countMetrics(kind)
		return
	}

	srcStore, dstStore := run.project, run.vault
	dstBackups := run.vaultBackups
	if flow == FlowToProject {
		srcStore, dstStore = run.vault, run.project
		dstBackups = run.projectBackups
	}

	data, err := srcStore.Read(relPath)
	if err != nil {
		e.failFile(run, relPath, kind, flow, err)
		return
	}
	if kind == ActionUpdate && dstBackups != nil {
		if _, err := dstBackups.Backup(relPath); err != nil {
			// Do not overwrite a file we failed to back up.
			e.failFile(run, relPath, kind, flow, err)
			return
		}
	}
	if err := dstStore.Write(relPath, data, src.ModTime); err != nil {
		e.failFile(run, relPath, kind, flow, err)
		return
	}

	if kind == ActionCopy {
		plog.Notice("COPY", "mapping", run.mapping.ID, "path", relPath, "flow", string(flow))
	} else {
		plog.Notice("UPDATE", "mapping", run.mapping.ID, "path", relPath, "flow", string(flow), "reason", reason)
	}
	run.res.Files = append(run.res.Files, FileResult{
		RelPath: relPath, Kind: kind, Flow: flow, Success: true,
	})
	run.count(kind)
	e.countMetrics(kind)
}

func (e *Engine) failFile(run *runState, relPath string, kind ActionKind, flow Flow, err error) {
	plog.Warn("File action failed", "mapping", run.mapping.ID, "path", relPath, "action", string(kind), "error", err)
	run.res.Files = append(run.res.Files, FileResult{
		RelPath: relPath, Kind: kind, Flow: flow, Success: false, Err: err,
	})
	run.res.Errors++
	e.metrics.AddErrors(1)
}

// updateSnapshot re-lists both trees and overwrites the mapping's snapshot
// entry with fresh states, including content hashes. Listing again instead
// of patching the in-memory maps keeps the snapshot honest even when some
// per-file actions failed.
func (e *Engine) updateSnapshot(ctx context.Context, run *runState, opts store.ListOptions) {
	projectList, err := run.project.List(ctx, opts)
	if err != nil {
		run.res.Err = fmt.Errorf("could not relist project tree for snapshot: %w", err)
		return
	}
	vaultList, err := run.vault.List(ctx, opts)
	if err != nil {
		run.res.Err = fmt.Errorf("could not relist vault tree for snapshot: %w", err)
		return
	}

	projectStates := asStateMap(projectList)
	vaultStates := asStateMap(vaultList)

	// Declined deletions keep their prior record on the deleted side so the
	// evidence survives into the next run.
	for _, d := range run.declined {
		if d.DeletedFrom == SideProject {
			if st, ok := run.prior.ProjectFiles[d.RelPath]; ok {
				projectStates[d.RelPath] = st
			}
		} else {
			if st, ok := run.prior.VaultFiles[d.RelPath]; ok {
				vaultStates[d.RelPath] = st
			}
		}
	}

	e.snapshots.Mapping(run.mapping.ID).Replace(projectStates, vaultStates)
	if err := e.snapshots.Save(); err != nil {
		run.res.Err = err
	}
}

func (run *runState) count(kind ActionKind) {
	switch kind {
	case ActionCopy:
		run.res.Copied++
	case ActionUpdate:
		run.res.Updated++
	case ActionSkip:
		run.res.Skipped++
	case ActionDelete:
		run.res.Deleted++
	}
}

func (e *Engine) countMetrics(kind ActionKind) {
	switch kind {
	case ActionCopy:
		e.metrics.AddFilesCopied(1)
	case ActionUpdate:
		e.metrics.AddFilesUpdated(1)
	case ActionSkip:
		e.metrics.AddFilesSkipped(1)
	case ActionDelete:
		e.metrics.AddFilesDeleted(1)
	}
}

func (run *runState) pruneListing(d DetectedDeletion) {
	if d.ExistsIn == SideVault {
		delete(run.vaultFiles, d.RelPath)
	} else {
		delete(run.projectFiles, d.RelPath)
	}
}

func asFileMap(infos []fstate.FileInfo) map[string]fstate.FileInfo {
	m := make(map[string]fstate.FileInfo, len(infos))
	for _, info := range infos {
		m[info.RelPath] = info
	}
	return m
}

func asStateMap(infos []fstate.FileInfo) map[string]fstate.FileState {
	states := make(map[string]fstate.FileState, len(infos))
	for _, info := range infos {
		st, err := fstate.StateOf(info)
		if err != nil {
			// The file may have vanished between listing and hashing.
			plog.Debug("Could not record file state", "path", info.RelPath, "error", err)
			continue
		}
		states[info.RelPath] = st
	}
	return states
}

func presentSet(files map[string]fstate.FileInfo) map[string]bool {
	present := make(map[string]bool, len(files))
	for relPath := range files {
		present[relPath] = true
	}
	return present
}

func sortedKeys(files map[string]fstate.FileInfo) []string {
	keys := make([]string, 0, len(files))
	for relPath := range files {
		keys = append(keys, relPath)
	}
	sort.Strings(keys)
	return keys
}
