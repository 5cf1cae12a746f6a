package engine

import (
	"time"

	"github.com/driftsync/driftsync/pkg/fstate"
)

// Side identifies one tree of a mapping.
type Side string

const (
	SideProject Side = "project"
	SideVault   Side = "vault"
)

// Flow is the direction a single file action moves content in.
type Flow string

const (
	// FlowToVault writes the project-side version into the vault.
	FlowToVault Flow = "project->vault"
	// FlowToProject writes the vault-side version into the project tree.
	FlowToProject Flow = "vault->project"
	// FlowNone marks actions that move nothing (skips).
	FlowNone Flow = "none"
)

// ActionKind classifies what a run decided for one path.
type ActionKind string

const (
	// ActionCopy creates the file on the side it was missing from.
	ActionCopy ActionKind = "copy"
	// ActionUpdate overwrites the losing side with the winning version.
	ActionUpdate ActionKind = "update"
	// ActionSkip means no effective change, or a conflict deliberately left
	// unresolved.
	ActionSkip ActionKind = "skip"
	// ActionDelete removes a file to match a detected deletion.
	ActionDelete ActionKind = "delete"
)

// PlannedAction is one entry of a dry-run plan.
type PlannedAction struct {
	RelPath string
	Kind    ActionKind
	Flow    Flow
	Reason  string
}

// FileResult is the executed outcome for one path.
type FileResult struct {
	RelPath string
	Kind    ActionKind
	Flow    Flow
	Success bool
	Err     error
}

// ConflictInfo describes a file edited on both sides since the last sync,
// recorded in the result and handed to the host when the strategy is ask.
type ConflictInfo struct {
	MappingID string
	RelPath   string
	Project   fstate.FileInfo
	Vault     fstate.FileInfo
	// Significant marks conflicts whose sides diverged in size or drifted
	// apart by over a minute. Hosts rank those first; resolution ignores it.
	Significant bool
}

// Decision is the host's answer to a ConflictInfo.
type Decision int

const (
	// DecisionSkip leaves both versions in place this run.
	DecisionSkip Decision = iota
	// DecisionKeepProject writes the project version into the vault.
	DecisionKeepProject
	// DecisionKeepVault writes the vault version into the project tree.
	DecisionKeepVault
)

// DetectedDeletion is a path that vanished from one side since the last sync
// while still existing on the other.
type DetectedDeletion struct {
	RelPath       string
	DeletedFrom   Side
	ExistsIn      Side
	TargetAbsPath string
}

// Result is the structured outcome of one mapping run. A fatal error
// short-circuits the run but still produces a Result describing how far it
// got.
type Result struct {
	MappingID string
	DryRun    bool
	Start     time.Time
	End       time.Time
	Success   bool

	// Planned holds the dry-run projection; empty for executed runs.
	Planned []PlannedAction
	// Files holds the executed per-file outcomes; empty for dry runs.
	Files []FileResult
	// Deletions are the detections of this run, whether applied or declined.
	Deletions []DetectedDeletion
	// ConflictFiles lists every conflict encountered, one entry per counted
	// conflict, however it was resolved.
	ConflictFiles []ConflictInfo

	Copied    int
	Updated   int
	Skipped   int
	Deleted   int
	Conflicts int
	Errors    int

	// Err is the fatal error that aborted the run, if any. Per-file errors
	// are collected in Files and counted in Errors instead.
	Err error
}

// Duration returns how long the run took.
func (r *Result) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

// Processed returns how many paths the run classified, in any direction.
func (r *Result) Processed() int {
	return r.Copied + r.Updated + r.Skipped + r.Deleted
}
