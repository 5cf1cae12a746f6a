// Package store provides a uniform adapter interface over the two file trees
// a mapping keeps convergent: an externally managed project directory and the
// managed vault document store. The sync engine is adapter-agnostic; it only
// ever talks to the Store interface.
package store

import (
	"context"
	"time"

	"github.com/driftsync/driftsync/pkg/fstate"
)

// HostConfigDirName is the host application's own configuration directory.
// It is never listed, synced or watched.
const HostConfigDirName = ".obsidian"

// BackupDirName is where pre-overwrite backups are stored inside a root.
// It is excluded from listings so backups are never synced back.
const BackupDirName = ".driftsync-backups"

// systemExcludeDirNames are directory names that are always skipped during
// traversal, independent of user configuration.
var systemExcludeDirNames = map[string]struct{}{
	".git":            {},
	".svn":            {},
	".hg":             {},
	"node_modules":    {},
	".trash":          {},
	HostConfigDirName: {},
	BackupDirName:     {},
}

// ListOptions narrows a listing to the mapping's effective policy.
type ListOptions struct {
	// FileTypes is the suffix filter ([".md", ".excalidraw.md", ...]). Both
	// simple and compound suffixes are checked independently against the
	// filename. Empty means every file.
	FileTypes []string
	// ExcludePatterns exclude any path with a segment matching a pattern
	// exactly or by substring; patterns containing glob metacharacters are
	// matched against the whole relative path instead.
	ExcludePatterns []string
	// FollowSymlinks resolves links and treats them according to the real
	// target's type. When false, links are skipped entirely.
	FollowSymlinks bool
}

// Store is the uniform interface over one side of a mapping.
type Store interface {
	// Root returns the absolute root directory of this store.
	Root() string
	// List walks the tree depth-first and returns every file passing the
	// options' filters. Unreadable entries and subtrees are skipped, not
	// reported: a permissions gap in one folder must not abort the walk.
	List(ctx context.Context, opts ListOptions) ([]fstate.FileInfo, error)
	// Read returns the raw bytes of the file at the relative key.
	Read(relPath string) ([]byte, error)
	// Write persists data at the relative key, creating parent directories
	// as needed, and stamps the file with modTime afterwards so that
	// reconciliation keeps comparing content-origin time, not write time.
	Write(relPath string, data []byte, modTime time.Time) error
	// Delete removes the file at the relative key.
	Delete(relPath string) error
	// EnsureDir creates the directory at the relative key if absent.
	EnsureDir(relPath string) error
	// Stat reports the current state of the file at the relative key.
	// The boolean is false when the file does not exist.
	Stat(relPath string) (fstate.FileInfo, bool, error)
	// Abs converts a relative key to the OS-native absolute path.
	Abs(relPath string) string
}
