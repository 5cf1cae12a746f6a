// Package snapshot persists the file states recorded at the end of the last
// successful sync run. The engine diffs both trees against this document to
// tell a local edit from a remote one and a deletion from a file that never
// existed, so no tombstones are needed.
package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/driftsync/driftsync/pkg/fstate"
	"github.com/driftsync/driftsync/pkg/plog"
	"github.com/driftsync/driftsync/pkg/util"
)

// SchemaVersion is the current on-disk format version. Documents written by
// a newer release are discarded rather than misread.
const SchemaVersion = 1

// DefaultFileName is the snapshot document placed next to the config file.
const DefaultFileName = "driftsync.state.json"

// document is the on-disk representation. Mappings are keyed by mapping ID so
// one file covers every configured pair.
type document struct {
	Version   int                 `json:"version"`
	UpdatedAt time.Time           `json:"updatedAt"`
	Mappings  map[string]*Mapping `json:"mappings"`
}

// Mapping holds the recorded states for one project/vault pair, keyed by
// normalized relative path. Both sides are recorded separately: deletion
// detection asks "was this path on side X last time" per side.
type Mapping struct {
	LastSyncTime time.Time                   `json:"lastSyncTime"`
	ProjectFiles map[string]fstate.FileState `json:"projectFiles"`
	VaultFiles   map[string]fstate.FileState `json:"vaultFiles"`
}

// Store loads and persists the snapshot document at a fixed path.
type Store struct {
	path string
	doc  document
}

// NewStore creates a store for the document at path. Nothing is read until
// Load is called.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the document location.
func (s *Store) Path() string { return s.path }

// Load reads the document from disk. A missing file yields an empty snapshot.
// A document that cannot be parsed, or that was written by a newer release,
// is discarded with a warning: the next sync then treats every file as new,
// which copies but never deletes.
func (s *Store) Load() error {
	s.doc = emptyDocument()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("could not read snapshot %s: %w", s.path, err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		plog.Warn("Snapshot file is corrupt, starting from an empty state", "path", s.path, "error", err)
		return nil
	}
	if doc.Version > SchemaVersion {
		plog.Warn("Snapshot was written by a newer version, starting from an empty state",
			"path", s.path, "fileVersion", doc.Version, "supportedVersion", SchemaVersion)
		return nil
	}
	if doc.Mappings == nil {
		doc.Mappings = make(map[string]*Mapping)
	}
	s.doc = doc
	return nil
}

// Save writes the document atomically via a temp file in the same directory.
func (s *Store) Save() error {
	s.doc.Version = SchemaVersion
	s.doc.UpdatedAt = time.Now().UTC()

	data, err := json.MarshalIndent(&s.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("could not encode snapshot: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, util.UserWritableDirPerms); err != nil {
		return fmt.Errorf("could not create snapshot directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "driftsync-state-*.tmp")
	if err != nil {
		return fmt.Errorf("could not create snapshot temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if tmpPath != "" {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("could not write snapshot temp file: %w", err)
	}
	if err := tmp.Chmod(util.UserWritableFilePerms); err != nil {
		tmp.Close()
		return fmt.Errorf("could not set snapshot permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("could not close snapshot temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("could not replace snapshot %s: %w", s.path, err)
	}
	tmpPath = ""
	return nil
}

// Mapping returns the recorded states for mappingID, creating an empty entry
// if none exists yet.
func (s *Store) Mapping(mappingID string) *Mapping {
	if s.doc.Mappings == nil {
		s.doc.Mappings = make(map[string]*Mapping)
	}
	m, ok := s.doc.Mappings[mappingID]
	if !ok {
		m = &Mapping{}
		s.doc.Mappings[mappingID] = m
	}
	if m.ProjectFiles == nil {
		m.ProjectFiles = make(map[string]fstate.FileState)
	}
	if m.VaultFiles == nil {
		m.VaultFiles = make(map[string]fstate.FileState)
	}
	return m
}

// DropMapping removes all recorded state for mappingID.
func (s *Store) DropMapping(mappingID string) {
	delete(s.doc.Mappings, mappingID)
}

// MappingIDs returns the IDs of all recorded mappings, sorted.
func (s *Store) MappingIDs() []string {
	ids := make([]string, 0, len(s.doc.Mappings))
	for id := range s.doc.Mappings {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func emptyDocument() document {
	return document{
		Version:  SchemaVersion,
		Mappings: make(map[string]*Mapping),
	}
}

// IsEmpty reports whether no file state has been recorded for this mapping
// yet. A first sync must never infer deletions.
func (m *Mapping) IsEmpty() bool {
	return len(m.ProjectFiles) == 0 && len(m.VaultFiles) == 0
}

// Replace swaps both file maps at once, used after a completed run.
func (m *Mapping) Replace(projectFiles, vaultFiles map[string]fstate.FileState) {
	if projectFiles == nil {
		projectFiles = make(map[string]fstate.FileState)
	}
	if vaultFiles == nil {
		vaultFiles = make(map[string]fstate.FileState)
	}
	m.ProjectFiles = projectFiles
	m.VaultFiles = vaultFiles
	m.LastSyncTime = time.Now().UTC()
}

// MissingFrom returns the paths recorded on one side but absent from that
// side's live listing. These are deletion candidates for that side. The
// returned order is sorted for deterministic processing.
func MissingFrom(recorded map[string]fstate.FileState, present map[string]bool) []string {
	var missing []string
	for relPath := range recorded {
		if !present[relPath] {
			missing = append(missing, relPath)
		}
	}
	sort.Strings(missing)
	return missing
}
