package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/driftsync/driftsync/pkg/fstate"
	"github.com/driftsync/driftsync/pkg/util"
)

// DirStore adapts an externally managed directory tree (the project side of
// a mapping). Writes go directly to the destination path: the project tree
// is owned by external tooling and an interrupted write is recovered on the
// next run by normal reconciliation.
type DirStore struct {
	root string
}

// NewDirStore creates a store over the given absolute root directory.
func NewDirStore(root string) *DirStore {
	return &DirStore{root: filepath.Clean(root)}
}

func (s *DirStore) Root() string { return s.root }

func (s *DirStore) Abs(relPath string) string {
	return util.DenormalizedAbsPath(s.root, relPath)
}

func (s *DirStore) List(ctx context.Context, opts ListOptions) ([]fstate.FileInfo, error) {
	return listTree(ctx, s.root, opts)
}

func (s *DirStore) Read(relPath string) ([]byte, error) {
	data, err := os.ReadFile(s.Abs(relPath))
	if err != nil {
		return nil, fmt.Errorf("could not read %s: %w", relPath, err)
	}
	return data, nil
}

func (s *DirStore) Write(relPath string, data []byte, modTime time.Time) error {
	absPath := s.Abs(relPath)
	if err := os.MkdirAll(filepath.Dir(absPath), util.UserWritableDirPerms); err != nil {
		return fmt.Errorf("could not create parent directory for %s: %w", relPath, err)
	}
	if err := os.WriteFile(absPath, data, util.UserWritableFilePerms); err != nil {
		return fmt.Errorf("could not write %s: %w", relPath, err)
	}
	// Stamp the destination with the source's modification time so repeated
	// runs compare content-origin time rather than write time.
	if err := os.Chtimes(absPath, modTime, modTime); err != nil {
		return fmt.Errorf("could not set timestamps on %s: %w", relPath, err)
	}
	return nil
}

func (s *DirStore) Delete(relPath string) error {
	if err := os.Remove(s.Abs(relPath)); err != nil {
		return fmt.Errorf("could not delete %s: %w", relPath, err)
	}
	return nil
}

func (s *DirStore) EnsureDir(relPath string) error {
	if err := os.MkdirAll(s.Abs(relPath), util.UserWritableDirPerms); err != nil {
		return fmt.Errorf("could not create directory %s: %w", relPath, err)
	}
	return nil
}

func (s *DirStore) Stat(relPath string) (fstate.FileInfo, bool, error) {
	absPath := s.Abs(relPath)
	info, err := os.Stat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fstate.FileInfo{}, false, nil
		}
		return fstate.FileInfo{}, false, fmt.Errorf("could not stat %s: %w", relPath, err)
	}
	return fstate.FileInfo{
		RelPath: relPath,
		AbsPath: absPath,
		ModTime: info.ModTime(),
		Size:    info.Size(),
	}, true, nil
}

// Statically assert the adapter satisfies the interface.
var _ Store = (*DirStore)(nil)
