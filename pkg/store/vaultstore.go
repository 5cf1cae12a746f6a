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

// VaultStore adapts the managed document store (the vault side of a
// mapping). Unlike DirStore, every write is staged to a temporary file in
// the destination directory and atomically renamed into place, so the host
// application never observes a half-written document.
type VaultStore struct {
	root string
}

// NewVaultStore creates a store over the given absolute vault root.
func NewVaultStore(root string) *VaultStore {
	return &VaultStore{root: filepath.Clean(root)}
}

// EnsureRoot creates the vault root directory if it is absent. Creation is
// idempotent and non-destructive; a missing vault root is not an error.
func (s *VaultStore) EnsureRoot() error {
	if err := os.MkdirAll(s.root, util.UserWritableDirPerms); err != nil {
		return fmt.Errorf("could not create vault root %s: %w", s.root, err)
	}
	return nil
}

func (s *VaultStore) Root() string { return s.root }

func (s *VaultStore) Abs(relPath string) string {
	return util.DenormalizedAbsPath(s.root, relPath)
}

func (s *VaultStore) List(ctx context.Context, opts ListOptions) ([]fstate.FileInfo, error) {
	return listTree(ctx, s.root, opts)
}

func (s *VaultStore) Read(relPath string) ([]byte, error) {
	data, err := os.ReadFile(s.Abs(relPath))
	if err != nil {
		return nil, fmt.Errorf("could not read %s: %w", relPath, err)
	}
	return data, nil
}

// Write stages the content next to the destination and renames it into
// place. os.Rename is atomic on POSIX and uses MoveFileEx with
// MOVEFILE_REPLACE_EXISTING on Windows.
func (s *VaultStore) Write(relPath string, data []byte, modTime time.Time) (err error) {
	absPath := s.Abs(relPath)
	absDir := filepath.Dir(absPath)
	if err := os.MkdirAll(absDir, util.UserWritableDirPerms); err != nil {
		return fmt.Errorf("could not create parent directory for %s: %w", relPath, err)
	}

	tmp, err := os.CreateTemp(absDir, "driftsync-*.tmp")
	if err != nil {
		return fmt.Errorf("could not create staging file in %s: %w", absDir, err)
	}
	tmpPath := tmp.Name()
	// If the rename succeeds, tmpPath is cleared and this becomes a no-op.
	defer func() {
		if tmpPath != "" {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("could not write staging file for %s: %w", relPath, err)
	}
	if err := tmp.Chmod(util.UserWritableFilePerms); err != nil {
		tmp.Close()
		return fmt.Errorf("could not set permissions on staging file for %s: %w", relPath, err)
	}
	// Close flushes data to disk. It must precede Chtimes, because closing
	// may itself update the modification time.
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("could not close staging file for %s: %w", relPath, err)
	}
	if err := os.Chtimes(tmpPath, modTime, modTime); err != nil {
		return fmt.Errorf("could not set timestamps on staging file for %s: %w", relPath, err)
	}
	if err := os.Rename(tmpPath, absPath); err != nil {
		return fmt.Errorf("could not move staging file into place for %s: %w", relPath, err)
	}
	tmpPath = ""
	return nil
}

func (s *VaultStore) Delete(relPath string) error {
	if err := os.Remove(s.Abs(relPath)); err != nil {
		return fmt.Errorf("could not delete %s: %w", relPath, err)
	}
	return nil
}

func (s *VaultStore) EnsureDir(relPath string) error {
	if err := os.MkdirAll(s.Abs(relPath), util.UserWritableDirPerms); err != nil {
		return fmt.Errorf("could not create directory %s: %w", relPath, err)
	}
	return nil
}

func (s *VaultStore) Stat(relPath string) (fstate.FileInfo, bool, error) {
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

var _ Store = (*VaultStore)(nil)
