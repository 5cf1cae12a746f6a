// Package preflight validates a mapping's roots before a sync run touches
// anything. The checks are stateless except for the vault-root creation and
// the write probe, and they exist to turn late os errors into early,
// user-readable ones.
package preflight

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/driftsync/driftsync/pkg/plog"
	"github.com/driftsync/driftsync/pkg/util"
)

// CheckProjectRoot validates that the project root exists and is a directory.
// The project side is never created implicitly: a missing root usually means
// a typo or an unmounted drive, and syncing against it would read as a mass
// deletion.
func CheckProjectRoot(projectRoot string) error {
	info, err := os.Stat(projectRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("project root %s does not exist", projectRoot)
		}
		return fmt.Errorf("cannot stat project root %s: %w", projectRoot, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("project root %s is not a directory", projectRoot)
	}
	return nil
}

// CheckVaultRoot validates that the vault root is usable: an existing path
// must be a directory, a missing one must have an accessible parent so it can
// be created. It also runs the platform mount check so a ghost directory on
// the system disk is caught before files land there.
func CheckVaultRoot(vaultRoot string) error {
	info, err := os.Stat(vaultRoot)
	if os.IsNotExist(err) {
		parent := deepestExistingAncestor(vaultRoot)
		if err := platformValidateMountPoint(parent); err != nil {
			return err
		}
		parentDir := filepath.Dir(vaultRoot)
		if _, err := os.Stat(parentDir); err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("vault root and its parent directory do not exist: %s", parentDir)
			}
			return fmt.Errorf("cannot access parent directory %s: %w", parentDir, err)
		}
		return nil
	} else if err != nil {
		return fmt.Errorf("cannot access vault root %s: %w", vaultRoot, err)
	}

	if !info.IsDir() {
		return fmt.Errorf("vault root %s exists but is not a directory", vaultRoot)
	}
	return platformValidateMountPoint(vaultRoot)
}

// CheckVaultWritable ensures the vault root can be created and accepts writes
// by creating and removing a probe file.
func CheckVaultWritable(vaultRoot string) error {
	if err := os.MkdirAll(vaultRoot, util.UserWritableDirPerms); err != nil {
		return fmt.Errorf("failed to create vault root %s: %w", vaultRoot, err)
	}

	probe := filepath.Join(vaultRoot, ".driftsync-writetest.tmp")
	f, err := os.Create(probe)
	if err != nil {
		return fmt.Errorf("vault root %s is not writable: %w", vaultRoot, err)
	}
	f.Close()
	_ = os.Remove(probe)
	return nil
}

// CheckNotNested rejects mappings where one root contains the other. A nested
// pair makes every run feed its own output back in as input.
func CheckNotNested(projectRoot, vaultRoot string) error {
	projectAbs, err := filepath.Abs(projectRoot)
	if err != nil {
		return fmt.Errorf("cannot resolve project root %s: %w", projectRoot, err)
	}
	vaultAbs, err := filepath.Abs(vaultRoot)
	if err != nil {
		return fmt.Errorf("cannot resolve vault root %s: %w", vaultRoot, err)
	}

	if util.IsHostCaseInsensitiveFS() {
		projectAbs = strings.ToLower(projectAbs)
		vaultAbs = strings.ToLower(vaultAbs)
	}
	if projectAbs == vaultAbs {
		return fmt.Errorf("project root and vault root are the same directory: %s", projectRoot)
	}

	sep := string(filepath.Separator)
	if strings.HasPrefix(vaultAbs+sep, projectAbs+sep) {
		return fmt.Errorf("vault root %s is inside project root %s", vaultRoot, projectRoot)
	}
	if strings.HasPrefix(projectAbs+sep, vaultAbs+sep) {
		return fmt.Errorf("project root %s is inside vault root %s", projectRoot, vaultRoot)
	}
	return nil
}

// CheckFreeSpace verifies the filesystem holding path has at least
// requiredBytes available. On platforms without a usable statfs this check
// logs and passes.
func CheckFreeSpace(path string, requiredBytes int64) error {
	available, supported, err := platformFreeSpace(deepestExistingAncestor(path))
	if err != nil {
		return fmt.Errorf("could not determine free space for %s: %w", path, err)
	}
	if !supported {
		plog.Debug("Free space check not supported on this platform, skipping", "path", path)
		return nil
	}
	if available < uint64(requiredBytes) {
		return fmt.Errorf("not enough free space at %s: need %s, have %s",
			path, util.ByteCountIEC(requiredBytes), util.ByteCountIEC(int64(available)))
	}
	return nil
}

// deepestExistingAncestor walks up from path until it finds a directory that
// actually exists. Used so checks on a not-yet-created root inspect the
// filesystem it will be created on.
func deepestExistingAncestor(path string) string {
	current := path
	for {
		if _, err := os.Stat(current); err == nil {
			return current
		}
		parent := filepath.Dir(current)
		if parent == current {
			return current
		}
		current = parent
	}
}
