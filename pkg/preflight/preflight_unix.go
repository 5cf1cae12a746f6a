//go:build !windows

package preflight

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/sys/unix"
)

// platformValidateMountPoint flags paths that sit on the root filesystem but
// look like they should be on a mounted drive. A vault configured on an
// unmounted external disk would otherwise silently fill a ghost directory on
// the system partition.
func platformValidateMountPoint(path string) error {
	homeDir, _ := os.UserHomeDir()
	if homeDir != "" && strings.HasPrefix(path, homeDir) {
		return nil
	}
	if !strings.HasPrefix(path, "/mnt/") && !strings.HasPrefix(path, "/media/") && !strings.HasPrefix(path, "/Volumes/") {
		return nil
	}

	rootInfo, err := os.Stat("/")
	if err != nil {
		return fmt.Errorf("failed to stat root: %w", err)
	}
	rootStat, ok := rootInfo.Sys().(*unix.Stat_t)
	if !ok {
		return fmt.Errorf("unsupported platform for unix.Stat_t")
	}

	pathInfo, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat path: %w", err)
	}
	pathStat, ok := pathInfo.Sys().(*unix.Stat_t)
	if !ok {
		return fmt.Errorf("unsupported platform for unix.Stat_t")
	}

	if pathStat.Dev == rootStat.Dev && path != "/" {
		return fmt.Errorf("path '%s' is on the root filesystem (system disk). "+
			"Ensure the drive is mounted", path)
	}
	return nil
}

// platformFreeSpace returns the bytes available to an unprivileged caller on
// the filesystem holding path.
func platformFreeSpace(path string) (available uint64, supported bool, err error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, true, err
	}
	return stat.Bavail * uint64(stat.Bsize), true, nil
}
