package store

import (
	"context"
	"os"
	"path/filepath"
	"sort"

	"github.com/driftsync/driftsync/pkg/fstate"
	"github.com/driftsync/driftsync/pkg/plog"
	"github.com/driftsync/driftsync/pkg/util"
)

// listTree walks root depth-first and collects every file passing the
// filters. Individual unreadable entries and subtrees are skipped rather
// than reported; the walk itself only fails when the root is unreadable.
func listTree(ctx context.Context, root string, opts ListOptions) ([]fstate.FileInfo, error) {
	excludes := makeExclusionSet(opts.ExcludePatterns)

	var files []fstate.FileInfo
	var walk func(absDir string) error
	walk = func(absDir string) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		entries, err := os.ReadDir(absDir)
		if err != nil {
			// A permissions gap in one subfolder must not block the rest
			// of the mapping. The root itself is validated by the caller.
			plog.Debug("Skipping unreadable directory", "path", absDir, "error", err)
			return nil
		}
		// os.ReadDir sorts by name already, but be explicit: listing order
		// is the order conflicts are resolved and applied in.
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

		for _, entry := range entries {
			absPath := filepath.Join(absDir, entry.Name())
			relPathKey, err := util.NormalizedRelPath(root, absPath)
			if err != nil {
				plog.Debug("Skipping entry without relative path", "path", absPath, "error", err)
				continue
			}

			isDir := entry.IsDir()
			info, err := entry.Info()
			if err != nil {
				plog.Debug("Skipping entry with unreadable info", "path", absPath, "error", err)
				continue
			}

			// Symlinks are skipped entirely unless the policy follows them,
			// in which case the resolved target's type governs. Broken
			// links are silently skipped either way.
			if info.Mode()&os.ModeSymlink != 0 {
				if !opts.FollowSymlinks {
					continue
				}
				resolved, err := os.Stat(absPath)
				if err != nil {
					continue // broken link
				}
				info = resolved
				isDir = resolved.IsDir()
			}

			if isDir {
				if _, system := systemExcludeDirNames[entry.Name()]; system {
					continue
				}
				if excludes.matches(relPathKey) {
					continue
				}
				if err := walk(absPath); err != nil {
					return err
				}
				continue
			}

			if !info.Mode().IsRegular() {
				continue // pipes, sockets, devices
			}
			if excludes.matches(relPathKey) {
				continue
			}
			if !matchesFileTypes(entry.Name(), opts.FileTypes) {
				continue
			}

			files = append(files, fstate.FileInfo{
				RelPath: relPathKey,
				AbsPath: absPath,
				ModTime: info.ModTime(),
				Size:    info.Size(),
			})
		}
		return nil
	}

	if err := walk(root); err != nil {
		return nil, err
	}
	return files, nil
}
