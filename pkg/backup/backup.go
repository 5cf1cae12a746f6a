// Package backup writes timestamped safety copies of files that a sync run
// is about to overwrite or delete. Copies land in a dedicated directory under
// the store root and are excluded from all listings.
package backup

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"

	"github.com/driftsync/driftsync/pkg/plog"
	"github.com/driftsync/driftsync/pkg/store"
	"github.com/driftsync/driftsync/pkg/util"
)

// Format selects how safety copies are stored on disk.
type Format string

const (
	// FormatNone stores plain copies.
	FormatNone Format = "none"
	// FormatGz stores gzip-compressed copies with a .gz suffix.
	FormatGz Format = "gz"
	// FormatZst stores zstandard-compressed copies with a .zst suffix.
	FormatZst Format = "zst"
)

// ParseFormat validates a config value. The empty string maps to FormatNone.
func ParseFormat(raw string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(raw))); f {
	case "":
		return FormatNone, nil
	case FormatNone, FormatGz, FormatZst:
		return f, nil
	default:
		return "", fmt.Errorf("invalid backup format: %q. Must be 'none', 'gz', or 'zst'", raw)
	}
}

// timestampFormat sorts lexicographically in age order.
const timestampFormat = "20060102-150405"

func (f Format) suffix() string {
	switch f {
	case FormatGz:
		return ".gz"
	case FormatZst:
		return ".zst"
	default:
		return ""
	}
}

// Writer creates safety copies inside a store before destructive actions.
type Writer struct {
	root       string
	format     Format
	maxPerFile int
	now        func() time.Time
}

// NewWriter returns a writer that places copies under root/<backup dir>.
// maxPerFile caps how many timestamped copies of one file are kept, zero
// keeps all of them.
func NewWriter(root string, format Format, maxPerFile int) *Writer {
	return &Writer{root: root, format: format, maxPerFile: maxPerFile, now: time.Now}
}

// Backup copies the file at relPath into the backup directory, preserving the
// relative layout and appending a timestamp plus any compression suffix:
//
//	notes/a.md -> .driftsync-backups/notes/a.md.20240301-120000.bak.gz
//
// A missing source is not an error, the destructive action it guards against
// races legitimate deletions.
func (w *Writer) Backup(relPath string) (string, error) {
	srcPath := filepath.Join(w.root, filepath.FromSlash(relPath))
	src, err := os.Open(srcPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("could not open %s for backup: %w", relPath, err)
	}
	defer src.Close()

	stamp := w.now().Format(timestampFormat)
	bakRel := filepath.Join(store.BackupDirName, filepath.FromSlash(relPath)) + "." + stamp + ".bak" + w.format.suffix()
	bakPath := filepath.Join(w.root, bakRel)

	if err := os.MkdirAll(filepath.Dir(bakPath), util.UserWritableDirPerms); err != nil {
		return "", fmt.Errorf("could not create backup directory: %w", err)
	}

	dst, err := os.OpenFile(bakPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, util.UserWritableFilePerms)
	if err != nil {
		return "", fmt.Errorf("could not create backup file %s: %w", bakRel, err)
	}
	defer dst.Close()

	if err := w.copyCompressed(dst, src); err != nil {
		os.Remove(bakPath)
		return "", fmt.Errorf("could not write backup of %s: %w", relPath, err)
	}

	plog.Debug("Wrote backup copy", "source", relPath, "backup", util.NormalizePath(bakRel))
	w.prune(relPath)
	return bakPath, nil
}

// prune deletes the oldest timestamped copies of relPath beyond maxPerFile.
// The timestamp format sorts lexicographically, so name order is age order.
// Pruning failures are logged but never fail the backup that triggered them.
func (w *Writer) prune(relPath string) {
	if w.maxPerFile <= 0 {
		return
	}
	bakBase := filepath.Join(w.root, store.BackupDirName, filepath.FromSlash(relPath))
	entries, err := os.ReadDir(filepath.Dir(bakBase))
	if err != nil {
		plog.Warn("Could not scan backup directory for pruning", "source", relPath, "error", err)
		return
	}

	prefix := filepath.Base(bakBase) + "."
	var copies []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, prefix) {
			continue
		}
		// Only timestamped copies of this exact file qualify, not copies of
		// a sibling whose name happens to share the prefix.
		rest := strings.TrimPrefix(name, prefix)
		rest = strings.TrimSuffix(strings.TrimSuffix(rest, ".gz"), ".zst")
		rest = strings.TrimSuffix(rest, ".bak")
		if _, err := time.Parse(timestampFormat, rest); err != nil {
			continue
		}
		copies = append(copies, name)
	}
	if len(copies) <= w.maxPerFile {
		return
	}

	sort.Strings(copies)
	for _, name := range copies[:len(copies)-w.maxPerFile] {
		stale := filepath.Join(filepath.Dir(bakBase), name)
		if err := os.Remove(stale); err != nil {
			plog.Warn("Could not prune stale backup copy", "backup", stale, "error", err)
			continue
		}
		plog.Debug("Pruned stale backup copy", "backup", util.NormalizePath(stale))
	}
}

func (w *Writer) copyCompressed(dst io.Writer, src io.Reader) error {
	switch w.format {
	case FormatGz:
		gzWriter := pgzip.NewWriter(dst)
		if _, err := io.Copy(gzWriter, src); err != nil {
			gzWriter.Close()
			return err
		}
		return gzWriter.Close()
	case FormatZst:
		zstdWriter, err := zstd.NewWriter(dst)
		if err != nil {
			return err
		}
		if _, err := io.Copy(zstdWriter, src); err != nil {
			zstdWriter.Close()
			return err
		}
		return zstdWriter.Close()
	default:
		_, err := io.Copy(dst, src)
		return err
	}
}

// Restore reads a backup file back into memory, decompressing per its suffix.
func Restore(bakPath string) ([]byte, error) {
	f, err := os.Open(bakPath)
	if err != nil {
		return nil, fmt.Errorf("could not open backup %s: %w", bakPath, err)
	}
	defer f.Close()

	var r io.Reader = f
	switch {
	case strings.HasSuffix(bakPath, ".gz"):
		gzReader, err := pgzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("could not read backup %s: %w", bakPath, err)
		}
		defer gzReader.Close()
		r = gzReader
	case strings.HasSuffix(bakPath, ".zst"):
		zstdReader, err := zstd.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("could not read backup %s: %w", bakPath, err)
		}
		defer zstdReader.Close()
		r = zstdReader
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("could not read backup %s: %w", bakPath, err)
	}
	return data, nil
}
