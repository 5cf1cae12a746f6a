// Package fstate defines the file-state model shared by the store adapters,
// the snapshot store and the sync engine.
package fstate

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"
)

// FileInfo describes one file in a live listing of a store.
// RelPath is the slash-normalized key a file is tracked under within one side
// of a mapping; AbsPath is where it currently lives on disk.
type FileInfo struct {
	RelPath string
	AbsPath string
	ModTime time.Time
	Size    int64
}

// FileState is the persisted snapshot of one file as of the last successful
// sync: the relative key, a content digest, the coarse modification time in
// milliseconds since the epoch, and the size in bytes.
//
// The hash is used only for the snapshot's deletion-tracking record; live
// reconciliation compares modification times, not content. The two equality
// definitions are intentionally different (see pkg/engine).
type FileState struct {
	RelPath string `json:"relPath"`
	Hash    string `json:"hash"`
	ModTime int64  `json:"modTime"`
	Size    int64  `json:"size"`
}

// StateOf captures a FileInfo as a persistable FileState, hashing the file's
// current content.
func StateOf(info FileInfo) (FileState, error) {
	hash, err := HashFile(info.AbsPath)
	if err != nil {
		return FileState{}, err
	}
	return FileState{
		RelPath: info.RelPath,
		Hash:    hash,
		ModTime: info.ModTime.UnixMilli(),
		Size:    info.Size,
	}, nil
}

// HashFile returns the hex-encoded SHA-256 digest of the file's raw bytes.
func HashFile(absPath string) (string, error) {
	f, err := os.Open(absPath)
	if err != nil {
		return "", fmt.Errorf("could not open %s for hashing: %w", absPath, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("could not hash %s: %w", absPath, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
