// Package fileutil holds the file primitives used when rewriting derived
// artifacts: staged temp files, atomic replacement, and content snapshots.
package fileutil

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// WriteFileAtomic writes data to a temp file beside path and renames it into
// place, so readers observe either the old or the new content.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmpName, err := StageFile(path, data, perm)
	if err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// StageFile writes data to a new temp file in path's directory and returns
// the temp file name. The caller renames or removes it.
func StageFile(path string, data []byte, perm os.FileMode) (string, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("close temp file: %w", err)
	}
	return tmpName, nil
}

// Snapshot captures a file's content (or its absence) so it can be put back.
type Snapshot struct {
	Path   string
	Exists bool
	Data   []byte
	Mode   os.FileMode
}

// TakeSnapshot records the current state of path. A missing file is a valid
// snapshot with Exists false.
func TakeSnapshot(path string) (Snapshot, error) {
	snap := Snapshot{Path: path, Mode: 0o644}
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return snap, nil
	}
	if err != nil {
		return snap, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return snap, fmt.Errorf("snapshot %s: is a directory", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return snap, fmt.Errorf("read %s: %w", path, err)
	}
	snap.Exists = true
	snap.Data = data
	snap.Mode = info.Mode().Perm()
	return snap, nil
}

// Restore puts the file back the way it was when the snapshot was taken:
// the original content is rewritten atomically, or the file is removed when
// it did not exist.
func (s Snapshot) Restore() error {
	if !s.Exists {
		if err := os.Remove(s.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", s.Path, err)
		}
		return nil
	}
	return WriteFileAtomic(s.Path, s.Data, s.Mode)
}
