package repo

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio"
)

// writeFileAtomically writes b to fpath through a temp file in the same
// directory, then renames into place — the rename is the only visible
// mutation, so a crash mid-write never leaves a partial file where a reader
// expects a complete one. Grounded on the device writer's atomic-write
// helper: stage into a renameio.TempFile, set permissions before the data
// hits disk, flush through a buffer, then CloseAtomicallyReplace.
func writeFileAtomically(fpath string, b []byte, mode os.FileMode) error {
	dir := filepath.Dir(fpath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	t, err := renameio.TempFile(dir, fpath)
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", fpath, err)
	}
	defer func() { _ = t.Cleanup() }()

	if err := t.Chmod(mode); err != nil {
		return fmt.Errorf("chmod temp file for %s: %w", fpath, err)
	}
	w := bufio.NewWriter(t)
	if _, err := w.Write(b); err != nil {
		return fmt.Errorf("write %s: %w", fpath, err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush %s: %w", fpath, err)
	}
	return t.CloseAtomicallyReplace()
}

// syncDir fsyncs a directory so that a preceding rename or unlink within it
// is durable before the caller proceeds (used before ref updates become
// visible, per commit_transaction's fsync-before-rename requirement).
func syncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("open dir %s for sync: %w", dir, err)
	}
	defer f.Close()
	return f.Sync()
}
