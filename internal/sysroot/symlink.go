package sysroot

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/coreos/ostree-engine/internal/ostreeerr"
	"github.com/google/uuid"
)

// swapSymlink atomically points linkPath at target: write a new symlink
// under a throwaway name next to linkPath, then rename it over linkPath.
// rename(2) within the same directory is atomic, so any reader opening
// linkPath observes either the old or the new target, never a missing or
// partially-written one (spec §5's crash-safety requirement on the boot
// swap sequence).
func swapSymlink(linkPath, target string) error {
	dir := filepath.Dir(linkPath)
	tmp := filepath.Join(dir, ".tmp-"+uuid.NewString())
	if err := os.Symlink(target, tmp); err != nil {
		return fmt.Errorf("%w: symlink %s -> %s: %w", ostreeerr.ErrIO, tmp, target, err)
	}
	if err := os.Rename(tmp, linkPath); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("%w: rename %s -> %s: %w", ostreeerr.ErrIO, tmp, linkPath, err)
	}
	return syncDir(dir)
}

func syncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("%w: open dir %s: %w", ostreeerr.ErrIO, dir, err)
	}
	defer f.Close()
	if err := f.Sync(); err != nil {
		return fmt.Errorf("%w: fsync dir %s: %w", ostreeerr.ErrIO, dir, err)
	}
	return nil
}

// readSymlinkTarget reads the immediate (non-resolved) target of a symlink,
// returning ("", false) if linkPath doesn't exist or isn't a symlink.
func readSymlinkTarget(linkPath string) (string, bool) {
	target, err := os.Readlink(linkPath)
	if err != nil {
		return "", false
	}
	return target, true
}
