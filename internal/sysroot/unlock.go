package sysroot

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/coreos/ostree-engine/internal/ostreeerr"
)

// DeploymentUnlock implements the unlocked-state machine of spec §4.5:
// None -> Hotfix writes a persistent overlayfs upper dir and clones the
// current deployment as a rollback; None -> Development writes a
// tmpfs-backed overlay for the current boot only. Only the booted
// deployment may transition to Hotfix or Development.
func (s *Sysroot) DeploymentUnlock(d *Deployment, target UnlockedState, booted Deployment) error {
	if d.key() != booted.key() {
		return fmt.Errorf("%w: only the booted deployment may change unlocked state", ostreeerr.ErrInvalidArgument)
	}
	if d.Unlocked != UnlockedNone && target != UnlockedNone {
		return fmt.Errorf("%w: deployment is already unlocked (%s); redeploy to clear it first", ostreeerr.ErrInvalidArgument, d.Unlocked)
	}

	switch target {
	case UnlockedHotfix:
		if err := s.writeOverlayUpper(*d, false); err != nil {
			return err
		}
		if err := s.cloneRollback(*d); err != nil {
			return err
		}
	case UnlockedDevelopment:
		if err := s.writeOverlayUpper(*d, true); err != nil {
			return err
		}
	case UnlockedNone:
		// Clearing only happens via a full redeploy per spec; nothing to
		// do here beyond updating the flag, which the caller persists.
	default:
		return fmt.Errorf("%w: unknown unlocked state %d", ostreeerr.ErrInvalidArgument, target)
	}

	d.Unlocked = target
	return nil
}

// writeOverlayUpper creates the overlayfs upper/work directories for an
// unlocked deployment. tmpfsOnly marks a Development-mode overlay, which
// upstream backs with tmpfs and therefore doesn't survive a reboot; this
// engine records that by writing the marker under /run rather than under
// the persistent deploy directory.
func (s *Sysroot) writeOverlayUpper(d Deployment, tmpfsOnly bool) error {
	var base string
	if tmpfsOnly {
		base = filepath.Join(s.path, "run", "ostree", "unlock", d.OSName, d.DirName())
	} else {
		base = filepath.Join(s.deploymentPath(d) + ".hotfix")
	}
	for _, sub := range []string{"upper", "work"} {
		dir := filepath.Join(base, sub)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("%w: mkdir %s: %w", ostreeerr.ErrIO, dir, err)
		}
	}
	return nil
}

// cloneRollback preserves a pristine copy of the booted deployment's tree
// before a Hotfix overlay is applied over it, so the original can still be
// booted as a rollback target.
func (s *Sysroot) cloneRollback(d Deployment) error {
	src := s.deploymentPath(d)
	dst := src + ".rollback"
	if _, err := os.Stat(dst); err == nil {
		return nil // already cloned by an earlier hotfix transition
	}
	return copyTree(src, dst)
}

func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyEtcPath(path, target)
	})
}
