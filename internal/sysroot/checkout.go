package sysroot

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/coreos/ostree-engine/internal/objects"
	"github.com/coreos/ostree-engine/internal/ostreeerr"
	"github.com/coreos/ostree-engine/internal/repo"
)

// checkoutCommit materializes a commit's full tree onto disk at dstDir,
// the "deploy_tree" half of spec §4.5's Deployer responsibility. Archive
// mode repositories are pull-only mirrors, never deployment sources (§4.3);
// checkoutCommit requires a bare or bare-user local repo.
func checkoutCommit(r *repo.Repository, commit objects.Checksum, dstDir string) error {
	if r.Mode() == repo.ModeArchive {
		return fmt.Errorf("%w: cannot checkout from an archive-mode repository", ostreeerr.ErrUnsupported)
	}

	obj, err := r.LoadObject(objects.KindCommit, commit)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return fmt.Errorf("%w: mkdir %s: %w", ostreeerr.ErrIO, dstDir, err)
	}
	meta, err := r.LoadObject(objects.KindDirMeta, obj.Commit.RootMeta)
	if err != nil {
		return err
	}
	if err := applyDirMeta(r, dstDir, *meta.DirMeta); err != nil {
		return err
	}
	return checkoutTree(r, obj.Commit.RootTree, dstDir)
}

func checkoutTree(r *repo.Repository, treeCsum objects.Checksum, dstDir string) error {
	obj, err := r.LoadObject(objects.KindDirTree, treeCsum)
	if err != nil {
		return err
	}

	for _, f := range obj.DirTree.Files {
		fileObj, err := r.LoadObject(objects.KindFile, f.Checksum)
		if err != nil {
			return err
		}
		if err := writeCheckedOutFile(r, filepath.Join(dstDir, f.Name), *fileObj.File); err != nil {
			return err
		}
	}

	for _, d := range obj.DirTree.Subdirs {
		subdir := filepath.Join(dstDir, d.Name)
		metaObj, err := r.LoadObject(objects.KindDirMeta, d.MetaChecksum)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(subdir, 0o755); err != nil {
			return fmt.Errorf("%w: mkdir %s: %w", ostreeerr.ErrIO, subdir, err)
		}
		if err := applyDirMeta(r, subdir, *metaObj.DirMeta); err != nil {
			return err
		}
		if err := checkoutTree(r, d.TreeChecksum, subdir); err != nil {
			return err
		}
	}
	return nil
}

func writeCheckedOutFile(r *repo.Repository, dst string, f objects.File) error {
	if f.IsSymlink() {
		_ = os.Remove(dst)
		if err := os.Symlink(f.Symlink, dst); err != nil {
			return fmt.Errorf("%w: symlink %s: %w", ostreeerr.ErrIO, dst, err)
		}
		return nil
	}
	if err := os.WriteFile(dst, f.Content, os.FileMode(f.Mode&0o777)); err != nil {
		return fmt.Errorf("%w: write %s: %w", ostreeerr.ErrIO, dst, err)
	}
	applyOwnership(r, dst, f.UID, f.GID)
	return nil
}

// applyDirMeta applies a DirMeta's mode/ownership to an already-created
// directory.
func applyDirMeta(r *repo.Repository, dst string, meta objects.DirMeta) error {
	if err := os.Chmod(dst, os.FileMode(meta.Mode&0o777)); err != nil {
		return fmt.Errorf("%w: chmod %s: %w", ostreeerr.ErrIO, dst, err)
	}
	applyOwnership(r, dst, meta.UID, meta.GID)
	return nil
}

// applyOwnership chowns dst to uid/gid in bare mode, where deployments run
// with their real on-disk ownership. bare-user mode keeps everything owned
// by the invoking user and relies on the stored File/DirMeta metadata
// (already preserved in the object's own checksum) rather than a literal
// chown, matching upstream bare-user's "fake root" model; errors from an
// unprivileged chown attempt are intentionally ignored rather than failing
// the whole checkout.
func applyOwnership(r *repo.Repository, dst string, uid, gid uint32) {
	if r.Mode() != repo.ModeBare {
		return
	}
	_ = os.Chown(dst, int(uid), int(gid))
}
