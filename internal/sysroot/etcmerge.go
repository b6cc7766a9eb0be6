package sysroot

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/coreos/ostree-engine/internal/ostreeerr"
	"golang.org/x/sys/unix"
)

// mergeEtc implements spec §4.5's three-way /etc merge: diff origEtc
// (the previous deployment's /usr/etc) against modifiedEtc (that
// deployment's current, possibly host-edited /etc), then apply the added,
// removed, and modified paths onto newEtc (initially a copy of the new
// deployment's own /usr/etc).
func mergeEtc(origEtc, modifiedEtc, newEtc string) error {
	added, removed, modified, err := diffEtc(origEtc, modifiedEtc)
	if err != nil {
		return err
	}

	for _, rel := range removed {
		path := filepath.Join(newEtc, rel)
		if err := os.RemoveAll(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("%w: remove %s: %w", ostreeerr.ErrIO, path, err)
		}
	}

	for _, rel := range append(added, modified...) {
		if err := copyEtcPath(filepath.Join(modifiedEtc, rel), filepath.Join(newEtc, rel)); err != nil {
			return err
		}
	}
	return nil
}

// diffEtc walks orig and modified, classifying every relative path present
// in either tree.
func diffEtc(orig, modified string) (added, removed, changed []string, err error) {
	origSet, err := walkRelPaths(orig)
	if err != nil {
		return nil, nil, nil, err
	}
	modSet, err := walkRelPaths(modified)
	if err != nil {
		return nil, nil, nil, err
	}

	for rel := range modSet {
		if !origSet[rel] {
			added = append(added, rel)
			continue
		}
		sameOrig, err1 := os.Lstat(filepath.Join(orig, rel))
		sameMod, err2 := os.Lstat(filepath.Join(modified, rel))
		if err1 != nil || err2 != nil || !fileInfoEqual(sameOrig, sameMod) {
			changed = append(changed, rel)
		}
	}
	for rel := range origSet {
		if !modSet[rel] {
			removed = append(removed, rel)
		}
	}
	return added, removed, changed, nil
}

func fileInfoEqual(a, b os.FileInfo) bool {
	return a.Mode() == b.Mode() && a.Size() == b.Size() && a.ModTime().Equal(b.ModTime())
}

func walkRelPaths(root string) (map[string]bool, error) {
	set := make(map[string]bool)
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == root {
				return nil
			}
			return err
		}
		if path == root {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if !d.IsDir() {
			set[rel] = true
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: walk %s: %w", ostreeerr.ErrIO, root, err)
	}
	return set, nil
}

// copyEtcPath copies src onto dst, creating parent directories as needed,
// preserving mode and xattrs (spec §4.5's "preserving mode/xattrs" for the
// merge's add/modify copy step). Symlinks are handled by always unlinking
// the destination first: spec §4.5 calls out that conflicts with new_etc's
// own upstream changes resolve as last-write-wins in favor of modifiedEtc.
func copyEtcPath(src, dst string) error {
	info, err := os.Lstat(src)
	if err != nil {
		return fmt.Errorf("%w: stat %s: %w", ostreeerr.ErrIO, src, err)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("%w: mkdir %s: %w", ostreeerr.ErrIO, filepath.Dir(dst), err)
	}
	_ = os.Remove(dst)

	if info.Mode()&os.ModeSymlink != 0 {
		target, err := os.Readlink(src)
		if err != nil {
			return fmt.Errorf("%w: readlink %s: %w", ostreeerr.ErrIO, src, err)
		}
		if err := os.Symlink(target, dst); err != nil {
			return fmt.Errorf("%w: symlink %s: %w", ostreeerr.ErrIO, dst, err)
		}
		return copyXattrs(src, dst)
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("%w: open %s: %w", ostreeerr.ErrIO, src, err)
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("%w: create %s: %w", ostreeerr.ErrIO, dst, err)
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("%w: copy to %s: %w", ostreeerr.ErrIO, dst, err)
	}
	return copyXattrs(src, dst)
}

// copyXattrs replicates src's extended attributes onto dst using the
// link-variant syscalls throughout, so a symlink's own xattrs are copied
// rather than the xattrs of whatever it points to.
func copyXattrs(src, dst string) error {
	size, err := unix.Llistxattr(src, nil)
	if err != nil {
		if err == unix.ENOTSUP || err == unix.EOPNOTSUPP { //nolint:errorlint // unix.Errno is compared directly by convention
			return nil
		}
		return fmt.Errorf("%w: listxattr %s: %w", ostreeerr.ErrIO, src, err)
	}
	if size == 0 {
		return nil
	}
	buf := make([]byte, size)
	n, err := unix.Llistxattr(src, buf)
	if err != nil {
		return fmt.Errorf("%w: listxattr %s: %w", ostreeerr.ErrIO, src, err)
	}

	for _, name := range splitXattrNames(buf[:n]) {
		vsize, err := unix.Lgetxattr(src, name, nil)
		if err != nil {
			continue // race: attribute removed between list and get
		}
		val := make([]byte, vsize)
		if vsize > 0 {
			got, err := unix.Lgetxattr(src, name, val)
			if err != nil {
				continue
			}
			val = val[:got]
		}
		if err := unix.Lsetxattr(dst, name, val, 0); err != nil {
			return fmt.Errorf("%w: setxattr %s on %s: %w", ostreeerr.ErrIO, name, dst, err)
		}
	}
	return nil
}

func splitXattrNames(buf []byte) []string {
	var names []string
	for _, chunk := range bytes.Split(buf, []byte{0}) {
		if len(chunk) > 0 {
			names = append(names, string(chunk))
		}
	}
	return names
}
