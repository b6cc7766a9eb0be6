package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/coreos/ostree-engine/internal/objects"
	"github.com/coreos/ostree-engine/internal/ostreeerr"
)

func (r *Repository) refPath(remote, refname string) string {
	if remote != "" {
		return filepath.Join(r.path, refsDirName, "remotes", remote, refname)
	}
	return filepath.Join(r.path, refsDirName, "heads", refname)
}

func (r *Repository) applyRefUpdate(ru refUpdate) error {
	path := r.refPath(ru.remote, ru.refname)
	if ru.csum == nil {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("%w: delete ref %s: %w", ostreeerr.ErrIO, refKey(ru.remote, ru.refname), err)
		}
		return nil
	}
	if err := syncDir(filepath.Dir(path)); err != nil {
		// dir may not exist yet on first ref under a new remote/name; create it (it is synced after the write below).
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("%w: create refs dir: %w", ostreeerr.ErrIO, err)
		}
	}
	if err := writeFileAtomically(path, []byte(ru.csum.String()+"\n"), 0o644); err != nil {
		return fmt.Errorf("%w: write ref %s: %w", ostreeerr.ErrIO, refKey(ru.remote, ru.refname), err)
	}
	return syncDir(filepath.Dir(path))
}

func refKey(remote, refname string) string {
	if remote != "" {
		return remote + ":" + refname
	}
	return refname
}

// SetRef applies a single ref update immediately and atomically, without
// requiring an open transaction. remote is empty for a local ref; csum nil
// deletes the ref.
func (r *Repository) SetRef(remote, refname string, csum *objects.Checksum) error {
	return r.applyRefUpdate(refUpdate{remote: remote, refname: refname, csum: csum})
}

// ListRefs walks the refs tree and returns every ref whose key has the
// given prefix (empty prefix lists everything). Local refs are keyed by
// refname alone; remote refs are keyed "remote:refname".
func (r *Repository) ListRefs(prefix string) (map[string]objects.Checksum, error) {
	out := make(map[string]objects.Checksum)

	headsRoot := filepath.Join(r.path, refsDirName, "heads")
	if err := walkRefs(headsRoot, "", func(name string, csum objects.Checksum) {
		key := name
		if strings.HasPrefix(key, prefix) {
			out[key] = csum
		}
	}); err != nil {
		return nil, err
	}

	remotesRoot := filepath.Join(r.path, refsDirName, "remotes")
	remoteDirs, err := os.ReadDir(remotesRoot)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: list remotes: %w", ostreeerr.ErrIO, err)
	}
	for _, rd := range remoteDirs {
		if !rd.IsDir() {
			continue
		}
		remote := rd.Name()
		root := filepath.Join(remotesRoot, remote)
		if err := walkRefs(root, "", func(name string, csum objects.Checksum) {
			key := remote + ":" + name
			if strings.HasPrefix(key, prefix) {
				out[key] = csum
			}
		}); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func walkRefs(root, prefix string, add func(name string, csum objects.Checksum)) error {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("%w: read refs dir %s: %w", ostreeerr.ErrIO, root, err)
	}
	for _, e := range entries {
		name := prefix + e.Name()
		full := filepath.Join(root, e.Name())
		if e.IsDir() {
			if err := walkRefs(full, name+"/", add); err != nil {
				return err
			}
			continue
		}
		raw, err := os.ReadFile(full)
		if err != nil {
			return fmt.Errorf("%w: read ref %s: %w", ostreeerr.ErrIO, full, err)
		}
		csum, err := objects.ParseChecksum(strings.TrimSpace(string(raw)))
		if err != nil {
			return fmt.Errorf("%w: ref %s: %w", ostreeerr.ErrCorrupt, full, err)
		}
		add(name, csum)
	}
	return nil
}
