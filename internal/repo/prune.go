package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/coreos/ostree-engine/internal/objects"
	"github.com/coreos/ostree-engine/internal/ostreeerr"
)

// onDiskObject is one object discovered by walking the objects/ tree.
type onDiskObject struct {
	kind objects.Kind
	csum objects.Checksum
	path string
	size int64
}

func suffixToKind(suffix string) (objects.Kind, bool) {
	switch suffix {
	case "commit":
		return objects.KindCommit, true
	case "dirtree":
		return objects.KindDirTree, true
	case "dirmeta":
		return objects.KindDirMeta, true
	case "file", "filez":
		return objects.KindFile, true
	default:
		return 0, false
	}
}

// walkObjects enumerates every on-disk object in the repository.
func (r *Repository) walkObjects() ([]onDiskObject, error) {
	root := filepath.Join(r.path, objectsDirName)
	var out []onDiskObject
	shards, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: list object shards: %w", ostreeerr.ErrIO, err)
	}
	for _, shard := range shards {
		if !shard.IsDir() {
			continue
		}
		shardPath := filepath.Join(root, shard.Name())
		files, err := os.ReadDir(shardPath)
		if err != nil {
			return nil, fmt.Errorf("%w: list shard %s: %w", ostreeerr.ErrIO, shardPath, err)
		}
		for _, f := range files {
			name := f.Name()
			rest, suffix, ok := strings.Cut(name, ".")
			if !ok {
				continue
			}
			kind, ok := suffixToKind(suffix)
			if !ok {
				continue
			}
			csum, err := objects.ParseChecksum(shard.Name() + rest)
			if err != nil {
				continue
			}
			info, err := f.Info()
			if err != nil {
				return nil, fmt.Errorf("%w: stat object %s: %w", ostreeerr.ErrIO, name, err)
			}
			out = append(out, onDiskObject{kind: kind, csum: csum, path: filepath.Join(shardPath, name), size: info.Size()})
		}
	}
	return out, nil
}

func (r *Repository) listCommitChecksums() ([]objects.Checksum, error) {
	all, err := r.walkObjects()
	if err != nil {
		return nil, err
	}
	var out []objects.Checksum
	for _, o := range all {
		if o.kind == objects.KindCommit {
			out = append(out, o.csum)
		}
	}
	return out, nil
}

// PruneResult reports the outcome of a reachability sweep.
type PruneResult struct {
	TotalObjects int
	Pruned       int
	BytesFreed   int64
}

// Prune deletes every object unreachable from the current refs. depth
// bounds how many Commit.Parent hops are followed from each ref before
// treating older history as eligible for collection; a negative depth
// means unlimited (the whole ancestry chain is kept reachable).
func (r *Repository) Prune(depth int) (PruneResult, error) {
	all, err := r.walkObjects()
	if err != nil {
		return PruneResult{}, err
	}

	reachable, err := r.computeReachable(depth)
	if err != nil {
		return PruneResult{}, err
	}

	result := PruneResult{TotalObjects: len(all)}
	for _, o := range all {
		if reachable[o.csum] {
			continue
		}
		if err := os.Remove(o.path); err != nil && !os.IsNotExist(err) {
			return result, fmt.Errorf("%w: remove unreachable object %s: %w", ostreeerr.ErrIO, o.path, err)
		}
		result.Pruned++
		result.BytesFreed += o.size
	}
	return result, nil
}

func (r *Repository) computeReachable(depth int) (map[objects.Checksum]bool, error) {
	reachable := make(map[objects.Checksum]bool)
	refs, err := r.ListRefs("")
	if err != nil {
		return nil, err
	}
	for _, csum := range refs {
		if err := r.markReachableFromCommit(csum, depth, reachable); err != nil {
			return nil, err
		}
	}
	return reachable, nil
}

func (r *Repository) markReachableFromCommit(csum objects.Checksum, depth int, reachable map[objects.Checksum]bool) error {
	for {
		if reachable[csum] {
			return nil
		}
		reachable[csum] = true
		if !r.HasObject(objects.KindCommit, csum) {
			return nil
		}
		obj, err := r.LoadObject(objects.KindCommit, csum)
		if err != nil {
			return err
		}
		if err := r.markReachableFromTree(obj.Commit.RootTree, reachable); err != nil {
			return err
		}
		reachable[obj.Commit.RootMeta] = true

		if !obj.Commit.HasParent || depth == 0 {
			return nil
		}
		csum = obj.Commit.Parent
		if depth > 0 {
			depth--
		}
	}
}

func (r *Repository) markReachableFromTree(csum objects.Checksum, reachable map[objects.Checksum]bool) error {
	if reachable[csum] {
		return nil
	}
	reachable[csum] = true
	if !r.HasObject(objects.KindDirTree, csum) {
		return nil
	}
	obj, err := r.LoadObject(objects.KindDirTree, csum)
	if err != nil {
		return err
	}
	for _, f := range obj.DirTree.Files {
		reachable[f.Checksum] = true
	}
	for _, d := range obj.DirTree.Subdirs {
		reachable[d.MetaChecksum] = true
		if err := r.markReachableFromTree(d.TreeChecksum, reachable); err != nil {
			return err
		}
	}
	return nil
}
