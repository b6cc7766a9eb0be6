package pull

import (
	"context"
	"fmt"
	"sync"

	"github.com/coreos/ostree-engine/internal/fetcher"
	"github.com/coreos/ostree-engine/internal/objects"
	"github.com/coreos/ostree-engine/internal/ostreeerr"
	"github.com/coreos/ostree-engine/internal/repo"
	"golang.org/x/sync/errgroup"
)

// DefaultMetadataConcurrency bounds how many metadata objects within one BFS
// frontier are fetched in parallel.
const DefaultMetadataConcurrency = 8

// runMetadataScan drains the BFS worklist one frontier at a time: a
// DirTree's children aren't known until the DirTree itself has been fetched
// and decoded, so the scan still proceeds level by level, but everything
// already queued within a level (a commit's RootTree and RootMeta, a
// directory's sibling subtrees) fans out concurrently instead of one fetch
// at a time, bounded by flags.MetadataConcurrency like fetchContent bounds
// content staging.
func (e *Engine) runMetadataScan(ctx context.Context, remote Remote, txn *repo.Txn, st *state, flags Flags) error {
	limit := flags.MetadataConcurrency
	if limit <= 0 {
		limit = DefaultMetadataConcurrency
	}

	for depth := 0; len(st.worklist) > 0; depth++ {
		frontier := st.worklist
		st.worklist = nil

		pending := frontier[:0:0]
		for _, item := range frontier {
			if st.scanned[item.csum] {
				continue
			}
			st.scanned[item.csum] = true
			pending = append(pending, item)
		}
		if len(pending) == 0 {
			continue
		}
		// Dispatched in FIFO order within this frontier's priority class:
		// Priority is set to depth, so every item in this batch shares a
		// class, and pending keeps discovery order.

		objs := make([]objects.Object, len(pending))
		var stageMu sync.Mutex // txn bookkeeping (staged slice append) isn't safe for concurrent callers
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(limit)
		for i, item := range pending {
			i, item := i, item
			g.Go(func() error {
				obj, err := e.ensureMetadataObject(gctx, remote, txn, st, item, flags, depth, &stageMu)
				if err != nil {
					return err
				}
				objs[i] = obj
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		for i, item := range pending {
			expandScanItem(st, item.kind, objs[i])
		}
	}
	return nil
}

// expandScanItem enqueues obj's children into the next frontier, per the
// kind-specific rules in spec §4.2 step 5. Run single-threaded, after every
// fetch in the current frontier has completed, so worklist/requestedContent
// writes need no locking.
func expandScanItem(st *state, kind objects.Kind, obj objects.Object) {
	switch kind {
	case objects.KindCommit:
		st.worklist = append(st.worklist,
			scanItem{csum: obj.Commit.RootTree, kind: objects.KindDirTree},
			scanItem{csum: obj.Commit.RootMeta, kind: objects.KindDirMeta},
		)
		for _, relCsum := range obj.Commit.RelatedRefs {
			st.worklist = append(st.worklist, scanItem{csum: relCsum, kind: objects.KindCommit})
		}
	case objects.KindDirTree:
		for _, f := range obj.DirTree.Files {
			if !st.requestedContent[f.Checksum] {
				st.requestedContent[f.Checksum] = true
			}
		}
		for _, d := range obj.DirTree.Subdirs {
			st.worklist = append(st.worklist,
				scanItem{csum: d.TreeChecksum, kind: objects.KindDirTree},
				scanItem{csum: d.MetaChecksum, kind: objects.KindDirMeta},
			)
		}
	case objects.KindDirMeta:
		// leaf: no children to expand.
	}
}

// ensureMetadataObject returns the local copy of a metadata object,
// fetching and staging it first if it isn't already present (the
// "Resumption" short-circuit: an object already in the permanent store is
// never re-fetched; one that an interrupted pull only staged is fetched
// again). May run concurrently with siblings from the
// same frontier; stageMu serializes the txn.StageMetadata call, the one
// part of this path with shared mutable state.
func (e *Engine) ensureMetadataObject(ctx context.Context, remote Remote, txn *repo.Txn, st *state, item scanItem, flags Flags, depth int, stageMu *sync.Mutex) (objects.Object, error) {
	if e.repo.HasObject(item.kind, item.csum) {
		return e.repo.LoadObject(item.kind, item.csum)
	}

	if !st.requestedMetadata.claim(item.csum) {
		return objects.Object{}, fmt.Errorf("%w: metadata object %s requested twice", ostreeerr.ErrInvalidArgument, item.csum)
	}

	subpath := repo.ObjectRelPath(item.kind, item.csum, true)
	out, err := e.fetcher.Fetch(ctx, fetcher.Request{Mirrors: remote.Mirrors, Subpath: subpath, MaxSize: flags.MaxObjectSize, Priority: depth})
	if err != nil {
		return objects.Object{}, fmt.Errorf("pull %s: fetch metadata %s/%s: %w", remote.Name, item.kind, item.csum, err)
	}

	stageMu.Lock()
	_, err = txn.StageMetadata(item.kind, item.csum, out.Buf)
	stageMu.Unlock()
	if err != nil {
		return objects.Object{}, err
	}
	st.metadataFetched.Add(1)

	// Decode from the fetched bytes directly rather than reading back
	// through the repository: the object was just staged, not committed,
	// so it isn't visible via HasObject/LoadObject until Commit promotes it.
	return objects.Decode(item.kind, out.Buf)
}
