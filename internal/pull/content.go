package pull

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/coreos/ostree-engine/internal/fetcher"
	"github.com/coreos/ostree-engine/internal/objects"
	"github.com/coreos/ostree-engine/internal/repo"
	"golang.org/x/sync/errgroup"
)

// fetchContent fetches and stages every file checksum discovered during the
// metadata scan that isn't already present locally. Unlike metadata
// staging, content objects have no inter-dependencies, so they're fetched
// and staged concurrently, bounded by flags.ContentConcurrency.
func (e *Engine) fetchContent(ctx context.Context, remote Remote, txn *repo.Txn, st *state, flags Flags) (int, error) {
	limit := flags.ContentConcurrency
	if limit <= 0 {
		limit = DefaultContentConcurrency
	}

	missing := make([]objects.Checksum, 0, len(st.requestedContent))
	for csum := range st.requestedContent {
		if !e.repo.HasObject(objects.KindFile, csum) {
			missing = append(missing, csum)
		}
	}

	var fetched atomic.Int64
	var stageMu sync.Mutex // StageContent involves a rename; serialize to keep Txn bookkeeping race-free
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for _, csum := range missing {
		csum := csum
		g.Go(func() error {
			subpath := repo.ObjectRelPath(objects.KindFile, csum, true)
			out, err := e.fetcher.Fetch(gctx, fetcher.Request{Mirrors: remote.Mirrors, Subpath: subpath, MaxSize: flags.MaxObjectSize})
			if err != nil {
				return fmt.Errorf("pull %s: fetch content %s: %w", remote.Name, csum, err)
			}

			// Remote is required to be archive-mode (verifyArchiveMode), so
			// every file object arrives gzip-compressed on the wire.
			plain, err := repo.DecompressContentObject(out.Buf)
			if err != nil {
				return fmt.Errorf("pull %s: content %s: %w", remote.Name, csum, err)
			}

			stageMu.Lock()
			_, stageErr := txn.StageContent(csum, plain)
			stageMu.Unlock()
			if stageErr != nil {
				return stageErr
			}
			fetched.Add(1)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return 0, err
	}
	return int(fetched.Load()), nil
}
