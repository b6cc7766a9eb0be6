package pull

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coreos/ostree-engine/internal/fetcher"
	"github.com/coreos/ostree-engine/internal/objects"
	"github.com/coreos/ostree-engine/internal/ostreeerr"
	"github.com/coreos/ostree-engine/internal/repo"
	"github.com/coreos/ostree-engine/pkg/log"
	"github.com/dustin/go-humanize"
)

// DefaultContentConcurrency bounds how many content objects are fetched and
// staged in parallel once the metadata scan has determined the full set
// that's missing (spec §5: "up to M concurrent stage-to-store operations").
const DefaultContentConcurrency = 8

// Flags tunes one pull operation.
type Flags struct {
	// MaxObjectSize bounds any single object fetch; zero means unbounded.
	MaxObjectSize int64
	// ContentConcurrency overrides DefaultContentConcurrency.
	ContentConcurrency int
	// MetadataConcurrency overrides DefaultMetadataConcurrency.
	MetadataConcurrency int
}

// Engine drives pulls against one local repository.
type Engine struct {
	repo    *repo.Repository
	fetcher *fetcher.Fetcher
	log     *log.PrefixLogger
}

// New creates a pull Engine bound to a local repository and a Fetcher.
func New(r *repo.Repository, f *fetcher.Fetcher) *Engine {
	return &Engine{repo: r, fetcher: f, log: log.NewPrefixLogger("pull")}
}

// state tracks the three checksum sets named in spec §4.2 step 4, plus the
// scan worklist driving the metadata BFS. scanned and requestedContent are
// only touched between frontiers (single-threaded); requestedMetadata is
// claimed concurrently by sibling fetches within one frontier, so it needs
// its own locking.
type state struct {
	scanned           map[objects.Checksum]bool
	requestedMetadata *checksumSet
	requestedContent  map[objects.Checksum]bool
	worklist          []scanItem
	metadataFetched   atomic.Int64
}

// checksumSet is a mutex-guarded set used to claim a checksum exactly once
// across concurrent metadata fetches within a single BFS frontier.
type checksumSet struct {
	mu sync.Mutex
	m  map[objects.Checksum]bool
}

func newChecksumSet() *checksumSet {
	return &checksumSet{m: make(map[objects.Checksum]bool)}
}

// claim returns true the first time csum is claimed, false on every
// subsequent call.
func (s *checksumSet) claim(csum objects.Checksum) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.m[csum] {
		return false
	}
	s.m[csum] = true
	return true
}

type scanItem struct {
	csum objects.Checksum
	kind objects.Kind
}

// Pull fetches every object reachable from refs that the local repository
// doesn't already have, stages them, and updates refs/remotes/<remote.Name>
// for each ref pulled.
func (e *Engine) Pull(ctx context.Context, remote Remote, refs []string, flags Flags) (Report, error) {
	start := time.Now()
	bytesStart := e.fetcher.BytesTransferred()
	if len(remote.Mirrors) == 0 {
		return Report{}, fmt.Errorf("%w: remote %q has no mirrors", ostreeerr.ErrInvalidArgument, remote.Name)
	}

	if err := e.verifyArchiveMode(ctx, remote); err != nil {
		return Report{}, err
	}

	targets, err := e.resolveRefs(ctx, remote, refs)
	if err != nil {
		return Report{}, err
	}

	txn, err := e.repo.BeginTransaction()
	if err != nil {
		return Report{}, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = txn.Abort()
		}
	}()

	st := &state{
		scanned:           make(map[objects.Checksum]bool),
		requestedMetadata: newChecksumSet(),
		requestedContent:  make(map[objects.Checksum]bool),
	}
	for _, target := range targets {
		st.worklist = append(st.worklist, scanItem{csum: target.checksum, kind: objects.KindCommit})
	}

	if err := e.runMetadataScan(ctx, remote, txn, st, flags); err != nil {
		return Report{}, err
	}

	contentFetched, err := e.fetchContent(ctx, remote, txn, st, flags)
	if err != nil {
		return Report{}, err
	}

	updated := make(map[string]string)
	for _, target := range targets {
		existing, _, _ := e.repo.ResolveRev(remote.Name+":"+target.ref, true)
		if existing == target.checksum {
			continue // "No changes"
		}
		csum := target.checksum
		txn.SetRef(remote.Name, target.ref, &csum)
		updated[target.ref] = csum.String()
	}

	if err := txn.Commit(); err != nil {
		return Report{}, err
	}
	committed = true

	report := Report{
		MetadataFetched: int(st.metadataFetched.Load()),
		ContentFetched:  contentFetched,
		TotalBytes:      e.fetcher.BytesTransferred() - bytesStart,
		Elapsed:         time.Since(start),
		UpdatedRefs:     updated,
	}
	e.log.Infof("pull %s complete: %d metadata, %d content, %s in %s",
		remote.Name, report.MetadataFetched, report.ContentFetched, humanize.Bytes(uint64(report.TotalBytes)), report.Elapsed)
	return report, nil
}

func (e *Engine) verifyArchiveMode(ctx context.Context, remote Remote) error {
	out, err := e.fetcher.Fetch(ctx, fetcher.Request{Mirrors: remote.Mirrors, Subpath: "config", OptionalContent: false})
	if err != nil {
		return fmt.Errorf("pull %s: fetch config: %w", remote.Name, err)
	}
	if !strings.Contains(string(out.Buf), "mode = archive") && !strings.Contains(string(out.Buf), "mode=archive") {
		return fmt.Errorf("%w: remote %q is not an archive-mode repository", ostreeerr.ErrUnsupported, remote.Name)
	}
	return nil
}

type refTarget struct {
	ref      string
	checksum objects.Checksum
}

// resolveRefs fetches refs/heads/<ref> for each requested ref not already
// supplied as a raw checksum.
func (e *Engine) resolveRefs(ctx context.Context, remote Remote, refs []string) ([]refTarget, error) {
	targets := make([]refTarget, 0, len(refs))
	for _, ref := range refs {
		if len(ref) == 64 && objects.LooksLikeChecksum(ref) {
			csum, err := objects.ParseChecksum(ref)
			if err != nil {
				return nil, err
			}
			targets = append(targets, refTarget{ref: ref, checksum: csum})
			continue
		}
		out, err := e.fetcher.Fetch(ctx, fetcher.Request{Mirrors: remote.Mirrors, Subpath: "refs/heads/" + ref})
		if err != nil {
			return nil, fmt.Errorf("pull %s: resolve ref %q: %w", remote.Name, ref, err)
		}
		csum, err := objects.ParseChecksum(strings.TrimSpace(string(out.Buf)))
		if err != nil {
			return nil, fmt.Errorf("%w: remote %q ref %q: malformed checksum", ostreeerr.ErrCorrupt, remote.Name, ref)
		}
		targets = append(targets, refTarget{ref: ref, checksum: csum})
	}
	return targets, nil
}
