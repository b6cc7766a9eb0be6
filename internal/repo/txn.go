package repo

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/coreos/ostree-engine/internal/objects"
	"github.com/coreos/ostree-engine/internal/ostreeerr"
)

// Txn is a transaction's staging area: objects written through
// StageMetadata/StageContent land here first and are only promoted into the
// permanent object store, alongside any queued ref updates, by Commit. A
// process that crashes between staging and commit leaves this directory
// populated; the next BeginTransaction reports that as Resuming (spec §4.2
// "Resumption"). The new transaction does not promote or reuse those
// leftover staged files: Commit only promotes objects staged through it.
type Txn struct {
	repo    *Repository
	dir     string
	Resuming bool

	refUpdates []refUpdate
	staged     []stagedEntry
}

type refUpdate struct {
	remote  string // "" for a local ref
	refname string
	csum    *objects.Checksum // nil means delete
}

type stagedEntry struct {
	kind objects.Kind
	csum objects.Checksum
}

func (r *Repository) stagingDir() string {
	return filepath.Join(r.tmpDir(), "staging")
}

// BeginTransaction opens a transaction on the repository. Only one
// transaction may be open at a time per Repository handle.
func (r *Repository) BeginTransaction() (*Txn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.txn != nil {
		return nil, fmt.Errorf("%w: transaction already open", ostreeerr.ErrConflict)
	}

	dir := r.stagingDir()
	entries, statErr := os.ReadDir(dir)
	resuming := statErr == nil && len(entries) > 0
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create staging dir: %w", ostreeerr.ErrIO, err)
	}

	t := &Txn{repo: r, dir: dir, Resuming: resuming}
	r.txn = t
	return t, nil
}

func (t *Txn) stagedPath(kind objects.Kind, csum objects.Checksum) string {
	return filepath.Join(t.dir, fmt.Sprintf("%s-%s", kind, csum.String()))
}

// StageMetadata writes a Commit, DirTree, or DirMeta object's bytes into the
// staging area, verifying their checksum against expectedCsum first.
func (t *Txn) StageMetadata(kind objects.Kind, expectedCsum objects.Checksum, data []byte) (objects.Checksum, error) {
	if kind == objects.KindFile {
		return objects.Checksum{}, fmt.Errorf("%w: StageMetadata called with File kind, use StageContent", ostreeerr.ErrInvalidArgument)
	}
	got := objects.Sum(data)
	if got != expectedCsum {
		return objects.Checksum{}, fmt.Errorf("%w: staged %s: computed checksum %s != expected %s", ostreeerr.ErrCorrupt, kind, got, expectedCsum)
	}
	if err := writeFileAtomically(t.stagedPath(kind, got), data, 0o644); err != nil {
		return objects.Checksum{}, fmt.Errorf("%w: stage %s %s: %w", ostreeerr.ErrIO, kind, got, err)
	}
	t.staged = append(t.staged, stagedEntry{kind: kind, csum: got})
	return got, nil
}

// StageContent writes a File object's canonical bytes into the staging
// area. In archive-mode repositories the on-disk form is gzip-compressed;
// the checksum is always computed over the uncompressed canonical bytes.
func (t *Txn) StageContent(expectedCsum objects.Checksum, data []byte) (objects.Checksum, error) {
	got := objects.Sum(data)
	if got != expectedCsum {
		return objects.Checksum{}, fmt.Errorf("%w: staged file %s: computed checksum %s != expected %s", ostreeerr.ErrCorrupt, got, got, expectedCsum)
	}

	toWrite := data
	if t.repo.config.Mode == ModeArchive {
		compressed, err := compress(data)
		if err != nil {
			return objects.Checksum{}, err
		}
		toWrite = compressed
	}

	path := t.stagedPath(objects.KindFile, got)
	if err := writeFileAtomically(path, toWrite, 0o644); err != nil {
		return objects.Checksum{}, fmt.Errorf("%w: stage file %s: %w", ostreeerr.ErrIO, got, err)
	}

	if err := t.repo.stageVerity(path); err != nil {
		_ = os.Remove(path)
		return objects.Checksum{}, fmt.Errorf("stage file %s: %w", got, err)
	}

	t.staged = append(t.staged, stagedEntry{kind: objects.KindFile, csum: got})
	return got, nil
}

// SetRef queues a ref update to take effect at Commit. remote is empty for
// a local ref. csum == nil deletes the ref.
func (t *Txn) SetRef(remote, refname string, csum *objects.Checksum) {
	t.refUpdates = append(t.refUpdates, refUpdate{remote: remote, refname: refname, csum: csum})
}

// Commit atomically promotes every staged object into the permanent object
// store and fsyncs the object directories it renamed into, then applies
// queued ref updates, fsyncing the refs directory before each ref rename,
// so a crash never exposes a ref pointing at an object the filesystem
// hasn't durably recorded.
func (t *Txn) Commit() error {
	r := t.repo
	promotedDirs := make(map[string]bool)
	for _, s := range t.staged {
		src := t.stagedPath(s.kind, s.csum)
		dst := r.objectPath(s.kind, s.csum)
		if _, err := os.Stat(dst); err == nil {
			// already present (e.g. shared object from an earlier pull); staged copy is redundant.
			_ = os.Remove(src)
			continue
		}
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return fmt.Errorf("%w: create object subdir: %w", ostreeerr.ErrIO, err)
		}
		if err := os.Rename(src, dst); err != nil {
			return fmt.Errorf("%w: promote object %s/%s: %w", ostreeerr.ErrIO, s.kind, s.csum, err)
		}
		promotedDirs[filepath.Dir(dst)] = true
	}
	for dir := range promotedDirs {
		if err := syncDir(dir); err != nil {
			return fmt.Errorf("%w: %w", ostreeerr.ErrIO, err)
		}
	}

	for _, ru := range t.refUpdates {
		if err := r.applyRefUpdate(ru); err != nil {
			return err
		}
	}

	r.mu.Lock()
	r.txn = nil
	r.mu.Unlock()
	return nil
}

// Abort discards all staged objects and queued ref updates without
// touching the permanent store.
func (t *Txn) Abort() error {
	r := t.repo
	for _, s := range t.staged {
		_ = os.Remove(t.stagedPath(s.kind, s.csum))
	}
	r.mu.Lock()
	r.txn = nil
	r.mu.Unlock()
	return nil
}
