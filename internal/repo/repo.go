// Package repo implements the repository object store: content-addressed
// storage, transactional writes, ref management, and revision resolution
// (spec §4.3). It is the only package that touches the on-disk object
// layout; everything above it (pull, sysroot) talks to a *Repository.
package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/coreos/ostree-engine/internal/objects"
	"github.com/coreos/ostree-engine/internal/ostreeerr"
	"github.com/coreos/ostree-engine/pkg/log"
)

// Repository is a process-scoped handle on an object store + refs + config,
// opened by path.
type Repository struct {
	path   string
	config Config
	verity VerityStats
	log    *log.PrefixLogger

	mu  sync.Mutex // guards txn lifecycle; staging itself is lock-free per path
	txn *Txn
}

const (
	objectsDirName = "objects"
	refsDirName    = "refs"
	tmpDirName     = "tmp"
	configFileName = "config"
)

// Open loads an existing repository's config, verifies its mode, and
// establishes its tmp directory.
func Open(path string) (*Repository, error) {
	cfg, err := parseConfig(filepath.Join(path, configFileName))
	if err != nil {
		return nil, err
	}
	r := &Repository{
		path:   path,
		config: cfg,
		log:    log.NewPrefixLogger("repo"),
	}
	if err := os.MkdirAll(r.tmpDir(), 0o755); err != nil {
		return nil, fmt.Errorf("%w: establish tmp dir: %w", ostreeerr.ErrIO, err)
	}
	return r, nil
}

// Init creates a new repository on disk at path with the given mode, then
// opens it.
func Init(path string, mode Mode, verity VerityMode) (*Repository, error) {
	if err := os.MkdirAll(filepath.Join(path, objectsDirName), 0o755); err != nil {
		return nil, fmt.Errorf("%w: create objects dir: %w", ostreeerr.ErrIO, err)
	}
	if err := os.MkdirAll(filepath.Join(path, refsDirName, "heads"), 0o755); err != nil {
		return nil, fmt.Errorf("%w: create refs dir: %w", ostreeerr.ErrIO, err)
	}
	if err := os.MkdirAll(filepath.Join(path, refsDirName, "remotes"), 0o755); err != nil {
		return nil, fmt.Errorf("%w: create remote refs dir: %w", ostreeerr.ErrIO, err)
	}
	cfg := Config{Mode: mode, Verity: verity}
	if err := writeFileAtomically(filepath.Join(path, configFileName), marshalConfig(cfg), 0o644); err != nil {
		return nil, fmt.Errorf("%w: write repo config: %w", ostreeerr.ErrIO, err)
	}
	return Open(path)
}

// Path returns the repository's root directory.
func (r *Repository) Path() string {
	return r.path
}

// Mode returns the repository's storage mode.
func (r *Repository) Mode() Mode {
	return r.config.Mode
}

// Verity returns a snapshot of the fsverity enablement counters.
func (r *Repository) Verity() VerityStatsSnapshot {
	return r.verity.Snapshot()
}

func (r *Repository) tmpDir() string {
	return filepath.Join(r.path, tmpDirName)
}

// objectPath returns the on-disk path of an object given its kind and
// checksum: objects/<first two hex chars>/<remaining 62 hex chars>.<suffix>,
// spreading entries across 256 subdirectories the way every content-store
// of this shape does to keep any one directory from growing unbounded.
func (r *Repository) objectPath(kind objects.Kind, csum objects.Checksum) string {
	return filepath.Join(r.path, ObjectRelPath(kind, csum, r.config.Mode == ModeArchive))
}

// ObjectRelPath returns an object's path relative to a repository root,
// following the same layout Open/Init use locally. Exported so
// internal/pull can build the matching subpath when fetching this object
// from a remote archive-mode repository, which is laid out identically.
func ObjectRelPath(kind objects.Kind, csum objects.Checksum, archiveMode bool) string {
	hex := csum.String()
	suffix := kind.Suffix()
	if kind == objects.KindFile && archiveMode {
		suffix = "filez"
	}
	return filepath.Join(objectsDirName, hex[:2], hex[2:]+"."+suffix)
}

// HasObject reports whether an object of the given kind/checksum exists
// locally.
func (r *Repository) HasObject(kind objects.Kind, csum objects.Checksum) bool {
	_, err := os.Stat(r.objectPath(kind, csum))
	return err == nil
}

// LoadObject reads and validates an object: its canonical serialization
// must hash back to csum. File objects stored compressed (archive mode) are
// transparently decompressed before checksum validation and return.
func (r *Repository) LoadObject(kind objects.Kind, csum objects.Checksum) (objects.Object, error) {
	raw, err := r.readObjectFile(kind, csum)
	if err != nil {
		return objects.Object{}, err
	}
	obj, err := objects.Decode(kind, raw)
	if err != nil {
		return objects.Object{}, err
	}
	if obj.Checksum != csum {
		return objects.Object{}, fmt.Errorf("%w: object %s/%s: checksum mismatch on load", ostreeerr.ErrCorrupt, kind, csum)
	}
	return obj, nil
}

func (r *Repository) readObjectFile(kind objects.Kind, csum objects.Checksum) ([]byte, error) {
	path := r.objectPath(kind, csum)
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: object %s/%s", ostreeerr.ErrNotFound, kind, csum)
		}
		return nil, fmt.Errorf("%w: read object %s: %w", ostreeerr.ErrIO, path, err)
	}
	if kind == objects.KindFile && r.config.Mode == ModeArchive {
		return decompress(raw)
	}
	return raw, nil
}
