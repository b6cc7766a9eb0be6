package sysroot

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/coreos/ostree-engine/internal/bootloader"
	"github.com/coreos/ostree-engine/internal/ostreeerr"
	"github.com/coreos/ostree-engine/internal/repo"
	"github.com/coreos/ostree-engine/pkg/executer"
	"github.com/coreos/ostree-engine/pkg/log"
)

// Sysroot is the physical root directory holding the repository, the
// deploy/ tree, and the boot.N bootlink directories described in spec §6's
// sysroot layout table.
type Sysroot struct {
	path string
	repo *repo.Repository
	boot bootloader.Adapter
	log  *log.PrefixLogger

	// mu serializes write_deployments and lock acquisition within this
	// process; spec §5 additionally requires an exclusive inter-process
	// lock for the duration of write_deployments, held via lockPath.
	mu       sync.Mutex
	lockFile *os.File
}

// Open opens an existing sysroot at path, backed by r for object storage,
// probing for the installed bootloader variant.
func Open(path string, r *repo.Repository, exec executer.Executer) (*Sysroot, error) {
	bootDir := filepath.Join(path, "boot")
	boot, err := bootloader.Probe(bootDir, exec)
	if err != nil {
		return nil, err
	}
	return &Sysroot{
		path: path,
		repo: r,
		boot: boot,
		log:  log.NewPrefixLogger("sysroot"),
	}, nil
}

// Init lays out a fresh sysroot skeleton: ostree/deploy, ostree/boot.0,
// ostree/boot.0.0, boot/loader.0 and the boot/loader symlink.
func Init(path string, r *repo.Repository, exec executer.Executer) (*Sysroot, error) {
	dirs := []string{
		filepath.Join(path, "ostree", "deploy"),
		filepath.Join(path, "ostree", "boot.0.0"),
		filepath.Join(path, "boot", "loader.0", "entries"),
		filepath.Join(path, "boot", "ostree"),
		filepath.Join(path, "run"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("%w: mkdir %s: %w", ostreeerr.ErrIO, d, err)
		}
	}
	if err := swapSymlink(filepath.Join(path, "ostree", "boot.0"), "boot.0.0"); err != nil {
		return nil, err
	}
	if err := swapSymlink(filepath.Join(path, "boot", "loader"), "loader.0"); err != nil {
		return nil, err
	}
	return Open(path, r, exec)
}

// Path returns the sysroot's root directory.
func (s *Sysroot) Path() string { return s.path }

// Repo returns the backing repository.
func (s *Sysroot) Repo() *repo.Repository { return s.repo }

func (s *Sysroot) lockPath() string { return filepath.Join(s.path, "ostree", ".lock") }

// lock acquires the sysroot's exclusive multi-process advisory lock for the
// duration of a write_deployments call, per spec §5. It's released by the
// returned unlock func.
func (s *Sysroot) lock() (unlock func(), err error) {
	s.mu.Lock()
	f, err := os.OpenFile(s.lockPath(), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: open lock %s: %w", ostreeerr.ErrIO, s.lockPath(), err)
	}
	if err := flock(f); err != nil {
		f.Close()
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: sysroot locked by another writer: %w", ostreeerr.ErrConflict, err)
	}
	return func() {
		funlock(f)
		f.Close()
		s.mu.Unlock()
	}, nil
}
