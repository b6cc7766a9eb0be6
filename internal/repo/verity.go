package repo

import (
	"fmt"
	"os"
	"sync/atomic"
	"unsafe"

	"github.com/coreos/ostree-engine/internal/ostreeerr"
	"golang.org/x/sys/unix"
)

// VerityStats exposes counters for fsverity enablement outcomes during
// object staging. Once an opportunistic attempt fails, downgradedOff latches
// so later objects skip the ioctl entirely rather than paying its cost again
// on a filesystem already known not to support it.
type VerityStats struct {
	enabled       atomic.Int64
	skipped       atomic.Int64
	downgraded    atomic.Int64
	downgradedOff atomic.Bool
}

func (v *VerityStats) recordEnabled() {
	v.enabled.Add(1)
}

func (v *VerityStats) recordSkipped() {
	v.skipped.Add(1)
}

func (v *VerityStats) recordDowngraded() {
	v.downgraded.Add(1)
	v.downgradedOff.Store(true)
}

// Snapshot is a point-in-time read of the counters.
type VerityStatsSnapshot struct {
	Enabled    int64
	Skipped    int64
	Downgraded int64
}

func (v *VerityStats) Snapshot() VerityStatsSnapshot {
	return VerityStatsSnapshot{
		Enabled:    v.enabled.Load(),
		Skipped:    v.skipped.Load(),
		Downgraded: v.downgraded.Load(),
	}
}

// enableFileVerity opens path read-only and asks the kernel to enable
// fsverity on it via FS_IOC_ENABLE_VERITY. The file must already be fully
// written and closed for writing: fsverity is a one-way transition and the
// kernel rejects the ioctl on a file still open for write.
func enableFileVerity(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s for verity enable: %w", path, err)
	}
	defer f.Close()

	arg := unix.FsverityEnableArg{
		Version:        1,
		Hash_algorithm: unix.FS_VERITY_HASH_ALG_SHA256,
		Block_size:     4096,
	}
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), uintptr(unix.FS_IOC_ENABLE_VERITY), uintptr(unsafe.Pointer(&arg)))
	if errno != 0 {
		return fmt.Errorf("FS_IOC_ENABLE_VERITY %s: %w", path, errno)
	}
	return nil
}

// stageVerity attempts fsverity enablement on the just-written staged file
// at path, per the repository's configured VerityMode:
//
//   - VerityOff: no-op.
//   - VerityRequired: a failed attempt fails the stage outright (spec §4.3:
//     "if required and unsupported, the operation fails before completing").
//   - VerityOpportunistic: a failed attempt downgrades to off and is
//     counted, never failing the stage; once downgraded, later objects in
//     this repository handle skip the ioctl entirely.
func (r *Repository) stageVerity(path string) error {
	switch r.config.Verity {
	case VerityOff:
		return nil
	case VerityRequired:
		if err := enableFileVerity(path); err != nil {
			return fmt.Errorf("%w: %w", ostreeerr.ErrUnsupported, err)
		}
		r.verity.recordEnabled()
		return nil
	case VerityOpportunistic:
		if r.verity.downgradedOff.Load() {
			r.verity.recordSkipped()
			return nil
		}
		if err := enableFileVerity(path); err != nil {
			r.verity.recordDowngraded()
			return nil
		}
		r.verity.recordEnabled()
		return nil
	default:
		return nil
	}
}
