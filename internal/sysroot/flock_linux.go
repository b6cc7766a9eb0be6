package sysroot

import (
	"os"

	"golang.org/x/sys/unix"
)

// flock/funlock back the sysroot's inter-process write lock (spec §5,
// "the Sysroot holds an exclusive lock for the duration of a
// write_deployments"), grounded on the teacher's use of golang.org/x/sys/unix
// for low-level host syscalls (internal/agent/device/console/manager.go).
func flock(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
}

func funlock(f *os.File) {
	_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
}

// syncFilesystem implements spec §4.5 step 2a/3c's "sync()" checkpoint
// before a boot swap becomes crash-consistent.
func syncFilesystem() {
	unix.Sync()
}
