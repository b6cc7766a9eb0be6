package sysroot

import (
	"fmt"
	"os"

	"github.com/coreos/ostree-engine/internal/ostreeerr"
)

// removeIfExists removes path, treating a missing path as success.
func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: remove %s: %w", ostreeerr.ErrIO, path, err)
	}
	return nil
}

// readDirNamesIfExists lists the entry names of dir, or returns an empty
// slice if dir doesn't exist yet (a freshly-initialized sysroot has no
// boot.N.M tree for a bootversion that's never been written).
func readDirNamesIfExists(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: readdir %s: %w", ostreeerr.ErrIO, dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}
