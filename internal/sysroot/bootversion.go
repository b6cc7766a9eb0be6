package sysroot

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/coreos/ostree-engine/internal/ostreeerr"
)

// currentBootversion reads boot/loader's symlink target ("loader.0" or
// "loader.1") to determine which bootversion is currently active. Absence
// (a freshly-initialized sysroot) defaults to 0.
func (s *Sysroot) currentBootversion() (int, error) {
	target, ok := readSymlinkTarget(filepath.Join(s.path, "boot", "loader"))
	if !ok {
		return 0, nil
	}
	switch target {
	case "loader.0":
		return 0, nil
	case "loader.1":
		return 1, nil
	default:
		return 0, fmt.Errorf("%w: boot/loader has unexpected target %q", ostreeerr.ErrCorrupt, target)
	}
}

// currentSubbootversion reads ostree/boot.<bootversion>'s symlink target
// ("boot.<bootversion>.0" or ".1").
func (s *Sysroot) currentSubbootversion(bootversion int) (int, error) {
	name := fmt.Sprintf("boot.%d", bootversion)
	target, ok := readSymlinkTarget(filepath.Join(s.path, "ostree", name))
	if !ok {
		return 0, nil
	}
	prefix := name + "."
	if !strings.HasPrefix(target, prefix) {
		return 0, fmt.Errorf("%w: ostree/%s has unexpected target %q", ostreeerr.ErrCorrupt, name, target)
	}
	n, err := strconv.Atoi(strings.TrimPrefix(target, prefix))
	if err != nil || (n != 0 && n != 1) {
		return 0, fmt.Errorf("%w: ostree/%s has unexpected target %q", ostreeerr.ErrCorrupt, name, target)
	}
	return n, nil
}

// bootcsumsPresent returns the set of bootcsums already populated under
// ostree/boot.<bootversion>.<subbootversion>/<osname>/, used by
// write_deployments step 1 to decide whether a new bootversion is required.
func (s *Sysroot) bootcsumsPresent(bootversion, subbootversion int) (map[string]bool, error) {
	dir := filepath.Join(s.path, "ostree", fmt.Sprintf("boot.%d.%d", bootversion, subbootversion))
	present := make(map[string]bool)
	osDirs, err := readDirNamesIfExists(dir)
	if err != nil {
		return nil, err
	}
	for _, osname := range osDirs {
		bootcsums, err := readDirNamesIfExists(filepath.Join(dir, osname))
		if err != nil {
			return nil, err
		}
		for _, bc := range bootcsums {
			present[bc] = true
		}
	}
	return present, nil
}
