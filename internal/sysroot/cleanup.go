package sysroot

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/coreos/ostree-engine/internal/ostreeerr"
)

// CleanupResult reports what a cleanup pass removed.
type CleanupResult struct {
	RemovedDeployments int
	RemovedBootcsums   int
	RemovedOrphanDirs  int
	RemovedRottenLinks int
}

// cleanup reconciles on-disk state with newList after a successful
// WriteDeployments: removed deployments, orphaned boot/ostree/<osname>-<bootcsum>
// directories, stale ostree/deploy/<osname>/deploy/* directories, and rotten
// boot.N.M bootlink symlinks are all deleted. The booted deployment is
// never removed, regardless of list composition (spec §4.5 step 4).
func (s *Sysroot) cleanup(oldList, newList []Deployment, booted *Deployment) error {
	_, err := s.Cleanup(oldList, newList, booted)
	return err
}

// Cleanup is the Deployer's standalone `admin cleanup` operation: it
// performs the same reconciliation as the post-write_deployments cleanup,
// but can also be invoked independently to sweep orphans left by an
// interrupted earlier run.
func (s *Sysroot) Cleanup(oldList, newList []Deployment, booted *Deployment) (CleanupResult, error) {
	var result CleanupResult

	newKeys := make(map[string]bool)
	neededBootcsums := make(map[string]bool)
	for _, d := range newList {
		newKeys[d.key()] = true
		neededBootcsums[d.OSName+"-"+d.BootCsum] = true
	}

	for _, d := range oldList {
		if newKeys[d.key()] {
			continue
		}
		if booted != nil && d.key() == booted.key() {
			continue
		}
		if err := os.RemoveAll(s.deploymentPath(d)); err != nil && !os.IsNotExist(err) {
			return result, fmt.Errorf("%w: remove deployment %s: %w", ostreeerr.ErrIO, d.DirName(), err)
		}
		_ = os.Remove(s.originPath(d))
		result.RemovedDeployments++
	}

	bootOstreeDir := filepath.Join(s.path, "boot", "ostree")
	entries, err := readDirNamesIfExists(bootOstreeDir)
	if err != nil {
		return result, err
	}
	for _, name := range entries {
		if neededBootcsums[name] {
			continue
		}
		if err := os.RemoveAll(filepath.Join(bootOstreeDir, name)); err != nil && !os.IsNotExist(err) {
			return result, fmt.Errorf("%w: remove orphan boot tree %s: %w", ostreeerr.ErrIO, name, err)
		}
		result.RemovedBootcsums++
	}

	n, err := s.removeOrphanDeployDirs(newList)
	if err != nil {
		return result, err
	}
	result.RemovedOrphanDirs = n

	n, err = s.removeRottenBootlinks()
	if err != nil {
		return result, err
	}
	result.RemovedRottenLinks = n

	return result, nil
}

// removeOrphanDeployDirs deletes ostree/deploy/<osname>/deploy/<dirname>
// entries that don't correspond to any deployment in newList — left
// behind by an interrupted deploy_tree (SPEC_FULL.md's cleanup supplement).
func (s *Sysroot) removeOrphanDeployDirs(newList []Deployment) (int, error) {
	wanted := make(map[string]bool)
	for _, d := range newList {
		wanted[filepath.Join(d.OSName, d.DirName())] = true
	}

	base := filepath.Join(s.path, "ostree", "deploy")
	osnames, err := readDirNamesIfExists(base)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, osname := range osnames {
		deployDir := filepath.Join(base, osname, "deploy")
		names, err := readDirNamesIfExists(deployDir)
		if err != nil {
			return removed, err
		}
		for _, name := range names {
			if len(name) > len(".origin") && name[len(name)-len(".origin"):] == ".origin" {
				continue
			}
			if wanted[filepath.Join(osname, name)] {
				continue
			}
			if err := os.RemoveAll(filepath.Join(deployDir, name)); err != nil && !os.IsNotExist(err) {
				return removed, fmt.Errorf("%w: remove orphan deploy dir %s: %w", ostreeerr.ErrIO, name, err)
			}
			_ = os.Remove(filepath.Join(deployDir, name+".origin"))
			removed++
		}
	}
	return removed, nil
}

// removeRottenBootlinks deletes dangling symlinks under every
// ostree/boot.{0,1}.{0,1} tree, per SPEC_FULL.md's cleanup supplement.
func (s *Sysroot) removeRottenBootlinks() (int, error) {
	removed := 0
	for bv := 0; bv < 2; bv++ {
		for sv := 0; sv < 2; sv++ {
			dir := filepath.Join(s.path, "ostree", fmt.Sprintf("boot.%d.%d", bv, sv))
			n, err := removeRottenSymlinksUnder(dir)
			if err != nil {
				return removed, err
			}
			removed += n
		}
	}
	return removed, nil
}

func removeRottenSymlinksUnder(dir string) (int, error) {
	removed := 0
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.Type()&os.ModeSymlink == 0 {
			return nil
		}
		if _, statErr := os.Stat(path); statErr != nil {
			if rmErr := os.Remove(path); rmErr != nil {
				return rmErr
			}
			removed++
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return removed, fmt.Errorf("%w: sweep %s: %w", ostreeerr.ErrIO, dir, err)
	}
	return removed, nil
}
