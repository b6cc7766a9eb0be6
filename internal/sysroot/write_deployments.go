package sysroot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/coreos/ostree-engine/internal/bootloader"
	"github.com/coreos/ostree-engine/internal/ostreeerr"
)

// WriteDeployments implements spec §4.5's algorithmic core: given the new
// deployment list (already computed by ComputeNewDeploymentList/DeployTree),
// determine whether a new bootversion is required, write bootloader
// entries and bootlinks, atomically swap the active generation, and clean
// up anything the new list no longer references.
func (s *Sysroot) WriteDeployments(ctx context.Context, newList []Deployment, booted *Deployment) error {
	unlock, err := s.lock()
	if err != nil {
		return err
	}
	defer unlock()

	oldList, err := s.ListDeployments()
	if err != nil {
		return err
	}

	oldBootversion, err := s.currentBootversion()
	if err != nil {
		return err
	}
	oldSubbootversion, err := s.currentSubbootversion(oldBootversion)
	if err != nil {
		return err
	}
	present, err := s.bootcsumsPresent(oldBootversion, oldSubbootversion)
	if err != nil {
		return err
	}

	required := make(map[string]bool)
	for _, d := range newList {
		required[d.BootCsum] = true
	}
	sameBootversion := true
	for bc := range required {
		if !present[bc] {
			sameBootversion = false
			break
		}
	}

	var newBootversion int
	if sameBootversion {
		newBootversion = oldBootversion
		newSubbootversion := 1 - oldSubbootversion
		if err := s.composeAndPopulate(newList, newBootversion); err != nil {
			return err
		}

		// The kernel/initrd set referenced by newList is already present
		// under boot/ostree, but the loader entries' "options" lines (and
		// hence the bootloader's rendered config) must still be refreshed:
		// a deploy that reuses every existing bootcsum — e.g. a kargs edit,
		// or a new commit sharing an unchanged kernel — takes this branch
		// despite changing what write_deployments needs to expose to the
		// bootloader.
		entries, err := s.buildBootEntries(newList)
		if err != nil {
			return err
		}
		if err := s.writeLoaderEntries(newBootversion, entries); err != nil {
			return err
		}

		syncFilesystem()
		if err := s.populateBootlinks(newList, newBootversion, newSubbootversion); err != nil {
			return err
		}
		if err := s.boot.WriteConfig(ctx, filepath.Join(s.path, "boot"), newBootversion, entries); err != nil {
			return err
		}
		if err := swapSymlink(
			filepath.Join(s.path, "ostree", fmt.Sprintf("boot.%d", newBootversion)),
			fmt.Sprintf("boot.%d.%d", newBootversion, newSubbootversion),
		); err != nil {
			return err
		}
	} else {
		newBootversion = 1 - oldBootversion
		if err := s.composeAndPopulate(newList, newBootversion); err != nil {
			return err
		}

		entries, err := s.buildBootEntries(newList)
		if err != nil {
			return err
		}
		if err := s.writeLoaderEntries(newBootversion, entries); err != nil {
			return err
		}
		if err := s.copyKernelFiles(newList); err != nil {
			return err
		}
		if err := s.populateBootlinks(newList, newBootversion, 0); err != nil {
			return err
		}
		syncFilesystem()
		if err := s.boot.WriteConfig(ctx, filepath.Join(s.path, "boot"), newBootversion, entries); err != nil {
			return err
		}
		if err := swapSymlink(filepath.Join(s.path, "boot", "loader"), fmt.Sprintf("loader.%d", newBootversion)); err != nil {
			return err
		}
	}

	if err := s.cleanup(oldList, newList, booted); err != nil {
		return err
	}
	return s.SaveDeploymentList(newList)
}

// composeAndPopulate finalizes the ostree= bootpath argument in each
// deployment's Options now that newBootversion (and, via reindexing, each
// deployment's bootserial) is known. The rest of each deployment's options
// were already composed once at deploy_tree time (composeBaseKargs) and
// are left untouched here — only the bootpath tag is replaced.
func (s *Sysroot) composeAndPopulate(list []Deployment, newBootversion int) error {
	for i := range list {
		list[i].Options = withOstreeArg(list[i].Options, list[i].OSName, list[i].BootCsum, list[i].BootSerial, newBootversion)
	}
	return nil
}

// populateBootlinks creates, under ostree/boot.<bootversion>.<subbootversion>/,
// one symlink per deployment pointing at its checked-out deploy directory
// (spec §4.5 step 2c/3b).
func (s *Sysroot) populateBootlinks(list []Deployment, bootversion, subbootversion int) error {
	dir := filepath.Join(s.path, "ostree", fmt.Sprintf("boot.%d.%d", bootversion, subbootversion))
	for _, d := range list {
		link := filepath.Join(dir, d.bootlinkName())
		if err := os.MkdirAll(filepath.Dir(link), 0o755); err != nil {
			return fmt.Errorf("%w: mkdir %s: %w", ostreeerr.ErrIO, filepath.Dir(link), err)
		}
		target, err := filepath.Rel(filepath.Dir(link), s.deploymentPath(d))
		if err != nil {
			return fmt.Errorf("%w: relativize bootlink for %s: %w", ostreeerr.ErrIO, d.DirName(), err)
		}
		_ = os.Remove(link)
		if err := os.Symlink(target, link); err != nil {
			return fmt.Errorf("%w: symlink %s: %w", ostreeerr.ErrIO, link, err)
		}
	}
	return nil
}

// buildBootEntries assembles one bootloader.Entry per deployment, in list
// order (entries[0] is the default).
func (s *Sysroot) buildBootEntries(list []Deployment) ([]bootloader.Entry, error) {
	entries := make([]bootloader.Entry, 0, len(list))
	for _, d := range list {
		deployDir := s.deploymentPath(d)
		_, _, version, err := locateKernel(deployDir)
		if err != nil {
			return nil, err
		}
		entries = append(entries, bootloader.Entry{
			OSName:     d.OSName,
			Commit:     d.Commit.String(),
			BootCsum:   d.BootCsum,
			BootSerial: d.BootSerial,
			Title:      deploymentTitle(deployDir),
			Version:    version,
			Linux:      fmt.Sprintf("/ostree/%s-%s/vmlinuz-%s", d.OSName, d.BootCsum, version),
			Initrd:     fmt.Sprintf("/ostree/%s-%s/initramfs-%s", d.OSName, d.BootCsum, version),
			Options:    d.Options,
		})
	}
	return entries, nil
}

// writeLoaderEntries writes boot/loader.<bootversion>/entries/ostree-<osname>-<commit>-<bootserial>.conf
// per spec §6's boot entry file format.
func (s *Sysroot) writeLoaderEntries(bootversion int, entries []bootloader.Entry) error {
	dir := filepath.Join(s.path, "boot", fmt.Sprintf("loader.%d", bootversion), "entries")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: mkdir %s: %w", ostreeerr.ErrIO, dir, err)
	}
	for _, e := range entries {
		name := fmt.Sprintf("ostree-%s-%s-%d.conf", e.OSName, e.Commit, e.BootSerial)
		content := fmt.Sprintf("title %s\nversion %s\nlinux  %s\ninitrd %s\noptions %s\n",
			e.Title, e.Version, e.Linux, e.Initrd, e.Options)
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return fmt.Errorf("%w: write %s: %w", ostreeerr.ErrIO, path, err)
		}
	}
	return nil
}

// copyKernelFiles copies each deployment's kernel+initramfs into
// boot/ostree/<osname>-<bootcsum>/ if not already present there.
func (s *Sysroot) copyKernelFiles(list []Deployment) error {
	done := make(map[string]bool)
	for _, d := range list {
		key := d.OSName + "-" + d.BootCsum
		if done[key] {
			continue
		}
		done[key] = true

		deployDir := s.deploymentPath(d)
		kernelRel, initrdRel, version, err := locateKernel(deployDir)
		if err != nil {
			return err
		}
		dstDir := filepath.Join(s.path, "boot", "ostree", key)
		if err := os.MkdirAll(dstDir, 0o755); err != nil {
			return fmt.Errorf("%w: mkdir %s: %w", ostreeerr.ErrIO, dstDir, err)
		}
		if err := copyIfAbsent(filepath.Join(deployDir, kernelRel), filepath.Join(dstDir, "vmlinuz-"+version)); err != nil {
			return err
		}
		if err := copyIfAbsent(filepath.Join(deployDir, initrdRel), filepath.Join(dstDir, "initramfs-"+version)); err != nil {
			return err
		}
	}
	return nil
}

func copyIfAbsent(src, dst string) error {
	if _, err := os.Stat(dst); err == nil {
		return nil
	}
	return copyEtcPath(src, dst)
}
