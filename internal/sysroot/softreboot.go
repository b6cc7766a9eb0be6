package sysroot

import (
	"fmt"
	"path/filepath"

	"github.com/coreos/ostree-engine/internal/ostreeerr"
)

const nextrootPath = "nextroot"

// PrepareSoftReboot arms /run/nextroot to point at d's checked-out root, so
// the init system can swap root without a hardware reboot (spec §4.5).
// Only non-booted deployments may be armed this way.
func (s *Sysroot) PrepareSoftReboot(d *Deployment, booted Deployment) error {
	if d.key() == booted.key() {
		return fmt.Errorf("%w: the booted deployment cannot be prepared for its own soft-reboot", ostreeerr.ErrInvalidArgument)
	}
	link := filepath.Join(s.path, "run", nextrootPath)
	if err := swapSymlink(link, s.deploymentPath(*d)); err != nil {
		return err
	}
	d.SoftReboot = true
	return nil
}

// ClearSoftReboot disarms /run/nextroot.
func (s *Sysroot) ClearSoftReboot(d *Deployment) error {
	link := filepath.Join(s.path, "run", nextrootPath)
	if err := removeIfExists(link); err != nil {
		return err
	}
	d.SoftReboot = false
	return nil
}
