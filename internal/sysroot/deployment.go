// Package sysroot implements the Deployer/Sysroot component of spec §4.5:
// turning a (commit, osname, origin, kargs) input into a new bootable
// deployment, performing the three-way /etc merge, and atomically swapping
// the active bootversion. It is grounded on the teacher's device-lifecycle
// packages (internal/agent/device/lifecycle/manager.go,
// internal/agent/device/spec/manager.go) for its state-machine shape and
// crash-safety conventions, adapted to drive a physical sysroot instead of
// a single running OS image.
package sysroot

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/coreos/ostree-engine/internal/objects"
	"github.com/coreos/ostree-engine/internal/ostreeerr"
)

// UnlockedState is the mutable-overlay state of a booted deployment (spec
// §4.5 "State machine: unlocked state").
type UnlockedState int

const (
	UnlockedNone UnlockedState = iota
	UnlockedHotfix
	UnlockedDevelopment
	UnlockedTransient
)

func (s UnlockedState) String() string {
	switch s {
	case UnlockedHotfix:
		return "hotfix"
	case UnlockedDevelopment:
		return "development"
	case UnlockedTransient:
		return "transient"
	default:
		return "none"
	}
}

// Deployment is one entry in the sysroot's deployment list.
type Deployment struct {
	OSName       string
	Commit       objects.Checksum
	DeploySerial int
	BootCsum     string
	BootSerial   int
	Origin       string // refspec this deployment tracks, persisted to <dir>.origin
	Pinned       bool
	Unlocked     UnlockedState
	SoftReboot   bool // prepared for /run/nextroot soft-reboot

	// Options is this deployment's serialized kernel arguments, including
	// the ostree= bootpath entry composed for it by write_deployments. It's
	// the "previous options line" spec §4.5's karg composition inherits
	// from when no --karg-proc-cmdline override is requested.
	Options string
}

// DirName returns the on-disk deployment directory name, "<commit>.<deployserial>",
// relative to ostree/deploy/<osname>/deploy/.
func (d Deployment) DirName() string {
	return fmt.Sprintf("%s.%d", d.Commit, d.DeploySerial)
}

// bootlinkName returns "<osname>/<bootcsum>/<bootserial>", the path
// components of a bootlink symlink relative to an ostree/boot.N.M directory.
func (d Deployment) bootlinkName() string {
	return filepath.Join(d.OSName, d.BootCsum, strconv.Itoa(d.BootSerial))
}

// key identifies a deployment for equality/removal purposes: osname + the
// exact commit+deployserial combination.
func (d Deployment) key() string {
	return d.OSName + "/" + d.DirName()
}

func (s *Sysroot) deployDir(osname string) string {
	return filepath.Join(s.path, "ostree", "deploy", osname, "deploy")
}

func (s *Sysroot) deploymentPath(d Deployment) string {
	return filepath.Join(s.deployDir(d.OSName), d.DirName())
}

func (s *Sysroot) originPath(d Deployment) string {
	return s.deploymentPath(d) + ".origin"
}

// writeOrigin persists d.Origin to its sibling .origin file, per
// SPEC_FULL.md's "deployment.origin file persistence" supplemented feature.
func (s *Sysroot) writeOrigin(d Deployment) error {
	content := fmt.Sprintf("[origin]\nrefspec=%s\n", d.Origin)
	path := s.originPath(d)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("%w: write origin %s: %w", ostreeerr.ErrIO, path, err)
	}
	return nil
}

// readOrigin reads back the refspec written by writeOrigin. Nothing in this
// module calls it: `admin upgrade` takes the refspec to re-pull from the
// deployment list's Origin field.
func (s *Sysroot) readOrigin(d Deployment) (string, error) {
	path := s.originPath(d)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("%w: read origin %s: %w", ostreeerr.ErrIO, path, err)
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "refspec=") {
			return strings.TrimPrefix(line, "refspec="), nil
		}
	}
	return "", nil
}
