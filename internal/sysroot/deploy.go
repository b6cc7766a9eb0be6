package sysroot

import (
	"fmt"
	"path/filepath"

	"github.com/coreos/ostree-engine/internal/objects"
	"github.com/coreos/ostree-engine/internal/ostreeerr"
)

// DeployOptions describes one `admin deploy`/`admin upgrade` request.
type DeployOptions struct {
	OSName string
	Origin string // refspec to record in the .origin file
	Commit objects.Checksum
	Kargs  KargsRequest
	Retain bool
}

// DeployReport summarizes one successful Deploy call.
type DeployReport struct {
	Deployment     Deployment
	NewBootversion int
	Resuming       bool
}

// DeployTree is the Deployer's "deploy_tree" operation (spec §4.5):
// checkout opts.Commit into a fresh deployment directory, apply the
// three-way /etc merge against the merge deployment (if any), and return
// the populated Deployment (DeploySerial/BootCsum assigned, Options holding
// the composed base kernel arguments; the ostree= bootpath argument is
// added once the target bootversion is known, in WriteDeployments).
func (s *Sysroot) DeployTree(opts DeployOptions, current []Deployment, booted *Deployment) (Deployment, error) {
	if opts.OSName == "" {
		return Deployment{}, fmt.Errorf("%w: osname is required", ostreeerr.ErrInvalidArgument)
	}

	maxSerial := -1
	for _, d := range current {
		if d.OSName == opts.OSName && d.Commit == opts.Commit && d.DeploySerial > maxSerial {
			maxSerial = d.DeploySerial
		}
	}
	d := Deployment{OSName: opts.OSName, Commit: opts.Commit, DeploySerial: maxSerial + 1, Origin: opts.Origin}

	deployDir := s.deploymentPath(d)
	if err := checkoutCommit(s.repo, d.Commit, deployDir); err != nil {
		return Deployment{}, err
	}

	if merge, ok := mergeDeployment(current, opts.OSName, booted); ok {
		if err := s.applyEtcMerge(merge, d); err != nil {
			return Deployment{}, err
		}
	}

	kernelRel, initrdRel, _, err := locateKernel(deployDir)
	if err != nil {
		return Deployment{}, err
	}
	bootcsum, err := computeBootcsum(filepath.Join(deployDir, kernelRel), filepath.Join(deployDir, initrdRel))
	if err != nil {
		return Deployment{}, err
	}
	d.BootCsum = bootcsum

	var mergePtr *Deployment
	if merge, ok := mergeDeployment(current, opts.OSName, booted); ok {
		mergePtr = &merge
	}
	options, err := composeBaseKargs(opts.Kargs, mergePtr)
	if err != nil {
		return Deployment{}, err
	}
	d.Options = options

	if err := s.writeOrigin(d); err != nil {
		return Deployment{}, err
	}
	return d, nil
}

// applyEtcMerge runs the three-way /etc merge (spec §4.5) between the
// merge deployment's pristine/modified /etc and the new deployment's
// freshly-checked-out /etc.
func (s *Sysroot) applyEtcMerge(merge, fresh Deployment) error {
	origEtc := filepath.Join(s.deploymentPath(merge), "usr", "etc")
	modifiedEtc := filepath.Join(s.deploymentPath(merge), "etc")
	newEtc := filepath.Join(s.deploymentPath(fresh), "etc")
	return mergeEtc(origEtc, modifiedEtc, newEtc)
}
