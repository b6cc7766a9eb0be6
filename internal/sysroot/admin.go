package sysroot

import (
	"context"
	"fmt"

	"github.com/coreos/ostree-engine/internal/ostreeerr"
)

// Deploy is the top-level operation behind `admin deploy`/`admin switch`:
// it runs deploy_tree to check out and merge opts.Commit, recomputes the
// deployment list (spec §4.5's list-computation algorithm), and drives
// write_deployments to make it the new boot default.
func (s *Sysroot) Deploy(ctx context.Context, opts DeployOptions) (DeployReport, error) {
	current, err := s.ListDeployments()
	if err != nil {
		return DeployReport{}, err
	}
	booted, hasBooted := FindBooted(current)
	var bootedPtr *Deployment
	if hasBooted {
		bootedPtr = &booted
	}

	d, err := s.DeployTree(opts, current, bootedPtr)
	if err != nil {
		return DeployReport{}, err
	}

	newList := ComputeNewDeploymentList(current, opts.OSName, opts.Commit, d.BootCsum, opts.Origin, opts.Retain, bootedPtr)
	// The head of newList is the placeholder constructed by
	// ComputeNewDeploymentList; replace it with the fully populated
	// deployment DeployTree just produced (same osname/commit/deployserial/
	// bootcsum/origin, by construction).
	newList[0] = d

	if err := s.WriteDeployments(ctx, newList, bootedPtr); err != nil {
		return DeployReport{}, err
	}

	return DeployReport{Deployment: newList[0]}, nil
}

// Undeploy removes the deployment at index from the list. The booted
// deployment cannot be undeployed.
func (s *Sysroot) Undeploy(ctx context.Context, index int) error {
	current, err := s.ListDeployments()
	if err != nil {
		return err
	}
	if index < 0 || index >= len(current) {
		return fmt.Errorf("%w: deployment index %d out of range", ostreeerr.ErrInvalidArgument, index)
	}
	booted, hasBooted := FindBooted(current)
	if hasBooted && current[index].key() == booted.key() {
		return fmt.Errorf("%w: cannot undeploy the booted deployment", ostreeerr.ErrInvalidArgument)
	}

	newList := append(append([]Deployment{}, current[:index]...), current[index+1:]...)
	reindexBootserials(newList)

	var bootedPtr *Deployment
	if hasBooted {
		bootedPtr = &booted
	}
	return s.WriteDeployments(ctx, newList, bootedPtr)
}

// SetPinned toggles the pinned flag on the deployment at index. Pinned
// deployments are exempt from pruning in future ComputeNewDeploymentList
// calls regardless of the retain flag passed to them.
func (s *Sysroot) SetPinned(index int, pinned bool) error {
	current, err := s.ListDeployments()
	if err != nil {
		return err
	}
	if index < 0 || index >= len(current) {
		return fmt.Errorf("%w: deployment index %d out of range", ostreeerr.ErrInvalidArgument, index)
	}
	current[index].Pinned = pinned
	return s.SaveDeploymentList(current)
}
