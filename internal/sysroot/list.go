package sysroot

import (
	"os"
	"strings"

	"github.com/coreos/ostree-engine/internal/objects"
)

// FindBooted returns the deployment whose bootlink matches the running
// kernel's "ostree=" command-line argument, read from /proc/cmdline. Used
// to seed the "booted" identity that deployment-list recomputation and the
// unlocked-state machine must never remove or transition incorrectly.
func FindBooted(list []Deployment) (Deployment, bool) {
	data, err := os.ReadFile("/proc/cmdline")
	if err != nil {
		return Deployment{}, false
	}
	return findBootedFromCmdline(list, string(data))
}

func findBootedFromCmdline(list []Deployment, cmdline string) (Deployment, bool) {
	for _, field := range strings.Fields(cmdline) {
		const prefix = "ostree=/ostree/boot."
		if !strings.HasPrefix(field, prefix) {
			continue
		}
		// .../boot.N/<osname>/<bootcsum>/<bootserial>
		rest := strings.TrimPrefix(field, prefix)
		parts := strings.SplitN(rest, "/", 2)
		if len(parts) != 2 {
			continue
		}
		want := parts[1]
		for _, d := range list {
			if d.bootlinkName() == want {
				return d, true
			}
		}
	}
	return Deployment{}, false
}

// mergeDeployment picks the configuration-merge source for a new deployment
// of osname: the booted deployment if it's for this osname, else the first
// current deployment for this osname, else none.
func mergeDeployment(current []Deployment, osname string, booted *Deployment) (Deployment, bool) {
	if booted != nil && booted.OSName == osname {
		return *booted, true
	}
	for _, d := range current {
		if d.OSName == osname {
			return d, true
		}
	}
	return Deployment{}, false
}

// ComputeNewDeploymentList implements spec §4.5's deployment list
// computation: assign a fresh deployserial, construct the new head
// deployment, prune non-retained deployments for the same osname (except
// booted and merge), and re-index bootserials per shared bootcsum.
func ComputeNewDeploymentList(current []Deployment, osname string, newCommit objects.Checksum, bootcsum, origin string, retain bool, booted *Deployment) []Deployment {
	maxSerial := -1
	for _, d := range current {
		if d.OSName == osname && d.Commit == newCommit && d.DeploySerial > maxSerial {
			maxSerial = d.DeploySerial
		}
	}
	head := Deployment{
		OSName:       osname,
		Commit:       newCommit,
		DeploySerial: maxSerial + 1,
		BootCsum:     bootcsum,
		Origin:       origin,
	}

	merge, hasMerge := mergeDeployment(current, osname, booted)

	kept := make([]Deployment, 0, len(current)+1)
	kept = append(kept, head)
	for _, d := range current {
		if d.OSName != osname {
			kept = append(kept, d)
			continue
		}
		if !retain && !d.Pinned {
			isBooted := booted != nil && d.key() == booted.key()
			isMerge := hasMerge && d.key() == merge.key()
			if !isBooted && !isMerge {
				continue // removed
			}
		}
		kept = append(kept, d)
	}

	reindexBootserials(kept)
	return kept
}

// reindexBootserials assigns bootserials 0..k-1, in list order, to every
// deployment sharing a bootcsum.
func reindexBootserials(list []Deployment) {
	next := make(map[string]int)
	for i := range list {
		bc := list[i].BootCsum
		list[i].BootSerial = next[bc]
		next[bc]++
	}
}
