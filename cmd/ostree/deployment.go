package main

import "github.com/coreos/ostree-engine/internal/sysroot"

// isSameDeployment compares two deployments by the identity sysroot uses
// internally (osname + commit + deployserial); exported equality isn't part
// of sysroot.Deployment's surface, so the CLI derives it from the same
// fields rather than reaching into package-private state.
func isSameDeployment(a, b sysroot.Deployment) bool {
	return a.OSName == b.OSName && a.Commit == b.Commit && a.DeploySerial == b.DeploySerial
}
