package sysroot

import (
	"fmt"
	"os"

	"github.com/coreos/ostree-engine/internal/kargs"
)

// KargsRequest carries the caller-supplied kernel-argument overrides from
// `admin deploy`/`admin upgrade` (spec §6's --karg/--karg-append/--karg-proc-cmdline).
type KargsRequest struct {
	InheritProcCmdline bool
	Replace            []string // --karg: applied as Replace
	Append             []string // --karg-append: applied as Append
}

// composeBaseKargs implements the non-bootpath half of spec §4.5's kernel
// argument composition: start empty, inherit either /proc/cmdline or the
// merge deployment's previous options, then apply caller overrides. The
// ostree= bootpath argument is deliberately left out here — it depends on
// the bootversion write_deployments ultimately picks, which isn't known
// yet at deploy_tree time — and is added later by withOstreeArg.
func composeBaseKargs(req KargsRequest, merge *Deployment) (string, error) {
	m := kargs.New()

	switch {
	case req.InheritProcCmdline:
		data, err := os.ReadFile("/proc/cmdline")
		if err == nil {
			m = kargs.Parse(string(data))
		}
	case merge != nil && merge.Options != "":
		m = kargs.Parse(merge.Options)
	}
	m.Delete("ostree") // absent on a fresh model or a proc/cmdline without one; error is fine to ignore here

	for _, arg := range req.Replace {
		if err := m.Replace(arg); err != nil {
			return "", fmt.Errorf("compose kargs: %w", err)
		}
	}
	for _, arg := range req.Append {
		m.Append(arg)
	}
	return m.String(), nil
}

// withOstreeArg reserializes options with its ostree= entry (if any)
// replaced by the bootpath computed for bootversion/osname/bootcsum/bootserial.
// Every deployment in a list goes through this exactly once per
// write_deployments call, since the bootpath depends on the generation
// write_deployments is committing to, not on anything decided at
// deploy_tree time.
func withOstreeArg(options, osname, bootcsum string, bootserial, bootversion int) string {
	m := kargs.Parse(options)
	m.Delete("ostree") // no-op if absent
	m.Append(fmt.Sprintf("ostree=/ostree/boot.%d/%s/%s/%d", bootversion, osname, bootcsum, bootserial))
	return m.String()
}
