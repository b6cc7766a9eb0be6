package main

import (
	"context"
	"fmt"
	"os"

	"github.com/coreos/ostree-engine/internal/objects"
	"github.com/coreos/ostree-engine/internal/sysroot"
	"github.com/spf13/cobra"
)

// deployFlags collects the flags shared by `admin deploy`, `admin upgrade`,
// and `admin switch` (spec §6).
type deployFlags struct {
	osName           string
	retain           bool
	kargs            []string
	kargsAppend      []string
	kargsProcCmdline bool
	originFile       string
}

func (f *deployFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.osName, "os", "default", "osname to deploy into")
	cmd.Flags().BoolVar(&f.retain, "retain", false, "keep the previous non-booted deployment instead of pruning it")
	cmd.Flags().StringArrayVar(&f.kargs, "karg", nil, "replace a kernel argument (KEY=VALUE or KEY=OLD=NEW)")
	cmd.Flags().StringArrayVar(&f.kargsAppend, "karg-append", nil, "append a kernel argument")
	cmd.Flags().BoolVar(&f.kargsProcCmdline, "karg-proc-cmdline", false, "seed kernel arguments from /proc/cmdline instead of the merge deployment")
	cmd.Flags().StringVar(&f.originFile, "origin-file", "", "read the new deployment's origin refspec from this file instead of REF")
}

func (f *deployFlags) kargsRequest() sysroot.KargsRequest {
	return sysroot.KargsRequest{
		InheritProcCmdline: f.kargsProcCmdline,
		Replace:            f.kargs,
		Append:             f.kargsAppend,
	}
}

func newDeployCommand(o *rootOptions) *cobra.Command {
	f := &deployFlags{}
	cmd := &cobra.Command{
		Use:   "deploy REF",
		Short: "compute and commit a new deployment for REF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := o.openEngine()
			if err != nil {
				return err
			}
			return runDeploy(cmd.Context(), eng, args[0], f)
		},
	}
	f.register(cmd)
	return cmd
}

func newUpgradeCommand(o *rootOptions) *cobra.Command {
	f := &deployFlags{}
	var pullOnly, deployOnly, allowDowngrade bool
	var overrideCommit string

	cmd := &cobra.Command{
		Use:   "upgrade",
		Short: "pull the origin ref and deploy it",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := o.openEngine()
			if err != nil {
				return err
			}
			list, err := eng.sys.ListDeployments()
			if err != nil {
				return err
			}
			booted, ok := sysroot.FindBooted(list)
			if !ok {
				return fmt.Errorf("no booted deployment: cannot infer origin to upgrade")
			}
			ref := booted.Origin
			if overrideCommit != "" {
				ref = overrideCommit
			}
			if deployOnly {
				return runDeploy(cmd.Context(), eng, ref, f)
			}
			if err := runPullRef(cmd.Context(), eng, ref); err != nil {
				return err
			}
			if pullOnly {
				return nil
			}
			_ = allowDowngrade // neither pull nor deploy performs a downgrade check, so there is nothing to lift
			return runDeploy(cmd.Context(), eng, ref, f)
		},
	}
	f.register(cmd)
	cmd.Flags().BoolVar(&allowDowngrade, "allow-downgrade", false, "accepted for compatibility; no downgrade check is performed, so this flag has no effect")
	cmd.Flags().StringVar(&overrideCommit, "override-commit", "", "deploy this commit/ref instead of resolving the origin")
	cmd.Flags().BoolVar(&pullOnly, "pull-only", false, "fetch but do not deploy")
	cmd.Flags().BoolVar(&deployOnly, "deploy-only", false, "deploy the already-pulled origin without fetching")
	return cmd
}

func newSwitchCommand(o *rootOptions) *cobra.Command {
	f := &deployFlags{}
	cmd := &cobra.Command{
		Use:   "switch REF",
		Short: "change origin to REF and deploy in one step",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := o.openEngine()
			if err != nil {
				return err
			}
			if err := runPullRef(cmd.Context(), eng, args[0]); err != nil {
				return err
			}
			return runDeploy(cmd.Context(), eng, args[0], f)
		},
	}
	f.register(cmd)
	return cmd
}

func runDeploy(ctx context.Context, eng *engineContext, ref string, f *deployFlags) error {
	origin := ref
	if f.originFile != "" {
		data, err := os.ReadFile(f.originFile)
		if err != nil {
			return fmt.Errorf("reading origin file %s: %w", f.originFile, err)
		}
		origin = string(data)
	}

	commit, err := resolveToCommit(eng, ref)
	if err != nil {
		return err
	}

	report, err := eng.sys.Deploy(ctx, sysroot.DeployOptions{
		OSName: f.osName,
		Origin: origin,
		Commit: commit,
		Kargs:  f.kargsRequest(),
		Retain: f.retain,
	})
	if err != nil {
		return fmt.Errorf("deploying %s: %w", ref, err)
	}
	fmt.Printf("Deployed %s/%s.%d (%s)\n", report.Deployment.OSName, report.Deployment.Commit, report.Deployment.DeploySerial, ref)
	return nil
}

// resolveToCommit resolves a checksum, partial checksum, or "remote:ref"
// refspec against the local repository (which must already have it, via a
// prior pull).
func resolveToCommit(eng *engineContext, ref string) (objects.Checksum, error) {
	c, ok, err := eng.repo.ResolveRev(ref, true)
	if err != nil {
		return objects.Checksum{}, fmt.Errorf("resolving %s: %w", ref, err)
	}
	if !ok {
		return objects.Checksum{}, fmt.Errorf("ref %s not found locally; pull it first", ref)
	}
	return c, nil
}
