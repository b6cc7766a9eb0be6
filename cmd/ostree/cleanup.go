package main

import (
	"fmt"

	"github.com/coreos/ostree-engine/internal/sysroot"
	"github.com/spf13/cobra"
)

func newCleanupCommand(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "reconcile on-disk state with the current deployment list, pruning orphans",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := o.openEngine()
			if err != nil {
				return err
			}
			list, err := eng.sys.ListDeployments()
			if err != nil {
				return err
			}
			var bootedPtr *sysroot.Deployment
			if booted, ok := sysroot.FindBooted(list); ok {
				bootedPtr = &booted
			}
			result, err := eng.sys.Cleanup(list, list, bootedPtr)
			if err != nil {
				return err
			}
			fmt.Printf("Removed %d deployments, %d stale bootcsum dirs, %d orphan deploy dirs, %d rotten symlinks\n",
				result.RemovedDeployments, result.RemovedBootcsums, result.RemovedOrphanDirs, result.RemovedRottenLinks)
			return nil
		},
	}
}
