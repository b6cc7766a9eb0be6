package main

import (
	"fmt"

	"github.com/coreos/ostree-engine/internal/sysroot"
	"github.com/spf13/cobra"
)

func newUnlockCommand(o *rootOptions) *cobra.Command {
	var development bool
	cmd := &cobra.Command{
		Use:   "unlock",
		Short: "transition the booted deployment's unlocked state (default: hotfix)",
		RunE: func(cmd *cobra.Command, args []string) error {
			target := sysroot.UnlockedHotfix
			if development {
				target = sysroot.UnlockedDevelopment
			}

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
				return fmt.Errorf("no booted deployment")
			}
			idx := -1
			for i, d := range list {
				if isSameDeployment(d, booted) {
					idx = i
					break
				}
			}
			if idx < 0 {
				return fmt.Errorf("booted deployment not found in deployment list")
			}
			if err := eng.sys.DeploymentUnlock(&list[idx], target, booted); err != nil {
				return err
			}
			if err := eng.sys.SaveDeploymentList(list); err != nil {
				return err
			}
			fmt.Printf("Unlocked state: %s\n", list[idx].Unlocked)
			return nil
		},
	}
	cmd.Flags().Bool("hotfix", true, "writes a persistent overlay and a rollback clone of the current deployment (default)")
	cmd.Flags().BoolVar(&development, "development", false, "writes a tmpfs-backed overlay for the current boot only")
	return cmd
}
