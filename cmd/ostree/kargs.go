package main

import (
	"fmt"

	"github.com/coreos/ostree-engine/internal/kargs"
	"github.com/coreos/ostree-engine/internal/sysroot"
	"github.com/spf13/cobra"
)

func newKargsCommand(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kargs",
		Short: "inspect or mutate kernel arguments",
	}
	cmd.AddCommand(newKargsEditInPlaceCommand(o))
	return cmd
}

func newKargsEditInPlaceCommand(o *rootOptions) *cobra.Command {
	var appendIfMissing []string
	cmd := &cobra.Command{
		Use:   "edit-in-place",
		Short: "mutate the kernel arguments of every deployment in place",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := o.openEngine()
			if err != nil {
				return err
			}
			list, err := eng.sys.ListDeployments()
			if err != nil {
				return err
			}
			for i := range list {
				m := kargs.Parse(list[i].Options)
				for _, arg := range appendIfMissing {
					m.AppendIfMissing(arg)
				}
				list[i].Options = m.String()
			}

			var bootedPtr *sysroot.Deployment
			if booted, ok := sysroot.FindBooted(list); ok {
				bootedPtr = &booted
			}
			if err := eng.sys.WriteDeployments(cmd.Context(), list, bootedPtr); err != nil {
				return fmt.Errorf("rewriting boot entries: %w", err)
			}
			fmt.Printf("Updated kernel arguments on %d deployments\n", len(list))
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&appendIfMissing, "append-if-missing", nil, "append KEY=VALUE unless an identical argument is already present")
	return cmd
}
