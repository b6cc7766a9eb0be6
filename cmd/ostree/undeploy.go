package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newUndeployCommand(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "undeploy INDEX",
		Short: "remove the deployment at INDEX",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid index %q: %w", args[0], err)
			}
			eng, err := o.openEngine()
			if err != nil {
				return err
			}
			if err := eng.sys.Undeploy(cmd.Context(), idx); err != nil {
				return err
			}
			fmt.Printf("Removed deployment %d\n", idx)
			return nil
		},
	}
}
