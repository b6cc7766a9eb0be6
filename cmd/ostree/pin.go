package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newPinCommand(o *rootOptions) *cobra.Command {
	var unpin bool
	cmd := &cobra.Command{
		Use:   "pin INDEX",
		Short: "toggle the pinned flag on the deployment at INDEX",
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
			if err := eng.sys.SetPinned(idx, !unpin); err != nil {
				return err
			}
			verb := "Pinned"
			if unpin {
				verb = "Unpinned"
			}
			fmt.Printf("%s deployment %d\n", verb, idx)
			return nil
		},
	}
	cmd.Flags().BoolVar(&unpin, "unpin", false, "clear the pinned flag instead of setting it")
	return cmd
}
