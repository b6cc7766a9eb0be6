package main

import (
	"fmt"
	"strconv"

	"github.com/coreos/ostree-engine/internal/sysroot"
	"github.com/spf13/cobra"
)

func newPrepareSoftRebootCommand(o *rootOptions) *cobra.Command {
	var reset bool
	cmd := &cobra.Command{
		Use:   "prepare-soft-reboot INDEX",
		Short: "arm /run/nextroot to point at the deployment at INDEX",
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
			list, err := eng.sys.ListDeployments()
			if err != nil {
				return err
			}
			if idx < 0 || idx >= len(list) {
				return fmt.Errorf("deployment index %d out of range", idx)
			}

			if reset {
				if err := eng.sys.ClearSoftReboot(&list[idx]); err != nil {
					return err
				}
				if err := eng.sys.SaveDeploymentList(list); err != nil {
					return err
				}
				fmt.Printf("Disarmed soft-reboot for deployment %d\n", idx)
				return nil
			}

			booted, ok := sysroot.FindBooted(list)
			if !ok {
				return fmt.Errorf("no booted deployment")
			}
			if err := eng.sys.PrepareSoftReboot(&list[idx], booted); err != nil {
				return err
			}
			if err := eng.sys.SaveDeploymentList(list); err != nil {
				return err
			}
			fmt.Printf("Armed soft-reboot for deployment %d\n", idx)
			return nil
		},
	}
	// --reboot would hand off to the init system's soft-reboot syscall path;
	// arming /run/nextroot is this engine's half of that contract, the
	// actual switch-root is out of scope here.
	cmd.Flags().Bool("reboot", false, "accepted for compatibility and has no effect: only /run/nextroot is armed, no reboot is performed")
	cmd.Flags().BoolVar(&reset, "reset", false, "disarm a previously armed soft-reboot instead")
	return cmd
}
