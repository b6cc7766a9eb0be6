package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/coreos/ostree-engine/internal/sysroot"
	"github.com/spf13/cobra"
)

func newStatusCommand(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "list deployments, marking the booted one",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := o.openEngine()
			if err != nil {
				return err
			}
			list, err := eng.sys.ListDeployments()
			if err != nil {
				return err
			}
			booted, hasBooted := sysroot.FindBooted(list)
			return printStatus(os.Stdout, list, booted, hasBooted)
		},
	}
}

func printStatus(out *os.File, list []sysroot.Deployment, booted sysroot.Deployment, hasBooted bool) error {
	w := tabwriter.NewWriter(out, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "IDX\tBOOTED\tOSNAME\tCOMMIT\tORIGIN\tPINNED\tSTAGED\tUNLOCKED")
	for i, d := range list {
		marker := ""
		if hasBooted && isSameDeployment(d, booted) {
			marker = "*"
		}
		staged := "no"
		if d.SoftReboot {
			staged = "yes"
		}
		pinned := "no"
		if d.Pinned {
			pinned = "yes"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			i, marker, d.OSName, d.Commit.String(), d.Origin, pinned, staged, d.Unlocked)
	}
	return w.Flush()
}
