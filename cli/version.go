package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/moyoez/splitsend-go/tool"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "splitsend %s\n", tool.Version)
		},
	}
}
