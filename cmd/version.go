package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newVersionCmd creates the Cobra command for displaying the application version.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of audiblezenbot",
		Long:  `All software has versions. This is audiblezenbot's.`,
		Args:  usageArgs(cobra.NoArgs),
		// Version needs no settings.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "audiblezenbot version %s\n", cmd.Root().Version)
		},
	}
}
