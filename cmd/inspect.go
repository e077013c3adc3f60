package cmd

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"audiblezenbot/internal/diagnostics"
)

func newInspectCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "Decrypt and print every protected value in the config file",
		Long: `Walk the config file, decrypt every ENC: value with the current user's
key and print it as <json-path> => <value>. Values that fail to decrypt are
reported and the walk continues.

This prints secrets in clear text. Do not run it where output is recorded.

Exit codes:
  0  success
  1  config file missing
  3  config file is not a JSON object`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readConfigFile(a.settings.ConfigPath)
			if err != nil {
				return err
			}

			p, err := a.protector()
			if err != nil {
				return exitErr(ExitCodeError, err)
			}

			entries, err := diagnostics.Inspect(data, p)
			if err != nil {
				return exitErr(ExitCodeConfigUnparsable, err)
			}

			w := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(w, "No protected values found.")
				return nil
			}
			for _, e := range entries {
				if e.Err != nil {
					fmt.Fprintf(w, "%s => %s\n", e.Path, text.FgRed.Sprintf("<error: %v>", e.Err))
					continue
				}
				fmt.Fprintf(w, "%s => %s\n", e.Path, e.Value)
			}
			return nil
		},
	}
}
