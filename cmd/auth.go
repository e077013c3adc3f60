package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"audiblezenbot/internal/config"
	"audiblezenbot/internal/configstore"
	"audiblezenbot/internal/platform"
	"audiblezenbot/internal/protect"
	"audiblezenbot/pkg/logging"
)

func newAuthCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Sign in to streaming platforms",
		Long: `Manage the bot's platform credentials.

Examples:
  audiblezenbot auth login                 # Sign in to Twitch
  audiblezenbot auth login twitch kick     # Sign in to Twitch and Kick at once
  audiblezenbot auth login --no-browser    # Print the sign-in URL instead of opening it
  audiblezenbot auth status                # Show stored credentials`,
	}

	cmd.AddCommand(newAuthLoginCmd(a))
	cmd.AddCommand(newAuthStatusCmd(a))
	return cmd
}

// parsePlatforms validates args as platform ids, dropping repeats.
func parsePlatforms(args []string) ([]platform.ID, error) {
	seen := make(map[platform.ID]bool, len(args))
	ids := make([]platform.ID, 0, len(args))
	for _, arg := range args {
		id, err := platform.Parse(arg)
		if err != nil {
			return nil, err
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func platformArgs(_ *cobra.Command, args []string) error {
	_, err := parsePlatforms(args)
	return err
}

// loadForAuth loads the config document and registers client credentials.
// An unparsable file is tolerated here; the next save replaces it.
func (a *app) loadForAuth(p protect.Protector) (*platform.Registry, configstore.LoadResult, error) {
	res, err := a.store().Load()
	if err != nil {
		return nil, res, fmt.Errorf("loading config: %w", err)
	}
	if res.Recovered() {
		logging.WarnErr("CLI", res.ParseErr, "Config file %s is unparsable; stored client credentials are ignored", a.settings.ConfigPath)
	}

	reg := newRegistry()
	configured := config.ResolveCredentials(reg, a.settings, res.Document, p)
	logging.Debug("CLI", "Platforms with client credentials: %v", configured)
	return reg, res, nil
}
