package cmd

import (
	"errors"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"audiblezenbot/internal/credentials"
	"audiblezenbot/internal/platform"
	"audiblezenbot/pkg/logging"
)

func newAuthStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show stored platform credentials",
		Long: `Show, for every platform, whether a client id is configured, whether a
token is stored, whether it is encrypted and when it was obtained.

Exit codes:
  0  success
  3  config file is not a JSON object`,
		Args: usageArgs(cobra.NoArgs),
		RunE: a.runAuthStatus,
	}
}

func (a *app) runAuthStatus(cmd *cobra.Command, _ []string) error {
	p, err := a.protector()
	if err != nil {
		return exitErr(ExitCodeError, err)
	}

	reg, res, err := a.loadForAuth(p)
	if err != nil {
		return exitErr(ExitCodeError, err)
	}
	if res.Recovered() {
		return exitErr(ExitCodeConfigUnparsable, res.ParseErr)
	}

	persister := credentials.NewPersister(a.store(), p)

	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{
		text.FgHiCyan.Sprint("PLATFORM"),
		text.FgHiCyan.Sprint("CLIENT ID"),
		text.FgHiCyan.Sprint("TOKEN"),
		text.FgHiCyan.Sprint("ENCRYPTED"),
		text.FgHiCyan.Sprint("BOT TOKEN"),
		text.FgHiCyan.Sprint("STREAMER TOKEN"),
	})

	for _, id := range platform.All() {
		if _, err := reg.Descriptor(id); err != nil {
			continue
		}

		clientID := text.FgYellow.Sprint("missing")
		if _, ok := reg.Credentials(id); ok {
			clientID = text.FgGreen.Sprint("configured")
		}

		token, encrypted, botAt, streamerAt := text.FgYellow.Sprint("none"), "-", "-", "-"

		stored, err := persister.Lookup(id)
		switch {
		case errors.Is(err, credentials.ErrNoToken):
		case err != nil:
			logging.WarnErr("CLI", err, "Stored %s token cannot be read", id)
			token = text.FgRed.Sprint("unreadable")
		default:
			token = text.FgGreen.Sprint("stored")
			encrypted = "yes"
			if !stored.Encrypted {
				encrypted = text.FgYellow.Sprint("no")
			}
			botAt = formatTimestamp(stored.BotTokenTime)
			streamerAt = formatTimestamp(stored.StreamerTokenTime)
		}

		t.AppendRow(table.Row{string(id), clientID, token, encrypted, botAt, streamerAt})
	}

	t.Render()
	return nil
}

func formatTimestamp(ts time.Time) string {
	if ts.IsZero() {
		return "-"
	}
	return ts.Local().Format(time.RFC3339)
}
