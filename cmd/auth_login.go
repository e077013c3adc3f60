package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"audiblezenbot/internal/credentials"
	"audiblezenbot/internal/oauth"
	"audiblezenbot/internal/platform"
)

// openBrowser is replaced by tests.
var openBrowser = oauth.OpenBrowser

// errNotSaved marks a flow that produced a token which could not be stored.
var errNotSaved = errors.New("token obtained but could not be saved")

// loginOutcome is the end state of one platform's sign-in.
type loginOutcome struct {
	ID  platform.ID
	Err error
}

func newAuthLoginCmd(a *app) *cobra.Command {
	var (
		noBrowser bool
		timeout   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "login [platform...]",
		Short: "Sign in to one or more platforms",
		Long: `Sign the bot in through each platform's OAuth page.

For every platform a local listener receives the browser redirect, the
authorization code is exchanged for a token and the token is stored
encrypted in the config file. Several platforms are signed in concurrently.
The command returns once every flow has finished or timed out.

Platforms: twitch (default), youtube, trovo, kick.

Each platform listens on its own registered port. AUDIBLEZENBOT_CALLBACK_PORT
replaces that port for every platform, so with it set only one platform can
be signed in per invocation.

Exit codes:
  0  every platform signed in
  2  unknown platform, or several platforms with a fixed callback port
  3  at least one platform failed`,
		Args: usageArgs(platformArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, _ := parsePlatforms(args)
			if len(ids) == 0 {
				ids = []platform.ID{platform.Twitch}
			}
			if a.settings.CallbackPort != 0 && len(ids) > 1 {
				return exitErr(ExitCodeUsage, fmt.Errorf(
					"AUDIBLEZENBOT_CALLBACK_PORT=%d binds every platform to one port; sign in to one platform at a time",
					a.settings.CallbackPort))
			}
			if timeout <= 0 {
				timeout = a.settings.AuthTimeout
			}
			return a.runLogin(cmd, ids, noBrowser, timeout)
		},
	}

	cmd.Flags().BoolVar(&noBrowser, "no-browser", false, "Print the sign-in URL instead of opening a browser")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "How long to wait for each sign-in (env: AUDIBLEZENBOT_AUTH_TIMEOUT)")
	return cmd
}

func (a *app) runLogin(cmd *cobra.Command, ids []platform.ID, noBrowser bool, timeout time.Duration) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	p, err := a.protector()
	if err != nil {
		return exitErr(ExitCodeError, err)
	}

	reg, _, err := a.loadForAuth(p)
	if err != nil {
		return exitErr(ExitCodeError, err)
	}

	opener := openBrowser
	if noBrowser {
		opener = nil
	}

	opts := []oauth.CoordinatorOption{
		oauth.WithTimeout(timeout),
		oauth.WithCallbackHost(a.settings.CallbackHost),
		oauth.WithBrowserOpener(opener),
	}
	if a.settings.CallbackPort != 0 {
		opts = append(opts, oauth.WithCallbackPort(a.settings.CallbackPort))
	}

	coord := oauth.NewCoordinator(reg, opts...)
	defer coord.Close()

	persister := credentials.NewPersister(a.store(), p)

	outcomes := make([]loginOutcome, len(ids))
	sessions := make([]*oauth.Session, len(ids))

	for i, id := range ids {
		outcomes[i].ID = id
		s, err := coord.Authenticate(ctx, id)
		if err != nil {
			outcomes[i].Err = err
			continue
		}
		sessions[i] = s

		desc, _ := reg.Descriptor(id)
		fmt.Fprintf(out, "Sign in to %s:\n  %s\n", desc.DisplayName, s.AuthURL())
	}

	var g errgroup.Group
	var waiting []string
	for i, s := range sessions {
		if s == nil {
			continue
		}
		waiting = append(waiting, string(s.Platform))
		g.Go(func() error {
			outcomes[i].Err = finishLogin(ctx, s, persister)
			return outcomes[i].Err
		})
	}

	if len(waiting) > 0 {
		sp := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(cmd.ErrOrStderr()))
		sp.Suffix = fmt.Sprintf(" Waiting for sign-in (%s), up to %s...", strings.Join(waiting, ", "), timeout)
		sp.Start()
		_ = g.Wait()
		sp.Stop()
	}

	return reportLogin(out, outcomes, a.settings.ConfigPath)
}

// finishLogin waits for s and stores its token.
func finishLogin(ctx context.Context, s *oauth.Session, persister *credentials.Persister) error {
	// The session enforces its own deadline and ends when ctx is canceled.
	r, err := s.Wait(context.WithoutCancel(ctx))
	if err != nil {
		return err
	}
	if !r.OK() {
		return r.Err
	}
	if !persister.PersistToken(r.Platform, r.Token) {
		return errNotSaved
	}
	return nil
}

func reportLogin(w io.Writer, outcomes []loginOutcome, path string) error {
	fmt.Fprintln(w)

	failed := 0
	for _, o := range outcomes {
		if o.Err == nil {
			fmt.Fprintf(w, "%s %-8s token stored in %s\n", text.FgGreen.Sprint("OK  "), o.ID, path)
			continue
		}
		failed++
		fmt.Fprintf(w, "%s %-8s %s\n", text.FgRed.Sprint("FAIL"), o.ID, describeFailure(o.Err))
	}

	if failed > 0 {
		return exitErr(ExitCodeAuthFailed, fmt.Errorf("%d of %d platform(s) failed to sign in", failed, len(outcomes)))
	}
	return nil
}

func describeFailure(err error) string {
	ae, ok := oauth.AsAuthError(err)
	if !ok {
		return err.Error()
	}
	msg := ae.Reason
	if ae.Description != "" {
		msg += " (" + singleLine(ae.Description, maxDescriptionLen) + ")"
	}
	if ae.Err != nil {
		msg += ": " + ae.Err.Error()
	}
	return msg
}

// maxDescriptionLen bounds platform-supplied error descriptions in the summary.
const maxDescriptionLen = 120

// singleLine collapses whitespace in s and truncates it to maxLen runes.
func singleLine(s string, maxLen int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) > maxLen {
		return string(runes[:maxLen-3]) + "..."
	}
	return s
}
