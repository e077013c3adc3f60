package cmd

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"runtime/debug"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"audiblezenbot/internal/diagnostics"
	"audiblezenbot/internal/protect"
	"audiblezenbot/pkg/logging"
)

// scanConfig is replaced by tests.
var scanConfig = diagnostics.Scan

func newEncryptCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "encrypt <secret>",
		Short: "Encrypt a secret for the config file",
		Long: `Encrypt a secret for the current user on this machine and print it as
ENC:<base64>, ready to paste into .audiblezenbot/config.json.

Exit codes:
  0  success
  1  encryption failed
  2  no secret given`,
		Args: usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.protector()
			if err != nil {
				return exitErr(ExitCodeError, err)
			}
			return printProtected(cmd.OutOrStdout(), p, args...)
		},
	}
}

func newEncryptPairCmd(a *app) *cobra.Command {
	var testConfig bool

	cmd := &cobra.Command{
		Use:   "encrypt-pair <plain1> <plain2>",
		Short: "Encrypt two secrets, or check the config file",
		Long: `Encrypt two secrets and print one ENC: value per line, typically a
client id and its client secret.

With --test-config the config file is scanned instead: protected values
under every platform are test-decrypted, duplicate keys inside a platform
object are reported, and the platforms object is checked to survive a
decode/encode round trip. Secrets given together with --test-config are
encrypted after the scan.

Exit codes:
  0  success
  1  encryption failed or config file missing
  2  bad usage
  3  config file is not a JSON object
  4  unexpected failure during the scan`,
		Args: usageArgs(func(cmd *cobra.Command, args []string) error {
			if testConfig && len(args) == 0 {
				return nil
			}
			return cobra.ExactArgs(2)(cmd, args)
		}),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.protector()
			if err != nil {
				return exitErr(ExitCodeError, err)
			}

			if testConfig {
				if err := runConfigTest(cmd.OutOrStdout(), a.settings.ConfigPath, p); err != nil {
					return err
				}
			}

			return printProtected(cmd.OutOrStdout(), p, args...)
		},
	}

	cmd.Flags().BoolVar(&testConfig, "test-config", false, "Scan the config file for protected values and duplicate keys")
	return cmd
}

func printProtected(w io.Writer, p protect.Protector, secrets ...string) error {
	out := make([]string, 0, len(secrets))
	for _, s := range secrets {
		enc, err := protect.ProtectString(p, s)
		if err != nil {
			return exitErr(ExitCodeError, err)
		}
		out = append(out, enc)
	}
	for _, enc := range out {
		fmt.Fprintln(w, enc)
	}
	return nil
}

// readConfigFile reads path, mapping a missing file to ExitCodeError.
func readConfigFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, exitErr(ExitCodeError, fmt.Errorf("config file %s not found", path))
	}
	if err != nil {
		return nil, exitErr(ExitCodeError, fmt.Errorf("reading config file: %w", err))
	}
	return data, nil
}

// runConfigTest scans the config file and prints the report. A panic inside
// the scan is turned into ExitCodeUnhandled.
func runConfigTest(w io.Writer, path string, p protect.Protector) (err error) {
	data, err := readConfigFile(path)
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			logging.Error("Diagnostics", fmt.Errorf("panic: %v", r), "Config scan aborted\n%s", debug.Stack())
			err = exitErr(ExitCodeUnhandled, fmt.Errorf("config scan failed unexpectedly: %v", r))
		}
	}()

	report, err := scanConfig(data, p)
	if err != nil {
		return exitErr(ExitCodeConfigUnparsable, err)
	}

	printReport(w, path, report)
	return nil
}

func printReport(w io.Writer, path string, r *diagnostics.Report) {
	fmt.Fprintf(w, "Config: %s\n", path)

	if !r.PlatformsFound {
		fmt.Fprintf(w, "  %s\n", text.FgYellow.Sprint("no platforms object"))
	}

	for _, p := range r.Platforms {
		fmt.Fprintf(w, "\n[%s]\n", p.ID)
		if p.NotObject {
			fmt.Fprintf(w, "  %s\n", text.FgRed.Sprint("entry is not an object"))
			continue
		}

		for _, key := range p.Duplicates() {
			fmt.Fprintf(w, "  %s %q appears %d times\n", text.FgRed.Sprint("DUPLICATE KEY"), key, p.KeyCounts[key])
		}

		if len(p.Encrypted) == 0 {
			fmt.Fprintln(w, "  no protected values")
		}
		for _, e := range p.Encrypted {
			if e.Err != nil {
				fmt.Fprintf(w, "  %s %s: %v\n", text.FgRed.Sprint("FAIL"), e.Path, e.Err)
				continue
			}
			fmt.Fprintf(w, "  %s %s decrypts\n", text.FgGreen.Sprint("OK"), e.Path)
		}
	}

	fmt.Fprintln(w)
	if r.RoundTripErr != nil {
		fmt.Fprintf(w, "Round trip: %s %v\n", text.FgRed.Sprint("FAIL"), r.RoundTripErr)
	} else {
		fmt.Fprintf(w, "Round trip: %s\n", text.FgGreen.Sprint("OK"))
	}

	summary := text.FgGreen.Sprint("config looks healthy")
	if !r.Healthy() {
		summary = text.FgYellow.Sprint("problems found")
	}
	fmt.Fprintln(w, summary)
}
