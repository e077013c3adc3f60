package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"audiblezenbot/internal/config"
	"audiblezenbot/internal/configstore"
	"audiblezenbot/internal/platform"
	"audiblezenbot/internal/protect"
	"audiblezenbot/pkg/logging"
)

// Exit codes for CLI commands. Scripts depend on these values.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error, including encryption failures
	// and a missing config file.
	ExitCodeError = 1
	// ExitCodeUsage indicates missing or invalid arguments.
	ExitCodeUsage = 2
	// ExitCodeConfigUnparsable indicates the config file exists but is not a
	// JSON object.
	ExitCodeConfigUnparsable = 3
	// ExitCodeAuthFailed indicates at least one OAuth flow failed.
	ExitCodeAuthFailed = 3
	// ExitCodeUnhandled indicates an unexpected failure during diagnostics.
	ExitCodeUnhandled = 4
)

// ExitError carries the exit code a command wants the process to end with.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func exitErr(code int, err error) error {
	return &ExitError{Code: code, Err: err}
}

// usageArgs wraps a cobra argument validator so its failures exit with
// ExitCodeUsage.
func usageArgs(validate cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := validate(cmd, args); err != nil {
			return exitErr(ExitCodeUsage, fmt.Errorf("%w\nUsage: %s", err, cmd.UseLine()))
		}
		return nil
	}
}

// Seams replaced by tests.
var (
	newProtector = func(s *config.Settings) (protect.Protector, error) {
		return protect.New(protect.Options{KeyDir: s.KeyDir})
	}
	newRegistry = platform.DefaultRegistry
)

// app holds state shared by all commands of one invocation.
type app struct {
	configPath string
	debug      bool

	settings *config.Settings
}

// rootCmd represents the base command for the audiblezenbot application.
var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "audiblezenbot",
		Short: "Sign a bot in to streaming platforms and keep its credentials safe",
		Long: `audiblezenbot signs a bot account in to Twitch, YouTube, Trovo and Kick
through each platform's OAuth page in your browser, and keeps the resulting
tokens encrypted for the current user in .audiblezenbot/config.json.`,
		// SilenceUsage prevents Cobra from printing the usage message on errors that are handled by the application.
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	cmd.PersistentFlags().StringVar(&a.configPath, "config", "", "Path of the credential config file (env: AUDIBLEZENBOT_CONFIG_PATH)")
	cmd.PersistentFlags().BoolVar(&a.debug, "debug", false, "Enable debug logging")

	cmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		return exitErr(ExitCodeUsage, fmt.Errorf("%w\nUsage: %s", err, c.UseLine()))
	})

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newEncryptCmd(a))
	cmd.AddCommand(newEncryptPairCmd(a))
	cmd.AddCommand(newInspectCmd(a))
	cmd.AddCommand(newAuthCmd(a))

	return cmd
}

// setup loads settings and initializes logging before any subcommand runs.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	s, err := config.Load()
	if err != nil {
		return exitErr(ExitCodeError, err)
	}
	if a.configPath != "" {
		s.ConfigPath = a.configPath
	}
	if a.debug {
		s.LogLevel = logging.LevelDebug.String()
	}
	a.settings = s

	logging.Init(s.Level(), s.LogFormat(), cmd.ErrOrStderr())
	logging.Debug("CLI", "Using config file %s", s.ConfigPath)
	return nil
}

func (a *app) store() *configstore.Store {
	return configstore.NewStore(a.settings.ConfigPath)
}

func (a *app) protector() (protect.Protector, error) {
	p, err := newProtector(a.settings)
	if err != nil {
		return nil, fmt.Errorf("initializing secret protection: %w", err)
	}
	return p, nil
}

// SetVersion sets the version for the root command.
// This function is typically called from the main package to inject the application version at build time.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the main entry point for the CLI application.
// This function is called by main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "audiblezenbot version %s\n" .Version}}`)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(getExitCode(err))
	}
}

// getExitCode determines the appropriate exit code based on the error type.
// This provides semantic exit codes for scripting and automation.
func getExitCode(err error) int {
	if err == nil {
		return ExitCodeSuccess
	}

	var exitError *ExitError
	if errors.As(err, &exitError) {
		return exitError.Code
	}

	if errors.Is(err, configstore.ErrConfigUnparsable) {
		return ExitCodeConfigUnparsable
	}

	// Default to general error
	return ExitCodeError
}
