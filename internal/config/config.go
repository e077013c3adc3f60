// Package config loads process settings from the environment and an optional
// .env file, and resolves each platform's client credentials.
package config

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"audiblezenbot/internal/configstore"
	"audiblezenbot/internal/platform"
	"audiblezenbot/pkg/logging"
)

// ClientCredentials is the client id and secret of one platform application.
type ClientCredentials struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
}

// Settings holds all environment-based configuration.
type Settings struct {
	// Environment controls log format; "production" logs JSON.
	Environment string `env:"AUDIBLEZENBOT_ENV" envDefault:"development"`
	LogLevel    string `env:"AUDIBLEZENBOT_LOG_LEVEL" envDefault:"info"`

	// ConfigPath is the credential document, relative to the working directory.
	ConfigPath string `env:"AUDIBLEZENBOT_CONFIG_PATH" envDefault:".audiblezenbot/config.json"`

	AuthTimeout  time.Duration `env:"AUDIBLEZENBOT_AUTH_TIMEOUT" envDefault:"5m"`
	CallbackHost string        `env:"AUDIBLEZENBOT_CALLBACK_HOST" envDefault:"127.0.0.1"`

	// CallbackPort overrides every platform's registered port when non-zero.
	CallbackPort int `env:"AUDIBLEZENBOT_CALLBACK_PORT" envDefault:"0"`

	// KeyDir overrides where the secret protection key lives on Unix.
	KeyDir string `env:"AUDIBLEZENBOT_KEY_DIR"`

	Twitch  ClientCredentials `envPrefix:"TWITCH_"`
	YouTube ClientCredentials `envPrefix:"YOUTUBE_"`
	Trovo   ClientCredentials `envPrefix:"TROVO_"`
	Kick    ClientCredentials `envPrefix:"KICK_"`
}

// warnInsecureEnvFile warns when a .env file is readable by group or others.
func warnInsecureEnvFile() {
	if runtime.GOOS == "windows" {
		return
	}

	info, err := os.Stat(".env")
	if err != nil {
		return
	}

	if mode := info.Mode().Perm(); mode&0o077 != 0 {
		logging.Warn("Config", ".env file has insecure permissions %04o; recommended 0600", mode)
	}
}

// Load reads settings from the environment after loading .env if present.
func Load() (*Settings, error) {
	_ = godotenv.Load()

	warnInsecureEnvFile()

	s := &Settings{}
	if err := env.Parse(s); err != nil {
		return nil, fmt.Errorf("parsing settings: %w", err)
	}

	if s.ConfigPath == "" {
		s.ConfigPath = configstore.DefaultPath()
	}

	if err := s.validate(); err != nil {
		return nil, fmt.Errorf("validating settings: %w", err)
	}

	return s, nil
}

func (s *Settings) validate() error {
	if s.AuthTimeout <= 0 {
		return fmt.Errorf("AUDIBLEZENBOT_AUTH_TIMEOUT must be positive, got %s", s.AuthTimeout)
	}

	if s.CallbackPort < 0 || s.CallbackPort > 65535 {
		return fmt.Errorf("AUDIBLEZENBOT_CALLBACK_PORT out of range: %d", s.CallbackPort)
	}

	if _, ok := logging.ParseLevel(s.LogLevel); !ok {
		return fmt.Errorf("AUDIBLEZENBOT_LOG_LEVEL: unknown level %q", s.LogLevel)
	}

	return nil
}

// IsProduction returns true when the environment is set to production.
func (s *Settings) IsProduction() bool {
	return s.Environment == "production"
}

// Level returns the configured log level.
func (s *Settings) Level() logging.LogLevel {
	lvl, _ := logging.ParseLevel(s.LogLevel)
	return lvl
}

// LogFormat returns JSON in production and text otherwise.
func (s *Settings) LogFormat() logging.Format {
	if s.IsProduction() {
		return logging.FormatJSON
	}
	return logging.FormatText
}

// Credentials returns the client credentials set in the environment for id.
func (s *Settings) Credentials(id platform.ID) ClientCredentials {
	switch id {
	case platform.Twitch:
		return s.Twitch
	case platform.YouTube:
		return s.YouTube
	case platform.Trovo:
		return s.Trovo
	case platform.Kick:
		return s.Kick
	default:
		return ClientCredentials{}
	}
}
