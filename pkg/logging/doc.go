// Package logging provides subsystem-tagged structured logging for audiblezenbot.
//
// The package wraps Go's log/slog. Every entry carries a subsystem attribute
// so output from the OAuth coordinator, the config store and the CLI can be
// told apart.
//
// # Usage
//
//	logging.InitForCLI(logging.LevelInfo, os.Stderr)
//
//	logging.Info("OAuth", "Waiting for %s redirect", platformID)
//	logging.Warn("ConfigStore", "Config at %s is not valid JSON, starting empty", path)
//	logging.Error("Credentials", err, "Failed to persist token for %s", platformID)
//
// Production deployments use JSON output:
//
//	logging.Init(logging.LevelInfo, logging.FormatJSON, os.Stderr)
//
// Before initialization, Debug and Info are dropped and Warn/Error fall back
// to a plain line on stderr.
//
// Secret material (tokens, client secrets, decrypted values) must never be
// passed to these functions.
package logging
