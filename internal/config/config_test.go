package config

import (
	"bytes"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"audiblezenbot/internal/configstore"
	"audiblezenbot/internal/platform"
	"audiblezenbot/internal/protect"
	"audiblezenbot/pkg/logging"
)

// clearSettingsEnv unsets all settings env vars so tests start clean.
func clearSettingsEnv(t *testing.T) {
	t.Helper()

	keys := []string{
		"AUDIBLEZENBOT_ENV",
		"AUDIBLEZENBOT_LOG_LEVEL",
		"AUDIBLEZENBOT_CONFIG_PATH",
		"AUDIBLEZENBOT_AUTH_TIMEOUT",
		"AUDIBLEZENBOT_CALLBACK_HOST",
		"AUDIBLEZENBOT_CALLBACK_PORT",
		"AUDIBLEZENBOT_KEY_DIR",
	}
	for _, id := range platform.All() {
		keys = append(keys, id.EnvPrefix()+"_CLIENT_ID", id.EnvPrefix()+"_CLIENT_SECRET")
	}
	for _, key := range keys {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	// Keep a developer's .env out of the test.
	t.Chdir(t.TempDir())
}

func TestLoad_Defaults(t *testing.T) {
	clearSettingsEnv(t)

	s, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "development", s.Environment)
	assert.Equal(t, ".audiblezenbot/config.json", s.ConfigPath)
	assert.Equal(t, 5*time.Minute, s.AuthTimeout)
	assert.Equal(t, "127.0.0.1", s.CallbackHost)
	assert.Zero(t, s.CallbackPort)
	assert.Equal(t, logging.LevelInfo, s.Level())
	assert.Equal(t, logging.FormatText, s.LogFormat())
	assert.False(t, s.IsProduction())
}

func TestLoad_FromEnvironment(t *testing.T) {
	clearSettingsEnv(t)
	t.Setenv("AUDIBLEZENBOT_ENV", "production")
	t.Setenv("AUDIBLEZENBOT_LOG_LEVEL", "debug")
	t.Setenv("AUDIBLEZENBOT_CONFIG_PATH", "/tmp/bot.json")
	t.Setenv("AUDIBLEZENBOT_AUTH_TIMEOUT", "90s")
	t.Setenv("AUDIBLEZENBOT_CALLBACK_PORT", "4000")
	t.Setenv("TWITCH_CLIENT_ID", "twitch-id")
	t.Setenv("TWITCH_CLIENT_SECRET", "twitch-secret")
	t.Setenv("KICK_CLIENT_ID", "kick-id")

	s, err := Load()
	require.NoError(t, err)
	assert.True(t, s.IsProduction())
	assert.Equal(t, logging.FormatJSON, s.LogFormat())
	assert.Equal(t, logging.LevelDebug, s.Level())
	assert.Equal(t, "/tmp/bot.json", s.ConfigPath)
	assert.Equal(t, 90*time.Second, s.AuthTimeout)
	assert.Equal(t, 4000, s.CallbackPort)

	assert.Equal(t, ClientCredentials{ClientID: "twitch-id", ClientSecret: "twitch-secret"}, s.Credentials(platform.Twitch))
	assert.Equal(t, ClientCredentials{ClientID: "kick-id"}, s.Credentials(platform.Kick))
	assert.Equal(t, ClientCredentials{}, s.Credentials(platform.YouTube))
	assert.Equal(t, ClientCredentials{}, s.Credentials(platform.ID("nope")))
}

func TestLoad_DotEnv(t *testing.T) {
	clearSettingsEnv(t)
	require.NoError(t, os.WriteFile(".env", []byte("TROVO_CLIENT_ID=from-dotenv\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("TROVO_CLIENT_ID") })

	s, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", s.Trovo.ClientID)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		wantErr string
	}{
		{"bad duration", "AUDIBLEZENBOT_AUTH_TIMEOUT", "soon", "parsing settings"},
		{"zero timeout", "AUDIBLEZENBOT_AUTH_TIMEOUT", "0s", "AUDIBLEZENBOT_AUTH_TIMEOUT"},
		{"port range", "AUDIBLEZENBOT_CALLBACK_PORT", "70000", "AUDIBLEZENBOT_CALLBACK_PORT"},
		{"log level", "AUDIBLEZENBOT_LOG_LEVEL", "loud", "AUDIBLEZENBOT_LOG_LEVEL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearSettingsEnv(t)
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func testCodec(t *testing.T) *protect.Codec {
	t.Helper()
	sealer, err := protect.NewKeySealer(bytes.Repeat([]byte{3}, 32), "config-test")
	require.NoError(t, err)
	return protect.NewCodec(sealer)
}

func TestResolveCredentials(t *testing.T) {
	codec := testCodec(t)
	secret, err := protect.ProtectString(codec, "stored-secret")
	require.NoError(t, err)

	doc := configstore.NewDocument().
		Merge("twitch", map[string]any{"client_id": "doc-twitch", "client_secret": secret}).
		Merge("youtube", map[string]any{"client_id": "doc-youtube", "client_secret": "plain-secret"}).
		Merge("trovo", map[string]any{"client_secret": "orphan"})

	s := &Settings{
		Twitch: ClientCredentials{ClientID: "env-twitch"},
		Kick:   ClientCredentials{ClientID: "env-kick", ClientSecret: "env-kick-secret"},
	}

	reg := platform.DefaultRegistry()
	configured := ResolveCredentials(reg, s, doc, codec)
	assert.Equal(t, []platform.ID{platform.Kick, platform.Twitch, platform.YouTube}, configured)

	twitch, ok := reg.Credentials(platform.Twitch)
	require.True(t, ok)
	assert.Equal(t, platform.Credentials{ClientID: "env-twitch", ClientSecret: "stored-secret"}, twitch)

	youtube, _ := reg.Credentials(platform.YouTube)
	assert.Equal(t, platform.Credentials{ClientID: "doc-youtube", ClientSecret: "plain-secret"}, youtube)

	kick, _ := reg.Credentials(platform.Kick)
	assert.Equal(t, platform.Credentials{ClientID: "env-kick", ClientSecret: "env-kick-secret"}, kick)

	_, ok = reg.Credentials(platform.Trovo)
	assert.False(t, ok, "a secret without a client id does not configure a platform")
}

func TestResolveCredentials_BadStoredSecret(t *testing.T) {
	doc := configstore.NewDocument().
		Merge("twitch", map[string]any{"client_id": "doc-twitch", "client_secret": "ENC:!!!"})

	reg := platform.DefaultRegistry()
	configured := ResolveCredentials(reg, &Settings{}, doc, testCodec(t))
	assert.Equal(t, []platform.ID{platform.Twitch}, configured)

	twitch, _ := reg.Credentials(platform.Twitch)
	assert.Equal(t, "doc-twitch", twitch.ClientID)
	assert.Empty(t, twitch.ClientSecret)
}

func TestResolveCredentials_NilDocument(t *testing.T) {
	reg := platform.DefaultRegistry()
	configured := ResolveCredentials(reg, &Settings{YouTube: ClientCredentials{ClientID: "yt"}}, nil, testCodec(t))
	assert.Equal(t, []platform.ID{platform.YouTube}, configured)
}
