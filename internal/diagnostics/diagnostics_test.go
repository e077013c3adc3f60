package diagnostics

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"audiblezenbot/internal/configstore"
	"audiblezenbot/internal/protect"
)

func newCodec(t *testing.T, fill byte) *protect.Codec {
	t.Helper()
	sealer, err := protect.NewKeySealer(bytes.Repeat([]byte{fill}, 32), "diag-test")
	require.NoError(t, err)
	return protect.NewCodec(sealer)
}

func protectedValue(t *testing.T, c *protect.Codec, plain string) string {
	t.Helper()
	v, err := protect.ProtectString(c, plain)
	require.NoError(t, err)
	return v
}

func TestScan_DuplicateKey(t *testing.T) {
	data := []byte(`{
  "platforms": {
    "kick": {
      "oauth_token": "first",
      "oauth_token": "second",
      "bot_token_timestamp": 1
    },
    "twitch": {"oauth_token": "x"}
  }
}`)

	report, err := Scan(data, newCodec(t, 1))
	require.NoError(t, err)
	require.True(t, report.PlatformsFound)
	require.Len(t, report.Platforms, 2)

	kick := report.Platforms[0]
	assert.Equal(t, "kick", kick.ID)
	assert.Equal(t, 2, kick.KeyCounts["oauth_token"])
	assert.Equal(t, 1, kick.KeyCounts["bot_token_timestamp"])
	assert.Equal(t, []string{"oauth_token"}, kick.Duplicates())

	assert.Empty(t, report.Platforms[1].Duplicates())
	assert.False(t, report.Healthy())
}

func TestScan_EncryptedValues(t *testing.T) {
	codec := newCodec(t, 1)
	other := newCodec(t, 2)

	data := []byte(`{"platforms": {"twitch": {
		"oauth_token": "` + protectedValue(t, codec, "tok_xyz") + `",
		"client_secret": "` + protectedValue(t, other, "s3cret") + `",
		"client_id": "plain",
		"nested": {"list": ["` + protectedValue(t, codec, "deep") + `"]}
	}}}`)

	report, err := Scan(data, codec)
	require.NoError(t, err)
	require.Len(t, report.Platforms, 1)

	enc := report.Platforms[0].Encrypted
	require.Len(t, enc, 3)
	assert.Equal(t, "oauth_token", enc[0].Path)
	assert.NoError(t, enc[0].Err)
	assert.Equal(t, "client_secret", enc[1].Path)
	assert.ErrorIs(t, enc[1].Err, protect.ErrProtection)
	assert.Equal(t, "nested.list.0", enc[2].Path)
	assert.NoError(t, enc[2].Err)

	assert.NoError(t, report.RoundTripErr)
	assert.False(t, report.Healthy())
}

func TestScan_Healthy(t *testing.T) {
	codec := newCodec(t, 1)
	data := []byte(`{"other": true, "platforms": {"youtube": {"oauth_token": "` +
		protectedValue(t, codec, "tok") + `", "bot_token_timestamp": 1760000000}}}`)

	report, err := Scan(data, codec)
	require.NoError(t, err)
	assert.True(t, report.Healthy())
}

func TestScan_PlatformsMissingOrWrongType(t *testing.T) {
	report, err := Scan([]byte(`{"other": 1}`), newCodec(t, 1))
	require.NoError(t, err)
	assert.False(t, report.PlatformsFound)
	assert.NoError(t, report.RoundTripErr)

	report, err = Scan([]byte(`{"platforms": [1, 2]}`), newCodec(t, 1))
	require.NoError(t, err)
	assert.False(t, report.PlatformsFound)
	assert.Error(t, report.RoundTripErr)
	assert.False(t, report.Healthy())

	report, err = Scan([]byte(`{"platforms": {"kick": "oops"}}`), newCodec(t, 1))
	require.NoError(t, err)
	require.Len(t, report.Platforms, 1)
	assert.True(t, report.Platforms[0].NotObject)
	assert.False(t, report.Healthy())
}

func TestScan_Unparsable(t *testing.T) {
	tests := map[string]string{
		"garbage":   `{not json`,
		"array":     `[1, 2, 3]`,
		"string":    `"hello"`,
		"empty":     ``,
		"truncated": `{"platforms": {"twitch": {`,
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Scan([]byte(data), newCodec(t, 1))
			assert.ErrorIs(t, err, configstore.ErrConfigUnparsable)
		})
	}
}

func TestInspect(t *testing.T) {
	codec := newCodec(t, 1)
	other := newCodec(t, 2)

	data := []byte(`{
		"platforms": {
			"twitch": {"oauth_token": "` + protectedValue(t, codec, "tok_twitch") + `", "client_id": "plain"},
			"kick": {"oauth_token": "` + protectedValue(t, other, "tok_kick") + `"}
		},
		"extra": [{"secret": "` + protectedValue(t, codec, "in-array") + `"}],
		"broken": "ENC:%%%"
	}`)

	entries, err := Inspect(data, codec)
	require.NoError(t, err)
	require.Len(t, entries, 4)

	assert.Equal(t, "platforms.twitch.oauth_token", entries[0].Path)
	assert.Equal(t, "tok_twitch", entries[0].Value)
	assert.NoError(t, entries[0].Err)

	assert.Equal(t, "platforms.kick.oauth_token", entries[1].Path)
	assert.Empty(t, entries[1].Value)
	assert.ErrorIs(t, entries[1].Err, protect.ErrProtection)

	assert.Equal(t, "extra.0.secret", entries[2].Path)
	assert.Equal(t, "in-array", entries[2].Value)

	assert.Equal(t, "broken", entries[3].Path)
	assert.ErrorIs(t, entries[3].Err, protect.ErrMalformedCiphertext)
}

func TestInspect_NoProtectedValues(t *testing.T) {
	entries, err := Inspect([]byte(`{"platforms": {}}`), newCodec(t, 1))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestInspect_Unparsable(t *testing.T) {
	_, err := Inspect([]byte(`nope`), newCodec(t, 1))
	assert.ErrorIs(t, err, configstore.ErrConfigUnparsable)
}
