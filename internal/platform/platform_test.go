package platform

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    ID
		wantErr bool
	}{
		{"twitch", Twitch, false},
		{"youtube", YouTube, false},
		{"trovo", Trovo, false},
		{"kick", Kick, false},
		{"Twitch", "", true},
		{"KICK", "", true},
		{"", "", true},
		{"facebook", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrUnknownPlatform))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAll_StableOrder(t *testing.T) {
	assert.Equal(t, []ID{Kick, Trovo, Twitch, YouTube}, All())
}

func TestEnvPrefix(t *testing.T) {
	assert.Equal(t, "TWITCH", Twitch.EnvPrefix())
	assert.Equal(t, "YOUTUBE", YouTube.EnvPrefix())
}

func TestDefaultDescriptors_CoverAllPlatforms(t *testing.T) {
	seen := map[ID]bool{}
	ports := map[int]ID{}
	for _, d := range DefaultDescriptors() {
		seen[d.ID] = true
		assert.NotEmpty(t, d.AuthURL, "%s auth url", d.ID)
		assert.NotEmpty(t, d.TokenURL, "%s token url", d.ID)
		assert.NotEmpty(t, d.Scopes, "%s scopes", d.ID)

		other, dup := ports[d.CallbackPort]
		assert.False(t, dup, "%s and %s share callback port %d", d.ID, other, d.CallbackPort)
		ports[d.CallbackPort] = d.ID
	}
	for _, id := range All() {
		assert.True(t, seen[id], "missing descriptor for %s", id)
	}
}

func TestNewRegistry_RejectsUnknownID(t *testing.T) {
	_, err := NewRegistry(Descriptor{ID: "myspace"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownPlatform))
}

func TestRegistry_OAuth2Config(t *testing.T) {
	r := DefaultRegistry()

	_, _, err := r.OAuth2Config(Twitch, "http://localhost:3000/callback")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPlatformNotConfigured))

	require.NoError(t, r.SetCredentials(Twitch, Credentials{ClientID: "cid", ClientSecret: "secret"}))

	cfg, d, err := r.OAuth2Config(Twitch, "http://localhost:3000/callback")
	require.NoError(t, err)
	assert.Equal(t, Twitch, d.ID)
	assert.Equal(t, "cid", cfg.ClientID)
	assert.Equal(t, "secret", cfg.ClientSecret)
	assert.Equal(t, "http://localhost:3000/callback", cfg.RedirectURL)
	assert.Equal(t, oauth2.AuthStyleInParams, cfg.Endpoint.AuthStyle)
	assert.Equal(t, d.Scopes, cfg.Scopes)

	// The returned scopes must not alias the descriptor.
	cfg.Scopes[0] = "mutated"
	d2, err := r.Descriptor(Twitch)
	require.NoError(t, err)
	assert.NotEqual(t, "mutated", d2.Scopes[0])
}

func TestRegistry_SetCredentialsUnknown(t *testing.T) {
	r := DefaultRegistry()
	err := r.SetCredentials(ID("Twitch"), Credentials{ClientID: "x"})
	assert.True(t, errors.Is(err, ErrUnknownPlatform))
}
