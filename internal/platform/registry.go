package platform

import (
	"fmt"
	"sync"

	"golang.org/x/oauth2"
)

// Descriptor holds the OAuth parameters of one platform.
type Descriptor struct {
	ID          ID
	DisplayName string

	// AuthURL and TokenURL are the authorization and token endpoints.
	AuthURL  string
	TokenURL string

	Scopes []string

	// PKCE controls whether an S256 code challenge is sent. Kick requires it;
	// the others accept it alongside the client secret.
	PKCE bool

	// AuthParams are extra query parameters added to the authorization URL.
	AuthParams map[string]string

	// CallbackPort is the loopback port registered as redirect URI with the
	// platform. Distinct ports let flows for different platforms run at once.
	CallbackPort int
}

// Credentials are the application's client credentials for a platform.
type Credentials struct {
	ClientID     string
	ClientSecret string
}

// DefaultDescriptors returns the production endpoints of all platforms.
func DefaultDescriptors() []Descriptor {
	return []Descriptor{
		{
			ID:           Twitch,
			DisplayName:  "Twitch",
			AuthURL:      "https://id.twitch.tv/oauth2/authorize",
			TokenURL:     "https://id.twitch.tv/oauth2/token",
			Scopes:       []string{"chat:read", "chat:edit", "user:read:email"},
			PKCE:         true,
			AuthParams:   map[string]string{"force_verify": "true"},
			CallbackPort: 3000,
		},
		{
			ID:           YouTube,
			DisplayName:  "YouTube",
			AuthURL:      "https://accounts.google.com/o/oauth2/v2/auth",
			TokenURL:     "https://oauth2.googleapis.com/token",
			Scopes:       []string{"https://www.googleapis.com/auth/youtube.force-ssl"},
			PKCE:         true,
			AuthParams:   map[string]string{"access_type": "offline", "prompt": "consent"},
			CallbackPort: 3001,
		},
		{
			ID:           Trovo,
			DisplayName:  "Trovo",
			AuthURL:      "https://open.trovo.live/page/login.html",
			TokenURL:     "https://open-api.trovo.live/openplatform/exchangetoken",
			Scopes:       []string{"chat_send_self", "send_to_my_channel", "user_details_self"},
			CallbackPort: 3002,
		},
		{
			ID:           Kick,
			DisplayName:  "Kick",
			AuthURL:      "https://id.kick.com/oauth/authorize",
			TokenURL:     "https://id.kick.com/oauth/token",
			Scopes:       []string{"user:read", "chat:write", "events:subscribe"},
			PKCE:         true,
			CallbackPort: 3003,
		},
	}
}

// Registry maps platform ids to descriptors and client credentials.
// It is safe for concurrent use.
type Registry struct {
	mu          sync.RWMutex
	descriptors map[ID]Descriptor
	credentials map[ID]Credentials
}

// NewRegistry creates a registry from the given descriptors. Descriptors
// with an unknown id are rejected.
func NewRegistry(descriptors ...Descriptor) (*Registry, error) {
	r := &Registry{
		descriptors: make(map[ID]Descriptor, len(descriptors)),
		credentials: make(map[ID]Credentials),
	}
	for _, d := range descriptors {
		if !d.ID.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrUnknownPlatform, d.ID)
		}
		r.descriptors[d.ID] = d
	}
	return r, nil
}

// DefaultRegistry returns a registry with the production descriptors and no
// credentials.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(DefaultDescriptors()...)
	if err != nil {
		// Default descriptors only use known ids.
		panic(err)
	}
	return r
}

// Descriptor returns the descriptor for id.
func (r *Registry) Descriptor(id ID) (Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.descriptors[id]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %q", ErrUnknownPlatform, id)
	}
	return d, nil
}

// SetCredentials registers client credentials for id.
func (r *Registry) SetCredentials(id ID, creds Credentials) error {
	if !id.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownPlatform, id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.credentials[id] = creds
	return nil
}

// Credentials returns the client credentials registered for id.
func (r *Registry) Credentials(id ID) (Credentials, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.credentials[id]
	return c, ok
}

// OAuth2Config builds the oauth2 configuration for id with the given
// redirect URL. Client credentials are sent in the request body because
// Twitch and Kick do not accept HTTP basic auth on their token endpoints.
func (r *Registry) OAuth2Config(id ID, redirectURL string) (*oauth2.Config, Descriptor, error) {
	d, err := r.Descriptor(id)
	if err != nil {
		return nil, Descriptor{}, err
	}

	creds, ok := r.Credentials(id)
	if !ok || creds.ClientID == "" {
		return nil, Descriptor{}, fmt.Errorf("%s: %w", id, ErrPlatformNotConfigured)
	}

	cfg := &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:   d.AuthURL,
			TokenURL:  d.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
		RedirectURL: redirectURL,
		Scopes:      append([]string(nil), d.Scopes...),
	}
	return cfg, d, nil
}
