// Package credentials writes freshly obtained platform tokens into the config
// document, protecting secret fields on the way.
package credentials

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/oauth2"

	"audiblezenbot/internal/configstore"
	"audiblezenbot/internal/platform"
	"audiblezenbot/internal/protect"
	"audiblezenbot/pkg/logging"
)

// Field names inside platforms.<id>.
const (
	FieldOAuthToken             = "oauth_token"
	FieldBotTokenTimestamp      = "bot_token_timestamp"
	FieldStreamerTokenTimestamp = "streamer_token_timestamp"
	FieldClientID               = "client_id"
	FieldClientSecret           = "client_secret"
)

// ErrNoToken is returned by Lookup when a platform has no stored token.
var ErrNoToken = errors.New("no token stored")

// Persister merges tokens into the config store.
type Persister struct {
	store     *configstore.Store
	protector protect.Protector
	now       func() time.Time
}

// Option configures a Persister.
type Option func(*Persister)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Persister) {
		p.now = now
	}
}

// NewPersister returns a Persister writing through store.
func NewPersister(store *configstore.Store, protector protect.Protector, opts ...Option) *Persister {
	p := &Persister{
		store:     store,
		protector: protector,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Persist stores token for id with fresh timestamps. Failures are logged
// and reported as false; they never propagate, so a token that was obtained
// but could not be saved is still visible to the caller.
func (p *Persister) Persist(id platform.ID, token string) bool {
	if err := p.persist(id, token); err != nil {
		logging.Error("Credentials", err, "Failed to persist %s token to %s", id, p.store.Path())
		return false
	}
	logging.Info("Credentials", "Stored %s token in %s", id, p.store.Path())
	return true
}

// PersistToken is Persist for an oauth2 token.
func (p *Persister) PersistToken(id platform.ID, token *oauth2.Token) bool {
	if token == nil || token.AccessToken == "" {
		logging.Error("Credentials", errors.New("empty access token"), "Refusing to persist %s token", id)
		return false
	}
	return p.Persist(id, token.AccessToken)
}

func (p *Persister) persist(id platform.ID, token string) error {
	if !id.Valid() {
		return fmt.Errorf("%w: %q", platform.ErrUnknownPlatform, id)
	}

	protected, err := protect.ProtectString(p.protector, token)
	if err != nil {
		return fmt.Errorf("protecting token: %w", err)
	}

	// Both timestamps get the same value: the flow does not distinguish
	// bot and streamer grants yet.
	now := p.now().Unix()
	fields := map[string]any{
		FieldOAuthToken:             protected,
		FieldBotTokenTimestamp:      now,
		FieldStreamerTokenTimestamp: now,
	}

	return p.store.MergePlatform(string(id), fields)
}

// Stored describes a persisted platform credential.
type Stored struct {
	Platform          platform.ID
	Token             string
	Encrypted         bool
	BotTokenTime      time.Time
	StreamerTokenTime time.Time
}

// Lookup reads and unprotects the stored token for id.
func (p *Persister) Lookup(id platform.ID) (*Stored, error) {
	res, err := p.store.Load()
	if err != nil {
		return nil, err
	}
	if res.Status == configstore.StatusUnparsable {
		return nil, res.ParseErr
	}

	doc := res.Document
	raw, ok := doc.PlatformString(string(id), FieldOAuthToken)
	if !ok || raw == "" {
		return nil, fmt.Errorf("%s: %w", id, ErrNoToken)
	}

	token, err := protect.UnprotectString(p.protector, raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", id, err)
	}

	s := &Stored{
		Platform:  id,
		Token:     token,
		Encrypted: protect.IsProtected(raw),
	}
	if ts, ok := doc.PlatformInt(string(id), FieldBotTokenTimestamp); ok {
		s.BotTokenTime = time.Unix(ts, 0)
	}
	if ts, ok := doc.PlatformInt(string(id), FieldStreamerTokenTimestamp); ok {
		s.StreamerTokenTime = time.Unix(ts, 0)
	}
	return s, nil
}

// ClientCredentials reads client_id and client_secret stored for id,
// unprotecting the secret. Missing fields yield empty strings.
func ClientCredentials(doc *configstore.Document, p protect.Protector, id platform.ID) (platform.Credentials, error) {
	var creds platform.Credentials
	creds.ClientID, _ = doc.PlatformString(string(id), FieldClientID)

	secret, ok := doc.PlatformString(string(id), FieldClientSecret)
	if !ok || secret == "" {
		return creds, nil
	}

	plain, err := protect.UnprotectString(p, secret)
	if err != nil {
		return creds, fmt.Errorf("%s %s: %w", id, FieldClientSecret, err)
	}
	creds.ClientSecret = plain
	return creds, nil
}
