package oauth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"audiblezenbot/internal/platform"
	"audiblezenbot/pkg/logging"
)

// DefaultTimeout bounds one authentication attempt.
const DefaultTimeout = 5 * time.Minute

// DefaultHTTPTimeout is the timeout for token endpoint requests.
const DefaultHTTPTimeout = 30 * time.Second

// Coordinator drives OAuth authorization-code flows, at most one session per
// platform. A second Authenticate for a platform with a pending session
// cancels the stale session (it fails with KindSuperseded) and starts fresh.
type Coordinator struct {
	registry     *platform.Registry
	timeout      time.Duration
	openBrowser  func(string) error
	httpClient   *http.Client
	callbackHost string
	portOverride *int
	now          func() time.Time

	mu       sync.Mutex
	sessions map[platform.ID]*Session
	closed   bool
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithTimeout sets the per-session deadline.
func WithTimeout(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithBrowserOpener replaces the function that opens the authorization URL.
func WithBrowserOpener(open func(string) error) CoordinatorOption {
	return func(c *Coordinator) {
		c.openBrowser = open
	}
}

// WithHTTPClient sets the client used for the token exchange.
func WithHTTPClient(client *http.Client) CoordinatorOption {
	return func(c *Coordinator) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithCallbackHost sets the loopback bind address.
func WithCallbackHost(host string) CoordinatorOption {
	return func(c *Coordinator) {
		if host != "" {
			c.callbackHost = host
		}
	}
}

// WithCallbackPort binds every session to port instead of the platform's
// registered port. 0 picks an ephemeral port.
func WithCallbackPort(port int) CoordinatorOption {
	return func(c *Coordinator) {
		c.portOverride = &port
	}
}

// WithClock overrides the time source for session timestamps and deadlines.
func WithClock(now func() time.Time) CoordinatorOption {
	return func(c *Coordinator) {
		c.now = now
	}
}

// NewCoordinator creates a coordinator over registry.
func NewCoordinator(registry *platform.Registry, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		registry:     registry,
		timeout:      DefaultTimeout,
		openBrowser:  OpenBrowser,
		httpClient:   &http.Client{Timeout: DefaultHTTPTimeout},
		callbackHost: DefaultCallbackHost,
		now:          time.Now,
		sessions:     make(map[platform.ID]*Session),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Authenticate starts a flow for id and returns without waiting for it.
// The browser is pointed at the authorization URL, a loopback listener
// waits for the redirect and the code is exchanged for a token. The outcome
// is delivered exactly once through the returned Session.
//
// Canceling ctx cancels the session.
func (c *Coordinator) Authenticate(ctx context.Context, id platform.ID) (*Session, error) {
	desc, err := c.registry.Descriptor(id)
	if err != nil {
		return nil, err
	}
	if creds, ok := c.registry.Credentials(id); !ok || creds.ClientID == "" {
		return nil, fmt.Errorf("%s: %w", id, platform.ErrPlatformNotConfigured)
	}

	c.mu.Lock()

	if c.closed {
		c.mu.Unlock()
		return nil, ErrCoordinatorClosed
	}

	if prev := c.sessions[id]; prev != nil {
		logging.Info("OAuth", "Superseding pending %s session %s", id, prev.ID)
		prev.abort(ErrSuperseded)
		delete(c.sessions, id)
	}

	s, err := c.newSession(ctx, desc)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	c.sessions[id] = s
	c.mu.Unlock()

	logging.Info("OAuth", "Started %s session %s, waiting for redirect on %s until %s",
		id, s.ID, s.RedirectURI(), s.Deadline.Format(time.RFC3339))

	if c.openBrowser != nil {
		if err := c.openBrowser(s.authURL); err != nil {
			logging.WarnErr("OAuth", err, "Could not open a browser for %s; open the authorization URL manually", id)
		}
	}

	return s, nil
}

// newSession binds the listener and prepares the session. Must be called
// with c.mu held.
func (c *Coordinator) newSession(parent context.Context, desc platform.Descriptor) (*Session, error) {
	port := desc.CallbackPort
	if c.portOverride != nil {
		port = *c.portOverride
	}

	server := NewCallbackServer(CallbackServerConfig{
		Host:  c.callbackHost,
		Port:  port,
		Label: desc.DisplayName,
	})

	// The timer and the reported Deadline share one instant, so a timeout
	// never fires before Deadline.
	created := c.now()
	deadline := created.Add(c.timeout)

	baseCtx, cancel := context.WithCancelCause(parent)
	waitCtx, cancelTimeout := context.WithDeadlineCause(baseCtx, deadline, ErrAuthTimeout)

	fail := func(err error) (*Session, error) {
		cancelTimeout()
		cancel(err)
		server.Stop()
		return nil, err
	}

	redirectURI, err := server.Start(waitCtx)
	if err != nil {
		return fail(fmt.Errorf("%s: %w", desc.ID, err))
	}

	cfg, _, err := c.registry.OAuth2Config(desc.ID, redirectURI)
	if err != nil {
		return fail(err)
	}

	state, err := GenerateState()
	if err != nil {
		return fail(err)
	}

	var verifier string
	authOpts := authParams(desc.AuthParams)
	if desc.PKCE {
		verifier = oauth2.GenerateVerifier()
		authOpts = append(authOpts, oauth2.S256ChallengeOption(verifier))
	}

	s := &Session{
		ID:        uuid.NewString(),
		Platform:  desc.ID,
		CreatedAt: created,
		Deadline:  deadline,
		authURL:   cfg.AuthCodeURL(state, authOpts...),
		server:    server,
		cancel:    cancel,
		state:     StateAwaitingRedirect,
		done:      make(chan struct{}),
	}

	go c.run(waitCtx, cancelTimeout, s, cfg, state, verifier)

	return s, nil
}

func authParams(params map[string]string) []oauth2.AuthCodeOption {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	opts := make([]oauth2.AuthCodeOption, 0, len(keys)+1)
	for _, k := range keys {
		opts = append(opts, oauth2.SetAuthURLParam(k, params[k]))
	}
	return opts
}

// run waits for the redirect and performs the exchange. Every exit path
// stops the listener and removes the session from the registry.
func (c *Coordinator) run(ctx context.Context, cancel context.CancelFunc, s *Session, cfg *oauth2.Config, state, verifier string) {
	defer c.release(s)
	defer s.server.Stop()
	defer cancel()

	cb, err := s.server.WaitForCallback(ctx)
	if err != nil {
		c.deliver(s, c.contextFailure(ctx, s, err))
		return
	}

	// Stop accepting connections before the exchange.
	s.server.Stop()

	// A denial carries no code, so it is reported as-is even when the
	// platform omits state.
	if cb.IsError() {
		c.deliver(s, c.failure(s, KindDenied, cb.Error, cb.ErrorDescription, nil))
		return
	}

	if subtle.ConstantTimeCompare([]byte(cb.State), []byte(state)) != 1 {
		logging.Warn("OAuth", "State mismatch on %s redirect, possible forgery", s.Platform)
		c.deliver(s, c.failure(s, KindStateMismatch, "state mismatch", "", nil))
		return
	}

	if cb.Code == "" {
		c.deliver(s, c.failure(s, KindMalformedCallback, "missing authorization code", "", nil))
		return
	}

	s.setState(StateExchangingToken)
	logging.Debug("OAuth", "Exchanging %s authorization code", s.Platform)

	var exchangeOpts []oauth2.AuthCodeOption
	if verifier != "" {
		exchangeOpts = append(exchangeOpts, oauth2.VerifierOption(verifier))
	}

	token, err := cfg.Exchange(context.WithValue(ctx, oauth2.HTTPClient, c.httpClient), cb.Code, exchangeOpts...)
	if err != nil {
		if ctx.Err() != nil {
			c.deliver(s, c.contextFailure(ctx, s, err))
			return
		}
		c.deliver(s, c.failure(s, KindExchangeFailed, "token exchange failed", "", err))
		return
	}

	c.deliver(s, Result{Platform: s.Platform, Token: token})
}

// contextFailure classifies a wait that ended because ctx was done or the
// listener failed.
func (c *Coordinator) contextFailure(ctx context.Context, s *Session, err error) Result {
	cause := context.Cause(ctx)
	switch {
	case errors.Is(cause, ErrAuthTimeout):
		s.setState(StateTimedOut)
		return c.failure(s, KindTimeout, TimeoutReason, "", nil)
	case errors.Is(cause, ErrSuperseded):
		return c.failure(s, KindSuperseded, "superseded by a newer authentication", "", nil)
	case errors.Is(cause, ErrCoordinatorClosed):
		return c.failure(s, KindCanceled, "coordinator closed", "", nil)
	case ctx.Err() != nil:
		return c.failure(s, KindCanceled, "canceled", "", cause)
	default:
		return c.failure(s, KindListener, "callback listener failed", "", err)
	}
}

func (c *Coordinator) failure(s *Session, kind Kind, reason, description string, err error) Result {
	return Result{
		Platform: s.Platform,
		Err: &AuthError{
			Platform:    s.Platform,
			Kind:        kind,
			Reason:      reason,
			Description: description,
			Err:         err,
		},
	}
}

func (c *Coordinator) deliver(s *Session, r Result) {
	if !s.finish(r) {
		return
	}
	if r.OK() {
		logging.Info("OAuth", "%s authentication completed (session %s)", s.Platform, s.ID)
		return
	}
	logging.WarnErr("OAuth", r.Err, "%s authentication failed (session %s)", s.Platform, s.ID)
}

// release removes s from the registry if it is still the active session.
func (c *Coordinator) release(s *Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sessions[s.Platform] == s {
		delete(c.sessions, s.Platform)
	}
}

// Active reports whether id has a pending session.
func (c *Coordinator) Active(id platform.ID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.sessions[id]
	return ok
}

// Cancel aborts the pending session for id, if any.
func (c *Coordinator) Cancel(id platform.ID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.sessions[id]
	if !ok {
		return false
	}
	s.abort(ErrCanceled)
	delete(c.sessions, id)
	return true
}

// Close aborts every pending session and rejects new ones.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	for id, s := range c.sessions {
		s.abort(ErrCoordinatorClosed)
		delete(c.sessions, id)
	}
	return nil
}
