package oauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"audiblezenbot/internal/platform"
)

// stateBytes is the number of random bytes in the state parameter; 32 bytes
// encode to 43 base64url characters.
const stateBytes = 32

// GenerateState returns a random anti-forgery state parameter.
func GenerateState() (string, error) {
	b := make([]byte, stateBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// State is the lifecycle state of a Session.
type State int

const (
	StateIdle State = iota
	StateAwaitingRedirect
	StateExchangingToken
	StateCompleted
	StateTimedOut
	StateFailed
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingRedirect:
		return "awaiting_redirect"
	case StateExchangingToken:
		return "exchanging_token"
	case StateCompleted:
		return "completed"
	case StateTimedOut:
		return "timed_out"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions follow.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateTimedOut || s == StateFailed
}

// Result is the outcome of one Authenticate call: a token on success or an
// *AuthError on failure, never both.
type Result struct {
	Platform platform.ID
	Token    *oauth2.Token
	Err      error
}

// OK reports whether the result carries a token.
func (r Result) OK() bool {
	return r.Err == nil && r.Token != nil
}

// Reason returns the failure reason, or "" on success.
func (r Result) Reason() string {
	if ae, ok := AsAuthError(r.Err); ok {
		return ae.Reason
	}
	if r.Err != nil {
		return r.Err.Error()
	}
	return ""
}

// Session is one in-flight authentication attempt.
type Session struct {
	ID        string
	Platform  platform.ID
	CreatedAt time.Time
	Deadline  time.Time

	authURL string
	server  *CallbackServer
	cancel  context.CancelCauseFunc

	mu     sync.Mutex
	state  State
	result Result

	once sync.Once
	done chan struct{}
}

// AuthURL returns the authorization URL the browser was pointed at.
func (s *Session) AuthURL() string {
	return s.authURL
}

// RedirectURI returns the loopback redirect URI of this session.
func (s *Session) RedirectURI() string {
	return s.server.RedirectURI()
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done is closed once the session has a Result.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Result returns the outcome and whether it is available yet.
func (s *Session) Result() (Result, bool) {
	select {
	case <-s.done:
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.result, true
	default:
		return Result{}, false
	}
}

// Wait blocks until the session finishes or ctx is done. Abandoning the wait
// does not cancel the session; the coordinator's deadline still applies.
func (s *Session) Wait(ctx context.Context) (Result, error) {
	select {
	case <-s.done:
		r, _ := s.Result()
		return r, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.Terminal() {
		s.state = st
	}
}

// finish records the result exactly once and reports whether this call won.
func (s *Session) finish(r Result) bool {
	won := false
	s.once.Do(func() {
		won = true
		s.mu.Lock()
		switch {
		case r.OK():
			s.state = StateCompleted
		case s.state != StateTimedOut:
			s.state = StateFailed
		}
		s.result = r
		s.mu.Unlock()
		close(s.done)
	})
	return won
}

// abort cancels the session with cause and releases its listener before
// returning, so the port can be reused immediately.
func (s *Session) abort(cause error) {
	s.cancel(cause)
	s.server.Stop()
}
