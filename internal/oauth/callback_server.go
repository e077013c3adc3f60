package oauth

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// DefaultCallbackHost is the loopback address the callback server binds to.
const DefaultCallbackHost = "127.0.0.1"

// CallbackPath is the path of the redirect URI.
const CallbackPath = "/callback"

// shutdownTimeout bounds how long Stop waits for the response in flight.
const shutdownTimeout = 5 * time.Second

//go:embed templates/callback_success.html
var callbackSuccessHTML string

//go:embed templates/callback_error.html
var callbackErrorHTML string

var (
	successTemplate = template.Must(template.New("success").Parse(callbackSuccessHTML))
	errorTemplate   = template.Must(template.New("error").Parse(callbackErrorHTML))
)

// CallbackResult represents the query of an OAuth redirect.
type CallbackResult struct {
	// Code is the authorization code from the OAuth provider.
	Code string

	// State is the state parameter to verify against the original request.
	State string

	// Error is the error code if the authorization failed.
	Error string

	// ErrorDescription is a human-readable error description.
	ErrorDescription string
}

// IsError returns true if the callback result represents an error.
func (r *CallbackResult) IsError() bool {
	return r.Error != ""
}

// CallbackServerConfig configures a CallbackServer.
type CallbackServerConfig struct {
	// Host to bind. Defaults to DefaultCallbackHost.
	Host string

	// Port to bind. 0 picks a free ephemeral port.
	Port int

	// Label is shown on the page the browser lands on.
	Label string
}

// CallbackServer is a temporary local HTTP server for receiving one OAuth
// redirect. It starts, accepts a single callback, then shuts down.
type CallbackServer struct {
	cfg         CallbackServerConfig
	port        int
	server      *http.Server
	listener    net.Listener
	resultCh    chan *CallbackResult
	errorCh     chan error
	once        sync.Once
	stopOnce    sync.Once
	redirectURI string
}

// NewCallbackServer creates a callback server. Nothing is bound until Start.
func NewCallbackServer(cfg CallbackServerConfig) *CallbackServer {
	if cfg.Host == "" {
		cfg.Host = DefaultCallbackHost
	}

	return &CallbackServer{
		cfg:      cfg,
		port:     cfg.Port,
		resultCh: make(chan *CallbackResult, 1),
		errorCh:  make(chan error, 1),
	}
}

// Start binds the listener and begins serving. The server stops when ctx is
// done. Returns the redirect URI to use in the authorization request.
func (s *CallbackServer) Start(ctx context.Context) (string, error) {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("failed to start callback server on %s: %w", addr, err)
	}

	s.listener = listener
	s.port = listener.Addr().(*net.TCPAddr).Port
	s.redirectURI = fmt.Sprintf("http://%s%s", net.JoinHostPort(redirectHost(s.cfg.Host), strconv.Itoa(s.port)), CallbackPath)

	mux := http.NewServeMux()
	mux.HandleFunc(CallbackPath, s.handleCallback)

	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case s.errorCh <- err:
			default:
			}
		}
	}()

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return s.redirectURI, nil
}

// redirectHost maps loopback bind addresses to "localhost", which is what
// the platforms accept as a registered redirect host.
func redirectHost(host string) string {
	if ip := net.ParseIP(host); ip != nil && ip.IsLoopback() {
		return "localhost"
	}
	return host
}

// WaitForCallback waits for the OAuth callback, a server error, or ctx.
func (s *CallbackServer) WaitForCallback(ctx context.Context) (*CallbackResult, error) {
	select {
	case result := <-s.resultCh:
		return result, nil
	case err := <-s.errorCh:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *CallbackServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	handled := false
	s.once.Do(func() {
		handled = true
		s.processCallback(w, r)
	})

	if !handled {
		http.Error(w, "Callback already processed", http.StatusBadRequest)
	}
}

// processCallback is called exactly once via sync.Once.
func (s *CallbackServer) processCallback(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'unsafe-inline'")
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.Header().Set("Cache-Control", "no-store")

	query := r.URL.Query()
	result := &CallbackResult{
		Code:             query.Get("code"),
		State:            query.Get("state"),
		Error:            query.Get("error"),
		ErrorDescription: query.Get("error_description"),
	}

	tmpl := successTemplate
	status := http.StatusOK
	data := map[string]string{"Platform": s.cfg.Label}
	if result.IsError() || result.Code == "" {
		tmpl = errorTemplate
		status = http.StatusBadRequest
		data["Error"] = result.Error
		data["Description"] = result.ErrorDescription
		if result.Error == "" {
			data["Error"] = "missing authorization code"
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_ = tmpl.Execute(w, data)

	select {
	case s.resultCh <- result:
	default:
	}

	// Stop accepting connections; Shutdown lets this response finish.
	go s.Stop()
}

// Stop shuts the server down and releases the port. It is safe to call more
// than once and from several goroutines; it returns once the listener is
// closed.
func (s *CallbackServer) Stop() {
	s.stopOnce.Do(func() {
		if s.server != nil {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = s.server.Shutdown(ctx)
		}
		if s.listener != nil {
			_ = s.listener.Close()
		}
	})
}

// RedirectURI returns the redirect URI, empty before Start.
func (s *CallbackServer) RedirectURI() string {
	return s.redirectURI
}

// Port returns the bound port, or the configured one before Start.
func (s *CallbackServer) Port() int {
	return s.port
}
