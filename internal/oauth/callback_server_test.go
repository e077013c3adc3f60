package oauth

import (
	"context"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"testing"
	"time"
)

func startTestServer(t *testing.T, label string) (*CallbackServer, string, context.CancelFunc) {
	t.Helper()

	server := NewCallbackServer(CallbackServerConfig{Port: 0, Label: label})
	ctx, cancel := context.WithCancel(context.Background())

	callbackURL, err := server.Start(ctx)
	if err != nil {
		cancel()
		t.Fatalf("Failed to start callback server: %v", err)
	}
	t.Cleanup(func() {
		cancel()
		server.Stop()
	})
	return server, callbackURL, cancel
}

func getBody(t *testing.T, rawURL string) (int, string) {
	t.Helper()
	resp, err := http.Get(rawURL)
	if err != nil {
		t.Fatalf("GET %s: %v", rawURL, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func TestCallbackServer_Start(t *testing.T) {
	server, callbackURL, _ := startTestServer(t, "Twitch")

	if server.Port() == 0 {
		t.Error("expected non-zero port after start")
	}
	want := "http://localhost:" + strconv.Itoa(server.Port()) + CallbackPath
	if callbackURL != want {
		t.Errorf("expected redirect URI %q, got %q", want, callbackURL)
	}
	if server.RedirectURI() != callbackURL {
		t.Errorf("RedirectURI() = %q, want %q", server.RedirectURI(), callbackURL)
	}
}

func TestCallbackServer_PortInUse(t *testing.T) {
	server1, _, _ := startTestServer(t, "Twitch")

	server2 := NewCallbackServer(CallbackServerConfig{Port: server1.Port()})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := server2.Start(ctx); err == nil {
		server2.Stop()
		t.Fatal("expected bind failure on a port in use")
	}
}

func TestCallbackServer_HandleCallback_Success(t *testing.T) {
	server, callbackURL, _ := startTestServer(t, "Twitch")

	status, body := getBody(t, callbackURL+"?code=test-code&state=test-state")
	if status != http.StatusOK {
		t.Errorf("expected 200, got %d", status)
	}
	if !strings.Contains(body, "Twitch") {
		t.Errorf("expected platform label in page, got: %s", body)
	}

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()

	result, err := server.WaitForCallback(waitCtx)
	if err != nil {
		t.Fatalf("WaitForCallback failed: %v", err)
	}
	if result.Code != "test-code" {
		t.Errorf("expected code 'test-code', got %q", result.Code)
	}
	if result.State != "test-state" {
		t.Errorf("expected state 'test-state', got %q", result.State)
	}
	if result.IsError() {
		t.Error("expected success, but IsError() returned true")
	}
}

func TestCallbackServer_HandleCallback_Error(t *testing.T) {
	server, callbackURL, _ := startTestServer(t, "YouTube")

	status, body := getBody(t, callbackURL+"?error=access_denied&error_description=User+denied+access")
	if status != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", status)
	}
	if !strings.Contains(body, "access_denied") {
		t.Errorf("expected error code in page, got: %s", body)
	}

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()

	result, err := server.WaitForCallback(waitCtx)
	if err != nil {
		t.Fatalf("WaitForCallback failed: %v", err)
	}
	if !result.IsError() {
		t.Error("expected error result")
	}
	if result.Error != "access_denied" {
		t.Errorf("expected error 'access_denied', got %q", result.Error)
	}
	if result.ErrorDescription != "User denied access" {
		t.Errorf("expected description 'User denied access', got %q", result.ErrorDescription)
	}
}

func TestCallbackServer_EscapesErrorPage(t *testing.T) {
	_, callbackURL, _ := startTestServer(t, "Kick")

	_, body := getBody(t, callbackURL+"?error=%3Cscript%3Ealert(1)%3C%2Fscript%3E")
	if strings.Contains(body, "<script>alert(1)</script>") {
		t.Error("error parameter must be HTML-escaped")
	}
}

func TestCallbackServer_SecurityHeaders(t *testing.T) {
	_, callbackURL, _ := startTestServer(t, "Trovo")

	resp, err := http.Get(callbackURL + "?code=c&state=s")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	for header, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Cache-Control":          "no-store",
	} {
		if got := resp.Header.Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}
}

func TestCallbackServer_WaitForCallback_ContextCanceled(t *testing.T) {
	server, _, _ := startTestServer(t, "Twitch")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := server.WaitForCallback(ctx); err == nil {
		t.Fatal("expected context error")
	}
}

func TestCallbackServer_StopReleasesPort(t *testing.T) {
	server, _, _ := startTestServer(t, "Twitch")
	port := server.Port()

	server.Stop()
	server.Stop()

	ln, err := net.Listen("tcp", net.JoinHostPort(DefaultCallbackHost, strconv.Itoa(port)))
	if err != nil {
		t.Fatalf("port %d should be free after Stop: %v", port, err)
	}
	ln.Close()
}

func TestCallbackServer_StopsOnContextDone(t *testing.T) {
	_, callbackURL, cancel := startTestServer(t, "Twitch")

	cancel()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(callbackURL + "?code=late")
		if err != nil {
			return
		}
		resp.Body.Close()
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("server still accepting connections after context was canceled")
}

func TestRedirectHost(t *testing.T) {
	tests := map[string]string{
		"127.0.0.1": "localhost",
		"::1":       "localhost",
		"localhost": "localhost",
		"10.0.0.5":  "10.0.0.5",
	}
	for in, want := range tests {
		if got := redirectHost(in); got != want {
			t.Errorf("redirectHost(%q) = %q, want %q", in, got, want)
		}
	}
}
