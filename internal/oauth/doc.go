// Package oauth drives the OAuth 2.0 authorization-code flow for the
// streaming platforms a bot account signs in to.
//
// # Flow
//
// Coordinator.Authenticate binds a loopback listener, opens the platform's
// authorization page in the browser and returns a Session immediately. The
// session then waits for the redirect, verifies the state parameter and
// exchanges the code for a token (with PKCE where the platform supports it):
//
//	coord := oauth.NewCoordinator(registry)
//	session, err := coord.Authenticate(ctx, platform.Twitch)
//	if err != nil {
//	    return err
//	}
//	result, err := session.Wait(ctx)
//
// Every session ends with exactly one Result: a token, or an *AuthError
// whose Kind says what went wrong. The listener is released on every path.
//
// # Concurrency
//
// Sessions for different platforms run independently. At most one session
// per platform is pending; starting another supersedes it.
package oauth
