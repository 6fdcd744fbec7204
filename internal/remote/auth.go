package remote

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	authSignUpPath  = "/auth/v1/signup"
	authTokenPath   = "/auth/v1/token"
	authSignOutPath = "/auth/v1/logout"
)

// User is the authenticated identity; ID scopes every remote row.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Session is an authenticated session with the remote service.
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	User         User   `json:"user"`
}

// ExpiresBefore reports whether the access token expires before t. The token
// is inspected without signature verification; only the server can verify it,
// we just need the expiry to decide when to re-authenticate. Tokens we cannot
// parse are treated as expired.
func (s *Session) ExpiresBefore(t time.Time) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(s.AccessToken, claims); err != nil {
		return true
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return true
	}
	return exp.Before(t)
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignUp registers a new identity and signs in.
func (c *Client) SignUp(ctx context.Context, email, password string) (*Session, error) {
	var session Session
	if err := c.do(ctx, http.MethodPost, authSignUpPath, nil, credentials{email, password}, &session); err != nil {
		return nil, fmt.Errorf("sign up failed: %w", err)
	}
	c.setSession(&session)
	return &session, nil
}

// SignIn authenticates with email and password.
func (c *Client) SignIn(ctx context.Context, email, password string) (*Session, error) {
	q := url.Values{}
	q.Set("grant_type", "password")
	var session Session
	if err := c.do(ctx, http.MethodPost, authTokenPath, q, credentials{email, password}, &session); err != nil {
		return nil, fmt.Errorf("sign in failed: %w", err)
	}
	c.setSession(&session)
	return &session, nil
}

// SignOut revokes the session. The local session is cleared even when the
// revocation call fails; the caller is going offline either way.
func (c *Client) SignOut(ctx context.Context) error {
	err := c.do(ctx, http.MethodPost, authSignOutPath, nil, nil, nil)
	c.setSession(nil)
	if err != nil {
		return fmt.Errorf("sign out failed: %w", err)
	}
	return nil
}
