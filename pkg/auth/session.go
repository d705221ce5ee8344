package auth

import (
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// Credentials are the account credentials used for the password grant
type Credentials struct {
	Username string
	Password string
}

// Session is the token state held by a TokenManager. It is a value: the
// manager builds a new Session on every change and never mutates one that
// has been handed out.
type Session struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Authenticated reports whether the session carries an access token
func (s Session) Authenticated() bool {
	return s.AccessToken != ""
}

// NeedsRefresh reports whether now is past the expiry minus margin
func (s Session) NeedsRefresh(now time.Time, margin time.Duration) bool {
	return now.After(s.ExpiresAt.Add(-margin))
}

// Token returns the session as an oauth2 bearer token
func (s Session) Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  s.AccessToken,
		TokenType:    "Bearer",
		RefreshToken: s.RefreshToken,
		Expiry:       s.ExpiresAt,
	}
}

// SetAuthHeader sets the Authorization header on r
func (s Session) SetAuthHeader(r *http.Request) {
	s.Token().SetAuthHeader(r)
}
