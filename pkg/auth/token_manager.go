// Package auth manages the OAuth2 token lifecycle against the Rise Gardens
// Auth0 tenant.
//
// It provides:
//   - Password-realm grant authentication
//   - Refresh grant renewal with refresh token rotation
//   - Proactive renewal five minutes before expiry
//   - A single rotation callback so callers can persist new refresh tokens
//
// Failures are logged and reported as false; nothing in this package
// returns authentication errors to its callers.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/andreweacott/risegarden-exporter/pkg/logger"
	"github.com/andreweacott/risegarden-exporter/pkg/metrics"
	"golang.org/x/oauth2"
)

// Auth0 tenant used by the Rise Gardens mobile app
const (
	DefaultAuthDomain      = "rise-api-prod.auth0.com"
	ClientID               = "emZRRctislhPO5ghhbWsJi5DNbvl4yUt"
	Realm                  = "Username-Password-Authentication"
	Scope                  = "openid profile email offline_access"
	PasswordRealmGrantType = "http://auth0.com/oauth/grant-type/password-realm"
	RefreshTokenGrantType  = "refresh_token"
)

const (
	// DefaultExpiresIn applies when the token response has no expires_in
	DefaultExpiresIn = 36000 * time.Second
	// RefreshMargin is how long before expiry EnsureValid renews the token
	RefreshMargin = 5 * time.Minute
	// RequestTimeout bounds every token endpoint call
	RequestTimeout = 30 * time.Second
	// MaxExpiresIn caps the lifetime accepted from the identity provider
	MaxExpiresIn = 365 * 24 * time.Hour

	userAgent   = "okhttp/3.14.9"
	auth0Client = "eyJuYW1lIjoicmVhY3QtbmF0aXZlLWF1dGgwIiwidmVyc2lvbiI6IjIuMTEuMCJ9"
	maxBodySize = 1 << 20
)

// TokenURL returns the token endpoint for an Auth0 domain
func TokenURL(domain string) string {
	return fmt.Sprintf("https://%s/oauth/token", domain)
}

// RotationFunc receives a refresh token that differs from the one held before
type RotationFunc func(refreshToken string)

// Options configures a TokenManager
type Options struct {
	// TokenURL defaults to TokenURL(DefaultAuthDomain)
	TokenURL string
	// HTTPClient defaults to a client with RequestTimeout
	HTTPClient *http.Client
	// RefreshToken seeds the session with a persisted refresh token
	RefreshToken string
	Logger       *logger.Logger
	Metrics      *metrics.ExporterMetrics
	// Now defaults to time.Now
	Now func() time.Time
}

// TokenManager owns the session and performs all token exchanges.
//
// Exchanges and rotation callbacks are serialised by exchangeMu, so
// concurrent callers never run two grants or persist a token twice.
// Session reads only take mu.
type TokenManager struct {
	creds      Credentials
	tokenURL   string
	httpClient *http.Client
	oauth      *oauth2.Config
	log        *logger.Logger
	metrics    *metrics.ExporterMetrics
	now        func() time.Time

	exchangeMu sync.Mutex

	mu       sync.RWMutex
	session  Session
	onRotate RotationFunc
}

// NewTokenManager creates a TokenManager for creds
func NewTokenManager(creds Credentials, opts Options) *TokenManager {
	tm := &TokenManager{
		creds:      creds,
		tokenURL:   opts.TokenURL,
		httpClient: opts.HTTPClient,
		log:        logger.OrDiscard(opts.Logger),
		metrics:    opts.Metrics,
		now:        opts.Now,
		session:    Session{RefreshToken: opts.RefreshToken},
	}
	if tm.tokenURL == "" {
		tm.tokenURL = TokenURL(DefaultAuthDomain)
	}
	if tm.httpClient == nil {
		tm.httpClient = &http.Client{Timeout: RequestTimeout}
	}
	if tm.now == nil {
		tm.now = time.Now
	}
	tm.oauth = &oauth2.Config{
		ClientID: ClientID,
		Endpoint: oauth2.Endpoint{
			TokenURL:  tm.tokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	return tm
}

// SetRotationCallback registers fn as the single rotation subscriber
func (tm *TokenManager) SetRotationCallback(fn RotationFunc) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.onRotate = fn
}

// Session returns the current session
func (tm *TokenManager) Session() Session {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return tm.session
}

// Authenticate performs a password-realm grant and installs the result
func (tm *TokenManager) Authenticate(ctx context.Context) bool {
	tm.exchangeMu.Lock()
	defer tm.exchangeMu.Unlock()
	return tm.authenticate(ctx)
}

// RefreshAccessToken renews the access token with the refresh grant. It
// falls back to Authenticate when no refresh token is held or the refresh
// grant fails.
func (tm *TokenManager) RefreshAccessToken(ctx context.Context) bool {
	tm.exchangeMu.Lock()
	defer tm.exchangeMu.Unlock()
	return tm.refresh(ctx)
}

// EnsureValid renews the token when it expires within RefreshMargin. The
// outcome is not reported: a failed renewal is caught by the 401 path.
func (tm *TokenManager) EnsureValid(ctx context.Context) {
	if !tm.needsRefresh() {
		return
	}

	tm.exchangeMu.Lock()
	defer tm.exchangeMu.Unlock()

	// Another caller may have renewed while we waited.
	if !tm.needsRefresh() {
		return
	}
	tm.refresh(ctx)
}

func (tm *TokenManager) needsRefresh() bool {
	return tm.Session().NeedsRefresh(tm.now(), RefreshMargin)
}

type passwordGrant struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	Realm     string `json:"realm"`
	Scope     string `json:"scope"`
	ClientID  string `json:"client_id"`
	GrantType string `json:"grant_type"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func (tm *TokenManager) authenticate(ctx context.Context) bool {
	tok, err := tm.exchange(ctx, passwordGrant{
		Username:  tm.creds.Username,
		Password:  tm.creds.Password,
		Realm:     Realm,
		Scope:     Scope,
		ClientID:  ClientID,
		GrantType: PasswordRealmGrantType,
	})
	if err != nil {
		tm.log.WithError(err).Error("Rise Gardens authentication failed")
		tm.recordFailure()
		return false
	}

	tm.install(tok, false)
	tm.log.Info("Rise Gardens authentication successful")
	return true
}

func (tm *TokenManager) refresh(ctx context.Context) bool {
	current := tm.Session()
	if current.RefreshToken == "" {
		return tm.authenticate(ctx)
	}

	tok, err := tm.refreshGrant(ctx, current.RefreshToken)
	if err != nil {
		tm.log.WithError(err).Warn("Token refresh failed, falling back to full authentication")
		tm.recordFailure()
		tm.distrust()
		return tm.authenticate(ctx)
	}

	if tm.metrics != nil {
		tm.metrics.IncrementTokenRefreshes()
	}
	tm.install(tok, true)
	tm.log.Debug("Access token refreshed", "expires_at", tm.Session().ExpiresAt)
	return true
}

// install commits a token response. A changed refresh token is handed to
// the rotation callback before the new session becomes visible.
func (tm *TokenManager) install(tok tokenResponse, refreshed bool) {
	now := tm.now()

	tm.mu.RLock()
	previous := tm.session.RefreshToken
	onRotate := tm.onRotate
	tm.mu.RUnlock()

	refreshToken := tok.RefreshToken
	if refreshToken == "" {
		refreshToken = previous
	}

	if refreshToken != previous {
		if refreshed {
			tm.log.Info("Refresh token rotated")
			if tm.metrics != nil {
				tm.metrics.IncrementTokenRotations()
			}
		}
		if onRotate != nil {
			onRotate(refreshToken)
		}
	}

	expiresIn := lifetime(tok.ExpiresIn)

	tm.mu.Lock()
	tm.session = Session{
		AccessToken:  tok.AccessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    now.Add(expiresIn),
	}
	tm.mu.Unlock()

	if tm.metrics != nil {
		tm.metrics.RecordAuthenticationSuccess(now)
	}
}

// lifetime converts expires_in seconds, applying the default and the cap
func lifetime(expiresIn int64) time.Duration {
	if expiresIn <= 0 {
		return DefaultExpiresIn
	}
	if expiresIn > int64(MaxExpiresIn/time.Second) {
		return MaxExpiresIn
	}
	return time.Duration(expiresIn) * time.Second
}

// distrust drops the whole session so the next renewal goes straight to
// the password grant and the stale access token is no longer reported.
func (tm *TokenManager) distrust() {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.session = Session{}
}

func (tm *TokenManager) recordFailure() {
	if tm.metrics != nil {
		tm.metrics.IncrementAuthenticationErrors()
		tm.metrics.SetAuthenticationValid(false)
	}
}

// refreshGrant runs the standard refresh_token grant through x/oauth2.
// Non-2xx responses come back as *oauth2.RetrieveError. When the response
// has no refresh_token the library keeps the one sent.
func (tm *TokenManager) refreshGrant(ctx context.Context, refreshToken string) (tokenResponse, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, tm.grantClient())

	tok, err := tm.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return tokenResponse{}, err
	}
	return tokenResponse{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresIn:    expiresInOf(tok),
	}, nil
}

// grantClient is httpClient with the Auth0 client headers added
func (tm *TokenManager) grantClient() *http.Client {
	return &http.Client{
		Timeout:   tm.httpClient.Timeout,
		Transport: &auth0Transport{base: tm.httpClient.Transport},
	}
}

// expiresInOf reads the raw expires_in so the manager's clock and
// defaults apply instead of the library's computed expiry.
func expiresInOf(tok *oauth2.Token) int64 {
	switch v := tok.Extra("expires_in").(type) {
	case float64:
		if v > float64(MaxExpiresIn/time.Second) {
			return int64(MaxExpiresIn / time.Second)
		}
		return int64(v)
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

// auth0Transport sets the headers the Rise Gardens app sends to Auth0
type auth0Transport struct {
	base http.RoundTripper
}

func (t *auth0Transport) RoundTrip(r *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	r = r.Clone(r.Context())
	r.Header.Set("accept", "application/json")
	r.Header.Set("auth0-client", auth0Client)
	r.Header.Set("User-Agent", userAgent)
	return base.RoundTrip(r)
}

// exchange posts a JSON grant to the token endpoint. It serves the
// password-realm grant, which x/oauth2 cannot express. Non-200 responses
// are returned as *oauth2.RetrieveError.
func (tm *TokenManager) exchange(ctx context.Context, grant interface{}) (tokenResponse, error) {
	payload, err := json.Marshal(grant)
	if err != nil {
		return tokenResponse{}, fmt.Errorf("failed to encode grant: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tm.tokenURL, bytes.NewReader(payload))
	if err != nil {
		return tokenResponse{}, fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := tm.grantClient().Do(req)
	if err != nil {
		return tokenResponse{}, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return tokenResponse{}, fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		rerr := &oauth2.RetrieveError{Response: resp, Body: body}
		var e errorResponse
		if json.Unmarshal(body, &e) == nil {
			rerr.ErrorCode = e.Error
			rerr.ErrorDescription = e.ErrorDescription
		}
		return tokenResponse{}, rerr
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return tokenResponse{}, fmt.Errorf("failed to decode token response: %w", err)
	}
	if tok.AccessToken == "" {
		return tokenResponse{}, fmt.Errorf("token response has no access_token")
	}

	return tok, nil
}
