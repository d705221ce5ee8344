package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/andreweacott/risegarden-exporter/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tokenReply struct {
	status int
	body   string
}

// fakeIdP is a token endpoint that replays canned replies and records grants
type fakeIdP struct {
	t       *testing.T
	mu      sync.Mutex
	replies []tokenReply
	grants  []map[string]string
	headers []http.Header
}

func newFakeIdP(t *testing.T, replies ...tokenReply) (*fakeIdP, *httptest.Server) {
	idp := &fakeIdP{t: t, replies: replies}
	srv := httptest.NewServer(idp)
	t.Cleanup(srv.Close)
	return idp, srv
}

func (f *fakeIdP) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	assert.Equal(f.t, http.MethodPost, r.Method)

	grant, err := decodeGrant(r)
	if !assert.NoError(f.t, err) {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.grants = append(f.grants, grant)
	f.headers = append(f.headers, r.Header.Clone())
	reply := tokenReply{status: http.StatusInternalServerError, body: `{}`}
	if len(f.replies) > 0 {
		reply = f.replies[0]
		f.replies = f.replies[1:]
	}
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(reply.status)
	_, _ = w.Write([]byte(reply.body))
}

// decodeGrant reads a JSON grant or a form-encoded one
func decodeGrant(r *http.Request) (map[string]string, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		if err := r.ParseForm(); err != nil {
			return nil, err
		}
		grant := map[string]string{}
		for k := range r.PostForm {
			grant[k] = r.PostForm.Get(k)
		}
		return grant, nil
	}
	var grant map[string]string
	err := json.NewDecoder(r.Body).Decode(&grant)
	return grant, err
}

func (f *fakeIdP) recorded() ([]map[string]string, []http.Header) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]string(nil), f.grants...), append([]http.Header(nil), f.headers...)
}

func (f *fakeIdP) grantTypes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	types := make([]string, 0, len(f.grants))
	for _, g := range f.grants {
		types = append(types, g["grant_type"])
	}
	return types
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func ok(body string) tokenReply {
	return tokenReply{status: http.StatusOK, body: body}
}

func newManager(srv *httptest.Server, clock *fakeClock, refreshToken string) *TokenManager {
	return NewTokenManager(
		Credentials{Username: "grower@example.com", Password: "secret"},
		Options{
			TokenURL:     srv.URL + "/oauth/token",
			HTTPClient:   srv.Client(),
			RefreshToken: refreshToken,
			Now:          clock.Now,
		},
	)
}

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// TestAuthenticate_InstallsSession tests the password grant scenario
func TestAuthenticate_InstallsSession(t *testing.T) {
	idp, srv := newFakeIdP(t, ok(`{"access_token":"A","refresh_token":"R","expires_in":100}`))
	clock := &fakeClock{now: epoch}
	tm := newManager(srv, clock, "")

	require.True(t, tm.Authenticate(context.Background()))

	session := tm.Session()
	assert.Equal(t, "A", session.AccessToken)
	assert.Equal(t, "R", session.RefreshToken)
	assert.Equal(t, epoch.Add(100*time.Second), session.ExpiresAt)

	grants, headers := idp.recorded()
	require.Len(t, grants, 1)
	grant := grants[0]
	assert.Equal(t, "grower@example.com", grant["username"])
	assert.Equal(t, "secret", grant["password"])
	assert.Equal(t, Realm, grant["realm"])
	assert.Equal(t, Scope, grant["scope"])
	assert.Equal(t, ClientID, grant["client_id"])
	assert.Equal(t, PasswordRealmGrantType, grant["grant_type"])
	assert.Equal(t, auth0Client, headers[0].Get("auth0-client"))
	assert.Equal(t, userAgent, headers[0].Get("User-Agent"))
}

// TestAuthenticate_DefaultExpiry tests the fallback lifetime when expires_in is missing
func TestAuthenticate_DefaultExpiry(t *testing.T) {
	_, srv := newFakeIdP(t, ok(`{"access_token":"A","refresh_token":"R"}`))
	clock := &fakeClock{now: epoch}
	tm := newManager(srv, clock, "")

	require.True(t, tm.Authenticate(context.Background()))
	assert.Equal(t, epoch.Add(DefaultExpiresIn), tm.Session().ExpiresAt)
}

// TestAuthenticate_Failures tests that failures are reported as false
func TestAuthenticate_Failures(t *testing.T) {
	tests := []struct {
		name  string
		reply tokenReply
	}{
		{name: "wrong password", reply: tokenReply{status: http.StatusForbidden, body: `{"error":"invalid_grant","error_description":"Wrong email or password."}`}},
		{name: "server error", reply: tokenReply{status: http.StatusInternalServerError, body: `oops`}},
		{name: "malformed body", reply: ok(`{"access_token":`)},
		{name: "missing access token", reply: ok(`{"refresh_token":"R"}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, srv := newFakeIdP(t, tt.reply)
			tm := newManager(srv, &fakeClock{now: epoch}, "")

			assert.False(t, tm.Authenticate(context.Background()))
			assert.False(t, tm.Session().Authenticated())
		})
	}
}

// TestAuthenticate_TransportError tests an unreachable identity provider
func TestAuthenticate_TransportError(t *testing.T) {
	_, srv := newFakeIdP(t)
	tm := newManager(srv, &fakeClock{now: epoch}, "")
	srv.Close()

	assert.False(t, tm.Authenticate(context.Background()))
}

// TestRefresh_NoRefreshTokenFallsBackToPasswordGrant tests the empty-session path
func TestRefresh_NoRefreshTokenFallsBackToPasswordGrant(t *testing.T) {
	idp, srv := newFakeIdP(t, ok(`{"access_token":"A","refresh_token":"R","expires_in":3600}`))
	tm := newManager(srv, &fakeClock{now: epoch}, "")

	assert.True(t, tm.RefreshAccessToken(context.Background()))
	assert.Equal(t, []string{PasswordRealmGrantType}, idp.grantTypes())
}

// TestRefresh_UsesStoredRefreshToken tests the refresh grant body
func TestRefresh_UsesStoredRefreshToken(t *testing.T) {
	idp, srv := newFakeIdP(t, ok(`{"access_token":"A2","refresh_token":"R0","expires_in":3600}`))
	tm := newManager(srv, &fakeClock{now: epoch}, "R0")

	require.True(t, tm.RefreshAccessToken(context.Background()))

	grants, headers := idp.recorded()
	require.Len(t, grants, 1)
	assert.Equal(t, RefreshTokenGrantType, grants[0]["grant_type"])
	assert.Equal(t, ClientID, grants[0]["client_id"])
	assert.Equal(t, "R0", grants[0]["refresh_token"])
	assert.NotContains(t, grants[0], "client_secret")
	assert.Equal(t, "A2", tm.Session().AccessToken)
	assert.Equal(t, epoch.Add(time.Hour), tm.Session().ExpiresAt)

	assert.Contains(t, headers[0].Get("Content-Type"), "application/x-www-form-urlencoded")
	assert.Empty(t, headers[0].Get("Authorization"), "client id travels in the body")
	assert.Equal(t, auth0Client, headers[0].Get("auth0-client"))
	assert.Equal(t, userAgent, headers[0].Get("User-Agent"))
}

// TestRefresh_DefaultExpiry tests the fallback lifetime on the refresh path
func TestRefresh_DefaultExpiry(t *testing.T) {
	_, srv := newFakeIdP(t, ok(`{"access_token":"A2"}`))
	tm := newManager(srv, &fakeClock{now: epoch}, "R0")

	require.True(t, tm.RefreshAccessToken(context.Background()))
	assert.Equal(t, epoch.Add(DefaultExpiresIn), tm.Session().ExpiresAt)
}

// TestExpiresIn_Capped tests that huge lifetimes are clamped instead of overflowing
func TestExpiresIn_Capped(t *testing.T) {
	body := `{"access_token":"A","refresh_token":"R","expires_in":10000000000}`

	t.Run("password grant", func(t *testing.T) {
		_, srv := newFakeIdP(t, ok(body))
		tm := newManager(srv, &fakeClock{now: epoch}, "")
		require.True(t, tm.Authenticate(context.Background()))
		assert.Equal(t, epoch.Add(MaxExpiresIn), tm.Session().ExpiresAt)
	})

	t.Run("refresh grant", func(t *testing.T) {
		_, srv := newFakeIdP(t, ok(body))
		tm := newManager(srv, &fakeClock{now: epoch}, "R0")
		require.True(t, tm.RefreshAccessToken(context.Background()))
		assert.Equal(t, epoch.Add(MaxExpiresIn), tm.Session().ExpiresAt)
	})
}

// TestLifetime tests expires_in conversion
func TestLifetime(t *testing.T) {
	assert.Equal(t, DefaultExpiresIn, lifetime(0))
	assert.Equal(t, DefaultExpiresIn, lifetime(-5))
	assert.Equal(t, 90*time.Second, lifetime(90))
	assert.Equal(t, MaxExpiresIn, lifetime(1<<62))
}

// TestRefresh_RotationCallbackFiresOnce tests the rotation property
func TestRefresh_RotationCallbackFiresOnce(t *testing.T) {
	idp, srv := newFakeIdP(t,
		ok(`{"access_token":"A1","refresh_token":"R1","expires_in":3600}`),
		ok(`{"access_token":"A2","refresh_token":"R1","expires_in":3600}`),
	)
	tm := newManager(srv, &fakeClock{now: epoch}, "R0")

	var rotated []string
	tm.SetRotationCallback(func(token string) {
		rotated = append(rotated, token)
		// The callback runs before the new token is committed.
		assert.Equal(t, "R0", tm.Session().RefreshToken)
	})

	require.True(t, tm.RefreshAccessToken(context.Background()))
	assert.Equal(t, []string{"R1"}, rotated)
	assert.Equal(t, "R1", tm.Session().RefreshToken)

	// Same refresh token returned: no rotation, and the new value is what gets sent.
	require.True(t, tm.RefreshAccessToken(context.Background()))
	assert.Equal(t, []string{"R1"}, rotated)
	grants, _ := idp.recorded()
	assert.Equal(t, "R1", grants[1]["refresh_token"])
}

// TestRefresh_ResponseWithoutRefreshTokenKeepsCurrent tests a non-rotating provider
func TestRefresh_ResponseWithoutRefreshTokenKeepsCurrent(t *testing.T) {
	_, srv := newFakeIdP(t, ok(`{"access_token":"A1","expires_in":3600}`))
	tm := newManager(srv, &fakeClock{now: epoch}, "R0")

	called := false
	tm.SetRotationCallback(func(string) { called = true })

	require.True(t, tm.RefreshAccessToken(context.Background()))
	assert.False(t, called)
	assert.Equal(t, "R0", tm.Session().RefreshToken)
}

// TestRefresh_FailureFallsBackToAuthenticate tests the fallback path
func TestRefresh_FailureFallsBackToAuthenticate(t *testing.T) {
	idp, srv := newFakeIdP(t,
		tokenReply{status: http.StatusForbidden, body: `{"error":"invalid_grant"}`},
		ok(`{"access_token":"A","refresh_token":"R","expires_in":3600}`),
	)
	tm := newManager(srv, &fakeClock{now: epoch}, "stale")

	var rotated []string
	tm.SetRotationCallback(func(token string) { rotated = append(rotated, token) })

	assert.True(t, tm.RefreshAccessToken(context.Background()))
	assert.Equal(t, []string{RefreshTokenGrantType, PasswordRealmGrantType}, idp.grantTypes())
	assert.Equal(t, "R", tm.Session().RefreshToken)
	assert.Equal(t, []string{"R"}, rotated)
}

// TestRefresh_FailureAndAuthenticateFailure tests a fully rejected account
func TestRefresh_FailureAndAuthenticateFailure(t *testing.T) {
	idp, srv := newFakeIdP(t,
		tokenReply{status: http.StatusForbidden, body: `{"error":"invalid_grant"}`},
		tokenReply{status: http.StatusForbidden, body: `{"error":"invalid_grant"}`},
		ok(`{"access_token":"A","refresh_token":"R","expires_in":3600}`),
	)
	tm := newManager(srv, &fakeClock{now: epoch}, "stale")

	assert.False(t, tm.RefreshAccessToken(context.Background()))
	assert.Equal(t, "", tm.Session().RefreshToken)
	assert.True(t, tm.Session().NeedsRefresh(epoch, RefreshMargin))

	// The session now needs full authentication, so no refresh grant is attempted.
	assert.True(t, tm.RefreshAccessToken(context.Background()))
	assert.Equal(t, []string{RefreshTokenGrantType, PasswordRealmGrantType, PasswordRealmGrantType}, idp.grantTypes())
}

// TestRefresh_FailureDropsStaleAccessToken tests that a rejected account is not reported as authenticated
func TestRefresh_FailureDropsStaleAccessToken(t *testing.T) {
	_, srv := newFakeIdP(t,
		ok(`{"access_token":"OLD","refresh_token":"R","expires_in":3600}`),
		tokenReply{status: http.StatusForbidden, body: `{"error":"invalid_grant"}`},
		tokenReply{status: http.StatusForbidden, body: `{"error":"invalid_grant"}`},
	)
	tm := newManager(srv, &fakeClock{now: epoch}, "")
	require.True(t, tm.Authenticate(context.Background()))
	require.True(t, tm.Session().Authenticated())

	assert.False(t, tm.RefreshAccessToken(context.Background()))
	assert.False(t, tm.Session().Authenticated())
	assert.Equal(t, Session{}, tm.Session())
}

// TestEnsureValid_Margin tests that renewal happens only inside the five minute margin
func TestEnsureValid_Margin(t *testing.T) {
	for _, expiresIn := range []int{1, 100, 300, 301, 3600, 36000} {
		lifetime := time.Duration(expiresIn) * time.Second
		tests := []struct {
			name        string
			at          time.Time
			wantRefresh bool
		}{
			{name: "just issued", at: epoch, wantRefresh: lifetime < RefreshMargin},
			{name: "at margin", at: epoch.Add(lifetime - RefreshMargin), wantRefresh: false},
			{name: "past margin", at: epoch.Add(lifetime - RefreshMargin + time.Second), wantRefresh: true},
			{name: "expired", at: epoch.Add(lifetime + time.Minute), wantRefresh: true},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				body := `{"access_token":"A","refresh_token":"R","expires_in":` + jsonInt(expiresIn) + `}`
				idp, srv := newFakeIdP(t, ok(body), ok(body))
				clock := &fakeClock{now: epoch}
				tm := newManager(srv, clock, "")
				require.True(t, tm.Authenticate(context.Background()))

				clock.Set(tt.at)
				tm.EnsureValid(context.Background())

				if tt.wantRefresh {
					assert.Len(t, idp.grantTypes(), 2, "expires_in=%d", expiresIn)
				} else {
					assert.Len(t, idp.grantTypes(), 1, "expires_in=%d", expiresIn)
				}
			})
		}
	}
}

// TestEnsureValid_ConcurrentCallersRefreshOnce tests that parallel callers share one renewal
func TestEnsureValid_ConcurrentCallersRefreshOnce(t *testing.T) {
	idp, srv := newFakeIdP(t,
		ok(`{"access_token":"A1","refresh_token":"R1","expires_in":3600}`),
	)
	tm := newManager(srv, &fakeClock{now: epoch}, "R0")

	rotations := 0
	tm.SetRotationCallback(func(string) { rotations++ })

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tm.EnsureValid(context.Background())
		}()
	}
	wg.Wait()

	assert.Len(t, idp.grantTypes(), 1)
	assert.Equal(t, 1, rotations)
}

// TestTokenManager_Metrics tests the exporter metric hooks
func TestTokenManager_Metrics(t *testing.T) {
	em, err := metrics.NewExporterMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	_, srv := newFakeIdP(t,
		tokenReply{status: http.StatusForbidden, body: `{"error":"invalid_grant"}`},
		ok(`{"access_token":"A1","refresh_token":"R1","expires_in":3600}`),
		ok(`{"access_token":"A2","refresh_token":"R2","expires_in":3600}`),
	)
	tm := NewTokenManager(Credentials{Username: "u", Password: "p"}, Options{
		TokenURL:   srv.URL,
		HTTPClient: srv.Client(),
		Metrics:    em,
		Now:        (&fakeClock{now: epoch}).Now,
	})

	assert.False(t, tm.Authenticate(context.Background()))
	assert.Equal(t, 1.0, testutil.ToFloat64(em.AuthenticationErrorsTotal))
	assert.Equal(t, 0.0, testutil.ToFloat64(em.AuthenticationValid))

	assert.True(t, tm.Authenticate(context.Background()))
	assert.True(t, tm.RefreshAccessToken(context.Background()))
	assert.Equal(t, 1.0, testutil.ToFloat64(em.AuthenticationValid))
	assert.Equal(t, 1.0, testutil.ToFloat64(em.TokenRefreshesTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(em.TokenRotationsTotal))
	assert.Equal(t, float64(epoch.Unix()), testutil.ToFloat64(em.LastAuthenticationSuccessUnix))
}

// TestTokenManager_FailedRefreshNotCounted tests that only successful refresh grants are counted
func TestTokenManager_FailedRefreshNotCounted(t *testing.T) {
	em, err := metrics.NewExporterMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	_, srv := newFakeIdP(t,
		tokenReply{status: http.StatusForbidden, body: `{"error":"invalid_grant"}`},
		tokenReply{status: http.StatusForbidden, body: `{"error":"invalid_grant"}`},
	)
	tm := NewTokenManager(Credentials{Username: "u", Password: "p"}, Options{
		TokenURL:     srv.URL,
		HTTPClient:   srv.Client(),
		RefreshToken: "R0",
		Metrics:      em,
		Now:          (&fakeClock{now: epoch}).Now,
	})

	assert.False(t, tm.RefreshAccessToken(context.Background()))
	assert.Equal(t, 0.0, testutil.ToFloat64(em.TokenRefreshesTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(em.AuthenticationErrorsTotal))
}

// TestSession_SetAuthHeader tests the bearer header
func TestSession_SetAuthHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	Session{AccessToken: "abc"}.SetAuthHeader(req)
	assert.Equal(t, "Bearer abc", req.Header.Get("Authorization"))
}

// TestTokenURL tests token endpoint construction
func TestTokenURL(t *testing.T) {
	assert.Equal(t, "https://rise-api-prod.auth0.com/oauth/token", TokenURL(DefaultAuthDomain))
}

func jsonInt(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}
