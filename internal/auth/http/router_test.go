package http_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/portal/internal/auth/domain"
	authhttp "github.com/aussiebroadwan/portal/internal/auth/http"
	"github.com/aussiebroadwan/portal/pkg/authsdk"
	"github.com/aussiebroadwan/portal/pkg/httpx"
	"github.com/aussiebroadwan/portal/pkg/jwtx"
	"github.com/aussiebroadwan/portal/pkg/slogx"
)

// fakeReconciler accepts one password and can be told to fail sign-out.
type fakeReconciler struct {
	mu         sync.Mutex
	state      domain.AuthState
	password   string
	signOutErr bool
	ready      bool
	lastEmail  string
}

func (f *fakeReconciler) Login(_ context.Context, email, password string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastEmail = email
	if password != f.password {
		f.state = domain.AuthState{Error: "Invalid email or password."}
		return false
	}
	f.state = domain.AuthState{
		User:          &domain.ApplicationUser{ID: "u1", Email: email, Role: domain.RoleAdmin, Name: "Ada", Metadata: domain.Metadata{"theme": "dark"}},
		Authenticated: true,
	}
	return true
}

func (f *fakeReconciler) Logout(context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.signOutErr {
		f.state.Error = "Failed to sign out"
		return
	}
	f.state = domain.AuthState{}
}

func (f *fakeReconciler) State() domain.AuthState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state.Clone()
}

func (f *fakeReconciler) Ready() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ready
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func newTestServer(t *testing.T, rec *fakeReconciler, db fakePinger, limits httpx.Limits) *authsdk.SDKClient {
	t.Helper()

	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "portal_test_total", Help: "test"}))

	router := authhttp.NewRouter("test", db, rec, registry, limits, slogx.Discard())
	router.ApplyRoutes()

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return authsdk.NewSDKClient(srv.URL)
}

func TestSessionEndpoints(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	rec := &fakeReconciler{password: "secret", ready: true}
	client := newTestServer(t, rec, fakePinger{}, httpx.DefaultLimits())

	t.Run("anonymous session", func(t *testing.T) {
		state, err := client.GetSession(ctx)
		require.NoError(t, err)
		require.False(t, state.Authenticated)
		require.Nil(t, state.User)
	})

	t.Run("rejected login", func(t *testing.T) {
		res, err := client.Login(ctx, "ada@example.com", "wrong")
		require.NoError(t, err)
		require.False(t, res.OK)
		require.Equal(t, "Invalid email or password.", res.State.Error)
	})

	t.Run("login", func(t *testing.T) {
		res, err := client.Login(ctx, "ada@example.com", "secret")
		require.NoError(t, err)
		require.True(t, res.OK)
		require.Equal(t, "admin", res.State.User.Role)
		require.Equal(t, "dark", res.State.User.Metadata["theme"])

		state, err := client.GetSession(ctx)
		require.NoError(t, err)
		require.True(t, state.Authenticated)
		require.Equal(t, "u1", state.User.ID)
	})

	t.Run("logout", func(t *testing.T) {
		state, err := client.Logout(ctx)
		require.NoError(t, err)
		require.False(t, state.Authenticated)
		require.Empty(t, state.Error)
	})
}

func TestLogoutFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	rec := &fakeReconciler{password: "secret", signOutErr: true, ready: true}
	client := newTestServer(t, rec, fakePinger{}, httpx.DefaultLimits())

	_, err := client.Login(ctx, "ada@example.com", "secret")
	require.NoError(t, err)

	state, err := client.Logout(ctx)
	require.NoError(t, err)
	require.True(t, state.Authenticated)
	require.Equal(t, "Failed to sign out", state.Error)
}

func TestLoginRejectsMalformedBody(t *testing.T) {
	t.Parallel()

	rec := &fakeReconciler{ready: true}
	router := authhttp.NewRouter("test", fakePinger{}, rec, prometheus.NewRegistry(), httpx.DefaultLimits(), slogx.Discard())
	router.ApplyRoutes()

	cases := []struct {
		name        string
		contentType string
		body        string
	}{
		{"not json", "application/json", "email=a"},
		{"unknown field", "application/json", `{"email":"a@x.com","password":"p","remember":true}`},
		{"wrong content type", "text/plain", `{"email":"a@x.com","password":"p"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/session/login", strings.NewReader(tc.body))
			req.Header.Set("Content-Type", tc.contentType)
			req.RemoteAddr = "192.0.2.1:1234"
			rr := httptest.NewRecorder()

			router.ServeHTTP(rr, req)
			require.Equal(t, http.StatusBadRequest, rr.Code)
			require.Contains(t, rr.Body.String(), authsdk.ErrorCodeInvalidRequest)
		})
	}
	require.Empty(t, rec.lastEmail)
}

func TestLoginIsRateLimited(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	limits := httpx.DefaultLimits()
	limits.Strict = httpx.RateLimitConfig{RequestsPerWindow: 1, Window: time.Hour, Burst: 1}
	client := newTestServer(t, &fakeReconciler{password: "secret", ready: true}, fakePinger{}, limits)

	_, err := client.Login(ctx, "ada@example.com", "wrong")
	require.NoError(t, err)

	_, err = client.Login(ctx, "ada@example.com", "wrong")
	var apiErr *authsdk.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	require.Equal(t, authsdk.ErrorCodeRateLimited, apiErr.Code)

	// Reads have their own budget.
	_, err = client.GetSession(ctx)
	require.NoError(t, err)
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("live and ready", func(t *testing.T) {
		client := newTestServer(t, &fakeReconciler{ready: true}, fakePinger{}, httpx.DefaultLimits())

		live, err := client.GetLiveness(ctx)
		require.NoError(t, err)
		require.Equal(t, "ok", live.Status)
		require.Equal(t, authhttp.ServiceName, live.Service)
		require.Equal(t, "test", live.Version)
		started, err := time.Parse(time.RFC3339, live.StartedAt)
		require.NoError(t, err)
		require.WithinDuration(t, time.Now(), started, time.Minute)
		require.Nil(t, live.Checks)

		ready, err := client.GetReadiness(ctx)
		require.NoError(t, err)
		require.Equal(t, "ok", ready.Status)
		require.Equal(t, authhttp.ServiceName, ready.Service)
		require.Equal(t, "ok", ready.Checks.Database)
	})

	t.Run("not ready until the session settles", func(t *testing.T) {
		client := newTestServer(t, &fakeReconciler{}, fakePinger{}, httpx.DefaultLimits())

		ready, err := client.GetReadiness(ctx)
		require.NoError(t, err)
		require.Equal(t, "degraded", ready.Status)
		require.Equal(t, "pending", ready.Checks.Reconciler)
	})

	t.Run("database down", func(t *testing.T) {
		client := newTestServer(t, &fakeReconciler{ready: true}, fakePinger{err: errors.New("connection refused")}, httpx.DefaultLimits())

		ready, err := client.GetReadiness(ctx)
		require.NoError(t, err)
		require.Equal(t, "degraded", ready.Status)
		require.Contains(t, ready.Checks.Database, "connection refused")
	})
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	client := newTestServer(t, &fakeReconciler{ready: true}, fakePinger{}, httpx.DefaultLimits())

	resp, err := client.HTTPClient.Get(client.BaseURL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(body), "portal_test_total")
}

type staticKeys jwtx.JWKS

func (k staticKeys) JWKS() jwtx.JWKS { return jwtx.JWKS(k) }

func TestJWKSEndpoint(t *testing.T) {
	t.Parallel()

	t.Run("published", func(t *testing.T) {
		keys := staticKeys{Keys: []jwtx.JWK{{Kty: "OKP", Crv: "Ed25519", Kid: "k1", X: "abc"}}}

		router := authhttp.NewRouter("test", fakePinger{}, &fakeReconciler{ready: true}, prometheus.NewRegistry(), httpx.DefaultLimits(), slogx.Discard())
		router.PublishKeys(keys)
		router.ApplyRoutes()

		srv := httptest.NewServer(router)
		t.Cleanup(srv.Close)

		got, err := authsdk.NewSDKClient(srv.URL).GetJWKS(t.Context())
		require.NoError(t, err)
		require.Len(t, got.Keys, 1)
		require.Equal(t, "k1", got.Keys[0].Kid)
	})

	t.Run("not published", func(t *testing.T) {
		client := newTestServer(t, &fakeReconciler{ready: true}, fakePinger{}, httpx.DefaultLimits())

		_, err := client.GetJWKS(t.Context())
		var apiErr *authsdk.APIError
		require.ErrorAs(t, err, &apiErr)
		require.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	})
}
