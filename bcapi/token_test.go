package bcapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTokenEndpoint(t *testing.T, calls *int32, status int, body any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)

		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/oauth2/v2.0/token", r.URL.Path)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))

		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		assert.Equal(t, "client-1", r.PostForm.Get("client_id"))
		assert.Equal(t, "secret-1", r.PostForm.Get("client_secret"))
		assert.Equal(t, DefaultScope, r.PostForm.Get("scope"))

		w.WriteHeader(status)
		if body != nil {
			_ = json.NewEncoder(w).Encode(body)
		}
	}))
}

func testIdentity(authority string) AzureADConfig {
	return AzureADConfig{
		TenantID:     "tenant-1",
		ClientID:     "client-1",
		ClientSecret: "secret-1",
		Authority:    authority,
	}
}

func Test_TokenManager_AcquireAndCache(t *testing.T) {
	var calls int32
	srv := newTokenEndpoint(t, &calls, http.StatusOK, map[string]any{
		"access_token": "tok-1",
		"expires_in":   3600,
	})
	defer srv.Close()

	m := NewTokenManager(testIdentity(srv.URL)).WithHTTPClient(srv.Client())

	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	now := base
	m.now = func() time.Time { return now }

	ctx := context.Background()

	token, ok := m.AccessToken(ctx)
	require.True(t, ok)
	assert.Equal(t, "tok-1", token)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))

	// Still valid one second before expiry: served from cache.
	now = base.Add(3599 * time.Second)
	token, ok = m.AccessToken(ctx)
	require.True(t, ok)
	assert.Equal(t, "tok-1", token)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))

	// Past expiry: re-acquired.
	now = base.Add(3601 * time.Second)
	_, ok = m.AccessToken(ctx)
	require.True(t, ok)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func Test_TokenManager_DefaultLifetime(t *testing.T) {
	var calls int32
	srv := newTokenEndpoint(t, &calls, http.StatusOK, map[string]any{
		"access_token": "tok-1",
	})
	defer srv.Close()

	m := NewTokenManager(testIdentity(srv.URL)).WithHTTPClient(srv.Client())

	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	now := base
	m.now = func() time.Time { return now }

	_, ok := m.AccessToken(context.Background())
	require.True(t, ok)

	// expires_in omitted: 3600s default.
	now = base.Add(3599 * time.Second)
	_, ok = m.AccessToken(context.Background())
	require.True(t, ok)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))

	now = base.Add(3601 * time.Second)
	_, ok = m.AccessToken(context.Background())
	require.True(t, ok)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func Test_TokenManager_NotConfigured(t *testing.T) {
	var calls int32
	srv := newTokenEndpoint(t, &calls, http.StatusOK, nil)
	defer srv.Close()

	// Missing secret: offline mode, the endpoint is never contacted.
	m := NewTokenManager(AzureADConfig{
		TenantID:  "tenant-1",
		ClientID:  "client-1",
		Authority: srv.URL,
	}).WithHTTPClient(srv.Client())

	token, ok := m.AccessToken(context.Background())
	assert.False(t, ok)
	assert.Empty(t, token)
	assert.EqualValues(t, 0, atomic.LoadInt32(&calls))
}

func Test_TokenManager_ExchangeFailure(t *testing.T) {
	var calls int32
	srv := newTokenEndpoint(t, &calls, http.StatusBadRequest, map[string]any{
		"error": "invalid_client",
	})
	defer srv.Close()

	m := NewTokenManager(testIdentity(srv.URL)).WithHTTPClient(srv.Client())

	// Failure degrades to absent, never an error.
	token, ok := m.AccessToken(context.Background())
	assert.False(t, ok)
	assert.Empty(t, token)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func Test_TokenManager_Invalidate(t *testing.T) {
	var calls int32
	srv := newTokenEndpoint(t, &calls, http.StatusOK, map[string]any{
		"access_token": "tok-1",
		"expires_in":   3600,
	})
	defer srv.Close()

	m := NewTokenManager(testIdentity(srv.URL)).WithHTTPClient(srv.Client())

	_, ok := m.AccessToken(context.Background())
	require.True(t, ok)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))

	m.Invalidate()

	_, ok = m.AccessToken(context.Background())
	require.True(t, ok)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func Test_TokenManager_NetworkError(t *testing.T) {
	m := NewTokenManager(testIdentity("http://127.0.0.1:1"))
	m.httpClient.Timeout = time.Second

	token, ok := m.AccessToken(context.Background())
	assert.False(t, ok)
	assert.Empty(t, token)
}
