package bcapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
)

// DefaultScope is the OAuth2 scope for the Business Central API.
const DefaultScope = "https://api.businesscentral.dynamics.com/.default"

// defaultTokenLifetime applies when the token endpoint omits expires_in.
const defaultTokenLifetime = 3600

// TokenSource yields bearer credentials for API requests. The request
// executor calls Invalidate after an authorization failure so the next
// AccessToken call re-acquires.
type TokenSource interface {
	// AccessToken returns a valid bearer token, acquiring one when the cache
	// is stale. It returns ("", false) when the client identity is not
	// configured or acquisition fails; that degrades the caller to
	// offline/mock mode and is never an error.
	AccessToken(ctx context.Context) (string, bool)
	// Invalidate clears the cached credential.
	Invalidate()
}

// TokenManager acquires and caches a bearer token via the OAuth2
// client-credentials flow. A single instance serves one logical consumer
// process; concurrent acquisitions race benignly (last writer wins, the
// token is idempotent for the same identity).
type TokenManager struct {
	cfg        AzureADConfig
	scope      string
	httpClient *http.Client

	mu      sync.Mutex
	token   string
	expires time.Time

	now func() time.Time
}

var _ TokenSource = (*TokenManager)(nil)

// NewTokenManager returns a manager for the given identity.
func NewTokenManager(cfg AzureADConfig) *TokenManager {
	return &TokenManager{
		cfg:        cfg,
		scope:      DefaultScope,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		now:        time.Now,
	}
}

// WithHTTPClient overrides the HTTP client used for the token endpoint.
func (m *TokenManager) WithHTTPClient(client *http.Client) *TokenManager {
	m.httpClient = client
	return m
}

// WithScope overrides the requested OAuth2 scope.
func (m *TokenManager) WithScope(scope string) *TokenManager {
	m.scope = scope
	return m
}

// AccessToken implements TokenSource.
func (m *TokenManager) AccessToken(ctx context.Context) (string, bool) {
	if !m.cfg.Configured() {
		return "", false
	}

	m.mu.Lock()
	if m.token != "" && m.now().Before(m.expires) {
		token := m.token
		m.mu.Unlock()
		return token, true
	}
	m.mu.Unlock()

	return m.fetch(ctx)
}

// Invalidate implements TokenSource.
func (m *TokenManager) Invalidate() {
	m.mu.Lock()
	m.token = ""
	m.expires = time.Time{}
	m.mu.Unlock()
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (m *TokenManager) fetch(ctx context.Context) (string, bool) {
	endpoint := m.cfg.Authority + "/oauth2/v2.0/token"
	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {m.cfg.ClientID},
		"client_secret": {m.cfg.ClientSecret},
		"scope":         {m.scope},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		logger.ContextKV(ctx, xlog.ERROR, "reason", "token_request", "err", err.Error())
		return "", false
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		logger.ContextKV(ctx, xlog.ERROR, "reason", "token_exchange", "err", err.Error())
		return "", false
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		logger.ContextKV(ctx, xlog.ERROR,
			"reason", "token_exchange",
			"status", resp.StatusCode,
			"body", string(body),
		)
		return "", false
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil || tr.AccessToken == "" {
		logger.ContextKV(ctx, xlog.ERROR, "reason", "token_decode", "err", errString(err))
		return "", false
	}

	lifetime := values.NumbersCoalesce(tr.ExpiresIn, defaultTokenLifetime)

	m.mu.Lock()
	m.token = tr.AccessToken
	m.expires = m.now().Add(time.Duration(lifetime) * time.Second)
	m.mu.Unlock()

	logger.ContextKV(ctx, xlog.DEBUG, "status", "token_acquired", "expires_in", lifetime)
	return tr.AccessToken, true
}

func errString(err error) string {
	if err == nil {
		return "empty access_token"
	}
	return err.Error()
}
