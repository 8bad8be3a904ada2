package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/kioku-app/kioku/internal/pkg/secrets"
)

// RefreshEarly is subtracted from every expiry check: a token inside its last
// minute is treated as already expired so in-flight requests never race the
// provider-side cutoff.
const RefreshEarly = 60 * time.Second

const defaultHTTPTimeout = 15 * time.Second

var (
	ErrMissingCodeChallenge = errors.New("missing PKCE code challenge")
	ErrMissingCodeVerifier  = errors.New("missing PKCE code verifier")
	ErrNoRefreshToken       = errors.New("no refresh token stored")
)

// TokenResponse is the JSON shape both providers return from their token
// endpoints.
type TokenResponse struct {
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

type tokenState struct {
	accessToken string
	expiresAt   time.Time
}

type oauthStateEntry struct {
	providerID   string
	codeVerifier string
}

// Manager is the registry of provider configurations and in-memory session
// state, and implements the canonical token algorithms: authorize-URL
// construction, code exchange, refresh, and valid-token retrieval. Persistent
// credentials live in the secret store; everything here is process-local.
type Manager struct {
	store      *secrets.Store
	httpClient *http.Client
	// proxyClient has no base timeout; proxied requests are bounded by the
	// caller-supplied deadline instead.
	proxyClient *http.Client
	now         func() time.Time

	mu            sync.Mutex
	providers     map[string]ProviderConfig
	tokens        map[string]tokenState
	pkceVerifiers map[string]string
	oauthStates   map[string]oauthStateEntry
}

func NewManager(store *secrets.Store) *Manager {
	return &Manager{
		store:         store,
		httpClient:    &http.Client{Timeout: defaultHTTPTimeout},
		proxyClient:   &http.Client{},
		now:           time.Now,
		providers:     make(map[string]ProviderConfig),
		tokens:        make(map[string]tokenState),
		pkceVerifiers: make(map[string]string),
		oauthStates:   make(map[string]oauthStateEntry),
	}
}

// RegisterProvider inserts or replaces a provider configuration.
func (m *Manager) RegisterProvider(providerID string, config ProviderConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.providers[providerID] = config
}

func (m *Manager) GetProvider(providerID string) (ProviderConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	config, ok := m.providers[providerID]
	if !ok {
		return ProviderConfig{}, fmt.Errorf("provider not registered: %s", providerID)
	}
	return config, nil
}

// SetOAuthState records a pending authorization attempt keyed by its state
// value. The verifier may be empty for providers without PKCE.
func (m *Manager) SetOAuthState(state, providerID, codeVerifier string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.oauthStates[state] = oauthStateEntry{providerID: providerID, codeVerifier: codeVerifier}
}

// TakeOAuthState consumes the pending entry for state. At most one caller
// observes any given entry.
func (m *Manager) TakeOAuthState(state string) (providerID, codeVerifier string, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.oauthStates[state]
	if ok {
		delete(m.oauthStates, state)
	}
	return entry.providerID, entry.codeVerifier, ok
}

// GetOAuthStateProvider peeks at a pending entry without consuming it.
func (m *Manager) GetOAuthStateProvider(state string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.oauthStates[state]
	return entry.providerID, ok
}

// SetPKCEVerifier stores the fallback verifier for providers that do not use
// OAuth state. A provider holds at most one pending verifier; starting a new
// authorization overwrites the previous one.
func (m *Manager) SetPKCEVerifier(providerID, codeVerifier string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pkceVerifiers[providerID] = codeVerifier
}

func (m *Manager) TakePKCEVerifier(providerID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	verifier, ok := m.pkceVerifiers[providerID]
	if ok {
		delete(m.pkceVerifiers, providerID)
	}
	return verifier, ok
}

// GetProviderFromCallbackHint scans the registered providers' hint lists for
// an exact match on a deep-link host or first path segment.
func (m *Manager) GetProviderFromCallbackHint(hint string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for providerID, config := range m.providers {
		if config.matchesHint(hint) {
			return providerID, true
		}
	}
	return "", false
}

// InferProviderFromCallbackParams resolves a provider from the callback's
// payload fields alone. A provider is inferred only when exactly one
// registered provider declares a payload field present in the parameters,
// access-token fields taking precedence over code fields.
func (m *Manager) InferProviderFromCallbackParams(params map[string]string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	match := func(field func(ProviderConfig) string) (string, bool) {
		found := ""
		for providerID, config := range m.providers {
			name := field(config)
			if name == "" {
				continue
			}
			if _, ok := params[name]; !ok {
				continue
			}
			if found != "" {
				return "", false // ambiguous
			}
			found = providerID
		}
		return found, found != ""
	}

	if providerID, ok := match(func(c ProviderConfig) string { return c.CallbackAccessTokenParam }); ok {
		return providerID, true
	}
	return match(func(c ProviderConfig) string { return c.CallbackCodeParam })
}

// BuildAuthorizeURL assembles the provider-hosted URL the user visits. The
// core owns the leading parameters; configured extras are appended last.
func (m *Manager) BuildAuthorizeURL(providerID, codeChallenge, state string) (string, error) {
	config, err := m.GetProvider(providerID)
	if err != nil {
		return "", err
	}

	params := make([]Param, 0, 3+len(config.AuthorizeExtraParams))
	params = append(params, Param{Key: "client_id", Value: config.ClientID})

	if config.UsePKCE {
		if codeChallenge == "" {
			return "", ErrMissingCodeChallenge
		}
		params = append(params, Param{Key: "code_challenge", Value: codeChallenge})
	}

	if config.UsesState && state != "" {
		params = append(params, Param{Key: "state", Value: state})
	}

	params = append(params, config.AuthorizeExtraParams...)

	base, err := url.Parse(config.AuthorizeURL)
	if err != nil {
		return "", fmt.Errorf("invalid authorize URL for provider %s: %w", providerID, err)
	}
	query := base.Query()
	for _, param := range params {
		query.Add(param.Key, param.Value)
	}
	base.RawQuery = query.Encode()
	return base.String(), nil
}

// ExchangeAuthorizationCode trades an authorization code for tokens, caches
// the access token in memory, and persists the record(s) in the secret store.
func (m *Manager) ExchangeAuthorizationCode(ctx context.Context, providerID, code, codeVerifier string) (*TokenResponse, error) {
	config, err := m.GetProvider(providerID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(config.TokenURL) == "" {
		return nil, fmt.Errorf("missing token URL configuration for provider %s", providerID)
	}
	if config.UsePKCE && codeVerifier == "" {
		return nil, ErrMissingCodeVerifier
	}

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("client_id", config.ClientID)
	form.Set("code", code)
	if codeVerifier != "" {
		form.Set("code_verifier", codeVerifier)
	}
	for _, param := range config.TokenExtraParams {
		form.Add(param.Key, param.Value)
	}

	status, body, err := m.postForm(ctx, config.TokenURL, form)
	if err != nil {
		return nil, err
	}
	if status < 200 || status > 299 {
		return nil, fmt.Errorf("token exchange failed: %d - %s", status, body)
	}

	var response TokenResponse
	if err := json.Unmarshal([]byte(body), &response); err != nil {
		return nil, fmt.Errorf("parse token response: %w", err)
	}

	if err := m.storeTokens(providerID, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

// RefreshAccessToken obtains a new access token using the stored refresh
// token and returns it.
func (m *Manager) RefreshAccessToken(ctx context.Context, providerID string) (string, error) {
	refreshToken, ok, err := m.store.ReadRefreshToken(providerID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrNoRefreshToken
	}

	config, err := m.GetProvider(providerID)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(config.TokenURL) == "" {
		return "", fmt.Errorf("missing token URL configuration for provider %s", providerID)
	}

	form := url.Values{}
	form.Set("client_id", config.ClientID)
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	for _, param := range config.RefreshExtraParams {
		form.Add(param.Key, param.Value)
	}

	status, body, err := m.postForm(ctx, config.TokenURL, form)
	if err != nil {
		return "", err
	}
	if status < 200 || status > 299 {
		return "", fmt.Errorf("token refresh failed: %d - %s", status, body)
	}

	var response TokenResponse
	if err := json.Unmarshal([]byte(body), &response); err != nil {
		return "", fmt.Errorf("parse token response: %w", err)
	}

	if err := m.storeTokens(providerID, &response); err != nil {
		return "", err
	}
	return response.AccessToken, nil
}

// GetAccessToken vends a valid access token: from memory when fresh, else by
// warming from the secret store, else by refreshing. Providers without a
// token URL (implicit flow) cannot refresh and require reauthorization.
func (m *Manager) GetAccessToken(ctx context.Context, providerID string) (string, error) {
	if token, ok := m.validMemoryToken(providerID); ok {
		return token, nil
	}

	if token, ok, err := m.restoreFromStore(providerID); err != nil {
		return "", err
	} else if ok {
		return token, nil
	}

	config, err := m.GetProvider(providerID)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(config.TokenURL) == "" {
		return "", fmt.Errorf("%s access token expired or missing; reauthorize %s", providerID, providerID)
	}

	return m.RefreshAccessToken(ctx, providerID)
}

// StoreAccessToken caches an access token in memory and persists its record,
// used both after token-endpoint responses and for implicit-flow callbacks.
func (m *Manager) StoreAccessToken(providerID, accessToken string, expiresIn int64) error {
	expiresAt := m.now().Add(time.Duration(expiresIn) * time.Second)

	m.mu.Lock()
	m.tokens[providerID] = tokenState{accessToken: accessToken, expiresAt: expiresAt}
	m.mu.Unlock()

	return m.store.SaveAccessToken(providerID, accessToken, expiresAt.Unix())
}

func (m *Manager) storeTokens(providerID string, response *TokenResponse) error {
	if err := m.StoreAccessToken(providerID, response.AccessToken, response.ExpiresIn); err != nil {
		return err
	}
	if response.RefreshToken != "" {
		return m.store.SaveRefreshToken(providerID, response.RefreshToken)
	}
	return nil
}

func (m *Manager) validMemoryToken(providerID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.tokens[providerID]
	if !ok || state.accessToken == "" {
		return "", false
	}
	if !m.now().Before(state.expiresAt.Add(-RefreshEarly)) {
		return "", false
	}
	return state.accessToken, true
}

func (m *Manager) restoreFromStore(providerID string) (string, bool, error) {
	token, expiresAtUnix, ok, err := m.store.ReadAccessToken(providerID)
	if err != nil || !ok {
		return "", false, err
	}

	expiresAt := time.Unix(expiresAtUnix, 0)
	now := m.now()
	if !now.Before(expiresAt.Add(-RefreshEarly)) {
		return "", false, nil
	}

	remaining := int64(expiresAt.Sub(now) / time.Second)
	if remaining <= 0 {
		return "", false, nil
	}

	if err := m.StoreAccessToken(providerID, token, remaining); err != nil {
		return "", false, err
	}
	return token, true, nil
}

func (m *Manager) postForm(ctx context.Context, endpoint string, form url.Values) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, "", err
	}
	return resp.StatusCode, string(body), nil
}
