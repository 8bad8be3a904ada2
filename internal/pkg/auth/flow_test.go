package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kioku-app/kioku/internal/pkg/events"
)

type flowFixture struct {
	manager *Manager
	flow    *Flow
	bus     *events.Bus
	opened  []string
}

func newFlowFixture(t *testing.T) *flowFixture {
	t.Helper()
	fixture := &flowFixture{
		manager: newTestManager(t),
		bus:     events.NewBus(),
	}
	fixture.flow = NewFlow(fixture.manager, fixture.bus)
	fixture.flow.openURL = func(raw string) error {
		fixture.opened = append(fixture.opened, raw)
		return nil
	}
	return fixture
}

func (f *flowFixture) lastOpenedQuery(t *testing.T) url.Values {
	t.Helper()
	require.NotEmpty(t, f.opened)
	parsed, err := url.Parse(f.opened[len(f.opened)-1])
	require.NoError(t, err)
	return parsed.Query()
}

func collectEvents(bus *events.Bus) func() []string {
	id, ch := bus.Subscribe()
	return func() []string {
		bus.Unsubscribe(id)
		var names []string
		for event := range ch {
			names = append(names, event.Name)
		}
		return names
	}
}

func TestCodeFlowHappyPath(t *testing.T) {
	var gotForm url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotForm = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"token_type":"Bearer","expires_in":3600,"access_token":"t","refresh_token":"r"}`)
	}))
	defer server.Close()

	fixture := newFlowFixture(t)
	fixture.manager.RegisterProvider("p", codeFlowProvider(server.URL))
	drain := collectEvents(fixture.bus)

	require.NoError(t, fixture.flow.Authorize("p"))

	query := fixture.lastOpenedQuery(t)
	state := query.Get("state")
	verifier := query.Get("code_challenge") // plain method: challenge == verifier
	assert.Len(t, state, 32)
	assert.Len(t, verifier, 64)
	assert.Equal(t, "code", query.Get("response_type"))
	assert.Equal(t, "kioku://p", query.Get("redirect_uri"))

	callback := fmt.Sprintf("kioku://p?code=abc&state=%s", state)
	require.NoError(t, fixture.flow.HandleCallback(context.Background(), callback, ""))

	assert.Equal(t, "abc", gotForm.Get("code"))
	assert.Equal(t, verifier, gotForm.Get("code_verifier"))
	assert.Equal(t, "kioku://p", gotForm.Get("redirect_uri"))

	token, err := fixture.manager.GetAccessToken(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, "t", token)

	refresh, ok, err := fixture.manager.store.ReadRefreshToken("p")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "r", refresh)

	assert.Equal(t, []string{"p-auth-callback"}, drain())

	// The state entry was consumed; replaying the callback fails.
	err = fixture.flow.HandleCallback(context.Background(), callback, "")
	assert.ErrorContains(t, err, "unknown or expired OAuth state")
}

func TestImplicitFlowHappyPath(t *testing.T) {
	fixture := newFlowFixture(t)
	fixture.manager.RegisterProvider("q", implicitProvider())
	drain := collectEvents(fixture.bus)

	require.NoError(t, fixture.flow.Authorize("q"))

	query := fixture.lastOpenedQuery(t)
	assert.Equal(t, "token", query.Get("response_type"))
	challenge := query.Get("code_challenge")
	assert.NotEmpty(t, challenge)
	assert.NotContains(t, challenge, "=") // base64url without padding

	callback := "kioku://q/#access_token=at&token_type=Bearer&expires_in=3600"
	require.NoError(t, fixture.flow.HandleCallback(context.Background(), callback, ""))

	token, err := fixture.manager.GetAccessToken(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, "at", token)

	assert.Equal(t, []string{"q-auth-callback"}, drain())
}

func TestImplicitFlowUsesDefaultTTL(t *testing.T) {
	fixture := newFlowFixture(t)
	fixture.manager.RegisterProvider("q", implicitProvider())

	require.NoError(t, fixture.flow.Authorize("q"))
	require.NoError(t, fixture.flow.HandleCallback(context.Background(), "kioku://q/#access_token=at&token_type=Bearer", ""))

	_, expiresAt, ok, err := fixture.manager.store.ReadAccessToken("q")
	require.NoError(t, err)
	require.True(t, ok)
	// One year out, give or take test runtime.
	assert.InDelta(t, float64(31536000), float64(expiresAt-time.Now().Unix()), 60)
}

func TestImplicitFlowMissingExpiryFails(t *testing.T) {
	fixture := newFlowFixture(t)
	provider := implicitProvider()
	provider.DefaultAccessTokenTTLSeconds = 0
	fixture.manager.RegisterProvider("q", provider)
	drain := collectEvents(fixture.bus)

	err := fixture.flow.HandleCallback(context.Background(), "kioku://q/#access_token=at", "")
	assert.ErrorContains(t, err, "missing access token expiration")
	assert.Equal(t, []string{"q-auth-failed"}, drain())
}

func TestCallbackMergesQueryAndFragment(t *testing.T) {
	fixture := newFlowFixture(t)
	fixture.manager.RegisterProvider("q", implicitProvider())

	// The fragment's value wins on duplicate keys.
	callback := "kioku://q?access_token=from-query&expires_in=10#access_token=from-fragment&expires_in=3600"
	require.NoError(t, fixture.flow.HandleCallback(context.Background(), callback, ""))

	token, _, ok, err := fixture.manager.store.ReadAccessToken("q")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "from-fragment", token)
}

func TestCallbackErrorParameterFailsAndCleansUp(t *testing.T) {
	fixture := newFlowFixture(t)
	fixture.manager.RegisterProvider("p", codeFlowProvider("https://provider.example/oauth2/token"))
	drain := collectEvents(fixture.bus)

	require.NoError(t, fixture.flow.Authorize("p"))
	state := fixture.lastOpenedQuery(t).Get("state")

	err := fixture.flow.HandleCallback(context.Background(), fmt.Sprintf("kioku://p?error=access_denied&state=%s", state), "")
	assert.ErrorContains(t, err, "access_denied")
	assert.Equal(t, []string{"p-auth-failed"}, drain())

	_, ok := fixture.manager.GetOAuthStateProvider(state)
	assert.False(t, ok)
}

func TestCallbackStateProviderMismatch(t *testing.T) {
	fixture := newFlowFixture(t)
	fixture.manager.RegisterProvider("p", codeFlowProvider("https://provider.example/oauth2/token"))
	fixture.manager.SetOAuthState("sX", "other-provider", "v")

	err := fixture.flow.HandleCallback(context.Background(), "kioku://p?code=abc&state=sX", "p")
	assert.ErrorContains(t, err, "state/provider mismatch")
}

func TestCallbackMissingPayload(t *testing.T) {
	fixture := newFlowFixture(t)
	fixture.manager.RegisterProvider("p", codeFlowProvider("https://provider.example/oauth2/token"))
	fixture.manager.SetOAuthState("sY", "p", "v")

	err := fixture.flow.HandleCallback(context.Background(), "kioku://p?state=sY", "")
	assert.ErrorContains(t, err, "expected one of: code")
}

func TestCallbackUnknownProvider(t *testing.T) {
	fixture := newFlowFixture(t)

	err := fixture.flow.HandleCallback(context.Background(), "kioku://mystery?code=abc", "")
	assert.ErrorContains(t, err, "unable to determine provider")
}

func TestSecondAuthorizeOverwritesPooledVerifier(t *testing.T) {
	fixture := newFlowFixture(t)
	fixture.manager.RegisterProvider("q", implicitProvider())

	require.NoError(t, fixture.flow.Authorize("q"))
	require.NoError(t, fixture.flow.Authorize("q"))

	// Only the second attempt's verifier remains in the pool.
	_, ok := fixture.manager.TakePKCEVerifier("q")
	assert.True(t, ok)
	_, ok = fixture.manager.TakePKCEVerifier("q")
	assert.False(t, ok)
}
