package auth

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"github.com/pkg/browser"

	"github.com/kioku-app/kioku/internal/pkg/events"
)

// Flow drives the user-visible authorize-and-callback protocol on top of the
// token manager: it generates PKCE material and state, opens the system
// browser, and turns the deep-link callback the OS delivers into stored
// tokens. Outcomes are reported to the UI through the event bus as
// "<provider>-auth-callback" / "<provider>-auth-failed".
type Flow struct {
	manager *Manager
	bus     *events.Bus
	openURL func(string) error
}

func NewFlow(manager *Manager, bus *events.Bus) *Flow {
	return &Flow{
		manager: manager,
		bus:     bus,
		openURL: browser.OpenURL,
	}
}

// Authorize starts an authorization attempt for the provider and opens its
// authorize URL in the default browser.
func (f *Flow) Authorize(providerID string) error {
	provider, err := f.manager.GetProvider(providerID)
	if err != nil {
		return err
	}

	state := ""
	if provider.UsesState {
		state = randomAlphanumeric(stateLength)
	}

	var pkce PKCEPair
	if provider.UsePKCE {
		pkce = GeneratePKCE(provider.CodeChallengeMethod())
	}

	authorizeURL, err := f.manager.BuildAuthorizeURL(providerID, pkce.CodeChallenge, state)
	if err != nil {
		return err
	}

	if state != "" {
		f.manager.SetOAuthState(state, providerID, pkce.CodeVerifier)
	} else if provider.UsePKCE {
		f.manager.SetPKCEVerifier(providerID, pkce.CodeVerifier)
	}

	return f.openURL(authorizeURL)
}

// HandleCallback processes a kioku:// deep-link URL. providerOverride skips
// provider resolution when the caller already knows the target (the
// per-provider callback entry points).
func (f *Flow) HandleCallback(ctx context.Context, rawURL, providerOverride string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return err
	}

	params := callbackParams(parsed)

	providerID, err := f.resolveProvider(parsed, params, providerOverride)
	if err != nil {
		return err
	}

	provider, err := f.manager.GetProvider(providerID)
	if err != nil {
		return err
	}
	callbackState, hasState := params[provider.StateParam()]

	err = f.completeCallback(ctx, providerID, provider, params, callbackState, hasState)
	if err != nil {
		f.cleanupFailedCallback(providerID, provider, callbackState, hasState)
		f.bus.Emit(providerID + "-auth-failed")
		return err
	}

	f.bus.Emit(providerID + "-auth-callback")
	return nil
}

// callbackParams unions the query string and, when present, the fragment
// parsed as a query string. Fragment values win on duplicate keys.
func callbackParams(parsed *url.URL) map[string]string {
	params := make(map[string]string)
	for key, values := range parsed.Query() {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}
	if parsed.Fragment != "" {
		if fragment, err := url.ParseQuery(parsed.Fragment); err == nil {
			for key, values := range fragment {
				if len(values) > 0 {
					params[key] = values[0]
				}
			}
		}
	}
	return params
}

// resolveProvider identifies the callback's provider: explicit override,
// pending-state lookup, deep-link hints, then payload-shape inference.
func (f *Flow) resolveProvider(parsed *url.URL, params map[string]string, override string) (string, error) {
	if override != "" {
		return override, nil
	}

	if state, ok := params["state"]; ok {
		if providerID, ok := f.manager.GetOAuthStateProvider(state); ok {
			return providerID, nil
		}
	}

	for _, hint := range callbackHints(parsed) {
		if providerID, ok := f.manager.GetProviderFromCallbackHint(hint); ok {
			return providerID, nil
		}
	}

	if providerID, ok := f.manager.InferProviderFromCallbackParams(params); ok {
		return providerID, nil
	}

	return "", fmt.Errorf("unable to determine provider from callback URL")
}

func callbackHints(parsed *url.URL) []string {
	var hints []string
	if host := parsed.Host; host != "" {
		hints = append(hints, host)
	}
	if segment := strings.SplitN(strings.TrimPrefix(parsed.Path, "/"), "/", 2)[0]; segment != "" {
		hints = append(hints, segment)
	}
	return hints
}

func (f *Flow) completeCallback(ctx context.Context, providerID string, provider ProviderConfig, params map[string]string, callbackState string, hasState bool) error {
	if errValue, ok := params["error"]; ok {
		return fmt.Errorf("error during authorization: %s", errValue)
	}

	var stateVerifier string
	if provider.UsesState {
		if !hasState {
			return fmt.Errorf("missing OAuth state in callback")
		}
		stateProvider, verifier, ok := f.manager.TakeOAuthState(callbackState)
		if !ok {
			return fmt.Errorf("unknown or expired OAuth state")
		}
		if stateProvider != providerID {
			return fmt.Errorf("OAuth state/provider mismatch")
		}
		stateVerifier = verifier
	}

	if provider.CallbackAccessTokenParam != "" {
		if accessToken, ok := params[provider.CallbackAccessTokenParam]; ok {
			expiresIn, ok := resolveCallbackExpiresIn(provider, params)
			if !ok {
				return fmt.Errorf("missing access token expiration in callback and no default configured")
			}
			return f.manager.StoreAccessToken(providerID, accessToken, expiresIn)
		}
	}

	if provider.CallbackCodeParam != "" {
		if code, ok := params[provider.CallbackCodeParam]; ok {
			var codeVerifier string
			if provider.UsePKCE {
				if provider.UsesState {
					if stateVerifier == "" {
						return fmt.Errorf("missing PKCE verifier associated with OAuth state")
					}
					codeVerifier = stateVerifier
				} else {
					codeVerifier, _ = f.manager.TakePKCEVerifier(providerID)
				}
			}
			_, err := f.manager.ExchangeAuthorizationCode(ctx, providerID, code, codeVerifier)
			return err
		}
	}

	var expected []string
	if provider.CallbackAccessTokenParam != "" {
		expected = append(expected, provider.CallbackAccessTokenParam)
	}
	if provider.CallbackCodeParam != "" {
		expected = append(expected, provider.CallbackCodeParam)
	}
	if len(expected) == 0 {
		return fmt.Errorf("provider %s has no callback payload fields configured", providerID)
	}
	return fmt.Errorf("missing callback payload for provider %s; expected one of: %s", providerID, strings.Join(expected, ", "))
}

func resolveCallbackExpiresIn(provider ProviderConfig, params map[string]string) (int64, bool) {
	if raw, ok := params["expires_in"]; ok {
		if value, err := strconv.ParseInt(raw, 10, 64); err == nil && value > 0 {
			return value, true
		}
	}
	if provider.DefaultAccessTokenTTLSeconds > 0 {
		return provider.DefaultAccessTokenTTLSeconds, true
	}
	return 0, false
}

// cleanupFailedCallback discards any pending state or pooled verifier the
// failed attempt still owns.
func (f *Flow) cleanupFailedCallback(providerID string, provider ProviderConfig, callbackState string, hasState bool) {
	if provider.UsePKCE && !provider.UsesState {
		if _, ok := f.manager.TakePKCEVerifier(providerID); ok {
			log.Infof("[OAuth] Discarded pending PKCE verifier for %s after failed callback", providerID)
		}
	}
	if provider.UsesState && hasState {
		f.manager.TakeOAuthState(callbackState)
	}
}
