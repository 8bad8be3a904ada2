package auth

// Param is an ordered key/value pair appended to an OAuth endpoint request.
// Order matters: provider-configured extras always come after the parameters
// owned by the core.
type Param struct {
	Key   string
	Value string
}

// ProviderConfig describes one remote anime-list service. It is immutable
// after registration; the token manager hands out copies.
type ProviderConfig struct {
	ClientID     string
	AuthorizeURL string
	TokenURL     string

	// UsePKCE requires a code challenge at authorize time and a verifier at
	// exchange time.
	UsePKCE bool
	// UsesState binds the callback to its authorize attempt via an opaque
	// state value echoed by the provider.
	UsesState bool

	// CallbackCodeParam names the authorization-code field of the callback
	// ("code" for the code flow); empty when the provider never sends one.
	CallbackCodeParam string
	// CallbackAccessTokenParam names the implicit-flow token field of the
	// callback ("access_token"); empty when the provider never sends one.
	CallbackAccessTokenParam string
	// CallbackStateParam names the state echo; defaults to "state".
	CallbackStateParam string

	// DefaultAccessTokenTTLSeconds is the fallback lifetime applied when an
	// implicit callback omits expires_in. Zero means no fallback.
	DefaultAccessTokenTTLSeconds int64

	AuthorizeExtraParams []Param
	TokenExtraParams     []Param
	RefreshExtraParams   []Param

	// CallbackHints are host / first-path-segment values that unambiguously
	// identify this provider in a deep-link URL.
	CallbackHints []string
}

// StateParam returns the configured state echo field name.
func (c ProviderConfig) StateParam() string {
	if c.CallbackStateParam == "" {
		return "state"
	}
	return c.CallbackStateParam
}

// CodeChallengeMethod reads the challenge method from the authorize extras;
// providers that do not declare one get the plain method.
func (c ProviderConfig) CodeChallengeMethod() string {
	for _, param := range c.AuthorizeExtraParams {
		if param.Key == "code_challenge_method" {
			return param.Value
		}
	}
	return "plain"
}

func (c ProviderConfig) matchesHint(hint string) bool {
	for _, candidate := range c.CallbackHints {
		if candidate == hint {
			return true
		}
	}
	return false
}
