package myanimelist

import (
	"github.com/kioku-app/kioku/internal/pkg/auth"
	"github.com/kioku-app/kioku/internal/pkg/env"
)

// ProviderID is the registry key for MyAnimeList.
const ProviderID = "myanimelist"

const redirectURI = "kioku://myanimelist"

// Provider returns the MyAnimeList OAuth configuration: authorization-code
// flow with plain PKCE and a state parameter. MAL validates the plain
// verifier server-side, so the challenge equals the verifier.
func Provider() auth.ProviderConfig {
	redirect := env.GetEnv("KIOKU_MAL_REDIRECT_URI", redirectURI)

	return auth.ProviderConfig{
		ClientID:          env.GetEnv("KIOKU_MAL_CLIENT_ID", ""),
		AuthorizeURL:      "https://myanimelist.net/v1/oauth2/authorize",
		TokenURL:          "https://myanimelist.net/v1/oauth2/token",
		UsePKCE:           true,
		UsesState:         true,
		CallbackCodeParam: "code",
		AuthorizeExtraParams: []auth.Param{
			{Key: "response_type", Value: "code"},
			{Key: "code_challenge_method", Value: "plain"},
			{Key: "redirect_uri", Value: redirect},
		},
		TokenExtraParams: []auth.Param{
			{Key: "redirect_uri", Value: redirect},
		},
		CallbackHints: []string{ProviderID},
	}
}
