package anilist

import (
	"github.com/kioku-app/kioku/internal/pkg/auth"
	"github.com/kioku-app/kioku/internal/pkg/env"
)

// ProviderID is the registry key for AniList.
const ProviderID = "anilist"

const redirectURI = "kioku://anilist"

// defaultAccessTokenTTL covers AniList's year-long implicit tokens when the
// callback omits expires_in.
const defaultAccessTokenTTL = 31536000

// Provider returns the AniList OAuth configuration: implicit flow with an
// S256 challenge and no token endpoint, so an expired token always requires a
// fresh authorization.
func Provider() auth.ProviderConfig {
	return auth.ProviderConfig{
		ClientID:                     env.GetEnv("KIOKU_ANILIST_CLIENT_ID", ""),
		AuthorizeURL:                 "https://anilist.co/api/v2/oauth/authorize",
		UsePKCE:                      true,
		UsesState:                    false,
		CallbackAccessTokenParam:     "access_token",
		DefaultAccessTokenTTLSeconds: defaultAccessTokenTTL,
		AuthorizeExtraParams: []auth.Param{
			{Key: "response_type", Value: "token"},
			{Key: "code_challenge_method", Value: "S256"},
			{Key: "redirect_uri", Value: env.GetEnv("KIOKU_ANILIST_REDIRECT_URI", redirectURI)},
		},
		CallbackHints: []string{ProviderID},
	}
}
