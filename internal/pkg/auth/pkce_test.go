package auth

import (
	"crypto/sha256"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGeneratePKCEPlain(t *testing.T) {
	pair := GeneratePKCE("plain")

	assert.Len(t, pair.CodeVerifier, 64)
	assert.Equal(t, pair.CodeVerifier, pair.CodeChallenge)
	for _, ch := range pair.CodeVerifier {
		assert.Contains(t, alphanumeric, string(ch))
	}
}

func TestGeneratePKCES256(t *testing.T) {
	pair := GeneratePKCE("S256")

	assert.Len(t, pair.CodeVerifier, 64)
	digest := sha256.Sum256([]byte(pair.CodeVerifier))
	assert.Equal(t, base64.RawURLEncoding.EncodeToString(digest[:]), pair.CodeChallenge)
	assert.NotContains(t, pair.CodeChallenge, "=")
}

func TestRandomAlphanumericLength(t *testing.T) {
	state := randomAlphanumeric(32)
	assert.Len(t, state, 32)
	assert.NotEqual(t, state, randomAlphanumeric(32))
}
