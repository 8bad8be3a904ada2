package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
)

const alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

const (
	stateLength    = 32
	verifierLength = 64
)

// PKCEPair is a freshly generated verifier with its derived challenge.
type PKCEPair struct {
	CodeVerifier  string
	CodeChallenge string
}

// GeneratePKCE draws a 64-character alphanumeric verifier from the OS CSPRNG
// and derives the challenge for the given method: S256 produces the
// base64url-encoded (unpadded) SHA-256 of the verifier, anything else uses
// the verifier itself (the plain method).
func GeneratePKCE(method string) PKCEPair {
	verifier := randomAlphanumeric(verifierLength)

	challenge := verifier
	if method == "S256" {
		digest := sha256.Sum256([]byte(verifier))
		challenge = base64.RawURLEncoding.EncodeToString(digest[:])
	}

	return PKCEPair{CodeVerifier: verifier, CodeChallenge: challenge}
}

func randomAlphanumeric(length int) string {
	raw := make([]byte, length)
	if _, err := rand.Read(raw); err != nil {
		// crypto/rand never fails on supported platforms
		panic(err)
	}
	out := make([]byte, length)
	for i, b := range raw {
		out[i] = alphanumeric[int(b)%len(alphanumeric)]
	}
	return string(out)
}
