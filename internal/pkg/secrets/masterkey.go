package secrets

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

const (
	keyringAccount = "stronghold-master-key"
	keyLength      = 32
)

// loadOrCreateMasterKey returns the vault master key from the OS keyring,
// generating and persisting a fresh one when no entry exists yet. Any other
// keyring failure is surfaced to the caller.
func loadOrCreateMasterKey(service string) ([]byte, error) {
	encoded, err := keyring.Get(service, keyringAccount)
	if err == nil {
		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("decode master key: %w", err)
		}
		if len(decoded) != keyLength {
			return nil, errors.New("master key has invalid length")
		}
		return decoded, nil
	}

	if !errors.Is(err, keyring.ErrNotFound) {
		return nil, fmt.Errorf("read master key from keyring: %w", err)
	}

	key := make([]byte, keyLength)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate master key: %w", err)
	}
	if err := keyring.Set(service, keyringAccount, base64.StdEncoding.EncodeToString(key)); err != nil {
		return nil, fmt.Errorf("write master key to keyring: %w", err)
	}
	return key, nil
}
