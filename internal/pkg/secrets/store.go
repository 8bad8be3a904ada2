package secrets

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/nacl/secretbox"
)

const (
	vaultFileName = "stronghold.hold"

	kindRefreshToken = "refresh_token"
	kindAccessToken  = "access_token"
)

var ErrKeyNotInitialized = errors.New("master key not initialized")

// Store persists provider credentials in a single encrypted vault file. The
// whole vault is sealed with the keyring-held 32-byte master key; records are
// addressed by "<provider_id>:<kind>".
type Store struct {
	service   string
	vaultPath string

	mu  sync.Mutex
	key *[keyLength]byte
}

type accessTokenRecord struct {
	AccessToken          string `json:"access_token"`
	ExpiresAtUnixSeconds int64  `json:"expires_at_unix_seconds"`
}

func NewStore(service, dataDir string) *Store {
	return &Store{
		service:   service,
		vaultPath: filepath.Join(dataDir, vaultFileName),
	}
}

// Init loads or creates the master key. Must be called once at startup before
// any token operation.
func (s *Store) Init() error {
	key, err := loadOrCreateMasterKey(s.service)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var fixed [keyLength]byte
	copy(fixed[:], key)
	s.key = &fixed
	return nil
}

func (s *Store) masterKey() (*[keyLength]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.key == nil {
		return nil, ErrKeyNotInitialized
	}
	clone := *s.key
	return &clone, nil
}

func (s *Store) SaveRefreshToken(providerID, refreshToken string) error {
	return s.put(recordKey(providerID, kindRefreshToken), []byte(refreshToken))
}

func (s *Store) ReadRefreshToken(providerID string) (string, bool, error) {
	raw, ok, err := s.get(recordKey(providerID, kindRefreshToken))
	if err != nil || !ok {
		return "", false, err
	}
	return string(raw), true, nil
}

func (s *Store) SaveAccessToken(providerID, accessToken string, expiresAtUnixSecs int64) error {
	payload, err := json.Marshal(accessTokenRecord{
		AccessToken:          accessToken,
		ExpiresAtUnixSeconds: expiresAtUnixSecs,
	})
	if err != nil {
		return fmt.Errorf("encode access token record: %w", err)
	}
	return s.put(recordKey(providerID, kindAccessToken), payload)
}

// ReadAccessToken returns the persisted access token and its absolute expiry.
// A malformed record is reported as absent, never as an error.
func (s *Store) ReadAccessToken(providerID string) (string, int64, bool, error) {
	raw, ok, err := s.get(recordKey(providerID, kindAccessToken))
	if err != nil || !ok {
		return "", 0, false, err
	}
	var record accessTokenRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return "", 0, false, nil
	}
	if record.AccessToken == "" {
		return "", 0, false, nil
	}
	return record.AccessToken, record.ExpiresAtUnixSeconds, true, nil
}

func recordKey(providerID, kind string) string {
	return providerID + ":" + kind
}

func (s *Store) put(key string, value []byte) error {
	masterKey, err := s.masterKey()
	if err != nil {
		return err
	}
	records, err := s.loadVault(masterKey)
	if err != nil {
		return err
	}
	records[key] = value
	return s.saveVault(masterKey, records)
}

func (s *Store) get(key string) ([]byte, bool, error) {
	masterKey, err := s.masterKey()
	if err != nil {
		return nil, false, err
	}
	records, err := s.loadVault(masterKey)
	if err != nil {
		return nil, false, err
	}
	value, ok := records[key]
	return value, ok, nil
}

func (s *Store) loadVault(key *[keyLength]byte) (map[string][]byte, error) {
	sealed, err := os.ReadFile(s.vaultPath)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string][]byte), nil
		}
		return nil, fmt.Errorf("read vault: %w", err)
	}
	if len(sealed) < 24 {
		return nil, errors.New("vault file is truncated")
	}

	var nonce [24]byte
	copy(nonce[:], sealed[:24])
	plain, ok := secretbox.Open(nil, sealed[24:], &nonce, key)
	if !ok {
		return nil, errors.New("vault decryption failed")
	}

	records := make(map[string][]byte)
	if err := json.Unmarshal(plain, &records); err != nil {
		return nil, fmt.Errorf("decode vault: %w", err)
	}
	return records, nil
}

func (s *Store) saveVault(key *[keyLength]byte, records map[string][]byte) error {
	plain, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode vault: %w", err)
	}

	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return fmt.Errorf("generate vault nonce: %w", err)
	}
	sealed := secretbox.Seal(nonce[:], plain, &nonce, key)

	if err := os.MkdirAll(filepath.Dir(s.vaultPath), 0700); err != nil {
		return fmt.Errorf("create vault directory: %w", err)
	}
	tmp := s.vaultPath + ".tmp"
	if err := os.WriteFile(tmp, sealed, 0600); err != nil {
		return fmt.Errorf("write vault: %w", err)
	}
	if err := os.Rename(tmp, s.vaultPath); err != nil {
		return fmt.Errorf("replace vault: %w", err)
	}
	return nil
}
