package secrets

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	keyring.MockInit()
	store := NewStore("app.kioku.test", t.TempDir())
	require.NoError(t, store.Init())
	return store
}

func TestStoreRequiresInit(t *testing.T) {
	store := NewStore("app.kioku.test", t.TempDir())

	err := store.SaveRefreshToken("myanimelist", "r1")
	assert.ErrorIs(t, err, ErrKeyNotInitialized)

	_, _, err = store.ReadRefreshToken("myanimelist")
	assert.ErrorIs(t, err, ErrKeyNotInitialized)
}

func TestRefreshTokenRoundTrip(t *testing.T) {
	store := newTestStore(t)

	_, ok, err := store.ReadRefreshToken("myanimelist")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.SaveRefreshToken("myanimelist", "first"))
	require.NoError(t, store.SaveRefreshToken("myanimelist", "second")) // upsert

	token, ok, err := store.ReadRefreshToken("myanimelist")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "second", token)

	// Records are scoped per provider.
	_, ok, err = store.ReadRefreshToken("anilist")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAccessTokenRoundTrip(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.SaveAccessToken("anilist", "at-1", 1700000000))

	token, expiresAt, ok, err := store.ReadAccessToken("anilist")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "at-1", token)
	assert.Equal(t, int64(1700000000), expiresAt)
}

func TestMalformedAccessTokenRecordIsAbsent(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.put(recordKey("anilist", kindAccessToken), []byte("not json")))

	_, _, ok, err := store.ReadAccessToken("anilist")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVaultSurvivesReopen(t *testing.T) {
	keyring.MockInit()
	dir := t.TempDir()

	first := NewStore("app.kioku.test", dir)
	require.NoError(t, first.Init())
	require.NoError(t, first.SaveRefreshToken("myanimelist", "persisted"))

	second := NewStore("app.kioku.test", dir)
	require.NoError(t, second.Init())
	token, ok, err := second.ReadRefreshToken("myanimelist")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "persisted", token)
}

func TestTamperedVaultFailsDecryption(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.SaveRefreshToken("myanimelist", "secret"))

	sealed, err := os.ReadFile(store.vaultPath)
	require.NoError(t, err)
	sealed[len(sealed)-1] ^= 0xff
	require.NoError(t, os.WriteFile(store.vaultPath, sealed, 0600))

	_, _, err = store.ReadRefreshToken("myanimelist")
	assert.Error(t, err)
}
