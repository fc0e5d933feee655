package auth

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMintKey(t *testing.T) {
	keyID, rawKey, err := MintKey()
	require.NoError(t, err)
	require.Len(t, keyID, 36)
	require.True(t, KeyMatchesPrefix(rawKey, keyID))

	// Secrets never repeat.
	_, rawKey2, err := MintKey()
	require.NoError(t, err)
	require.NotEqual(t, rawKey, rawKey2)
}

func TestHashAndVerifyKey(t *testing.T) {
	_, rawKey, err := MintKey()
	require.NoError(t, err)

	hash, err := HashKey(rawKey)
	require.NoError(t, err)
	require.NotContains(t, string(hash), rawKey)

	require.True(t, VerifyKey(rawKey, hash))
	require.False(t, VerifyKey(rawKey+"x", hash))
	require.False(t, VerifyKey("", hash))
}

func TestVerifyKey_MalformedHash(t *testing.T) {
	require.False(t, VerifyKey("whatever", nil))
	require.False(t, VerifyKey("whatever", []byte("short")))
}

func TestHashKey_SaltVaries(t *testing.T) {
	_, rawKey, err := MintKey()
	require.NoError(t, err)

	first, err := HashKey(rawKey)
	require.NoError(t, err)
	second, err := HashKey(rawKey)
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	require.True(t, VerifyKey(rawKey, first))
	require.True(t, VerifyKey(rawKey, second))
}

func TestKeyMatchesPrefix(t *testing.T) {
	require.True(t, KeyMatchesPrefix("abcd1234rest-of-secret", "abcd1234-uuid-tail"))
	require.False(t, KeyMatchesPrefix("abcd1235rest-of-secret", "abcd1234-uuid-tail"))
	require.False(t, KeyMatchesPrefix("short", "abcd1234-uuid-tail"))
	require.False(t, KeyMatchesPrefix("abcd1234rest", "short"))
}
