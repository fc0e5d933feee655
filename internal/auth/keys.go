package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/crypto/pbkdf2"
)

const (
	saltLen        = 32
	digestLen      = 32
	pbkdf2Rounds   = 100000
	keyPrefixLen   = 8
	keySecretBytes = 24
)

// MintKey generates a new key ID and its raw bearer secret. The raw secret
// embeds the first eight characters of the key ID so authentication can
// prefix-match before running the key derivation.
func MintKey() (keyID, rawKey string, err error) {
	keyID = uuid.New().String()

	secret := make([]byte, keySecretBytes)
	if _, err := rand.Read(secret); err != nil {
		return "", "", fmt.Errorf("generate key secret: %w", err)
	}

	rawKey = keyID[:keyPrefixLen] + hex.EncodeToString(secret)
	return keyID, rawKey, nil
}

// HashKey derives the stored hash for a raw key: salt || pbkdf2 digest.
func HashKey(rawKey string) ([]byte, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	digest := pbkdf2.Key([]byte(rawKey), salt, pbkdf2Rounds, digestLen, sha256.New)
	return append(salt, digest...), nil
}

// VerifyKey checks a raw key against a stored salt||digest hash in constant
// time.
func VerifyKey(rawKey string, stored []byte) bool {
	if len(stored) < saltLen+1 {
		return false
	}
	salt := stored[:saltLen]
	digest := pbkdf2.Key([]byte(rawKey), salt, pbkdf2Rounds, digestLen, sha256.New)
	return hmac.Equal(digest, stored[saltLen:])
}

// KeyMatchesPrefix reports whether a raw key could belong to keyID, cheaply,
// before the expensive derivation.
func KeyMatchesPrefix(rawKey, keyID string) bool {
	if len(rawKey) < keyPrefixLen || len(keyID) < keyPrefixLen {
		return false
	}
	return rawKey[:keyPrefixLen] == keyID[:keyPrefixLen]
}
