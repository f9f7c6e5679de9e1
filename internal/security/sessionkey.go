package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"io"
)

// SessionKeyBytes is the amount of randomness behind every session key (256 bits).
const SessionKeyBytes = 32

// KeyGenerator produces opaque, unguessable session keys.
// Keys are stored server-side and only ever compared for equality.
type KeyGenerator struct {
	rand io.Reader
}

// NewKeyGenerator creates a generator reading from crypto/rand.
func NewKeyGenerator() *KeyGenerator {
	return &KeyGenerator{rand: rand.Reader}
}

// Generate returns 32 random bytes encoded as unpadded base64url (43 chars).
func (g *KeyGenerator) Generate() (string, error) {
	b := make([]byte, SessionKeyBytes)
	if _, err := io.ReadFull(g.rand, b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Fingerprint returns a short, non-reversible label for a session key so
// it can appear in logs without leaking the key itself.
func Fingerprint(sessionKey string) string {
	if sessionKey == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(sessionKey))
	return hex.EncodeToString(sum[:4])
}
