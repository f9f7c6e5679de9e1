package security

import (
	"fmt"

	"github.com/doguto/nari-note-sub000/internal/domain"

	"golang.org/x/crypto/bcrypt"
)

// DefaultCost is the bcrypt work factor used for new digests.
const DefaultCost = 12

// maxSecretBytes is bcrypt's input limit; longer secrets would be silently
// truncated by older implementations and are rejected by x/crypto.
const maxSecretBytes = 72

// PasswordHasher hashes and verifies user secrets with bcrypt.
type PasswordHasher struct {
	cost int
}

// NewPasswordHasher returns a hasher with the given cost, falling back to
// DefaultCost when cost is outside bcrypt's accepted range.
func NewPasswordHasher(cost int) *PasswordHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultCost
	}
	return &PasswordHasher{cost: cost}
}

// Hash returns a salted bcrypt digest of secret.
func (h *PasswordHasher) Hash(secret string) (string, error) {
	if secret == "" || len(secret) > maxSecretBytes {
		return "", domain.ErrInvalidInput
	}
	digest, err := bcrypt.GenerateFromPassword([]byte(secret), h.cost)
	if err != nil {
		return "", fmt.Errorf("hash secret: %w", err)
	}
	return string(digest), nil
}

// Verify reports whether secret matches digest. A wrong secret, an empty
// secret and a malformed digest all yield false.
func (h *PasswordHasher) Verify(secret, digest string) bool {
	if secret == "" || digest == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(secret)) == nil
}
