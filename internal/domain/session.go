package domain

import (
	"context"
	"fmt"
	"time"
)

var (
	ErrSessionNotFound    = fmt.Errorf("%w: session invalid or expired", ErrUnauthorized)
	ErrSessionKeyConflict = fmt.Errorf("%w: session key already exists", ErrConflict)
)

// Session is the server-side record a token points to. It is created at
// sign-in or sign-up and only ever deleted, never updated.
type Session struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"userId"`
	SessionKey string    `json:"-"`
	ExpiresAt  time.Time `json:"expiresAt"`
	CreatedAt  time.Time `json:"createdAt"`
}

// IsExpired reports whether the session is no longer valid at now.
func (s *Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// SessionRepository defines the interface for session data access.
//
// GetByKey returns ErrSessionNotFound both for unknown keys and for keys
// whose session has expired but was not yet swept. Create returns
// ErrSessionKeyConflict when the key is already taken.
type SessionRepository interface {
	Create(ctx context.Context, session *Session) error
	GetByKey(ctx context.Context, sessionKey string) (*Session, error)
	ListForUser(ctx context.Context, userID int64) ([]*Session, error)
	Delete(ctx context.Context, sessionKey string) error
	DeleteAllForUser(ctx context.Context, userID int64) (int64, error)
	DeleteExpired(ctx context.Context) (int64, error)
}
