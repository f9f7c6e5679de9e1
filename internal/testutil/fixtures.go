package testutil

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/doguto/nari-note-sub000/internal/domain"
)

// Counter for generating unique IDs
var idCounter atomic.Int64

func nextID() int64 {
	return idCounter.Add(1)
}

// UserOptions allows customizing user fixture creation
type UserOptions struct {
	ID           int64
	Name         string
	Email        string
	PasswordHash string
	Bio          string
	CreatedAt    time.Time
}

// NewTestUser creates a test user with sensible defaults
// Pass options to override specific fields
func NewTestUser(opts ...func(*UserOptions)) *domain.User {
	id := nextID()
	o := &UserOptions{
		ID:           id,
		Name:         fmt.Sprintf("kishi%d", id),
		PasswordHash: "$2a$10$test.hash.for.testing.purposes.only", // bcrypt hash placeholder
	}

	for _, opt := range opts {
		opt(o)
	}

	if o.Email == "" {
		o.Email = o.Name + "@example.com"
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now()
	}

	return &domain.User{
		ID:           o.ID,
		Name:         o.Name,
		Email:        o.Email,
		PasswordHash: o.PasswordHash,
		Bio:          o.Bio,
		CreatedAt:    o.CreatedAt,
	}
}

// WithUserID sets the user ID
func WithUserID(id int64) func(*UserOptions) {
	return func(o *UserOptions) {
		o.ID = id
	}
}

// WithName sets the display name
func WithName(name string) func(*UserOptions) {
	return func(o *UserOptions) {
		o.Name = name
	}
}

// WithEmail sets the email
func WithEmail(email string) func(*UserOptions) {
	return func(o *UserOptions) {
		o.Email = email
	}
}

// WithPasswordHash sets the password hash
func WithPasswordHash(hash string) func(*UserOptions) {
	return func(o *UserOptions) {
		o.PasswordHash = hash
	}
}

// SessionOptions allows customizing session fixture creation
type SessionOptions struct {
	ID         int64
	UserID     int64
	SessionKey string
	ExpiresAt  time.Time
	CreatedAt  time.Time
}

// NewTestSession creates a test session with sensible defaults
func NewTestSession(opts ...func(*SessionOptions)) *domain.Session {
	id := nextID()
	o := &SessionOptions{
		ID:         id,
		UserID:     nextID(),
		SessionKey: fmt.Sprintf("session-key-%d", id),
		ExpiresAt:  time.Now().Add(24 * time.Hour),
		CreatedAt:  time.Now(),
	}

	for _, opt := range opts {
		opt(o)
	}

	return &domain.Session{
		ID:         o.ID,
		UserID:     o.UserID,
		SessionKey: o.SessionKey,
		ExpiresAt:  o.ExpiresAt,
		CreatedAt:  o.CreatedAt,
	}
}

// WithSessionUserID sets the user ID for the session
func WithSessionUserID(userID int64) func(*SessionOptions) {
	return func(o *SessionOptions) {
		o.UserID = userID
	}
}

// WithSessionKey sets the session key
func WithSessionKey(key string) func(*SessionOptions) {
	return func(o *SessionOptions) {
		o.SessionKey = key
	}
}

// WithExpiresAt sets the session expiration time
func WithExpiresAt(t time.Time) func(*SessionOptions) {
	return func(o *SessionOptions) {
		o.ExpiresAt = t
	}
}

// WithExpired creates an expired session
func WithExpired() func(*SessionOptions) {
	return func(o *SessionOptions) {
		o.ExpiresAt = time.Now().Add(-1 * time.Hour)
	}
}

// ArticleOptions allows customizing article fixture creation
type ArticleOptions struct {
	ID          int64
	AuthorID    int64
	Title       string
	IsPublished bool
}

// NewTestArticle creates a published article by default
func NewTestArticle(opts ...func(*ArticleOptions)) *domain.Article {
	id := nextID()
	o := &ArticleOptions{
		ID:          id,
		AuthorID:    nextID(),
		Title:       fmt.Sprintf("矢倉の基本 %d", id),
		IsPublished: true,
	}

	for _, opt := range opts {
		opt(o)
	}

	now := time.Now()
	return &domain.Article{
		ID:          o.ID,
		AuthorID:    o.AuthorID,
		Title:       o.Title,
		IsPublished: o.IsPublished,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// WithArticleID sets the article ID
func WithArticleID(id int64) func(*ArticleOptions) {
	return func(o *ArticleOptions) {
		o.ID = id
	}
}

// WithAuthorID sets the author
func WithAuthorID(id int64) func(*ArticleOptions) {
	return func(o *ArticleOptions) {
		o.AuthorID = id
	}
}

// WithDraft marks the article unpublished
func WithDraft() func(*ArticleOptions) {
	return func(o *ArticleOptions) {
		o.IsPublished = false
	}
}
