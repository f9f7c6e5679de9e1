package domain

import (
	"context"
	"fmt"
	"time"
)

var ErrUserNotFound = fmt.Errorf("%w: user not found", ErrNotFound)

// User is an account holder. PasswordHash is never serialised.
type User struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Bio          string    `json:"bio"`
	CreatedAt    time.Time `json:"createdAt"`
}

// UserRepository defines the interface for user data access
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByEmailOrName(ctx context.Context, emailOrName string) (*User, error)
}
