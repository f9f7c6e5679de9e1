package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned across package boundaries wraps one of
// these so transports can map it without knowing the concrete cause.
var (
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
)

var (
	ErrInvalidInput       = fmt.Errorf("%w: invalid input", ErrValidation)
	ErrSelfFollow         = fmt.Errorf("%w: cannot follow yourself", ErrValidation)
	ErrInvalidCredentials = fmt.Errorf("%w: invalid username, email or password", ErrUnauthorized)
	ErrEmailExists        = fmt.Errorf("%w: email already registered", ErrConflict)
	ErrNameExists         = fmt.Errorf("%w: name already taken", ErrConflict)
)
