package service

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by a service matches exactly one of
// these with errors.Is.
var (
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrValidation      = errors.New("validation failed")
	ErrForbidden       = errors.New("forbidden")
	ErrTooManyAttempts = errors.New("too many attempts")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrStorage         = errors.New("storage failure")
)

var (
	ErrInvalidCredentials = fmt.Errorf("%w: invalid username or password", ErrNotFound)
	ErrUsernameTaken      = fmt.Errorf("%w: username already taken", ErrConflict)
	ErrKeyNotAvailable    = fmt.Errorf("%w: key is already sold", ErrConflict)
	ErrKeyLocked          = fmt.Errorf("%w: key is being purchased", ErrConflict)
	ErrShopExists         = fmt.Errorf("%w: seller already has a shop", ErrConflict)
	ErrNoShop             = fmt.Errorf("%w: seller has no shop", ErrNotFound)
	ErrSessionExpired     = fmt.Errorf("%w: session is missing or expired", ErrUnauthenticated)
)

func validationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func notFoundError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

func conflictError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

// storageError wraps a store or driver failure so callers only see ErrStorage.
func storageError(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStorage, op, err)
}
