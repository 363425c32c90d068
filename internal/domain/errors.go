package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation    = errors.New("validation error")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrWindowExpired = errors.New("edit window expired")
	ErrNotFound      = errors.New("not found")

	// ErrMessageDeleted is a validation error: tombstones are final.
	ErrMessageDeleted = fmt.Errorf("%w: message was deleted", ErrValidation)

	// ErrCacheUnavailable never leaves the service layer; callers fall back to the store.
	ErrCacheUnavailable = errors.New("cache unavailable")
)

// ErrorCode is the stable client-facing code for err.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrWindowExpired):
		return "window_expired"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	}
	return "internal"
}
