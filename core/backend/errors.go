package backend

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrUnauthorized is matched by every error caused by a rejected credential.
var ErrUnauthorized = errors.New("unauthorized")

// ErrUnknownCommand is returned by Execute for unsupported command names.
var ErrUnknownCommand = errors.New("unknown command")

// APIError is a failed call to the remote service.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (status %d)", e.Message, e.StatusCode)
}

// Unwrap maps a 401 status onto ErrUnauthorized.
func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return nil
}

// NewAPIError builds an APIError.
func NewAPIError(status int, msg string) *APIError {
	return &APIError{StatusCode: status, Message: msg}
}

// IsAuth reports whether err was caused by a rejected credential.
func IsAuth(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}
