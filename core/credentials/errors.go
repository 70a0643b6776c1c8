package credentials

import "errors"

// ErrValidation reports unusable arguments to LoadCredentials.
var ErrValidation = errors.New("invalid credentials")

// ValidationError names the missing field.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	switch e.Field {
	case "user":
		return "the user name can not be empty"
	case "password":
		return "the password can not be empty"
	default:
		return "invalid " + e.Field
	}
}

func (e *ValidationError) Unwrap() error { return ErrValidation }
