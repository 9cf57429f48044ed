package services

import "errors"

var (
	// ErrInvalidCredentials is returned when an email/password pair does
	// not match a user, or when an authenticated subject no longer exists.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrForbidden is returned when a user modifies a recipe they do not own.
	ErrForbidden = errors.New("forbidden")
)

// ValidationError reports a missing or malformed input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}
