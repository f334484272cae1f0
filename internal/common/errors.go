// Package common holds the error taxonomy shared by the stores, services and
// the HTTP layer. Callers match these values with errors.Is / errors.As.
package common

import "errors"

var (
	// ErrNotFound covers both absent records and records the caller may not see.
	ErrNotFound = errors.New("Not found")

	ErrUnauthorized = errors.New("Unauthorized")

	ErrConflict = errors.New("Already exist")
)

// ValidationError is a client mistake whose message is returned verbatim.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

// NewValidation builds a ValidationError with the given client message.
func NewValidation(msg string) error {
	return &ValidationError{Msg: msg}
}

// IsValidation reports whether err wraps a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
