package domain

import "errors"

// Error taxonomy shared by every layer. Callers wrap these with fmt.Errorf("...: %w")
// and the API maps them to status codes with errors.Is.
var (
	// ErrValidation marks malformed input or configuration. Nothing is stored.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound marks a reference to a merchant, assessment or alert that does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict marks a state conflict such as a duplicate merchant id
	// or resolving an alert twice.
	ErrConflict = errors.New("conflict")
)
