package domain

import (
	"errors"
	"strings"
)

var (
	// ErrRemoteCall marks a failed call to the integration backend.
	ErrRemoteCall = errors.New("remote call failed")
	// ErrUnknownDirection marks a message whose direction is neither incoming nor outgoing.
	ErrUnknownDirection = errors.New("unknown message direction")
	// ErrInFlight is returned when the same resource already has a call outstanding.
	ErrInFlight = errors.New("request already in flight")
)

// ValidationError lists unmet preconditions of a user action.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Problems, "; ")
}

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
