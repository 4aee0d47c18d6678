package protocol

import (
	"errors"
	"fmt"
)

// ErrMalformedMessage is matched by every decode failure via errors.Is.
var ErrMalformedMessage = errors.New("protocol: malformed message")

// MalformedMessageError describes why a wire message was rejected.
type MalformedMessageError struct {
	// Field is the offending JSON key ("body" when the document itself is invalid).
	Field string

	// Reason is a short human-readable explanation.
	Reason string

	// Err is the underlying parse error, if any.
	Err error
}

// Error implements the error interface.
func (e *MalformedMessageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol: malformed %s: %s: %v", e.Field, e.Reason, e.Err)
	}
	return fmt.Sprintf("protocol: malformed %s: %s", e.Field, e.Reason)
}

// Unwrap returns the underlying parse error.
func (e *MalformedMessageError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrMalformedMessage) match any MalformedMessageError.
func (e *MalformedMessageError) Is(target error) bool {
	return target == ErrMalformedMessage
}

func malformed(field, format string, args ...interface{}) *MalformedMessageError {
	return &MalformedMessageError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
