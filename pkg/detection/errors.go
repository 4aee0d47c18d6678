package detection

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions.
var (
	// ErrNoSource is returned when a chain has no backends.
	ErrNoSource = errors.New("detection: no source configured")

	// ErrEmptyFrame is returned when the frame is empty or cannot be decoded.
	ErrEmptyFrame = errors.New("detection: empty frame")

	// ErrDegenerateBox is returned for zero-area boxes or zero-size frames.
	ErrDegenerateBox = errors.New("detection: degenerate box")

	// ErrOutOfBounds is returned when a box does not lie inside its frame.
	ErrOutOfBounds = errors.New("detection: box outside frame")
)

// SourceError wraps an error with backend context.
type SourceError struct {
	Source string
	Err    error
}

// Error implements the error interface.
func (e *SourceError) Error() string {
	return fmt.Sprintf("detection [%s]: %v", e.Source, e.Err)
}

// Unwrap returns the underlying error.
func (e *SourceError) Unwrap() error {
	return e.Err
}

// WrapError wraps an error with backend context.
func WrapError(source string, err error) error {
	if err == nil {
		return nil
	}
	return &SourceError{Source: source, Err: err}
}

// ChainError aggregates errors from all sources in a chain.
type ChainError struct {
	Errors []error
}

// Error implements the error interface.
func (e *ChainError) Error() string {
	if len(e.Errors) == 0 {
		return "detection chain: no errors recorded"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("detection chain: %v", e.Errors[0])
	}
	return fmt.Sprintf("detection chain: all %d sources failed, last error: %v",
		len(e.Errors), e.Errors[len(e.Errors)-1])
}

// Unwrap returns the last error in the chain.
func (e *ChainError) Unwrap() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e.Errors[len(e.Errors)-1]
}
