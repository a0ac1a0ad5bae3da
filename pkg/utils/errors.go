package utils

import (
	"fmt"
	"strings"
)

// Error represents a sipbox error with operation context
type Error struct {
	Operation string   // What operation was being performed
	Cause     error    // The underlying error
	Details   []string // Additional context
}

// Error implements the error interface
func (e *Error) Error() string {
	var parts []string

	if e.Operation != "" {
		parts = append(parts, e.Operation)
	}

	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}

	if len(e.Details) > 0 {
		parts = append(parts, strings.Join(e.Details, "; "))
	}

	return strings.Join(parts, ": ")
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new sipbox error
func NewError(operation string, cause error, details ...string) *Error {
	return &Error{
		Operation: operation,
		Cause:     cause,
		Details:   details,
	}
}

// Wrapf wraps an error with a formatted message
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}
