package config

import (
	"errors"
	"fmt"
)

var (
	// ErrValidationFailed indicates configuration validation failed
	ErrValidationFailed = errors.New("configuration validation failed")

	// ErrInvalidValue indicates an environment variable has an invalid value
	ErrInvalidValue = errors.New("invalid configuration value")
)

// ValidationError wraps configuration validation errors with context
type ValidationError struct {
	Key string // Environment variable or logical field
	Err error  // Underlying error
}

// Error returns formatted error message
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config %s: %v", e.Key, e.Err)
}

// Unwrap returns the underlying error
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError creates a new validation error
func NewValidationError(key string, err error) *ValidationError {
	return &ValidationError{Key: key, Err: err}
}
