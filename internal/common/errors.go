// Package common provides shared utilities and types used across the engine.
package common

import (
	"errors"
	"fmt"
)

// Common application errors.
var (
	// Database errors.
	ErrNotFound = errors.New("not found")

	// LLM validator errors.
	ErrRateLimit       = errors.New("rate limit exceeded")
	ErrBudgetExhausted = errors.New("spend budget exhausted")
	ErrMaxRetries      = errors.New("max retries exceeded")

	// Classifier errors.
	ErrModelNotLoaded = errors.New("classifier model not loaded")

	// Configuration errors.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrSafetyViolation marks an attempted auto-post below the
	// configured threshold or against a tenant with auto-post disabled.
	// This is the only error class that halts processing.
	ErrSafetyViolation = errors.New("auto-post safety violation")
)

// RetryableError wraps an error with retry-specific metadata.
type RetryableError struct {
	Err       error
	Retryable bool
}

func (e *RetryableError) Error() string {
	return e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// SafetyViolation builds the fatal error raised when the auto-post gate
// invariant would be broken.
func SafetyViolation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrSafetyViolation, fmt.Sprintf(format, args...))
}
