// Package util provides logging helpers, common error types and small string
// utilities shared by the provtest packages.
package util

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors used to classify test-case outcomes.
var (
	ErrApplyFailed     = errors.New("apply failed")
	ErrPatternMismatch = errors.New("pattern mismatch")
	ErrNotIdempotent   = errors.New("not idempotent")
	ErrUnsupported     = errors.New("not supported on target")
	ErrTransport       = errors.New("transport error")
	ErrInvalidCase     = errors.New("invalid test case")
	ErrNotConnected    = errors.New("target not connected")
)

// ApplyError reports an apply whose exit code was outside the accepted set.
type ApplyError struct {
	Code     int
	Accepted []int
	Output   string
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("apply exit code %d not in accepted codes %v", e.Code, e.Accepted)
}

func (e *ApplyError) Unwrap() error {
	return ErrApplyFailed
}

// IdempotenceError reports a re-apply that still changed the target.
type IdempotenceError struct {
	Code   int
	Output string
}

func (e *IdempotenceError) Error() string {
	return fmt.Sprintf("re-apply reported exit code %d, expected 0 (no change)", e.Code)
}

func (e *IdempotenceError) Unwrap() error {
	return ErrNotIdempotent
}

// MatchError reports the first pattern that failed to match (or matched when
// it should be absent).
type MatchError struct {
	Pattern string
	Absent  bool
	Output  string
}

func (e *MatchError) Error() string {
	if e.Absent {
		return fmt.Sprintf("pattern %s found in output, expected absent", e.Pattern)
	}
	return fmt.Sprintf("pattern %s not found in output", e.Pattern)
}

func (e *MatchError) Unwrap() error {
	return ErrPatternMismatch
}

// TransportError represents a failure talking to the target, or an error
// marker in command output that nothing asked for.
type TransportError struct {
	Op   string // "dial", "exec", "apply", "nxapi"
	Host string
	Err  error
}

func (e *TransportError) Error() string {
	if e.Host != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Host, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() []error {
	return []error{ErrTransport, e.Err}
}

// SkipError marks a prerequisite that the target does not meet.
type SkipError struct {
	Reason string
}

func (e *SkipError) Error() string {
	return "skipped: " + e.Reason
}

func (e *SkipError) Unwrap() error {
	return ErrUnsupported
}

// NewSkipError creates a skip error with a formatted reason.
func NewSkipError(format string, args ...interface{}) *SkipError {
	return &SkipError{Reason: fmt.Sprintf(format, args...)}
}

// ValidationError represents one or more validation failures
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return "validation failed: " + e.Errors[0]
	}
	return fmt.Sprintf("validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidCase
}

// ValidationBuilder helps accumulate validation errors
type ValidationBuilder struct {
	errors []string
}

// Add adds an error message if condition is false
func (v *ValidationBuilder) Add(condition bool, message string) *ValidationBuilder {
	if !condition {
		v.errors = append(v.errors, message)
	}
	return v
}

// AddErrorf adds a formatted error message
func (v *ValidationBuilder) AddErrorf(format string, args ...interface{}) *ValidationBuilder {
	v.errors = append(v.errors, fmt.Sprintf(format, args...))
	return v
}

// HasErrors returns true if there are validation errors
func (v *ValidationBuilder) HasErrors() bool {
	return len(v.errors) > 0
}

// Build returns the validation error or nil if no errors
func (v *ValidationBuilder) Build() error {
	if len(v.errors) == 0 {
		return nil
	}
	return &ValidationError{Errors: v.errors}
}
