package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a domain error with a structured error code.
// Codes follow the format SD-<AREA>-<NNNN>.
type DomainError struct {
	Code    string // Error code (e.g., "SD-SESS-4040")
	Message string // Human-readable message
	Details string // Optional additional details
	Cause   error  // Underlying error (if any)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is() support. Two DomainErrors match by code.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new DomainError with the given code and message.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *DomainError) WithDetails(details string) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		Cause:   e.Cause,
	}
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		Cause:   cause,
	}
}

// IsDomainError checks if an error is a DomainError with the given code.
// If code is empty, it only checks if the error is a DomainError.
func IsDomainError(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		if code == "" {
			return true
		}
		return de.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error if it's a DomainError.
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// ============================================================================
// Session Errors (SESS)
// ============================================================================

var (
	// ErrSessionNotFound indicates the requested session was not found.
	ErrSessionNotFound = NewDomainError("SD-SESS-4040", "session not found")

	// ErrSessionValidation indicates session data validation failed.
	ErrSessionValidation = NewDomainError("SD-SESS-4001", "session validation failed")

	// ErrSessionQuotaExceeded indicates the per-user session quota is exhausted.
	ErrSessionQuotaExceeded = NewDomainError("SD-SESS-4002", "user session quota exceeded")
)

// ============================================================================
// Token Errors (TOKN)
// ============================================================================

var (
	// ErrTokenGeneration indicates a unique token could not be produced.
	ErrTokenGeneration = NewDomainError("SD-TOKN-5000", "token generation failed")
)

// ============================================================================
// System Errors (SYS)
// ============================================================================

var (
	// ErrInternalServer indicates an internal error.
	ErrInternalServer = NewDomainError("SD-SYS-5000", "internal server error")

	// ErrStorageError indicates a durable storage failure.
	ErrStorageError = NewDomainError("SD-SYS-5001", "storage error")

	// ErrStructuralRace indicates an operation kept hitting tombstoned
	// containers and gave up after the retry bound.
	ErrStructuralRace = NewDomainError("SD-SYS-5002", "structural race: retry limit exceeded")

	// ErrClosed indicates the component has been shut down.
	ErrClosed = NewDomainError("SD-SYS-5030", "component closed")
)

// ============================================================================
// Configuration Errors (CONF)
// ============================================================================

var (
	// ErrConfiguration indicates invalid sizes, intervals or lifetimes.
	ErrConfiguration = NewDomainError("SD-CONF-1000", "invalid configuration")
)

// ============================================================================
// Argument Errors (ARG)
// ============================================================================

var (
	// ErrInvalidArgument indicates an invalid argument.
	ErrInvalidArgument = NewDomainError("SD-ARG-1001", "invalid argument")

	// ErrMissingArgument indicates a required argument is missing.
	ErrMissingArgument = NewDomainError("SD-ARG-1002", "missing required argument")
)
