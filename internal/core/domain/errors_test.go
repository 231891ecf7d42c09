package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestDomainError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *DomainError
		expected string
	}{
		{
			name:     "error without details",
			err:      NewDomainError("SD-TEST-1000", "test message"),
			expected: "[SD-TEST-1000] test message",
		},
		{
			name:     "error with details",
			err:      NewDomainError("SD-TEST-1001", "test message").WithDetails("extra info"),
			expected: "[SD-TEST-1001] test message: extra info",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestDomainError_Is(t *testing.T) {
	err1 := NewDomainError("SD-TEST-1000", "message 1")
	err2 := NewDomainError("SD-TEST-1000", "message 2")
	err3 := NewDomainError("SD-TEST-1001", "message 1")

	if !errors.Is(err1, err2) {
		t.Error("errors.Is should return true for same error code")
	}
	if errors.Is(err1, err3) {
		t.Error("errors.Is should return false for different error code")
	}
	if errors.Is(err1, fmt.Errorf("some error")) {
		t.Error("errors.Is should return false for non-DomainError")
	}
}

func TestDomainError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("underlying cause")
	err := NewDomainError("SD-TEST-1000", "wrapper").WithCause(cause)

	if errors.Unwrap(err) != cause {
		t.Errorf("Unwrap() = %v, want %v", errors.Unwrap(err), cause)
	}
	if errors.Unwrap(NewDomainError("SD-TEST-1000", "no cause")) != nil {
		t.Error("Unwrap() should return nil when no cause")
	}
}

func TestDomainError_CopiesOnDecorate(t *testing.T) {
	cause := fmt.Errorf("root cause")
	err := ErrStructuralRace.
		WithDetails("op=refcount.increment").
		WithCause(cause)

	if ErrStructuralRace.Details != "" || ErrStructuralRace.Cause != nil {
		t.Fatal("decorating must not modify the sentinel")
	}
	if err.Code != "SD-SYS-5002" {
		t.Errorf("Code = %q, want SD-SYS-5002", err.Code)
	}
	if err.Details != "op=refcount.increment" {
		t.Errorf("Details = %q", err.Details)
	}
	if !errors.Is(err, ErrStructuralRace) {
		t.Error("errors.Is should work after chaining")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is should reach the cause")
	}
}

func TestIsDomainError(t *testing.T) {
	if !IsDomainError(ErrSessionNotFound, "SD-SESS-4040") {
		t.Error("IsDomainError should return true for matching code")
	}
	if IsDomainError(ErrSessionNotFound, "SD-SESS-9999") {
		t.Error("IsDomainError should return false for non-matching code")
	}
	if !IsDomainError(ErrConfiguration, "") {
		t.Error("IsDomainError with empty code should match any DomainError")
	}
	if IsDomainError(fmt.Errorf("regular error"), "") {
		t.Error("IsDomainError should return false for non-DomainError")
	}
	wrapped := fmt.Errorf("wrapped: %w", ErrSessionNotFound)
	if !IsDomainError(wrapped, "SD-SESS-4040") {
		t.Error("IsDomainError should work with wrapped errors")
	}
}

func TestGetErrorCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"domain error", ErrSessionQuotaExceeded, "SD-SESS-4002"},
		{"wrapped domain error", fmt.Errorf("wrapped: %w", ErrStorageError), "SD-SYS-5001"},
		{"regular error", fmt.Errorf("regular error"), ""},
		{"nil error", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetErrorCode(tt.err); got != tt.expected {
				t.Errorf("GetErrorCode() = %q, want %q", got, tt.expected)
			}
		})
	}
}
