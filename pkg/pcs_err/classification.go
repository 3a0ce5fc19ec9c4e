// pkg/pcs_err/classification.go
//
// Error classification with exit codes matching the CLI contract:
// 0 success, 1 failure, 130 interrupted.

package pcs_err

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCategory classifies errors by catch site
type ErrorCategory int

const (
	// CategoryConfig - schema/semantic config defect, caught before connecting
	CategoryConfig ErrorCategory = iota
	// CategoryValidation - live precondition unmet, caught after connecting but before mutation
	CategoryValidation
	// CategoryRuntime - unhandled fault during job execution or watchdog-raised fatal condition
	CategoryRuntime
	// CategoryInterrupted - operator cancelled the run (exit 130)
	CategoryInterrupted
	// CategoryInternal - bugs in pc-switcher itself
	CategoryInternal
)

// ClassifiedError wraps an error with category and remediation info
type ClassifiedError struct {
	Category    ErrorCategory
	Message     string
	Cause       error
	Remediation []string
}

// Error implements the error interface
func (e *ClassifiedError) Error() string {
	var sb strings.Builder

	sb.WriteString(e.Message)

	if e.Cause != nil && e.Cause.Error() != e.Message {
		sb.WriteString(fmt.Sprintf("\n\nCause: %v", e.Cause))
	}

	if len(e.Remediation) > 0 {
		sb.WriteString("\n\nHow to fix:")
		for i, step := range e.Remediation {
			sb.WriteString(fmt.Sprintf("\n  %d. %s", i+1, step))
		}
	}

	return sb.String()
}

// Unwrap returns the underlying error
func (e *ClassifiedError) Unwrap() error {
	return e.Cause
}

// ExitCode returns the exit code for this error category
func (e *ClassifiedError) ExitCode() int {
	if e.Category == CategoryInterrupted {
		return 130 // Standard for SIGINT (Ctrl-C)
	}
	return 1
}

// GetExitCode extracts an exit code from any error.
// Returns 0 for nil, 130 for interrupts, 1 otherwise.
func GetExitCode(err error) int {
	if err == nil {
		return 0
	}

	var classified *ClassifiedError
	if errors.As(err, &classified) {
		return classified.ExitCode()
	}

	return 1
}

// IsInterrupted reports whether err carries operator cancellation.
func IsInterrupted(err error) bool {
	var classified *ClassifiedError
	if errors.As(err, &classified) {
		return classified.Category == CategoryInterrupted
	}
	return false
}

// NewConfigError creates an error for config schema/semantic defects
func NewConfigError(message string, remediation ...string) error {
	return &ClassifiedError{
		Category:    CategoryConfig,
		Message:     message,
		Remediation: remediation,
	}
}

// NewValidationError creates an error for live precondition failures
func NewValidationError(message string, remediation ...string) error {
	return &ClassifiedError{
		Category:    CategoryValidation,
		Message:     message,
		Remediation: remediation,
	}
}

// NewRuntimeError wraps a fault raised while jobs were executing
func NewRuntimeError(message string, cause error, remediation ...string) error {
	return &ClassifiedError{
		Category:    CategoryRuntime,
		Message:     message,
		Cause:       cause,
		Remediation: remediation,
	}
}

// NewInterruptedError marks a run as operator-cancelled
func NewInterruptedError(cause error) error {
	return &ClassifiedError{
		Category: CategoryInterrupted,
		Message:  "sync interrupted by operator",
		Cause:    cause,
	}
}
