// Package errors provides error types and handling for the harvester.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrExhausted signals that a collection has no further pages. It is a
// normal terminal condition for traversal, not a failure.
var ErrExhausted = errors.New("pagination exhausted")

// ErrorType categorizes errors for handling decisions.
type ErrorType int

const (
	// Unknown is an uncategorized error.
	Unknown ErrorType = iota
	// Timeout represents a bounded wait that expired (page readiness,
	// detail fetch).
	Timeout
	// Extraction represents a failure to locate or read expected content.
	Extraction
	// Persistence represents a failed checkpoint or registry write.
	Persistence
	// MalformedState represents unparsable persisted state.
	MalformedState
	// Browser represents browser/CDP failures.
	Browser
	// Cancelled represents context cancellation.
	Cancelled
)

// String returns the string representation of ErrorType.
func (t ErrorType) String() string {
	switch t {
	case Timeout:
		return "timeout"
	case Extraction:
		return "extraction"
	case Persistence:
		return "persistence"
	case MalformedState:
		return "malformed_state"
	case Browser:
		return "browser"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// IsFatal returns whether errors of this type must abort the whole run.
// Losing durability breaks resumability, so persistence failures are
// never absorbed. Item-scoped failures are recoverable.
func (t ErrorType) IsFatal() bool {
	switch t {
	case Persistence, Cancelled:
		return true
	default:
		return false
	}
}

// HarvestError represents a categorized harvester error.
type HarvestError struct {
	Type      ErrorType
	URL       string
	Operation string
	Message   string
	Cause     error
}

// Error implements the error interface.
func (e *HarvestError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s error during %s on %s: %s (caused by: %v)",
			e.Type.String(), e.Operation, e.URL, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s error during %s on %s: %s",
		e.Type.String(), e.Operation, e.URL, e.Message)
}

// Unwrap returns the underlying error.
func (e *HarvestError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches a target.
func (e *HarvestError) Is(target error) bool {
	t, ok := target.(*HarvestError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// New creates a new HarvestError.
func New(errType ErrorType, url, operation, message string, cause error) *HarvestError {
	return &HarvestError{
		Type:      errType,
		URL:       url,
		Operation: operation,
		Message:   message,
		Cause:     cause,
	}
}

// NewTimeoutError creates a timeout error.
func NewTimeoutError(url, operation string, cause error) *HarvestError {
	return New(Timeout, url, operation, "wait expired", cause)
}

// NewExtractionError creates an extraction error.
func NewExtractionError(url, operation string, cause error) *HarvestError {
	return New(Extraction, url, operation, "content extraction failed", cause)
}

// NewPersistenceError creates a persistence error.
func NewPersistenceError(path, operation string, cause error) *HarvestError {
	return New(Persistence, path, operation, "state write failed", cause)
}

// NewMalformedStateError creates a malformed state error.
func NewMalformedStateError(path string, cause error) *HarvestError {
	return New(MalformedState, path, "load", "persisted state unparsable", cause)
}

// NewBrowserError creates a browser error.
func NewBrowserError(url, operation string, cause error) *HarvestError {
	return New(Browser, url, operation, "browser operation failed", cause)
}

// NewCancelledError creates a cancelled error.
func NewCancelledError(url, operation string) *HarvestError {
	return New(Cancelled, url, operation, "operation cancelled", nil)
}

// Categorize determines the error type from a generic error.
func Categorize(err error, url string) *HarvestError {
	if err == nil {
		return nil
	}

	var harvestErr *HarvestError
	if errors.As(err, &harvestErr) {
		return harvestErr
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return NewCancelledError(url, "request")
	}

	if isTimeout(err) {
		return NewTimeoutError(url, "request", err)
	}

	return New(Unknown, url, "request", err.Error(), err)
}

// IsFatal checks if an error must abort the whole run.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var harvestErr *HarvestError
	if errors.As(err, &harvestErr) {
		return harvestErr.Type.IsFatal()
	}
	return false
}

// IsTimeout checks if an error represents an expired wait.
func IsTimeout(err error) bool {
	var harvestErr *HarvestError
	if errors.As(err, &harvestErr) {
		return harvestErr.Type == Timeout
	}
	return isTimeout(err)
}

// GetErrorType extracts the error type from an error.
func GetErrorType(err error) ErrorType {
	var harvestErr *HarvestError
	if errors.As(err, &harvestErr) {
		return harvestErr.Type
	}
	return Unknown
}

// isTimeout checks if an error is a timeout.
func isTimeout(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	errStr := err.Error()
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") ||
		strings.Contains(errStr, "context deadline")
}
