package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrConfiguration signals a bad pagination or schema descriptor.
	ErrConfiguration = errors.New("configuration error")
	// ErrTransport signals a failed upstream request.
	ErrTransport = errors.New("transport error")
	// ErrUnsupportedQuery signals a query mode the collection schema cannot serve.
	ErrUnsupportedQuery = errors.New("unsupported query")
	// ErrInvalidQuery signals a malformed query request.
	ErrInvalidQuery = errors.New("invalid query")
	// ErrReconciliation signals a hash-store or index write failure mid-batch.
	ErrReconciliation = errors.New("reconciliation error")

	// ErrRateLimited signals a rate limit hit.
	ErrRateLimited = errors.New("rate limited")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
)

// ConfigurationError reports a descriptor that fails validation before any I/O.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", ErrConfiguration.Error(), e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", ErrConfiguration.Error(), e.Field, e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }

// NewConfigurationError creates a configuration error for the given descriptor field.
func NewConfigurationError(field, reason string) error {
	return &ConfigurationError{Field: field, Reason: reason}
}

// TransportError wraps a failed upstream request.
type TransportError struct {
	Endpoint   string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	var b strings.Builder
	b.WriteString(ErrTransport.Error())
	if e.Endpoint != "" {
		b.WriteString(": ")
		b.WriteString(e.Endpoint)
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": status %d", e.StatusCode)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes both the sentinel and the cause.
func (e *TransportError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrTransport}
	}
	return []error{ErrTransport, e.Err}
}

// UnsupportedQueryError reports a query mode that has no matching vector fields.
type UnsupportedQueryError struct {
	Mode   string
	Reason string
}

func (e *UnsupportedQueryError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrUnsupportedQuery.Error(), e.Mode, e.Reason)
}

func (e *UnsupportedQueryError) Unwrap() error { return ErrUnsupportedQuery }

// InvalidQueryError reports a query request missing required input.
type InvalidQueryError struct {
	Reason string
}

func (e *InvalidQueryError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalidQuery.Error(), e.Reason)
}

func (e *InvalidQueryError) Unwrap() error { return ErrInvalidQuery }

// NewInvalidQuery creates an invalid query error.
func NewInvalidQuery(format string, args ...any) error {
	return &InvalidQueryError{Reason: fmt.Sprintf(format, args...)}
}

// ReconciliationError reports which external ids failed to commit.
// Callers roll back the hash-store entries for exactly these ids.
type ReconciliationError struct {
	IDs []string
	Err error
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("%s: %d record(s) failed: %v", ErrReconciliation.Error(), len(e.IDs), e.Err)
}

// Unwrap exposes both the sentinel and the cause.
func (e *ReconciliationError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrReconciliation}
	}
	return []error{ErrReconciliation, e.Err}
}

// FailedIDs extracts the failed ids from err, or nil when err is not a ReconciliationError.
func FailedIDs(err error) []string {
	var re *ReconciliationError
	if errors.As(err, &re) {
		return re.IDs
	}
	return nil
}
