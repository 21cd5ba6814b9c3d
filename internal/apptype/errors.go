package apptype

import (
	"errors"
	"fmt"
)

// Error taxonomy. Validation and NotFound surface to callers;
// IndexUnavailable and ProviderTimeout are absorbed by the degraded
// paths and only logged; StoreUnavailable is fatal and propagates.

// ValidationError marks malformed input: empty name, empty label set,
// empty query.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return "validation: " + e.Reason }

// Validationf builds a ValidationError from a format string.
func Validationf(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// NotFoundError marks a missing entity (or relation endpoint) on an
// operation that requires existence.
type NotFoundError struct {
	Kind string
	Name string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s not found: %s", e.Kind, e.Name) }

// NewNotFound builds a NotFoundError for the given record kind and key.
func NewNotFound(kind, name string) error {
	return &NotFoundError{Kind: kind, Name: name}
}

// IndexUnavailableError marks a missing vector index or unreachable
// provider. It triggers the fulltext fallback and must not reach callers.
type IndexUnavailableError struct {
	Cause error
}

func (e *IndexUnavailableError) Error() string { return "vector index unavailable: " + e.Cause.Error() }
func (e *IndexUnavailableError) Unwrap() error { return e.Cause }

// ProviderTimeoutError marks an embedding call that ran out of time.
// The write stands; the migration worker retries the embeddings later.
type ProviderTimeoutError struct {
	Cause error
}

func (e *ProviderTimeoutError) Error() string { return "embedding provider timeout: " + e.Cause.Error() }
func (e *ProviderTimeoutError) Unwrap() error { return e.Cause }

// StoreUnavailableError marks a store-level connectivity failure.
type StoreUnavailableError struct {
	Cause error
}

func (e *StoreUnavailableError) Error() string { return "store unavailable: " + e.Cause.Error() }
func (e *StoreUnavailableError) Unwrap() error { return e.Cause }

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsIndexUnavailable reports whether err is (or wraps) an
// IndexUnavailableError.
func IsIndexUnavailable(err error) bool {
	var iu *IndexUnavailableError
	return errors.As(err, &iu)
}

// IsProviderTimeout reports whether err is (or wraps) a
// ProviderTimeoutError.
func IsProviderTimeout(err error) bool {
	var pt *ProviderTimeoutError
	return errors.As(err, &pt)
}
