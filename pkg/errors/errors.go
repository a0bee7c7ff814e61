// Package errors defines the error taxonomy shared by the authentication
// and authorization packages.
package errors

import (
	"errors"
	"fmt"
)

// Error types
const (
	// ErrNoCredentials is returned when a request carries nothing recognizable
	ErrNoCredentials = "no_credentials"

	// ErrBadCredentials is returned when credentials are present but rejected.
	// Unknown users are reported with this same type to prevent enumeration.
	ErrBadCredentials = "bad_credentials"

	// ErrCsrfMismatch is returned when the OAuth2 callback state does not match the session state
	ErrCsrfMismatch = "csrf_mismatch"

	// ErrNoRequestedBackend is returned when the composite backend is asked to
	// authenticate a credential kind it does not carry
	ErrNoRequestedBackend = "no_requested_backend"

	// ErrDifferentProviders is returned at construction time when child backends
	// do not share the same provider instances
	ErrDifferentProviders = "different_providers"

	// ErrNotFound is returned when a principal or record does not exist
	ErrNotFound = "not_found"

	// ErrProviderBackend is returned when an upstream provider fails
	ErrProviderBackend = "provider_backend"

	// ErrProviderTransient is returned when an upstream provider fails transiently
	ErrProviderTransient = "provider_transient"

	// ErrPermissionDenied is returned when required permissions are missing
	ErrPermissionDenied = "permission_denied"

	// ErrSessionStore is returned when the session store fails to read or write
	ErrSessionStore = "session_store"
)

// Error represents an error in the application
type Error struct {
	// Type is the error type
	Type string

	// Message is the error message
	Message string

	// Cause is the underlying error
	Cause error
}

// Error returns the error message
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new error
func NewError(errorType, message string, cause error) *Error {
	return &Error{
		Type:    errorType,
		Message: message,
		Cause:   cause,
	}
}

// NewNoCredentialsError creates a new no credentials error
func NewNoCredentialsError(message string, cause error) *Error {
	return NewError(ErrNoCredentials, message, cause)
}

// NewBadCredentialsError creates a new bad credentials error
func NewBadCredentialsError(message string, cause error) *Error {
	return NewError(ErrBadCredentials, message, cause)
}

// NewCsrfMismatchError creates a new CSRF mismatch error
func NewCsrfMismatchError(message string, cause error) *Error {
	return NewError(ErrCsrfMismatch, message, cause)
}

// NewNoRequestedBackendError creates a new no requested backend error
func NewNoRequestedBackendError(message string, cause error) *Error {
	return NewError(ErrNoRequestedBackend, message, cause)
}

// NewDifferentProvidersError creates a new different providers error
func NewDifferentProvidersError(message string, cause error) *Error {
	return NewError(ErrDifferentProviders, message, cause)
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string, cause error) *Error {
	return NewError(ErrNotFound, message, cause)
}

// NewProviderBackendError creates a new provider backend error
func NewProviderBackendError(message string, cause error) *Error {
	return NewError(ErrProviderBackend, message, cause)
}

// NewProviderTransientError creates a new transient provider error
func NewProviderTransientError(message string, cause error) *Error {
	return NewError(ErrProviderTransient, message, cause)
}

// NewPermissionDeniedError creates a new permission denied error
func NewPermissionDeniedError(message string, cause error) *Error {
	return NewError(ErrPermissionDenied, message, cause)
}

// NewSessionStoreError creates a new session store error
func NewSessionStoreError(message string, cause error) *Error {
	return NewError(ErrSessionStore, message, cause)
}

// isType checks whether err (or anything it wraps) is an *Error of the given type.
func isType(err error, errorType string) bool {
	var e *Error
	return errors.As(err, &e) && e.Type == errorType
}

// IsNoCredentials checks if the error is a no credentials error
func IsNoCredentials(err error) bool {
	return isType(err, ErrNoCredentials)
}

// IsBadCredentials checks if the error is a bad credentials error
func IsBadCredentials(err error) bool {
	return isType(err, ErrBadCredentials)
}

// IsCsrfMismatch checks if the error is a CSRF mismatch error
func IsCsrfMismatch(err error) bool {
	return isType(err, ErrCsrfMismatch)
}

// IsNoRequestedBackend checks if the error is a no requested backend error
func IsNoRequestedBackend(err error) bool {
	return isType(err, ErrNoRequestedBackend)
}

// IsDifferentProviders checks if the error is a different providers error
func IsDifferentProviders(err error) bool {
	return isType(err, ErrDifferentProviders)
}

// IsNotFound checks if the error is a not found error
func IsNotFound(err error) bool {
	return isType(err, ErrNotFound)
}

// IsProviderBackend checks if the error is a provider backend error
func IsProviderBackend(err error) bool {
	return isType(err, ErrProviderBackend)
}

// IsProviderTransient checks if the error is a transient provider error
func IsProviderTransient(err error) bool {
	return isType(err, ErrProviderTransient)
}

// IsPermissionDenied checks if the error is a permission denied error
func IsPermissionDenied(err error) bool {
	return isType(err, ErrPermissionDenied)
}

// IsSessionStore checks if the error is a session store error
func IsSessionStore(err error) bool {
	return isType(err, ErrSessionStore)
}

// IsFatal reports whether the error must abort request processing rather
// than let the next backend in a composite take a turn.
func IsFatal(err error) bool {
	return IsNoRequestedBackend(err) ||
		IsProviderBackend(err) ||
		IsProviderTransient(err) ||
		IsSessionStore(err)
}
