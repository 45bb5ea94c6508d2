package phabricator

import "fmt"

// APIError represents an error returned by the Conduit API itself, carrying
// the service's error_code and error_info fields.
type APIError struct {
	Code string
	Info string
}

func (e *APIError) Error() string {
	if e.Info != "" {
		return fmt.Sprintf("conduit error %s: %s", e.Code, e.Info)
	}
	return fmt.Sprintf("conduit error %s", e.Code)
}

// IsRetryable reports whether the Conduit error code indicates a transient
// service condition.
func (e *APIError) IsRetryable() bool {
	return e.Code == "ERR-RATE-LIMIT"
}

// IsAPIError checks if an error is an APIError
func IsAPIError(err error) bool {
	_, ok := err.(*APIError)
	return ok
}

// AuthenticationError represents a rejected or missing API token
type AuthenticationError struct {
	Message string
	Err     error
}

func (e *AuthenticationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authentication failed: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("authentication failed: %s", e.Message)
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

// NewAuthenticationError creates a new AuthenticationError
func NewAuthenticationError(message string, err error) *AuthenticationError {
	return &AuthenticationError{
		Message: message,
		Err:     err,
	}
}

// IsAuthenticationError checks if an error is an AuthenticationError
func IsAuthenticationError(err error) bool {
	_, ok := err.(*AuthenticationError)
	return ok
}

// authErrorCodes are Conduit error codes caused by a bad or expired token.
var authErrorCodes = map[string]bool{
	"ERR-INVALID-AUTH":    true,
	"ERR-INVALID-SESSION": true,
	"ERR-INVALID-TOKEN":   true,
	"ERR-INVALID-USER":    true,
}

// RetryableError represents an error that can be retried
type RetryableError struct {
	Message string
	Err     error
}

func (e *RetryableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("retryable error: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("retryable error: %s", e.Message)
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// IsRetryable returns true
func (e *RetryableError) IsRetryable() bool {
	return true
}

// NewRetryableError creates a new RetryableError
func NewRetryableError(message string, err error) *RetryableError {
	return &RetryableError{
		Message: message,
		Err:     err,
	}
}

// IsRetryableError checks if an error is retryable, either by type or by
// implementing an IsRetryable method that returns true.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	if _, ok := err.(*RetryableError); ok {
		return true
	}

	type retryable interface {
		IsRetryable() bool
	}

	if r, ok := err.(retryable); ok {
		return r.IsRetryable()
	}

	return false
}
