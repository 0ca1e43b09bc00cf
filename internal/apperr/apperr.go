// Package apperr defines the error categories every operation reports.
//
// Each category is a merry sentinel carrying its HTTP status. Call sites derive
// from a sentinel with Here() and Append, and callers test with merry.Is.
package apperr

import (
	"net/http"

	"github.com/ansel1/merry"
)

var (
	// ErrValidation marks malformed or incomplete input, rejected before any mutation.
	ErrValidation = merry.New("validation failed").WithHTTPCode(http.StatusBadRequest)
	// ErrNotFound marks a missing quotation, catalog item or user.
	ErrNotFound = merry.New("not found").WithHTTPCode(http.StatusNotFound)
	// ErrConflict marks a uniqueness or referential conflict.
	ErrConflict = merry.New("conflict").WithHTTPCode(http.StatusConflict)
	// ErrUnauthorized marks missing, bad or expired credentials.
	ErrUnauthorized = merry.New("unauthorized").WithHTTPCode(http.StatusUnauthorized)
	// ErrUpstreamStorage marks an image backend failure.
	ErrUpstreamStorage = merry.New("image storage failed").WithHTTPCode(http.StatusBadGateway)
)

const retryableKey = "retryable"

// Validation returns an ErrValidation carrying msg.
func Validation(msg string) error {
	return ErrValidation.Here().Append(msg)
}

// NotFound returns an ErrNotFound carrying msg.
func NotFound(msg string) error {
	return ErrNotFound.Here().Append(msg)
}

// Conflict returns an ErrConflict carrying msg.
func Conflict(msg string) error {
	return ErrConflict.Here().Append(msg)
}

// RetryableConflict is a conflict the caller may resolve by re-running its transaction,
// such as two requests racing to insert the same catalog name.
func RetryableConflict(msg string, cause error) error {
	return ErrConflict.Here().Append(msg).WithCause(cause).WithValue(retryableKey, true)
}

// IsRetryable reports whether err was produced by RetryableConflict.
func IsRetryable(err error) bool {
	v, _ := merry.Value(err, retryableKey).(bool)
	return v
}

// Unauthorized returns an ErrUnauthorized carrying msg.
func Unauthorized(msg string) error {
	return ErrUnauthorized.Here().Append(msg)
}

// Upstream wraps an image backend failure.
func Upstream(msg string, cause error) error {
	return ErrUpstreamStorage.Here().Append(msg).WithCause(cause)
}

// Kind names the category of err for API responses.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case merry.Is(err, ErrValidation):
		return "validation"
	case merry.Is(err, ErrNotFound):
		return "not_found"
	case merry.Is(err, ErrConflict):
		return "conflict"
	case merry.Is(err, ErrUnauthorized):
		return "unauthorized"
	case merry.Is(err, ErrUpstreamStorage):
		return "upstream_storage"
	}
	return "internal"
}

// Status is the HTTP status for err; unclassified errors are 500.
func Status(err error) int {
	if Kind(err) == "internal" {
		return http.StatusInternalServerError
	}
	return merry.HTTPCode(err)
}

// Is reports whether err belongs to the category of sentinel.
func Is(err, sentinel error) bool {
	return merry.Is(err, sentinel)
}
