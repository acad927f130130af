// Copyright 2026 The Cratebox Authors
// SPDX-License-Identifier: Apache-2.0

package crate

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies operation errors so that the RPC layer can
// produce structured error metadata (category + retryability) without
// parsing message text.
type ErrorCategory string

const (
	// CategoryValidation indicates the caller provided invalid input:
	// missing inline data where required, malformed JSON payloads,
	// unparseable values. The caller should fix the input and retry.
	CategoryValidation ErrorCategory = "validation"

	// CategoryNotFound indicates a referenced crate does not exist.
	// Retrying with the same id will not help.
	CategoryNotFound ErrorCategory = "not_found"

	// CategoryForbidden indicates the caller's identity does not match
	// the crate owner on an ownership-gated operation.
	CategoryForbidden ErrorCategory = "forbidden"

	// CategoryTransient indicates a temporary failure: network error,
	// timeout, rate limit. The caller should back off and retry.
	CategoryTransient ErrorCategory = "transient"

	// CategoryInternal indicates an unexpected error: bugs, I/O
	// failures, dependency initialization problems. The caller should
	// report the error rather than retry.
	CategoryInternal ErrorCategory = "internal"
)

// Error is a categorized operation error. It wraps an inner error,
// preserving the chain for debugging while adding category metadata
// for the RPC layer.
//
// Degraded-dependency conditions (embedding failure, decompression
// failure, content-fetch failure on render) are deliberately NOT
// Errors: those paths fall back to a documented degraded value and
// log, so a caller never sees them.
type Error struct {
	// Category classifies the error for programmatic handling.
	Category ErrorCategory

	// Err is the underlying error with the human-readable message.
	Err error
}

// Error returns the underlying message. The category travels
// separately in the RPC errorInfo field, not in the text.
func (e *Error) Error() string { return e.Err.Error() }

// Unwrap returns the underlying error, allowing errors.Is and
// errors.As to walk the full chain.
func (e *Error) Unwrap() error { return e.Err }

// Validation creates a validation error: the caller provided bad input.
func Validation(format string, args ...any) *Error {
	return &Error{Category: CategoryValidation, Err: fmt.Errorf(format, args...)}
}

// NotFound creates a not-found error: the referenced crate does not exist.
func NotFound(format string, args ...any) *Error {
	return &Error{Category: CategoryNotFound, Err: fmt.Errorf(format, args...)}
}

// Forbidden creates a forbidden error: the caller is not the owner.
func Forbidden(format string, args ...any) *Error {
	return &Error{Category: CategoryForbidden, Err: fmt.Errorf(format, args...)}
}

// Transient creates a transient error: a temporary failure that may
// succeed on retry.
func Transient(format string, args ...any) *Error {
	return &Error{Category: CategoryTransient, Err: fmt.Errorf(format, args...)}
}

// Internal creates an internal error: an unexpected failure or bug.
func Internal(format string, args ...any) *Error {
	return &Error{Category: CategoryInternal, Err: fmt.Errorf(format, args...)}
}

// CategoryOf extracts the category from an error chain. Uncategorized
// errors report CategoryInternal.
func CategoryOf(err error) ErrorCategory {
	var categorized *Error
	if errors.As(err, &categorized) {
		return categorized.Category
	}
	return CategoryInternal
}

// Sentinel errors returned by the store interfaces. The orchestrator
// maps these onto the categorized taxonomy before they reach a caller.
var (
	// ErrNotFound is returned by a MetadataStore when no record exists
	// for the requested crate id.
	ErrNotFound = errors.New("crate metadata not found")

	// ErrBlobNotFound is returned by a BlobStore when the object at
	// the requested storage path does not exist.
	ErrBlobNotFound = errors.New("blob object not found")
)
