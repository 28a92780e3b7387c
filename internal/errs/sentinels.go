// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested document or revision does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnavailable indicates the transactional store cannot be reached or is not configured.
	ErrUnavailable = errors.New("store unavailable")

	// ErrMalformedDocument indicates a value that is not a finite tree of supported nodes.
	ErrMalformedDocument = errors.New("malformed document")

	// ErrValidation indicates a request that failed input validation.
	ErrValidation = errors.New("validation")

	// ErrUnauthorized indicates failed authentication/authorization.
	ErrUnauthorized = errors.New("unauthorized")
)
