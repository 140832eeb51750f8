// Package common defines shared constants and sentinel errors used across
// stayline components. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Store-level errors.
	ErrNotFound           = errors.New("not found")
	ErrStorageUnavailable = errors.New("storage unavailable")

	// Transport-level errors. Covers transport failures and non-2xx
	// responses alike; the upload path reacts to both the same way.
	ErrNetworkFailure = errors.New("network failure")

	// Validation errors. Reported synchronously, never queued, never retried.
	ErrInvalidArgument = errors.New("invalid argument")

	// Platform/permission errors. The affected feature stays silently
	// disabled; this is not fatal.
	ErrPermissionDenied = errors.New("permission denied")

	// Auth errors.
	ErrTokenExpired = errors.New("token expired")
)
