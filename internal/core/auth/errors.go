package auth

import "errors"

// Authentication error types separate operator mistakes from transient failures.
// ErrInvalidCredentials is permanent: retrying with the same secrets cannot succeed.
var (
	ErrMissingCredentials = errors.New("reddit credentials not configured")
	ErrInvalidCredentials = errors.New("reddit rejected the configured credentials")
	ErrTokenResponse      = errors.New("malformed token response")
)
