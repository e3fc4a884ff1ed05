package services

import "errors"

// Orchestrator failures surfaced to the request layer. Handlers map
// these to HTTP status codes; anything else is a dependency failure
// reported as a generic 500.
var (
	// ErrPasswordRequired: a new registration arrived without a password.
	ErrPasswordRequired = errors.New("password is required for new registration")

	// ErrInvalidCredentials: unknown user, missing hash, or wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrUserNotFound: OTP verification for an email with no pending user.
	ErrUserNotFound = errors.New("user not found, request a code first")

	// ErrInvalidOrExpiredOTP: no challenge, expired challenge, or mismatch.
	ErrInvalidOrExpiredOTP = errors.New("invalid or expired otp")

	// ErrRateLimited: the attempt limiter refused the request.
	ErrRateLimited = errors.New("too many attempts, try again later")

	// ErrProviderNotConfigured: OAuth endpoints hit without credentials.
	ErrProviderNotConfigured = errors.New("google oauth is not configured")

	// ErrUnauthorized: missing, invalid, expired, or revoked token.
	ErrUnauthorized = errors.New("unauthorized")
)
