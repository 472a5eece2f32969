package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Rate limiting and verification
	ErrRateLimitExceeded    = errors.New("rate limit exceeded")
	ErrVerificationRequired = errors.New("verification required")
	ErrVerificationInvalid  = errors.New("verification code invalid or expired")

	// Payment flow errors
	ErrProviderConfig    = errors.New("payment provider configuration error")
	ErrInvalidTransition = errors.New("invalid checkout state transition")
	ErrIntentNotFound    = errors.New("payment intent not found")
)
