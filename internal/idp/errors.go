package idp

import "errors"

// Domain-specific errors for identity-provider operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrInvalidCredentials is returned when the provider rejects the
	// supplied username, password, or refresh token.
	ErrInvalidCredentials = errors.New("idp: invalid credentials")

	// ErrProvider is returned for any other provider or transport failure.
	ErrProvider = errors.New("idp: provider error")
)
