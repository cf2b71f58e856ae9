package latchlink

import (
	"errors"
	"fmt"
)

// Error taxonomy. Every failure surfaced by this package unwraps to exactly
// one of the three leaves below, all of which unwrap to Err, so callers can
// match broadly (errors.Is(err, latchlink.Err)) or narrowly.
var (
	// Err is the base error for the package.
	Err = errors.New("latchlink")

	// ErrNotAuthenticated is returned when an operation is attempted on a
	// detached entity or before authentication. It never reaches the network.
	ErrNotAuthenticated = fmt.Errorf("%w: not authenticated", Err)

	// ErrNotAuthorized is returned when the identity provider rejects the
	// credentials or the service answers 401.
	ErrNotAuthorized = fmt.Errorf("%w: not authorized", Err)

	// ErrUnknown is returned for any other transport or server-side failure,
	// carrying the best available message.
	ErrUnknown = fmt.Errorf("%w: unknown error", Err)
)

// APIError describes a non-2xx response from the service. It unwraps to
// ErrNotAuthorized for status 401 and ErrUnknown otherwise.
type APIError struct {
	StatusCode int
	// Message is the server-provided error message when parseable, else the
	// HTTP reason phrase.
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error (status %d): %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	if e.StatusCode == 401 {
		return ErrNotAuthorized
	}
	return ErrUnknown
}
