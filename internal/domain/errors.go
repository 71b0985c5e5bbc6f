package domain

import "errors"

var (
	// ErrNotFound is returned when a requested source or destination does not exist.
	ErrNotFound = errors.New("resource not found")

	// ErrConflict is returned when an insert would violate the one-row-per-pair
	// invariant. Callers treat it as "someone else already wrote it" and re-read.
	ErrConflict = errors.New("distance pair already cached")

	// ErrProviderNotConfigured is returned before any work is attempted when the
	// routing provider has no credentials.
	ErrProviderNotConfigured = errors.New("route provider not configured")

	// ErrUngeocodable is returned for a single-pair request whose destination has
	// no coordinates and could not be resolved by the geocode fallback chain.
	ErrUngeocodable = errors.New("destination could not be geocoded")
)
