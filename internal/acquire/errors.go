package acquire

import "errors"

var (
	// ErrForbiddenAddress means a fetch target resolved to an address in
	// loopback, private, link-local or otherwise non-public space.
	ErrForbiddenAddress = errors.New("fetch target resolved to a forbidden address")

	// ErrFetchFailed wraps plain HTTP fetch failures.
	ErrFetchFailed = errors.New("fetch failed")

	// ErrNoContent means every acquisition channel for a subject came up
	// empty or failed.
	ErrNoContent = errors.New("no content acquired")
)
