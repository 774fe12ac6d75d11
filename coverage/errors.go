package coverage

import "errors"

var (
	// ErrPolicyNotLoaded is returned when a coverage check is attempted
	// before any policy has been loaded.
	ErrPolicyNotLoaded = errors.New("no policy loaded")

	// ErrInvalidMinPartialMatch is returned for a non-positive partial match length.
	ErrInvalidMinPartialMatch = errors.New("minimum partial match length must be positive")
)
