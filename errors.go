package coverwise

import "errors"

var (
	// ErrPolicyNotFound is returned when no policy with the requested id is loaded.
	ErrPolicyNotFound = errors.New("policy not found")

	// ErrEmptyQuery is returned by Retrieve for a blank query.
	ErrEmptyQuery = errors.New("query cannot be empty")

	// ErrClosed is returned by operations on a closed Service.
	ErrClosed = errors.New("service is closed")
)
