package policy

import "errors"

var (
	// ErrUnsupportedFormat is returned for files that are neither YAML nor JSON.
	ErrUnsupportedFormat = errors.New("unsupported policy file format")

	// ErrInvalidPolicy is returned when a file decodes but fails conversion
	// or validation.
	ErrInvalidPolicy = errors.New("invalid policy file")

	// ErrInvalidDate is returned for a date in neither accepted layout.
	ErrInvalidDate = errors.New("invalid date")
)
