package index

import "errors"

var (
	// ErrInvalidOffset is returned for a negative offset
	ErrInvalidOffset = errors.New("invalid offset")

	// ErrInvalidLimit is returned for a negative or unusable limit
	ErrInvalidLimit = errors.New("invalid limit")

	// ErrPositionMismatch is returned when a caller's position cannot be
	// honoured under the configured position policy
	ErrPositionMismatch = errors.New("position mismatch")

	// ErrInvalidKey is returned when writing under an empty key
	ErrInvalidKey = errors.New("invalid key")

	// ErrInvalidPositionPolicy is returned for an unknown position policy
	ErrInvalidPositionPolicy = errors.New("invalid position policy")

	// ErrInvalidNamespace is returned for an empty namespace or one containing '/'
	ErrInvalidNamespace = errors.New("invalid namespace")

	// ErrCorruptIndex is returned when stored records disagree with the count
	ErrCorruptIndex = errors.New("corrupt index")

	// ErrCountOverflow is returned when a sequence cannot grow any further
	ErrCountOverflow = errors.New("count overflow")
)
