package memory

import "errors"

var (
	// ErrNotFound is returned for unknown trace ids.
	ErrNotFound = errors.New("trace not found")

	// ErrInvalidVector is returned when a vector does not match the configured
	// dimension or holds non-finite values. Nothing is mutated when it is returned.
	ErrInvalidVector = errors.New("invalid vector")

	// ErrCapacityExhausted is reported when protection rules shield the whole
	// overflow of a tier and nothing could be evicted.
	ErrCapacityExhausted = errors.New("capacity exhausted")
)
