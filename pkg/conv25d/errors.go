package conv25d

import "patchconv25d/pkg/correlate"

// Error kinds returned by Compute. They are the same values as the correlate
// package sentinels, so a single errors.Is check covers both packages.
var (
	// ErrInvalidShape reports incompatible volume, kernel and patch dimensions
	ErrInvalidShape = correlate.ErrInvalidShape

	// ErrInvalidParameter reports a non-positive stride, patch size or worker count
	ErrInvalidParameter = correlate.ErrInvalidParameter
)
