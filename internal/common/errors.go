package common

import "errors"

// Conditions reported by the viewer. None of them is fatal: handlers report
// them to the message sink and return without mutating state further.
var (
	// ErrUserInputRequired is returned when an action needs a date first
	ErrUserInputRequired = errors.New("user input required")

	// ErrMissingData covers catalog/image mismatches and empty reductions
	ErrMissingData = errors.New("missing data")

	// ErrResourceLimitExceeded is returned when a pixel budget is exceeded
	ErrResourceLimitExceeded = errors.New("resource limit exceeded")
)
