package matchqueue

import "errors"

// Validation errors.
var (
	ErrInvalidScore  = errors.New("match score must be in [0,1]")
	ErrEmptyMatchKey = errors.New("subscription id and event id are required")
)
