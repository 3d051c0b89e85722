package soa

import "errors"

// Error kinds shared by the rule registry, the compliance checker and the batch driver.
// Callers match them with errors.Is; context is attached by wrapping.
var (
	ErrUnknownDevice        = errors.New("unknown device")
	ErrMalformedDocument    = errors.New("malformed document")
	ErrMissingRequiredField = errors.New("missing required field")
	ErrDuplicateKey         = errors.New("duplicate key")
	ErrScenario             = errors.New("scenario error")
	ErrNotFound             = errors.New("not found")
	ErrInvalidRule          = errors.New("invalid rule")
)
