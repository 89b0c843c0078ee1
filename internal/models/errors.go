package models

import "errors"

// Application-wide errors. Components wrap these with fmt.Errorf("%w: ...") and
// handlers map them to HTTP status codes with errors.Is.
var (
	// ErrValidation marks a request rejected before any upstream call (400).
	ErrValidation = errors.New("validation error")
	// ErrUpstreamGeneration marks a failed or empty text/vision completion (500, fatal).
	ErrUpstreamGeneration = errors.New("upstream generation failed")
	// ErrImageGeneration marks a failed illustration; fatal only when configured.
	ErrImageGeneration = errors.New("image generation failed")
	// ErrInternal marks anything else.
	ErrInternal = errors.New("internal server error")
)

// Validation messages returned to clients verbatim
const (
	MsgMissingFields  = "Missing name or interests"
	MsgFieldsTooLong  = "name or interests too long"
	MsgGenerateFailed = "Failed to generate story"
)
