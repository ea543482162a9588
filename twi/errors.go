package twi

import "errors"

// Caller-misuse errors. Hardware outcomes are never returned as errors; they
// surface through LastError as a Status so control code can poll and retry.
var (
	ErrZeroLength = errors.New("twi: zero-length transfer")
	ErrTooLong    = errors.New("twi: transfer exceeds buffer capacity")
)
