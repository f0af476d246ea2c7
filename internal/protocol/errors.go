package protocol

import "errors"

// Parsing and decoding errors.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotHandled is returned for topics outside the hub's contract
	// (wrong namespace, wrong segment count, empty segments).
	ErrNotHandled = errors.New("protocol: topic not handled")

	// ErrUnknownClass is returned when the class segment is not one of
	// the known message classes.
	ErrUnknownClass = errors.New("protocol: unknown message class")

	// ErrDecodeFailed is returned when a payload cannot be decoded.
	// Messages failing decode are logged and dropped, never retried.
	ErrDecodeFailed = errors.New("protocol: payload decode failed")
)
