package ota

import "errors"

// Domain errors for the ota package.
var (
	// ErrNoUpdate is returned when no catalog entry is newer than the
	// device's current version.
	ErrNoUpdate = errors.New("ota: no update available")

	// ErrInvalidKind is returned when an update kind is not firmware or app.
	ErrInvalidKind = errors.New("ota: invalid kind")

	// ErrInvalidVersion is returned when a version string is empty.
	ErrInvalidVersion = errors.New("ota: invalid version")

	// ErrInvalidFilename is returned when a filename is empty or contains
	// path separators.
	ErrInvalidFilename = errors.New("ota: invalid filename")

	// ErrFileNotFound is returned when a stored binary does not exist.
	ErrFileNotFound = errors.New("ota: file not found")
)
