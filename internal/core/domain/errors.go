package domain

import "errors"

var (
	// ErrInvalidFix is returned for a fix with out-of-range coordinates.
	ErrInvalidFix = errors.New("invalid gps fix")

	// ErrProjectionFailed is returned when a coordinate cannot be projected
	// into the selected planar frame.
	ErrProjectionFailed = errors.New("projection failed")

	// ErrMalformedGeometry marks zone geometry that is missing or has fewer
	// than two valid vertices.
	ErrMalformedGeometry = errors.New("malformed zone geometry")

	// ErrZoneNotDetermined is returned when a bed was given but no zone in it
	// matched the fix.
	ErrZoneNotDetermined = errors.New("could not determine zone")
)
