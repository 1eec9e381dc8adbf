package esp

import "errors"

// Sentinel errors for the ESP bridge.
var (
	// ErrMalformedPayload is returned when a device message cannot be parsed.
	// The message is dropped.
	ErrMalformedPayload = errors.New("esp: malformed payload")

	// ErrUnknownPlant is returned for a moisture reading whose plant does
	// not exist.
	ErrUnknownPlant = errors.New("esp: reading for unknown plant")
)
