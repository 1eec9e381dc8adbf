package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrDeviceNotFound is returned when a device does not exist, or exists
	// but has not been configured by an operator yet.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrDeviceExists is returned when registering a MAC that is already known.
	ErrDeviceExists = errors.New("device: already exists")

	// ErrInvalidDevice is returned when device validation fails.
	ErrInvalidDevice = errors.New("device: invalid")

	// ErrDataIntegrity is recorded for a slot whose plant reference points
	// at a plant that no longer exists.
	ErrDataIntegrity = errors.New("device: slot references missing plant")
)
