package device

import (
	"fmt"
	"strings"
	"unicode"
)

// Validation constants.
const (
	maxNameLength     = 100
	maxLocationLength = 200
	maxMACLength      = 64
)

// ValidateMAC checks a device identifier as reported by firmware. The
// format is not enforced beyond being a single printable token.
func ValidateMAC(mac string) error {
	if mac == "" {
		return fmt.Errorf("%w: mac is required", ErrInvalidDevice)
	}
	if len(mac) > maxMACLength {
		return fmt.Errorf("%w: mac exceeds %d characters", ErrInvalidDevice, maxMACLength)
	}
	if strings.IndexFunc(mac, func(r rune) bool { return unicode.IsSpace(r) || !unicode.IsPrint(r) }) >= 0 {
		return fmt.Errorf("%w: mac contains whitespace or control characters", ErrInvalidDevice)
	}
	return nil
}

// Validate checks an assignment and normalises empty slot values to nil.
func (a *Assignment) Validate() error {
	if a.Name == "" {
		return fmt.Errorf("%w: device_name is required", ErrInvalidDevice)
	}
	if len(a.Name) > maxNameLength {
		return fmt.Errorf("%w: device_name exceeds %d characters", ErrInvalidDevice, maxNameLength)
	}
	if a.Location != nil && len(*a.Location) > maxLocationLength {
		return fmt.Errorf("%w: location exceeds %d characters", ErrInvalidDevice, maxLocationLength)
	}

	for i := 0; i < SlotCount; i++ {
		if p := a.Plants[i]; p != nil && *p <= 0 {
			return fmt.Errorf("%w: plant_%d must be a positive id", ErrInvalidDevice, i+1)
		}

		sc := a.SensorConfigs[i]
		if sc == nil {
			continue
		}
		trimmed := strings.TrimSpace(*sc)
		if trimmed == "" {
			a.SensorConfigs[i] = nil
			continue
		}
		if _, ok := ParseCalibration(trimmed); !ok {
			return fmt.Errorf("%w: sensor_config_%d must be \"<dry>|<wet>\"", ErrInvalidDevice, i+1)
		}
		a.SensorConfigs[i] = &trimmed
	}
	return nil
}
