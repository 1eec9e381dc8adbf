package plant

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	maxNameLength        = 100
	maxDescriptionLength = 4096
	maxPercent           = 100
	defaultReadingDelay  = 60
	defaultDelayMult     = 1
)

var colorRegex = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// ApplyDefaults fills optional fields left empty by the operator.
func (p *Plant) ApplyDefaults() {
	p.Name = strings.TrimSpace(p.Name)
	if p.Color == "" {
		p.Color = DefaultColor
	}
	if p.ReadingDelay == 0 {
		p.ReadingDelay = defaultReadingDelay
	}
	if p.ReadingDelayMult == 0 {
		p.ReadingDelayMult = defaultDelayMult
	}
}

// Validate checks a plant before it is written.
func (p *Plant) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidPlant)
	}
	if len(p.Name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidPlant, maxNameLength)
	}
	if p.Description != nil && len(*p.Description) > maxDescriptionLength {
		return fmt.Errorf("%w: description exceeds %d characters", ErrInvalidPlant, maxDescriptionLength)
	}
	if !colorRegex.MatchString(p.Color) {
		return fmt.Errorf("%w: color must be #rrggbb", ErrInvalidPlant)
	}
	if p.LowerThreshold < 0 || p.UpperThreshold > maxPercent || p.LowerThreshold > p.UpperThreshold {
		return fmt.Errorf("%w: thresholds must satisfy 0 <= lower <= upper <= 100", ErrInvalidPlant)
	}
	if p.ReadingDelay < 1 || p.ReadingDelayMult < 1 {
		return fmt.Errorf("%w: reading delay and multiplier must be positive", ErrInvalidPlant)
	}
	if p.WateringTime < 0 {
		return fmt.Errorf("%w: watering time cannot be negative", ErrInvalidPlant)
	}
	return nil
}
