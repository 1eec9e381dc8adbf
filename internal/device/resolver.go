package device

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/leafbox/leafbox-core/internal/plant"
)

// Store is the subset of Repository the resolver and the MQTT bridge
// need to look up and register devices.
type Store interface {
	GetByMAC(ctx context.Context, mac string) (*Device, error)
	Create(ctx context.Context, device *Device) error
}

// PlantSource supplies the plant data a slot configuration is built from.
type PlantSource interface {
	GetByID(ctx context.Context, id int64) (*plant.Plant, error)
	LatestReadingTime(ctx context.Context, plantID int64) (*time.Time, error)
}

// EnsureRegistered creates a placeholder device for an unseen MAC. It
// reports whether a row was created. Losing a registration race to another
// message for the same MAC counts as already registered.
func EnsureRegistered(ctx context.Context, devices Store, mac string) (bool, error) {
	if err := ValidateMAC(mac); err != nil {
		return false, err
	}
	err := devices.Create(ctx, &Device{MAC: mac, Name: DefaultName})
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrDeviceExists):
		return false, nil
	default:
		return false, fmt.Errorf("registering device %s: %w", mac, err)
	}
}

// Resolver derives device configurations from stored slots and plants.
type Resolver struct {
	devices Store
	plants  PlantSource
}

// NewResolver creates a resolver over the given stores.
func NewResolver(devices Store, plants PlantSource) *Resolver {
	return &Resolver{devices: devices, plants: plants}
}

// Resolve builds the configuration for the device with the given MAC.
//
// An unknown MAC is registered as a placeholder and ErrDeviceNotFound is
// returned; a known but unconfigured device also yields ErrDeviceNotFound.
// A slot whose plant no longer exists is recorded in Faults and left out,
// as is a slot without a parseable calibration. Store failures abort.
func (r *Resolver) Resolve(ctx context.Context, mac string) (*Configuration, error) {
	d, err := r.devices.GetByMAC(ctx, mac)
	if errors.Is(err, ErrDeviceNotFound) {
		if _, regErr := EnsureRegistered(ctx, r.devices, mac); regErr != nil {
			return nil, regErr
		}
		return nil, ErrDeviceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("resolving device %s: %w", mac, err)
	}
	if !d.Configured {
		return nil, ErrDeviceNotFound
	}

	cfg := &Configuration{
		DeviceID: d.ID,
		MAC:      d.MAC,
		Slots:    make(map[int]SlotConfig),
		Faults:   make(map[int]error),
	}

	for slot := 1; slot <= SlotCount; slot++ {
		plantID := d.PlantAt(slot)
		if plantID == nil {
			continue
		}

		p, err := r.plants.GetByID(ctx, *plantID)
		if errors.Is(err, plant.ErrPlantNotFound) {
			cfg.Faults[slot] = fmt.Errorf("%w: slot %d, plant %d", ErrDataIntegrity, slot, *plantID)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("resolving slot %d: %w", slot, err)
		}

		last, err := r.plants.LatestReadingTime(ctx, *plantID)
		if err != nil {
			return nil, fmt.Errorf("resolving slot %d: %w", slot, err)
		}

		raw := d.SensorConfigs[slot-1]
		if raw == nil {
			continue
		}
		cal, ok := ParseCalibration(*raw)
		if !ok {
			continue
		}

		cfg.Slots[slot] = SlotConfig{
			MoistureMin:      cal.Dry,
			MoistureMax:      cal.Wet,
			LowerThreshold:   p.LowerThreshold,
			UpperThreshold:   p.UpperThreshold,
			PlantID:          p.ID,
			LastReading:      last,
			ReadingDelay:     p.ReadingDelay,
			ReadingDelayMult: p.ReadingDelayMult,
			WateringTime:     p.WateringTime,
		}
	}

	return cfg, nil
}
