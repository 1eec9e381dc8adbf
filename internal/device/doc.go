// Package device manages watering controllers and derives the
// configuration pushed to them.
//
// A device is identified by its MAC address and drives up to four plant
// slots. Each slot may hold a plant reference and a sensor calibration of
// the form "<dry>|<wet>" in raw ADC units. Devices register themselves the
// first time an unknown MAC is seen and stay unconfigured until an
// operator assigns them.
//
// # Configuration resolution
//
// Resolver turns the stored slots into the per-slot bundle the firmware
// expects:
//
//	resolver := device.NewResolver(devices, plants)
//	cfg, err := resolver.Resolve(ctx, mac)
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // unknown (now registered) or not configured yet
//	}
//	for slot, fault := range cfg.Faults {
//	    // slot references a deleted plant
//	}
//
// Slots without a plant or without a usable calibration are left out of
// the bundle. The configuration is derived on every call and never stored.
package device
