package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/leafbox/leafbox-core/internal/device"
)

// handleRecentReadings returns the latest moisture readings across all
// plants, with plant names.
func (s *Server) handleRecentReadings(w http.ResponseWriter, r *http.Request) {
	amount, ok := amountParam(w, r)
	if !ok {
		return
	}

	readings, err := s.plants.RecentReadings(r.Context(), amount)
	if err != nil {
		s.logger.Error("recent readings failed", "error", err)
		writeInternalError(w, "failed to get readings")
		return
	}
	writeJSON(w, http.StatusOK, readings)
}

// handleGetConfig returns the configuration the device with {mac} would
// receive. An unseen MAC is registered as a side effect, the same as when
// the device itself asks.
//
// Dashboards percent-encode the colons, and chi matches on the raw path,
// so the parameter is unescaped before use.
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	mac, ok := unescapedParam(w, r, "mac")
	if !ok {
		return
	}
	mac = strings.TrimSpace(mac)
	if err := device.ValidateMAC(mac); err != nil {
		writeValidationError(w, err)
		return
	}

	cfg, err := s.resolver.Resolve(r.Context(), mac)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found or not configured")
			return
		}
		s.logger.Error("resolve config failed", "mac", mac, "error", err)
		writeInternalError(w, "failed to resolve config")
		return
	}

	faults := make(map[int]string, len(cfg.Faults))
	for slot, fault := range cfg.Faults {
		faults[slot] = fault.Error()
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"device_id": cfg.DeviceID,
		"mac":       cfg.MAC,
		"config":    cfg.Slots,
		"faults":    faults,
	})
}
