package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/leafbox/leafbox-core/internal/device"
	"github.com/leafbox/leafbox-core/internal/plant"
)

// handleListDevices returns all devices.
//
// Query parameters:
//   - search: substring of the name, or the exact device ID
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	search := strings.TrimSpace(r.URL.Query().Get("search"))

	devices, err := s.devices.List(r.Context(), search)
	if err != nil {
		s.logger.Error("list devices failed", "error", err)
		writeInternalError(w, "failed to list devices")
		return
	}
	writeJSON(w, http.StatusOK, devices)
}

// handleGetDevice returns a single device by ID.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}

	dev, err := s.devices.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		s.logger.Error("get device failed", "device_id", id, "error", err)
		writeInternalError(w, "failed to get device")
		return
	}

	writeJSON(w, http.StatusOK, dev)
}

// handleConfigureDevice stores an operator assignment, marks the device
// configured and pushes the resulting configuration to it.
func (s *Server) handleConfigureDevice(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}

	var a device.Assignment
	if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if err := a.Validate(); err != nil {
		writeValidationError(w, err)
		return
	}

	for _, plantID := range a.Plants {
		if plantID == nil {
			continue
		}
		if _, err := s.plants.GetByID(r.Context(), *plantID); err != nil {
			if errors.Is(err, plant.ErrPlantNotFound) {
				writeError(w, http.StatusBadRequest, ErrCodeValidation, "unknown plant in slot assignment")
				return
			}
			s.logger.Error("checking slot plant failed", "plant_id", *plantID, "error", err)
			writeInternalError(w, "failed to configure device")
			return
		}
	}

	dev, err := s.devices.Configure(r.Context(), id, a)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		s.logger.Error("configure device failed", "device_id", id, "error", err)
		writeInternalError(w, "failed to configure device")
		return
	}

	fields := []any{"device_id", dev.ID, "mac", dev.MAC}
	if claims := claimsFromContext(r.Context()); claims != nil {
		fields = append(fields, "user", claims.UserName)
	}
	s.logger.Info("device configured", fields...)

	if s.pusher != nil {
		if err := s.pusher.OnDeviceConfigChanged(r.Context(), dev); err != nil {
			// The assignment is stored; the device picks it up on its next
			// config request.
			s.logger.Warn("pushing device config failed", "mac", dev.MAC, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, dev)
}

// handleDeleteDevice removes a device. Readings are kept.
func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}

	if err := s.devices.Delete(r.Context(), id); err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		s.logger.Error("delete device failed", "device_id", id, "error", err)
		writeInternalError(w, "failed to delete device")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
