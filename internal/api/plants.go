package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/leafbox/leafbox-core/internal/plant"
)

// handleListPlants returns every plant with its latest reading.
//
// Query parameters:
//   - search: substring of the name or species, or the exact plant ID
func (s *Server) handleListPlants(w http.ResponseWriter, r *http.Request) {
	search := strings.TrimSpace(r.URL.Query().Get("search"))

	plants, err := s.plants.List(r.Context(), search)
	if err != nil {
		s.logger.Error("list plants failed", "error", err)
		writeInternalError(w, "failed to list plants")
		return
	}
	writeJSON(w, http.StatusOK, plants)
}

// handleGetPlant returns a single plant by ID.
func (s *Server) handleGetPlant(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}

	p, err := s.plants.GetByID(r.Context(), id)
	if err != nil {
		s.writePlantError(w, err, "failed to get plant", id)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleCreatePlant creates a plant.
func (s *Server) handleCreatePlant(w http.ResponseWriter, r *http.Request) {
	var p plant.Plant
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	p.ID = 0
	p.ApplyDefaults()
	if err := p.Validate(); err != nil {
		writeValidationError(w, err)
		return
	}

	if err := s.plants.Create(r.Context(), &p); err != nil {
		s.logger.Error("create plant failed", "error", err)
		writeInternalError(w, "failed to create plant")
		return
	}

	writeJSON(w, http.StatusCreated, p)
}

// handleUpdatePlant replaces a plant and pushes the new thresholds to every
// configured device holding it.
func (s *Server) handleUpdatePlant(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}

	var p plant.Plant
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	p.ID = id
	p.ApplyDefaults()
	if err := p.Validate(); err != nil {
		writeValidationError(w, err)
		return
	}

	if err := s.plants.Update(r.Context(), &p); err != nil {
		s.writePlantError(w, err, "failed to update plant", id)
		return
	}

	updated, err := s.plants.GetByID(r.Context(), id)
	if err != nil {
		s.writePlantError(w, err, "failed to update plant", id)
		return
	}

	if s.pusher != nil {
		if err := s.pusher.OnPlantChanged(r.Context(), id); err != nil {
			s.logger.Warn("pushing config after plant edit failed", "plant_id", id, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, updated)
}

// handleDeletePlant removes a plant and its readings. Devices keep the
// dangling slot until an operator reassigns it; they are sent a fresh
// config without that slot so they stop watering against the old
// thresholds.
func (s *Server) handleDeletePlant(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}

	if err := s.plants.Delete(r.Context(), id); err != nil {
		s.writePlantError(w, err, "failed to delete plant", id)
		return
	}

	if s.pusher != nil {
		if err := s.pusher.OnPlantChanged(r.Context(), id); err != nil {
			s.logger.Warn("pushing config after plant delete failed", "plant_id", id, "error", err)
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

// handlePlantReadings returns the plant, where it is placed and its latest
// readings.
func (s *Server) handlePlantReadings(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	amount, ok := amountParam(w, r)
	if !ok {
		return
	}

	detail, err := s.plants.GetDetail(r.Context(), id, amount)
	if err != nil {
		s.writePlantError(w, err, "failed to get plant readings", id)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// handlePlantUpdates returns the last reading time of each plant.
func (s *Server) handlePlantUpdates(w http.ResponseWriter, r *http.Request) {
	amount, ok := amountParam(w, r)
	if !ok {
		return
	}

	updates, err := s.plants.LatestUpdates(r.Context(), amount)
	if err != nil {
		s.logger.Error("latest plant updates failed", "error", err)
		writeInternalError(w, "failed to get plant updates")
		return
	}
	writeJSON(w, http.StatusOK, updates)
}

func (s *Server) writePlantError(w http.ResponseWriter, err error, message string, id int64) {
	if errors.Is(err, plant.ErrPlantNotFound) {
		writeNotFound(w, "plant not found")
		return
	}
	s.logger.Error(message, "plant_id", id, "error", err)
	writeInternalError(w, message)
}
