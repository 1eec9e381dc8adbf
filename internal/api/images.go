package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/leafbox/leafbox-core/internal/media"
	"github.com/leafbox/leafbox-core/internal/plant"
)

// ErrCodeTooLarge is returned for uploads over the configured size.
const ErrCodeTooLarge = "file_too_large"

// handleUploadImage stores a plant photo and returns its file name and
// dominant colour, which the dashboard saves as the plant's image and color.
//
// Request: multipart/form-data with an "image" file field.
func (s *Server) handleUploadImage(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > s.maxUploadBytes {
		s.writeTooLarge(w)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)

	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeTooLarge(w)
			return
		}
		writeBadRequest(w, "failed to parse multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll() //nolint:errcheck // temp files of large parts

	file, header, err := r.FormFile("image")
	if err != nil {
		writeBadRequest(w, "no file uploaded: missing 'image' field")
		return
	}
	defer file.Close()

	upload, err := s.images.Save(header.Filename, file)
	if err != nil {
		if errors.Is(err, media.ErrUnsupportedType) || errors.Is(err, media.ErrNotImage) {
			writeValidationError(w, err)
			return
		}
		s.logger.Error("storing image failed", "filename", header.Filename, "error", err)
		writeInternalError(w, "failed to store image")
		return
	}

	s.logger.Info("image uploaded",
		"image", upload.Image,
		"color", upload.Color,
		"size", header.Size,
	)
	writeJSON(w, http.StatusOK, upload)
}

func (s *Server) writeTooLarge(w http.ResponseWriter) {
	writeError(w, http.StatusRequestEntityTooLarge, ErrCodeTooLarge,
		fmt.Sprintf("image exceeds the upload limit of %d bytes", s.maxUploadBytes))
}

// handleGetImage serves a stored plant photo.
func (s *Server) handleGetImage(w http.ResponseWriter, r *http.Request) {
	name, ok := unescapedParam(w, r, "filename")
	if !ok {
		return
	}

	path, err := s.images.Path(name)
	switch {
	case errors.Is(err, media.ErrInvalidName):
		writeBadRequest(w, "invalid image name")
		return
	case errors.Is(err, media.ErrImageNotFound):
		writeNotFound(w, "image not found")
		return
	case err != nil:
		s.logger.Error("locating image failed", "image", name, "error", err)
		writeInternalError(w, "failed to read image")
		return
	}

	http.ServeFile(w, r, path)
}

// handlePlantLookup searches the plant reference data by latin name,
// common name or edible parts.
func (s *Server) handlePlantLookup(w http.ResponseWriter, r *http.Request) {
	search, ok := unescapedParam(w, r, "search")
	if !ok {
		return
	}

	results, err := s.plantInfo.Lookup(r.Context(), search)
	if err != nil {
		if errors.Is(err, plant.ErrInvalidSearch) {
			writeValidationError(w, err)
			return
		}
		s.logger.Error("plant lookup failed", "search", search, "error", err)
		writeInternalError(w, "failed to search plant info")
		return
	}
	writeJSON(w, http.StatusOK, results)
}
