package plant

import "errors"

// Domain errors for the plant package. Check with errors.Is.
var (
	// ErrPlantNotFound is returned when a plant ID does not exist.
	ErrPlantNotFound = errors.New("plant: not found")

	// ErrInvalidPlant is returned when plant validation fails.
	ErrInvalidPlant = errors.New("plant: invalid")

	ErrInvalidInfo   = errors.New("plant: invalid reference record")
	ErrInvalidSearch = errors.New("plant: invalid search")
)
