package plant

import "time"

// DefaultColor is used when a plant is created without a colour.
const DefaultColor = "#7f7f7f"

// Plant is an operator-defined plant and its watering parameters.
type Plant struct {
	ID          int64   `json:"plant_id"`
	Name        string  `json:"plant_name"`
	Image       *string `json:"image"`
	Description *string `json:"description"`
	Species     *string `json:"species"`
	Color       string  `json:"color"`

	// Moisture bounds in percent. The device waters below LowerThreshold
	// and stops at UpperThreshold.
	LowerThreshold int `json:"lower_threshold"`
	UpperThreshold int `json:"upper_threshold"`

	// Sampling cadence: the device reads every ReadingDelay units of
	// ReadingDelayMult seconds.
	ReadingDelay     int `json:"reading_delay"`
	ReadingDelayMult int `json:"reading_delay_mult"`

	// WateringTime is the pump run time in seconds.
	WateringTime   int  `json:"watering_time"`
	TemperatureMin *int `json:"temperature_min"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Summary is a plant with its most recent moisture reading, if any.
type Summary struct {
	Plant
	MoistureValue *int       `json:"moisture_value"`
	LastReading   *time.Time `json:"last_reading"`
}

// Reading is one moisture sample.
type Reading struct {
	ID            int64     `json:"reading_id"`
	PlantID       int64     `json:"plant_id"`
	PlantName     string    `json:"plant_name,omitempty"`
	MoistureValue int       `json:"moisture_value"`
	Timestamp     time.Time `json:"timestamp"`
}

// Placement is a device slot a plant is assigned to.
type Placement struct {
	DeviceID   int64  `json:"device_id"`
	DeviceName string `json:"device_name"`
	Slot       int    `json:"slot"`
}

// Detail is a plant with where it is placed and its latest readings.
type Detail struct {
	Plant      Plant       `json:"plant"`
	Placements []Placement `json:"placements"`
	Readings   []Reading   `json:"readings"`
}

// LastUpdate is the most recent reading time of one plant.
type LastUpdate struct {
	PlantID     int64     `json:"plant_id"`
	PlantName   string    `json:"plant_name"`
	LastReading time.Time `json:"timestamp"`
}
