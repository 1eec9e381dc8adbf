package device

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// SlotCount is the number of plant sockets on a controller.
const SlotCount = 4

// DefaultName is given to devices registered from MQTT traffic.
const DefaultName = "New device"

// Device is a watering controller.
//
// Plants and SensorConfigs are indexed by slot-1.
type Device struct {
	ID            int64
	MAC           string
	Name          string
	Location      *string
	Plants        [SlotCount]*int64
	SensorConfigs [SlotCount]*string
	Online        bool
	Configured    bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// PlantAt returns the plant ID in slot (1-based), or nil.
func (d *Device) PlantAt(slot int) *int64 {
	if slot < 1 || slot > SlotCount {
		return nil
	}
	return d.Plants[slot-1]
}

// HasPlant reports whether any slot references plantID.
func (d *Device) HasPlant(plantID int64) bool {
	for _, p := range d.Plants {
		if p != nil && *p == plantID {
			return true
		}
	}
	return false
}

// MarshalJSON renders the device with one key per slot, the shape the
// dashboard and firmware tooling read.
func (d Device) MarshalJSON() ([]byte, error) {
	out := map[string]any{
		"device_id":   d.ID,
		"mac":         d.MAC,
		"device_name": d.Name,
		"location":    d.Location,
		"online":      d.Online,
		"configured":  d.Configured,
		"created_at":  d.CreatedAt,
		"updated_at":  d.UpdatedAt,
	}
	for i := 0; i < SlotCount; i++ {
		n := strconv.Itoa(i + 1)
		out["plant_"+n] = d.Plants[i]
		out["sensor_config_"+n] = d.SensorConfigs[i]
	}
	return json.Marshal(out)
}

// Assignment is an operator's edit of a device: its name, location and
// what sits in each slot. Applying it marks the device configured.
type Assignment struct {
	Name          string
	Location      *string
	Plants        [SlotCount]*int64
	SensorConfigs [SlotCount]*string
}

// UnmarshalJSON reads the flat plant_N / sensor_config_N form.
func (a *Assignment) UnmarshalJSON(data []byte) error {
	var raw struct {
		Name          string  `json:"device_name"`
		Location      *string `json:"location"`
		Plant1        *int64  `json:"plant_1"`
		Plant2        *int64  `json:"plant_2"`
		Plant3        *int64  `json:"plant_3"`
		Plant4        *int64  `json:"plant_4"`
		SensorConfig1 *string `json:"sensor_config_1"`
		SensorConfig2 *string `json:"sensor_config_2"`
		SensorConfig3 *string `json:"sensor_config_3"`
		SensorConfig4 *string `json:"sensor_config_4"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	a.Name = strings.TrimSpace(raw.Name)
	a.Location = raw.Location
	a.Plants = [SlotCount]*int64{raw.Plant1, raw.Plant2, raw.Plant3, raw.Plant4}
	a.SensorConfigs = [SlotCount]*string{raw.SensorConfig1, raw.SensorConfig2, raw.SensorConfig3, raw.SensorConfig4}
	return nil
}

// Calibration is the raw sensor range of one slot.
type Calibration struct {
	Dry int // reading in dry soil
	Wet int // reading in water
}

// ParseCalibration parses a stored "<dry>|<wet>" string.
func ParseCalibration(s string) (Calibration, bool) {
	dry, wet, found := strings.Cut(s, "|")
	if !found {
		return Calibration{}, false
	}
	d, err := strconv.Atoi(strings.TrimSpace(dry))
	if err != nil {
		return Calibration{}, false
	}
	w, err := strconv.Atoi(strings.TrimSpace(wet))
	if err != nil {
		return Calibration{}, false
	}
	return Calibration{Dry: d, Wet: w}, true
}

// String formats the calibration for storage.
func (c Calibration) String() string {
	return strconv.Itoa(c.Dry) + "|" + strconv.Itoa(c.Wet)
}

// TemperatureReading is one temperature sample reported by a device.
type TemperatureReading struct {
	ID        int64     `json:"reading_id"`
	DeviceID  int64     `json:"device_id"`
	Value     float64   `json:"temperature_value"`
	Timestamp time.Time `json:"timestamp"`
}

// SlotConfig is the watering configuration of one slot. The JSON keys are
// the ones the firmware parses, including its "Treshold" spelling.
type SlotConfig struct {
	MoistureMin      int        `json:"moistureMin"`
	MoistureMax      int        `json:"moistureMax"`
	LowerThreshold   int        `json:"lowerTreshold"`
	UpperThreshold   int        `json:"upperTreshold"`
	PlantID          int64      `json:"plantId"`
	LastReading      *time.Time `json:"lastReading"`
	ReadingDelay     int        `json:"readingDelay"`
	ReadingDelayMult int        `json:"readingDelayMult"`
	WateringTime     int        `json:"wateringTime"`
}

// Configuration is the derived configuration of one device.
type Configuration struct {
	DeviceID int64
	MAC      string

	// Slots is keyed by slot number 1-4.
	Slots map[int]SlotConfig

	// Faults holds an ErrDataIntegrity error per slot whose plant is gone.
	Faults map[int]error
}
