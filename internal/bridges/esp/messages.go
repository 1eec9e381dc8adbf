package esp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Dashboard event topics produced by the router.
const (
	EventMoisture    = "moisture"
	EventTemperature = "temperature"
	EventCalibration = "calibration"
	EventConfig      = "config"
)

// Outbound command types.
const (
	CommandConfig      = "config"
	CommandCalibration = "calibration"
)

// StatusMessage is published by a device on connect and disconnect.
type StatusMessage struct {
	MAC    string   `json:"mac"`
	Online flexBool `json:"online"`
}

// flexBool accepts true/false, 1/0 and their quoted forms; firmware
// revisions disagree on which they send.
type flexBool bool

// UnmarshalJSON implements json.Unmarshaler.
func (b *flexBool) UnmarshalJSON(data []byte) error {
	s := string(bytes.Trim(data, `"`))
	v, err := strconv.ParseBool(s)
	if err != nil {
		return fmt.Errorf("online: %w", err)
	}
	*b = flexBool(v)
	return nil
}

// CalibrationReport is a device's answer to a calibration step. Socket
// and Values are relayed to dashboards untouched.
type CalibrationReport struct {
	Type   string          `json:"type,omitempty"`
	MAC    string          `json:"mac"`
	Socket json.RawMessage `json:"socket"`
	Values json.RawMessage `json:"values"`
}

// CommandMessage is published on the device command topic.
type CommandMessage struct {
	Type string `json:"type"`
	MAC  string `json:"mac"`
	ID   *int64 `json:"id,omitempty"`
	Data any    `json:"data"`
}

// CalibrationStep asks a device to run one calibration step on a slot.
type CalibrationStep struct {
	Step  json.RawMessage `json:"step"`
	Plant json.RawMessage `json:"plant"`
}

// CalibrationRequest is published on the device calibration topic.
type CalibrationRequest struct {
	Type string          `json:"type"`
	MAC  string          `json:"mac"`
	Data CalibrationStep `json:"data"`
}

// MoistureEvent is broadcast for every stored moisture reading. The value
// is relayed as the device sent it.
type MoistureEvent struct {
	PlantID       int64     `json:"plant_id"`
	MoistureValue string    `json:"moisture_value"`
	Timestamp     time.Time `json:"timestamp"`
}

// TemperatureEvent is broadcast for every stored temperature reading.
type TemperatureEvent struct {
	DeviceID         int64     `json:"device_id"`
	TemperatureValue string    `json:"temperature_value"`
	Timestamp        time.Time `json:"timestamp"`
}

// CalibrationEvent relays a device calibration report to dashboards.
type CalibrationEvent struct {
	DeviceID int64           `json:"deviceId"`
	Socket   json.RawMessage `json:"socket"`
	Values   json.RawMessage `json:"values"`
}

// ConfigEvent mirrors a configuration push to dashboards.
type ConfigEvent struct {
	DeviceID int64          `json:"device_id"`
	MAC      string         `json:"mac"`
	Config   any            `json:"config"`
	Faults   map[int]string `json:"faults,omitempty"`
}
