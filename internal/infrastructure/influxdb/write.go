package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names in the bucket.
const (
	MeasurementMoisture    = "soil_moisture"
	MeasurementTemperature = "temperature"
)

// WriteMoisture mirrors a raw moisture reading for a plant.
//
// The relational store stays the source of truth; this only feeds
// dashboards that chart long ranges.
func (c *Client) WriteMoisture(plantID int64, value int, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writer.WritePoint(moisturePoint(plantID, value, at))
}

// WriteTemperature mirrors an ambient temperature reading for a device.
func (c *Client) WriteTemperature(deviceID int64, value float64, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writer.WritePoint(temperaturePoint(deviceID, value, at))
}

func moisturePoint(plantID int64, value int, at time.Time) *write.Point {
	return write.NewPoint(
		MeasurementMoisture,
		map[string]string{"plant_id": strconv.FormatInt(plantID, 10)},
		map[string]interface{}{"value": value},
		at,
	)
}

func temperaturePoint(deviceID int64, value float64, at time.Time) *write.Point {
	return write.NewPoint(
		MeasurementTemperature,
		map[string]string{"device_id": strconv.FormatInt(deviceID, 10)},
		map[string]interface{}{"value": value},
		at,
	)
}
