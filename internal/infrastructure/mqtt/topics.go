package mqtt

import (
	"strconv"
	"strings"
)

// DefaultTopicRoot is the first level of every device topic.
const DefaultTopicRoot = "esp"

// Device topic levels below the root.
const (
	LevelStatus      = "status"
	LevelDevice      = "device"
	LevelConfig      = "config"
	LevelRequest     = "request"
	LevelCalibration = "calibration"
	LevelCommand     = "command"

	MetricMoisture    = "moisture"
	MetricTemperature = "temperature"
)

// systemStatusTopic carries the server's own retained presence. It lives
// outside the device root so the device subscription never sees it.
const systemStatusTopic = "leafbox/system/status"

// Topics builds device topic strings under a configurable root.
//
//	topics := mqtt.NewTopics("esp")
//	topics.Reading(3, mqtt.MetricMoisture) // "esp/3/moisture"
type Topics struct {
	root string
}

// NewTopics returns a builder for root, falling back to DefaultTopicRoot.
func NewTopics(root string) Topics {
	if root == "" {
		root = DefaultTopicRoot
	}
	return Topics{root: root}
}

// Root returns the first topic level.
func (t Topics) Root() string {
	if t.root == "" {
		return DefaultTopicRoot
	}
	return t.root
}

func (t Topics) join(levels ...string) string {
	return t.Root() + "/" + strings.Join(levels, "/")
}

// All matches every device topic. Example: esp/#
func (t Topics) All() string {
	return t.join("#")
}

// Status is where devices report presence. Example: esp/status
func (t Topics) Status() string {
	return t.join(LevelStatus)
}

// Reading is a sensor value for a plant or device id. Example: esp/3/moisture
func (t Topics) Reading(id int64, metric string) string {
	return t.join(strconv.FormatInt(id, 10), metric)
}

// ConfigRequest is where a device asks for its configuration.
// Example: esp/device/config/request
func (t Topics) ConfigRequest() string {
	return t.join(LevelDevice, LevelConfig, LevelRequest)
}

// Calibration carries calibration requests to devices and results back.
// Example: esp/device/calibration
func (t Topics) Calibration() string {
	return t.join(LevelDevice, LevelCalibration)
}

// Command carries server-to-device commands and configuration pushes.
// Example: esp/device/command
func (t Topics) Command() string {
	return t.join(LevelDevice, LevelCommand)
}

// SystemStatus is the server's retained presence topic.
func (Topics) SystemStatus() string {
	return systemStatusTopic
}
