package esp

import (
	"strconv"
	"strings"

	"github.com/leafbox/leafbox-core/internal/infrastructure/mqtt"
)

// Kind classifies an inbound topic.
type Kind int

// Topic kinds.
const (
	KindUnknown Kind = iota
	KindStatus
	KindReading
	KindConfigRequest
	KindCalibration
	KindCommand
)

// String returns the kind name used in logs.
func (k Kind) String() string {
	switch k {
	case KindStatus:
		return "status"
	case KindReading:
		return "reading"
	case KindConfigRequest:
		return "config_request"
	case KindCalibration:
		return "calibration"
	case KindCommand:
		return "command"
	default:
		return "unknown"
	}
}

// Topic is a parsed device topic.
type Topic struct {
	Kind Kind

	// ID and Metric are set for KindReading. ID is a plant ID for moisture
	// and a device ID for temperature.
	ID     int64
	Metric string

	// MAC is set when a legacy reading topic carries it.
	MAC string
}

// ParseTopic classifies topic under root. Anything it does not recognise
// is KindUnknown.
func ParseTopic(root, topic string) Topic {
	parts := strings.Split(topic, "/")
	if len(parts) < 2 || parts[0] != root {
		return Topic{Kind: KindUnknown}
	}
	levels := parts[1:]

	if levels[0] == mqtt.LevelDevice {
		return parseDeviceTopic(levels[1:])
	}

	switch len(levels) {
	case 1:
		if levels[0] == mqtt.LevelStatus {
			return Topic{Kind: KindStatus}
		}
	case 2:
		return parseReading("", levels[0], levels[1])
	case 3:
		return parseReading(levels[0], levels[1], levels[2])
	}
	return Topic{Kind: KindUnknown}
}

func parseDeviceTopic(levels []string) Topic {
	switch {
	case len(levels) == 1 && levels[0] == mqtt.LevelCommand:
		return Topic{Kind: KindCommand}
	case len(levels) == 1 && levels[0] == mqtt.LevelCalibration:
		return Topic{Kind: KindCalibration}
	case len(levels) == 2 && levels[0] == mqtt.LevelConfig && levels[1] == mqtt.LevelRequest:
		return Topic{Kind: KindConfigRequest}
	}
	return Topic{Kind: KindUnknown}
}

func parseReading(mac, id, metric string) Topic {
	if metric != mqtt.MetricMoisture && metric != mqtt.MetricTemperature {
		return Topic{Kind: KindUnknown}
	}
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil || n <= 0 {
		return Topic{Kind: KindUnknown}
	}
	return Topic{Kind: KindReading, ID: n, Metric: metric, MAC: mac}
}
