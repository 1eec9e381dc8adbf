package esp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/leafbox/leafbox-core/internal/device"
	"github.com/leafbox/leafbox-core/internal/infrastructure/mqtt"
	"github.com/leafbox/leafbox-core/internal/plant"
)

// DeviceStore is the device persistence the router needs.
type DeviceStore interface {
	GetByID(ctx context.Context, id int64) (*device.Device, error)
	GetByMAC(ctx context.Context, mac string) (*device.Device, error)
	Create(ctx context.Context, d *device.Device) error
	UpdateOnline(ctx context.Context, mac string, online bool) error
	AppendTemperature(ctx context.Context, deviceID int64, value float64, at time.Time) (*device.TemperatureReading, error)
}

// PlantStore is the plant persistence the router needs.
type PlantStore interface {
	GetByID(ctx context.Context, id int64) (*plant.Plant, error)
	AppendReading(ctx context.Context, plantID int64, value int, at time.Time) (*plant.Reading, error)
}

// ConfigResolver derives the configuration pushed to a device.
type ConfigResolver interface {
	Resolve(ctx context.Context, mac string) (*device.Configuration, error)
}

// Broadcaster fans events out to dashboard sessions.
type Broadcaster interface {
	Broadcast(topic string, data any)
}

// Publisher sends JSON messages to the device transport.
type Publisher interface {
	PublishJSON(topic string, v any) error
}

// Mirror receives a copy of every stored reading. Optional.
type Mirror interface {
	WriteMoisture(plantID int64, value int, at time.Time)
	WriteTemperature(deviceID int64, value float64, at time.Time)
}

// Logger is satisfied by logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// RouterOptions holds the collaborators of a Router.
type RouterOptions struct {
	Topics      mqtt.Topics
	Devices     DeviceStore
	Plants      PlantStore
	Resolver    ConfigResolver
	Broadcaster Broadcaster
	Publisher   Publisher

	// Mirror is optional. Nil disables the time-series copy.
	Mirror Mirror

	Logger Logger

	// Now overrides the clock in tests.
	Now func() time.Time
}

// Router classifies inbound device messages and dispatches them.
type Router struct {
	topics      mqtt.Topics
	devices     DeviceStore
	plants      PlantStore
	resolver    ConfigResolver
	broadcaster Broadcaster
	publisher   Publisher
	mirror      Mirror
	logger      Logger
	now         func() time.Time
}

// NewRouter creates a router. Every collaborator except Mirror is required.
func NewRouter(opts RouterOptions) (*Router, error) {
	switch {
	case opts.Devices == nil:
		return nil, fmt.Errorf("device store is required")
	case opts.Plants == nil:
		return nil, fmt.Errorf("plant store is required")
	case opts.Resolver == nil:
		return nil, fmt.Errorf("config resolver is required")
	case opts.Broadcaster == nil:
		return nil, fmt.Errorf("broadcaster is required")
	case opts.Publisher == nil:
		return nil, fmt.Errorf("publisher is required")
	case opts.Logger == nil:
		return nil, fmt.Errorf("logger is required")
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Router{
		topics:      opts.Topics,
		devices:     opts.Devices,
		plants:      opts.Plants,
		resolver:    opts.Resolver,
		broadcaster: opts.Broadcaster,
		publisher:   opts.Publisher,
		mirror:      opts.Mirror,
		logger:      opts.Logger,
		now:         now,
	}, nil
}

// Handle processes one inbound message. Retained messages are replays of
// old state and are ignored. A returned error means the message was
// dropped; it is never fatal.
func (r *Router) Handle(ctx context.Context, msg mqtt.Message) error {
	if msg.Retained {
		r.logger.Debug("ignoring retained message", "topic", msg.Topic)
		return nil
	}

	topic := ParseTopic(r.topics.Root(), msg.Topic)

	switch topic.Kind {
	case KindStatus:
		return r.handleStatus(ctx, msg.Payload)
	case KindReading:
		if topic.Metric == mqtt.MetricMoisture {
			return r.handleMoisture(ctx, topic.ID, msg.Payload)
		}
		return r.handleTemperature(ctx, topic.ID, msg.Payload)
	case KindConfigRequest:
		return r.handleConfigRequest(ctx, msg.Payload)
	case KindCalibration:
		return r.handleCalibration(ctx, msg.Payload)
	case KindCommand:
		// Our own outbound traffic.
		return nil
	case KindUnknown:
		r.logger.Debug("ignoring message on unrecognised topic", "topic", msg.Topic)
		return nil
	}
	return nil
}

func (r *Router) handleStatus(ctx context.Context, payload []byte) error {
	var status StatusMessage
	if err := json.Unmarshal(payload, &status); err != nil {
		return fmt.Errorf("%w: status: %w", ErrMalformedPayload, err)
	}
	if status.MAC == "" {
		return fmt.Errorf("%w: status without mac", ErrMalformedPayload)
	}

	err := r.devices.UpdateOnline(ctx, status.MAC, bool(status.Online))
	if errors.Is(err, device.ErrDeviceNotFound) {
		created, regErr := device.EnsureRegistered(ctx, r.devices, status.MAC)
		if regErr != nil {
			return regErr
		}
		if created {
			r.logger.Info("registered new device", "mac", status.MAC)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("updating status of %s: %w", status.MAC, err)
	}

	r.logger.Debug("device status", "mac", status.MAC, "online", bool(status.Online))
	return nil
}

func (r *Router) handleMoisture(ctx context.Context, plantID int64, payload []byte) error {
	raw := strings.TrimSpace(string(payload))
	value, err := parseMoisture(raw)
	if err != nil {
		return fmt.Errorf("%w: moisture %q: %w", ErrMalformedPayload, raw, err)
	}

	if _, err := r.plants.GetByID(ctx, plantID); err != nil {
		if errors.Is(err, plant.ErrPlantNotFound) {
			return fmt.Errorf("%w: %d", ErrUnknownPlant, plantID)
		}
		return fmt.Errorf("looking up plant %d: %w", plantID, err)
	}

	reading, err := r.plants.AppendReading(ctx, plantID, value, r.now())
	if err != nil {
		return fmt.Errorf("storing moisture for plant %d: %w", plantID, err)
	}

	r.broadcaster.Broadcast(EventMoisture, MoistureEvent{
		PlantID:       plantID,
		MoistureValue: raw,
		Timestamp:     reading.Timestamp,
	})
	if r.mirror != nil {
		r.mirror.WriteMoisture(plantID, value, reading.Timestamp)
	}
	return nil
}

// parseMoisture reads a raw sensor value. Some firmware builds print the
// value as a float ("512.0"); the fraction is truncated.
func parseMoisture(raw string) (int, error) {
	if v, err := strconv.Atoi(raw); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || f > math.MaxInt32 || f < math.MinInt32 {
		return 0, errors.New("value out of range")
	}
	return int(f), nil
}

func (r *Router) handleTemperature(ctx context.Context, deviceID int64, payload []byte) error {
	raw := strings.TrimSpace(string(payload))
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("%w: temperature %q: %w", ErrMalformedPayload, raw, err)
	}

	if _, err := r.devices.GetByID(ctx, deviceID); err != nil {
		return fmt.Errorf("looking up device %d: %w", deviceID, err)
	}

	reading, err := r.devices.AppendTemperature(ctx, deviceID, value, r.now())
	if err != nil {
		return fmt.Errorf("storing temperature for device %d: %w", deviceID, err)
	}

	r.broadcaster.Broadcast(EventTemperature, TemperatureEvent{
		DeviceID:         deviceID,
		TemperatureValue: raw,
		Timestamp:        reading.Timestamp,
	})
	if r.mirror != nil {
		r.mirror.WriteTemperature(deviceID, value, reading.Timestamp)
	}
	return nil
}

func (r *Router) handleConfigRequest(ctx context.Context, payload []byte) error {
	mac := strings.Trim(strings.TrimSpace(string(payload)), `"`)
	if mac == "" {
		return fmt.Errorf("%w: empty config request", ErrMalformedPayload)
	}

	err := r.PushConfig(ctx, mac)
	if errors.Is(err, device.ErrDeviceNotFound) {
		r.logger.Info("config requested by unconfigured device", "mac", mac)
		return nil
	}
	return err
}

func (r *Router) handleCalibration(ctx context.Context, payload []byte) error {
	var report CalibrationReport
	if err := json.Unmarshal(payload, &report); err != nil {
		return fmt.Errorf("%w: calibration: %w", ErrMalformedPayload, err)
	}
	if report.Type == CommandCalibration {
		// Echo of a request we published.
		return nil
	}
	if report.MAC == "" {
		return fmt.Errorf("%w: calibration without mac", ErrMalformedPayload)
	}

	d, err := r.devices.GetByMAC(ctx, report.MAC)
	if err != nil {
		return fmt.Errorf("calibration from %s: %w", report.MAC, err)
	}

	r.broadcaster.Broadcast(EventCalibration, CalibrationEvent{
		DeviceID: d.ID,
		Socket:   report.Socket,
		Values:   report.Values,
	})
	return nil
}

// PushConfig resolves the configuration of the device with mac and
// publishes it on the command topic, mirroring it to dashboards. Returns
// device.ErrDeviceNotFound for unknown or unconfigured devices.
func (r *Router) PushConfig(ctx context.Context, mac string) error {
	cfg, err := r.resolver.Resolve(ctx, mac)
	if err != nil {
		return err
	}

	var faults map[int]string
	for slot, fault := range cfg.Faults {
		r.logger.Warn("device slot references missing plant",
			"mac", mac,
			"slot", slot,
			"error", fault,
		)
		if faults == nil {
			faults = make(map[int]string, len(cfg.Faults))
		}
		faults[slot] = fault.Error()
	}

	id := cfg.DeviceID
	cmd := CommandMessage{Type: CommandConfig, MAC: cfg.MAC, ID: &id, Data: cfg.Slots}
	if err := r.publisher.PublishJSON(r.topics.Command(), cmd); err != nil {
		return fmt.Errorf("publishing config for %s: %w", mac, err)
	}

	r.broadcaster.Broadcast(EventConfig, ConfigEvent{
		DeviceID: cfg.DeviceID,
		MAC:      cfg.MAC,
		Config:   cfg.Slots,
		Faults:   faults,
	})

	r.logger.Info("pushed device config", "mac", mac, "slots", len(cfg.Slots))
	return nil
}
