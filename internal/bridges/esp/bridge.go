package esp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/leafbox/leafbox-core/internal/device"
	"github.com/leafbox/leafbox-core/internal/infrastructure/mqtt"
)

// handlerTimeout bounds the store calls made for one inbound message.
const handlerTimeout = 10 * time.Second

// Transport is the MQTT surface the bridge uses.
type Transport interface {
	Publisher
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// DeviceLister finds the devices affected by a plant edit.
type DeviceLister interface {
	ListByPlant(ctx context.Context, plantID int64) ([]device.Device, error)
}

// BridgeOptions holds configuration for creating a bridge.
type BridgeOptions struct {
	Router    *Router
	Transport Transport
	Devices   DeviceLister
	Topics    mqtt.Topics
	QoS       byte
	Logger    Logger
}

// Bridge owns the device subscription and the outbound command path.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	router    *Router
	transport Transport
	devices   DeviceLister
	topics    mqtt.Topics
	qos       byte
	logger    Logger

	// Bridge-level context, cancelled on Stop to abort in-flight handlers.
	ctx       context.Context
	ctxCancel context.CancelFunc
	stopOnce  sync.Once
}

// NewBridge creates a new bridge instance.
// Call Start() to begin operation.
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.Router == nil {
		return nil, fmt.Errorf("router is required")
	}
	if opts.Transport == nil {
		return nil, fmt.Errorf("MQTT transport is required")
	}
	if opts.Devices == nil {
		return nil, fmt.Errorf("device lister is required")
	}
	if opts.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	ctx, ctxCancel := context.WithCancel(context.Background())

	return &Bridge{
		router:    opts.Router,
		transport: opts.Transport,
		devices:   opts.Devices,
		topics:    opts.Topics,
		qos:       opts.QoS,
		logger:    opts.Logger,
		ctx:       ctx,
		ctxCancel: ctxCancel,
	}, nil
}

// Start subscribes to every topic under the device root.
func (b *Bridge) Start() error {
	topic := b.topics.All()
	if err := b.transport.Subscribe(topic, b.qos, b.handleMessage); err != nil {
		return fmt.Errorf("subscribe to devices: %w", err)
	}
	b.logger.Info("subscribed to device topics", "topic", topic)
	return nil
}

// Stop unsubscribes and cancels in-flight handlers. Safe to call twice.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.ctxCancel()
		if err := b.transport.Unsubscribe(b.topics.All()); err != nil {
			b.logger.Warn("unsubscribing from device topics", "error", err)
		}
		b.logger.Info("bridge stopped")
	})
}

func (b *Bridge) handleMessage(msg mqtt.Message) error {
	ctx, cancel := context.WithTimeout(b.ctx, handlerTimeout)
	defer cancel()
	return b.router.Handle(ctx, msg)
}

// PushConfig publishes a fresh configuration to the device with mac.
func (b *Bridge) PushConfig(ctx context.Context, mac string) error {
	return b.router.PushConfig(ctx, mac)
}

// OnDeviceConfigChanged pushes configuration after an operator edit of d.
func (b *Bridge) OnDeviceConfigChanged(ctx context.Context, d *device.Device) error {
	return b.PushConfig(ctx, d.MAC)
}

// OnPlantChanged pushes configuration to every configured device holding
// the plant in one of its slots. Failures for one device do not stop the
// others.
func (b *Bridge) OnPlantChanged(ctx context.Context, plantID int64) error {
	devices, err := b.devices.ListByPlant(ctx, plantID)
	if err != nil {
		return fmt.Errorf("listing devices for plant %d: %w", plantID, err)
	}

	var errs []error
	for i := range devices {
		d := &devices[i]
		if !d.Configured {
			continue
		}
		if err := b.PushConfig(ctx, d.MAC); err != nil {
			errs = append(errs, fmt.Errorf("device %s: %w", d.MAC, err))
		}
	}
	return errors.Join(errs...)
}

// ForwardCommand relays a dashboard command to the device command topic.
func (b *Bridge) ForwardCommand(cmd CommandMessage) error {
	if cmd.Type == "" || cmd.MAC == "" {
		return fmt.Errorf("%w: command requires type and mac", ErrMalformedPayload)
	}
	cmd.ID = nil
	if err := b.transport.PublishJSON(b.topics.Command(), cmd); err != nil {
		return fmt.Errorf("forwarding command %s to %s: %w", cmd.Type, cmd.MAC, err)
	}
	return nil
}

// ForwardCalibration asks a device to run a calibration step.
func (b *Bridge) ForwardCalibration(mac string, step CalibrationStep) error {
	if mac == "" {
		return fmt.Errorf("%w: calibration requires mac", ErrMalformedPayload)
	}
	req := CalibrationRequest{Type: CommandCalibration, MAC: mac, Data: step}
	if err := b.transport.PublishJSON(b.topics.Calibration(), req); err != nil {
		return fmt.Errorf("forwarding calibration to %s: %w", mac, err)
	}
	return nil
}
