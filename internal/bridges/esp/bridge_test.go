package esp

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"testing"

	"github.com/leafbox/leafbox-core/internal/device"
	"github.com/leafbox/leafbox-core/internal/infrastructure/database"
	"github.com/leafbox/leafbox-core/internal/infrastructure/logging"
	"github.com/leafbox/leafbox-core/internal/infrastructure/mqtt"
	"github.com/leafbox/leafbox-core/internal/plant"
	_ "github.com/leafbox/leafbox-core/migrations"
)

// fakeTransport records subscriptions and publishes in memory.
type fakeTransport struct {
	recordingPublisher

	mu           sync.Mutex
	handlers     map[string]mqtt.MessageHandler
	unsubscribed []string
	subErr       error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{handlers: make(map[string]mqtt.MessageHandler)}
}

func (f *fakeTransport) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subErr != nil {
		return f.subErr
	}
	f.handlers[topic] = handler
	return nil
}

func (f *fakeTransport) Unsubscribe(topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handlers, topic)
	f.unsubscribed = append(f.unsubscribed, topic)
	return nil
}

// deliver hands a message to the handler registered for the wildcard.
func (f *fakeTransport) deliver(t *testing.T, topic, payload string) error {
	t.Helper()
	f.mu.Lock()
	h, ok := f.handlers["esp/#"]
	f.mu.Unlock()
	if !ok {
		t.Fatal("no subscription on esp/#")
	}
	return h(mqtt.Message{Topic: topic, Payload: []byte(payload)})
}

type fakeLister struct {
	devices []device.Device
	err     error
}

func (f *fakeLister) ListByPlant(_ context.Context, plantID int64) ([]device.Device, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []device.Device
	for _, d := range f.devices {
		if d.HasPlant(plantID) {
			out = append(out, d)
		}
	}
	return out, nil
}

func newTestBridge(t *testing.T, f *routerFixture, transport *fakeTransport, lister DeviceLister) *Bridge {
	t.Helper()
	b, err := NewBridge(BridgeOptions{
		Router:    f.router,
		Transport: transport,
		Devices:   lister,
		Topics:    mqtt.NewTopics("esp"),
		QoS:       1,
		Logger:    logging.Discard(),
	})
	if err != nil {
		t.Fatalf("NewBridge() error = %v", err)
	}
	return b
}

func TestBridge_StartStop(t *testing.T) {
	f := newRouterFixture(t)
	transport := newFakeTransport()
	b := newTestBridge(t, f, transport, &fakeLister{})

	if err := b.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := transport.deliver(t, "esp/42/moisture", "700"); err != nil {
		t.Fatalf("deliver error = %v", err)
	}
	if len(f.plants.readings) != 1 {
		t.Errorf("readings = %d, want 1", len(f.plants.readings))
	}

	b.Stop()
	b.Stop()
	if len(transport.unsubscribed) != 1 || transport.unsubscribed[0] != "esp/#" {
		t.Errorf("unsubscribed = %v, want one esp/#", transport.unsubscribed)
	}
}

func TestBridge_StartSubscribeFailure(t *testing.T) {
	f := newRouterFixture(t)
	transport := newFakeTransport()
	transport.subErr = mqtt.ErrNotConnected
	b := newTestBridge(t, f, transport, &fakeLister{})

	if err := b.Start(); !errors.Is(err, mqtt.ErrNotConnected) {
		t.Errorf("Start() error = %v, want ErrNotConnected", err)
	}
}

func TestBridge_HandlerCancelledAfterStop(t *testing.T) {
	f := newRouterFixture(t)
	transport := newFakeTransport()
	b := newTestBridge(t, f, transport, &fakeLister{})
	if err := b.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	handler := transport.handlers["esp/#"]
	b.Stop()

	// The fakes ignore ctx, so the message still lands; the point is that
	// a late delivery after Stop does not panic.
	if err := handler(mqtt.Message{Topic: "esp/42/moisture", Payload: []byte("1")}); err != nil {
		t.Errorf("late delivery error = %v", err)
	}
}

func TestBridge_ForwardCommand(t *testing.T) {
	f := newRouterFixture(t)
	transport := newFakeTransport()
	b := newTestBridge(t, f, transport, &fakeLister{})

	id := int64(99)
	err := b.ForwardCommand(CommandMessage{Type: "water", MAC: "m1", ID: &id, Data: map[string]int{"socket": 2}})
	if err != nil {
		t.Fatalf("ForwardCommand() error = %v", err)
	}
	if len(transport.msgs) != 1 || transport.msgs[0].topic != "esp/device/command" {
		t.Fatalf("published = %+v", transport.msgs)
	}
	if got := string(transport.msgs[0].payload); got != `{"type":"water","mac":"m1","data":{"socket":2}}` {
		t.Errorf("payload = %s", got)
	}

	if err := b.ForwardCommand(CommandMessage{MAC: "m1"}); !errors.Is(err, ErrMalformedPayload) {
		t.Errorf("missing type error = %v", err)
	}
	if err := b.ForwardCommand(CommandMessage{Type: "water"}); !errors.Is(err, ErrMalformedPayload) {
		t.Errorf("missing mac error = %v", err)
	}
	if len(transport.msgs) != 1 {
		t.Error("invalid commands were published")
	}
}

func TestBridge_ForwardCalibration(t *testing.T) {
	f := newRouterFixture(t)
	transport := newFakeTransport()
	b := newTestBridge(t, f, transport, &fakeLister{})

	step := CalibrationStep{Step: json.RawMessage(`1`), Plant: json.RawMessage(`3`)}
	if err := b.ForwardCalibration("m1", step); err != nil {
		t.Fatalf("ForwardCalibration() error = %v", err)
	}
	if len(transport.msgs) != 1 || transport.msgs[0].topic != "esp/device/calibration" {
		t.Fatalf("published = %+v", transport.msgs)
	}
	want := `{"type":"calibration","mac":"m1","data":{"step":1,"plant":3}}`
	if got := string(transport.msgs[0].payload); got != want {
		t.Errorf("payload = %s, want %s", got, want)
	}

	// The echo of our own request must not reach dashboards.
	if err := b.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := transport.deliver(t, "esp/device/calibration", want); err != nil {
		t.Errorf("echo error = %v", err)
	}
	if len(f.broadcaster.events) != 0 {
		t.Error("echo was broadcast")
	}

	if err := b.ForwardCalibration("", step); !errors.Is(err, ErrMalformedPayload) {
		t.Errorf("missing mac error = %v", err)
	}
}

func TestBridge_OnPlantChanged(t *testing.T) {
	f := newRouterFixture(t)
	transport := newFakeTransport()
	// The router publishes through the fixture publisher; share it.
	f.router.publisher = transport

	seven := int64(7)
	lister := &fakeLister{devices: []device.Device{
		{ID: 1, MAC: "a", Configured: true, Plants: [device.SlotCount]*int64{&seven}},
		{ID: 2, MAC: "b", Configured: false, Plants: [device.SlotCount]*int64{&seven}},
		{ID: 3, MAC: "c", Configured: true},
		{ID: 4, MAC: "d", Configured: true, Plants: [device.SlotCount]*int64{nil, nil, nil, &seven}},
	}}
	f.resolver.configs["a"] = &device.Configuration{DeviceID: 1, MAC: "a", Slots: map[int]device.SlotConfig{}}
	// "d" has no resolvable config, so its push fails.
	b := newTestBridge(t, f, transport, lister)

	err := b.OnPlantChanged(context.Background(), 7)
	if !errors.Is(err, device.ErrDeviceNotFound) {
		t.Errorf("OnPlantChanged() error = %v, want the failure for device d", err)
	}
	if len(transport.msgs) != 1 {
		t.Fatalf("published = %d, want 1 (only configured device a succeeds)", len(transport.msgs))
	}
	if f.resolver.calls != 2 {
		t.Errorf("resolver calls = %d, want 2 (a and d)", f.resolver.calls)
	}

	lister.err = errors.New("boom")
	if err := b.OnPlantChanged(context.Background(), 7); err == nil {
		t.Error("OnPlantChanged() should surface lister failure")
	}
}

// setupStores opens an in-memory database and returns the real repositories.
func setupStores(t *testing.T) (*device.SQLiteRepository, *plant.SQLiteRepository) {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, database.Config{Path: ":memory:", BusyTimeout: 1})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return device.NewSQLiteRepository(db.DB), plant.NewSQLiteRepository(db.DB)
}

func TestBridge_PlantEditReachesDevice(t *testing.T) {
	devices, plants := setupStores(t)
	ctx := context.Background()

	p := &plant.Plant{Name: "Basil", LowerThreshold: 30, UpperThreshold: 80}
	p.ApplyDefaults()
	if err := plants.Create(ctx, p); err != nil {
		t.Fatalf("plant Create() error = %v", err)
	}
	d := &device.Device{MAC: "AA:BB:CC"}
	if err := devices.Create(ctx, d); err != nil {
		t.Fatalf("device Create() error = %v", err)
	}
	cal := "2900|1300"
	if _, err := devices.Configure(ctx, d.ID, device.Assignment{
		Name:          "Kitchen",
		Plants:        [device.SlotCount]*int64{nil, &p.ID, nil, nil},
		SensorConfigs: [device.SlotCount]*string{nil, &cal, nil, nil},
	}); err != nil {
		t.Fatalf("Configure() error = %v", err)
	}

	transport := newFakeTransport()
	broadcaster := &recordingBroadcaster{}
	router, err := NewRouter(RouterOptions{
		Topics:      mqtt.NewTopics("esp"),
		Devices:     devices,
		Plants:      plants,
		Resolver:    device.NewResolver(devices, plants),
		Broadcaster: broadcaster,
		Publisher:   transport,
		Logger:      logging.Discard(),
	})
	if err != nil {
		t.Fatalf("NewRouter() error = %v", err)
	}
	b, err := NewBridge(BridgeOptions{
		Router:    router,
		Transport: transport,
		Devices:   devices,
		Topics:    mqtt.NewTopics("esp"),
		Logger:    logging.Discard(),
	})
	if err != nil {
		t.Fatalf("NewBridge() error = %v", err)
	}
	if err := b.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer b.Stop()

	// A reading arrives, then the operator tightens the thresholds.
	if err := transport.deliver(t, "esp/"+strconv.FormatInt(p.ID, 10)+"/moisture", "1500"); err != nil {
		t.Fatalf("moisture delivery error = %v", err)
	}
	p.LowerThreshold, p.UpperThreshold = 40, 70
	if err := plants.Update(ctx, p); err != nil {
		t.Fatalf("plant Update() error = %v", err)
	}
	if err := b.OnPlantChanged(ctx, p.ID); err != nil {
		t.Fatalf("OnPlantChanged() error = %v", err)
	}

	if len(transport.msgs) != 1 {
		t.Fatalf("published = %d, want 1", len(transport.msgs))
	}
	var cmd struct {
		Type string                    `json:"type"`
		MAC  string                    `json:"mac"`
		ID   int64                     `json:"id"`
		Data map[string]map[string]any `json:"data"`
	}
	if err := json.Unmarshal(transport.msgs[0].payload, &cmd); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if cmd.Type != "config" || cmd.MAC != "AA:BB:CC" || cmd.ID != d.ID {
		t.Errorf("command = %+v", cmd)
	}
	slot, ok := cmd.Data["2"]
	if !ok || len(cmd.Data) != 1 {
		t.Fatalf("data = %v, want only slot \"2\"", cmd.Data)
	}
	if slot["lowerTreshold"] != float64(40) || slot["upperTreshold"] != float64(70) {
		t.Errorf("thresholds = %v/%v, want 40/70", slot["lowerTreshold"], slot["upperTreshold"])
	}
	if slot["moistureMin"] != float64(2900) || slot["moistureMax"] != float64(1300) {
		t.Errorf("calibration = %v/%v", slot["moistureMin"], slot["moistureMax"])
	}
	if slot["lastReading"] == nil {
		t.Error("lastReading should carry the stored reading time")
	}

	// Moisture broadcast plus config broadcast.
	if len(broadcaster.events) != 2 || broadcaster.events[1].topic != EventConfig {
		t.Errorf("events = %+v", broadcaster.events)
	}

	// Deleting the plant pushes a config without its slot.
	if err := plants.Delete(ctx, p.ID); err != nil {
		t.Fatalf("plant Delete() error = %v", err)
	}
	if err := b.OnPlantChanged(ctx, p.ID); err != nil {
		t.Fatalf("OnPlantChanged() after delete error = %v", err)
	}
	if len(transport.msgs) != 2 {
		t.Fatalf("published = %d, want 2", len(transport.msgs))
	}
	var after struct {
		Data map[string]map[string]any `json:"data"`
	}
	if err := json.Unmarshal(transport.msgs[1].payload, &after); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if len(after.Data) != 0 {
		t.Errorf("data after delete = %v, want no slots", after.Data)
	}
}
