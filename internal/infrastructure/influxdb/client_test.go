package influxdb

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/leafbox/leafbox-core/internal/infrastructure/config"
)

// testConfig matches the local dev InfluxDB container.
func testConfig() config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           "http://127.0.0.1:8086",
		Token:         "leafbox-dev-token",
		Org:           "leafbox",
		Bucket:        "readings",
		BatchSize:     100,
		FlushInterval: 1,
	}
}

func skipIfNoInfluxDB(t *testing.T) *Client {
	t.Helper()
	client, err := Connect(testConfig())
	if err != nil {
		t.Skip("InfluxDB not available, skipping integration test")
	}
	t.Cleanup(func() { client.Close() }) //nolint:errcheck // test cleanup
	return client
}

type recordingWriter struct {
	mu      sync.Mutex
	points  []*write.Point
	flushes int
}

func (w *recordingWriter) WritePoint(p *write.Point) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.points = append(w.points, p)
}

func (w *recordingWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.flushes++
}

func pointTags(p *write.Point) map[string]string {
	tags := make(map[string]string)
	for _, tag := range p.TagList() {
		tags[tag.Key] = tag.Value
	}
	return tags
}

func pointFields(p *write.Point) map[string]interface{} {
	fields := make(map[string]interface{})
	for _, f := range p.FieldList() {
		fields[f.Key] = f.Value
	}
	return fields
}

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false

	_, err := Connect(cfg)
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	cfg := testConfig()
	cfg.URL = "http://127.0.0.1:59999"

	_, err := Connect(cfg)
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestWriteMoisture(t *testing.T) {
	w := &recordingWriter{}
	c := &Client{writer: w, connected: true}
	at := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

	c.WriteMoisture(4, 1830, at)

	if len(w.points) != 1 {
		t.Fatalf("points = %d, want 1", len(w.points))
	}
	p := w.points[0]
	if p.Name() != MeasurementMoisture {
		t.Errorf("Name() = %q", p.Name())
	}
	if got := pointTags(p)["plant_id"]; got != "4" {
		t.Errorf("plant_id tag = %q, want 4", got)
	}
	if got := pointFields(p)["value"]; got != int64(1830) {
		t.Errorf("value field = %v (%T), want 1830", got, got)
	}
	if !p.Time().Equal(at) {
		t.Errorf("Time() = %v, want %v", p.Time(), at)
	}
}

func TestWriteTemperature(t *testing.T) {
	w := &recordingWriter{}
	c := &Client{writer: w, connected: true}

	c.WriteTemperature(2, 21.5, time.Now())

	if len(w.points) != 1 {
		t.Fatalf("points = %d, want 1", len(w.points))
	}
	p := w.points[0]
	if p.Name() != MeasurementTemperature || pointTags(p)["device_id"] != "2" {
		t.Errorf("point = %s %v", p.Name(), pointTags(p))
	}
	if got := pointFields(p)["value"]; got != 21.5 {
		t.Errorf("value field = %v, want 21.5", got)
	}
}

func TestWrites_SkippedWhenDisconnected(t *testing.T) {
	w := &recordingWriter{}
	c := &Client{writer: w}

	c.WriteMoisture(1, 100, time.Now())
	c.WriteTemperature(1, 20, time.Now())
	c.Flush()

	if len(w.points) != 0 || w.flushes != 0 {
		t.Errorf("points=%d flushes=%d, want none", len(w.points), w.flushes)
	}

	var nilClient *Client
	nilClient.WriteMoisture(1, 100, time.Now())
	if nilClient.IsConnected() {
		t.Error("nil client reports connected")
	}
	if err := nilClient.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v", err)
	}
}

func TestHandleWriteErrors(t *testing.T) {
	c := &Client{}
	got := make(chan error, 1)
	c.SetOnError(func(err error) { got <- err })

	errs := make(chan error, 1)
	errs <- errors.New("bucket not found")
	close(errs)
	c.handleWriteErrors(errs)

	select {
	case err := <-got:
		if !errors.Is(err, ErrWriteFailed) {
			t.Errorf("callback error = %v, want ErrWriteFailed", err)
		}
	default:
		t.Fatal("callback not invoked")
	}
}

func TestIntegration_HealthCheckAndWrite(t *testing.T) {
	client := skipIfNoInfluxDB(t)

	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck() error = %v", err)
	}

	client.WriteMoisture(1, 1500, time.Now())
	client.WriteTemperature(1, 19.25, time.Now())
	client.Flush()
}
