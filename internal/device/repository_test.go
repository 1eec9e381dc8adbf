package device

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/leafbox/leafbox-core/internal/infrastructure/database"
	_ "github.com/leafbox/leafbox-core/migrations"
)

// setupTestDB creates an in-memory database with the full schema applied.
func setupTestDB(t *testing.T) *database.DB {
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
	return db
}

func int64Ptr(v int64) *int64    { return &v }
func stringPtr(s string) *string { return &s }

func TestSQLiteRepository_CreateAndGet(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t).DB)
	ctx := context.Background()

	d := &Device{MAC: "24:6F:28:AA:00:01"}
	if err := repo.Create(ctx, d); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if d.ID == 0 || d.Name != DefaultName {
		t.Errorf("Create() id=%d name=%q", d.ID, d.Name)
	}

	byMAC, err := repo.GetByMAC(ctx, "24:6F:28:AA:00:01")
	if err != nil {
		t.Fatalf("GetByMAC() error = %v", err)
	}
	if byMAC.ID != d.ID || byMAC.Configured || byMAC.Online {
		t.Errorf("GetByMAC() = %+v", byMAC)
	}
	for i := 0; i < SlotCount; i++ {
		if byMAC.Plants[i] != nil || byMAC.SensorConfigs[i] != nil {
			t.Errorf("slot %d not empty", i+1)
		}
	}

	if _, err := repo.GetByID(ctx, d.ID); err != nil {
		t.Errorf("GetByID() error = %v", err)
	}
	if _, err := repo.GetByMAC(ctx, "unknown"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("GetByMAC(unknown) error = %v, want ErrDeviceNotFound", err)
	}

	dup := &Device{MAC: "24:6F:28:AA:00:01"}
	if err := repo.Create(ctx, dup); !errors.Is(err, ErrDeviceExists) {
		t.Errorf("Create(duplicate) error = %v, want ErrDeviceExists", err)
	}
}

func TestSQLiteRepository_Configure(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t).DB)
	ctx := context.Background()

	d := &Device{MAC: "mac-1"}
	if err := repo.Create(ctx, d); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	a := Assignment{
		Name:          "Balcony",
		Location:      stringPtr("South window"),
		Plants:        [SlotCount]*int64{int64Ptr(3), nil, int64Ptr(5), nil},
		SensorConfigs: [SlotCount]*string{stringPtr("2900|1200"), nil, nil, nil},
	}
	got, err := repo.Configure(ctx, d.ID, a)
	if err != nil {
		t.Fatalf("Configure() error = %v", err)
	}
	if !got.Configured || got.Name != "Balcony" || *got.Location != "South window" {
		t.Errorf("Configure() = %+v", got)
	}
	if got.PlantAt(1) == nil || *got.PlantAt(1) != 3 || got.PlantAt(2) != nil || *got.PlantAt(3) != 5 {
		t.Errorf("plants = %v", got.Plants)
	}
	if got.SensorConfigs[0] == nil || *got.SensorConfigs[0] != "2900|1200" {
		t.Errorf("sensor_config_1 = %v", got.SensorConfigs[0])
	}
	if !got.HasPlant(5) || got.HasPlant(4) {
		t.Error("HasPlant() mismatch")
	}

	if _, err := repo.Configure(ctx, 999, a); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("Configure(missing) error = %v, want ErrDeviceNotFound", err)
	}
}

func TestSQLiteRepository_ListAndSearch(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t).DB)
	ctx := context.Background()

	for _, mac := range []string{"a", "b", "c"} {
		if err := repo.Create(ctx, &Device{MAC: mac}); err != nil {
			t.Fatalf("Create(%s) error = %v", mac, err)
		}
	}
	if _, err := repo.Configure(ctx, 2, Assignment{Name: "Kitchen_shelf", Plants: [SlotCount]*int64{nil, nil, nil, int64Ptr(9)}}); err != nil {
		t.Fatalf("Configure() error = %v", err)
	}

	tests := []struct {
		search string
		want   int
	}{
		{"", 3},
		{"kitchen", 1},
		{"_", 1},
		{"3", 1},
		{"New device", 2},
		{"missing", 0},
	}
	for _, tt := range tests {
		t.Run(tt.search, func(t *testing.T) {
			got, err := repo.List(ctx, tt.search)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("List(%q) = %d devices, want %d", tt.search, len(got), tt.want)
			}
		})
	}

	byPlant, err := repo.ListByPlant(ctx, 9)
	if err != nil {
		t.Fatalf("ListByPlant() error = %v", err)
	}
	if len(byPlant) != 1 || byPlant[0].ID != 2 {
		t.Errorf("ListByPlant() = %+v", byPlant)
	}

	n, err := repo.Count(ctx)
	if err != nil || n != 3 {
		t.Errorf("Count() = %d, %v", n, err)
	}
}

func TestSQLiteRepository_UpdateOnlineAndDelete(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t).DB)
	ctx := context.Background()

	d := &Device{MAC: "mac-online"}
	if err := repo.Create(ctx, d); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := repo.UpdateOnline(ctx, "mac-online", true); err != nil {
		t.Fatalf("UpdateOnline() error = %v", err)
	}
	got, _ := repo.GetByID(ctx, d.ID)
	if !got.Online {
		t.Error("Online = false after UpdateOnline(true)")
	}
	if err := repo.UpdateOnline(ctx, "nobody", true); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("UpdateOnline(unknown) error = %v", err)
	}

	if err := repo.Delete(ctx, d.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := repo.Delete(ctx, d.ID); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("Delete() twice error = %v", err)
	}
}

func TestSQLiteRepository_AppendTemperature(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db.DB)
	ctx := context.Background()

	at := time.Date(2026, 7, 4, 12, 0, 0, 0, time.UTC)
	rd, err := repo.AppendTemperature(ctx, 1, 21.75, at)
	if err != nil {
		t.Fatalf("AppendTemperature() error = %v", err)
	}
	if rd.ID == 0 || rd.Value != 21.75 || !rd.Timestamp.Equal(at) {
		t.Errorf("AppendTemperature() = %+v", rd)
	}

	var value float64
	if err := db.QueryRowContext(ctx, "SELECT temperature_value FROM temperature_readings WHERE reading_id = ?", rd.ID).Scan(&value); err != nil {
		t.Fatalf("query: %v", err)
	}
	if value != 21.75 {
		t.Errorf("stored value = %v", value)
	}
}

func TestDevice_MarshalJSON(t *testing.T) {
	d := Device{
		ID:            7,
		MAC:           "mac",
		Name:          "Desk",
		Plants:        [SlotCount]*int64{nil, int64Ptr(2), nil, nil},
		SensorConfigs: [SlotCount]*string{nil, stringPtr("3000|1100"), nil, nil},
		Configured:    true,
	}
	data, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if got["device_id"] != float64(7) || got["device_name"] != "Desk" {
		t.Errorf("identity keys = %v", got)
	}
	if got["plant_1"] != nil || got["plant_2"] != float64(2) || got["sensor_config_2"] != "3000|1100" {
		t.Errorf("slot keys = %v", got)
	}
}

func TestAssignment_UnmarshalAndValidate(t *testing.T) {
	body := `{"device_name":" Shelf ","plant_1":4,"sensor_config_1":"2800|1300","sensor_config_2":"  "}`

	var a Assignment
	if err := json.Unmarshal([]byte(body), &a); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if err := a.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if a.Name != "Shelf" || a.Plants[0] == nil || *a.Plants[0] != 4 {
		t.Errorf("assignment = %+v", a)
	}
	if a.SensorConfigs[1] != nil {
		t.Errorf("blank sensor_config_2 = %q, want nil", *a.SensorConfigs[1])
	}

	tests := []struct {
		name string
		body string
	}{
		{"missing name", `{"plant_1":1}`},
		{"bad calibration", `{"device_name":"x","sensor_config_3":"dry-wet"}`},
		{"non-positive plant", `{"device_name":"x","plant_2":0}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var a Assignment
			if err := json.Unmarshal([]byte(tt.body), &a); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if err := a.Validate(); !errors.Is(err, ErrInvalidDevice) {
				t.Errorf("Validate() error = %v, want ErrInvalidDevice", err)
			}
		})
	}
}

func TestParseCalibration(t *testing.T) {
	tests := []struct {
		in     string
		want   Calibration
		wantOK bool
	}{
		{"1496|1042", Calibration{Dry: 1496, Wet: 1042}, true},
		{" 3000 | 1200 ", Calibration{Dry: 3000, Wet: 1200}, true},
		{"1496", Calibration{}, false},
		{"a|b", Calibration{}, false},
		{"1|2|3", Calibration{}, false},
		{"", Calibration{}, false},
	}
	for _, tt := range tests {
		got, ok := ParseCalibration(tt.in)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("ParseCalibration(%q) = %+v, %v; want %+v, %v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
	if s := (Calibration{Dry: 10, Wet: 5}).String(); s != "10|5" {
		t.Errorf("String() = %q", s)
	}
}

func TestValidateMAC(t *testing.T) {
	for _, mac := range []string{"", "has space", "tab\tmac"} {
		if err := ValidateMAC(mac); !errors.Is(err, ErrInvalidDevice) {
			t.Errorf("ValidateMAC(%q) error = %v", mac, err)
		}
	}
	if err := ValidateMAC("24:6F:28:AA:00:01"); err != nil {
		t.Errorf("ValidateMAC(valid) error = %v", err)
	}
}
