package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/leafbox/leafbox-core/internal/infrastructure/database"
)

// Repository defines the interface for device persistence operations.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// GetByID retrieves a device by its identifier.
	// Returns ErrDeviceNotFound if the device does not exist.
	GetByID(ctx context.Context, id int64) (*Device, error)

	// GetByMAC retrieves a device by MAC address.
	// Returns ErrDeviceNotFound if the device does not exist.
	GetByMAC(ctx context.Context, mac string) (*Device, error)

	// List retrieves all devices. A non-empty search matches the name as a
	// substring or the ID exactly.
	List(ctx context.Context, search string) ([]Device, error)

	// ListByPlant retrieves devices with plantID in any slot.
	ListByPlant(ctx context.Context, plantID int64) ([]Device, error)

	// Create inserts a new device.
	// Returns ErrDeviceExists if the MAC is already registered.
	Create(ctx context.Context, device *Device) error

	// Configure applies an operator assignment and marks the device
	// configured. Returns ErrDeviceNotFound if the device does not exist.
	Configure(ctx context.Context, id int64, a Assignment) (*Device, error)

	// UpdateOnline records the presence reported by the device.
	UpdateOnline(ctx context.Context, mac string, online bool) error

	// Delete removes a device by ID. Readings are kept.
	Delete(ctx context.Context, id int64) error

	// AppendTemperature stores one temperature sample.
	AppendTemperature(ctx context.Context, deviceID int64, value float64, at time.Time) (*TemperatureReading, error)

	Count(ctx context.Context) (int, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const deviceColumns = `device_id, mac, device_name, location,
	plant_1, plant_2, plant_3, plant_4,
	sensor_config_1, sensor_config_2, sensor_config_3, sensor_config_4,
	online, configured, created_at, updated_at`

// GetByID retrieves a device by its identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id int64) (*Device, error) {
	return r.getOne(ctx, "device_id = ?", id)
}

// GetByMAC retrieves a device by MAC address.
func (r *SQLiteRepository) GetByMAC(ctx context.Context, mac string) (*Device, error) {
	return r.getOne(ctx, "mac = ?", mac)
}

func (r *SQLiteRepository) getOne(ctx context.Context, where string, arg any) (*Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE ` + where

	device, err := scanDevice(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device: %w", err)
	}
	return device, nil
}

// List retrieves devices ordered by ID.
func (r *SQLiteRepository) List(ctx context.Context, search string) ([]Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices`

	var args []any
	if search = strings.TrimSpace(search); search != "" {
		query += ` WHERE device_name LIKE ? ESCAPE '\' OR CAST(device_id AS TEXT) = ?`
		args = append(args, database.LikePattern(search), search)
	}
	query += " ORDER BY device_id"

	return r.queryDevices(ctx, query, args...)
}

// ListByPlant retrieves devices with the plant in any slot.
func (r *SQLiteRepository) ListByPlant(ctx context.Context, plantID int64) ([]Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices
		WHERE plant_1 = ? OR plant_2 = ? OR plant_3 = ? OR plant_4 = ?
		ORDER BY device_id`
	return r.queryDevices(ctx, query, plantID, plantID, plantID, plantID)
}

func (r *SQLiteRepository) queryDevices(ctx context.Context, query string, args ...any) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	devices := make([]Device, 0)
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		devices = append(devices, *device)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return devices, nil
}

// Create inserts a new device and sets its generated ID.
func (r *SQLiteRepository) Create(ctx context.Context, device *Device) error {
	if device.Name == "" {
		device.Name = DefaultName
	}

	// Set timestamps if not set
	now := time.Now().UTC().Truncate(time.Millisecond)
	if device.CreatedAt.IsZero() {
		device.CreatedAt = now
	}
	device.UpdatedAt = now

	query := `
		INSERT INTO devices (
			mac, device_name, location,
			plant_1, plant_2, plant_3, plant_4,
			sensor_config_1, sensor_config_2, sensor_config_3, sensor_config_4,
			online, configured, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	args := []any{device.MAC, device.Name, nullableString(device.Location)}
	args = append(args, slotArgs(device.Plants, device.SensorConfigs)...)
	args = append(args,
		boolToInt(device.Online), boolToInt(device.Configured),
		database.FormatTime(device.CreatedAt), database.FormatTime(device.UpdatedAt),
	)

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return ErrDeviceExists
		}
		return fmt.Errorf("inserting device: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading device id: %w", err)
	}
	device.ID = id
	return nil
}

// Configure applies an assignment and returns the updated device.
func (r *SQLiteRepository) Configure(ctx context.Context, id int64, a Assignment) (*Device, error) {
	query := `
		UPDATE devices SET
			device_name = ?, location = ?,
			plant_1 = ?, plant_2 = ?, plant_3 = ?, plant_4 = ?,
			sensor_config_1 = ?, sensor_config_2 = ?, sensor_config_3 = ?, sensor_config_4 = ?,
			configured = 1, updated_at = ?
		WHERE device_id = ?`

	args := []any{a.Name, nullableString(a.Location)}
	args = append(args, slotArgs(a.Plants, a.SensorConfigs)...)
	args = append(args, database.FormatTime(time.Now()), id)

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("configuring device: %w", err)
	}
	if err := requireAffected(res); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

// UpdateOnline sets the online flag of the device with the given MAC.
func (r *SQLiteRepository) UpdateOnline(ctx context.Context, mac string, online bool) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE devices SET online = ?, updated_at = ? WHERE mac = ?",
		boolToInt(online), database.FormatTime(time.Now()), mac,
	)
	if err != nil {
		return fmt.Errorf("updating online state: %w", err)
	}
	return requireAffected(res)
}

// Delete removes a device by ID.
func (r *SQLiteRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM devices WHERE device_id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting device: %w", err)
	}
	return requireAffected(res)
}

// AppendTemperature stores a temperature sample taken at the given time.
func (r *SQLiteRepository) AppendTemperature(ctx context.Context, deviceID int64, value float64, at time.Time) (*TemperatureReading, error) {
	at = at.UTC().Truncate(time.Millisecond)
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO temperature_readings (device_id, temperature_value, timestamp) VALUES (?, ?, ?)",
		deviceID, value, database.FormatTime(at),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting temperature reading: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading temperature reading id: %w", err)
	}
	return &TemperatureReading{ID: id, DeviceID: deviceID, Value: value, Timestamp: at}, nil
}

// Count returns the number of devices.
func (r *SQLiteRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM devices").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting devices: %w", err)
	}
	return n, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanDevice scans a row selected with deviceColumns.
func scanDevice(row rowScanner) (*Device, error) {
	var (
		d                    Device
		location             sql.NullString
		plants               [SlotCount]sql.NullInt64
		configs              [SlotCount]sql.NullString
		online, configured   int
		createdAt, updatedAt string
	)

	err := row.Scan(
		&d.ID, &d.MAC, &d.Name, &location,
		&plants[0], &plants[1], &plants[2], &plants[3],
		&configs[0], &configs[1], &configs[2], &configs[3],
		&online, &configured, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if location.Valid {
		d.Location = &location.String
	}
	for i := 0; i < SlotCount; i++ {
		if plants[i].Valid {
			id := plants[i].Int64
			d.Plants[i] = &id
		}
		if configs[i].Valid {
			s := configs[i].String
			d.SensorConfigs[i] = &s
		}
	}
	d.Online = online != 0
	d.Configured = configured != 0

	if d.CreatedAt, err = database.ParseTime(createdAt); err != nil {
		return nil, err
	}
	if d.UpdatedAt, err = database.ParseTime(updatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}

// slotArgs flattens the slot arrays into plant_1..4, sensor_config_1..4
// parameters.
func slotArgs(plants [SlotCount]*int64, configs [SlotCount]*string) []any {
	args := make([]any, 0, 2*SlotCount)
	for _, p := range plants {
		if p == nil {
			args = append(args, sql.NullInt64{})
			continue
		}
		args = append(args, sql.NullInt64{Int64: *p, Valid: true})
	}
	for _, c := range configs {
		args = append(args, nullableString(c))
	}
	return args
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// nullableString returns a sql.NullString for optional string pointers.
func nullableString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// boolToInt converts a boolean to 0/1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
