package plant

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/leafbox/leafbox-core/internal/infrastructure/database"
)

// Repository defines plant and moisture reading persistence.
type Repository interface {
	// List returns every plant with its latest reading. A non-empty search
	// matches name or species as a substring, or the plant ID exactly.
	List(ctx context.Context, search string) ([]Summary, error)

	// GetByID returns ErrPlantNotFound if the plant does not exist.
	GetByID(ctx context.Context, id int64) (*Plant, error)

	// GetDetail returns the plant, the device slots it occupies and its
	// latest limit readings, newest first.
	GetDetail(ctx context.Context, id int64, limit int) (*Detail, error)

	Create(ctx context.Context, p *Plant) error
	Update(ctx context.Context, p *Plant) error

	// Delete removes the plant and all of its readings atomically.
	Delete(ctx context.Context, id int64) error

	// AppendReading stores one moisture sample.
	AppendReading(ctx context.Context, plantID int64, value int, at time.Time) (*Reading, error)

	// LatestReadingTime returns nil when the plant has no readings.
	LatestReadingTime(ctx context.Context, plantID int64) (*time.Time, error)

	// RecentReadings returns the newest limit readings across all plants.
	RecentReadings(ctx context.Context, limit int) ([]Reading, error)

	// LatestUpdates returns the last reading time of each plant, most
	// recently updated first.
	LatestUpdates(ctx context.Context, limit int) ([]LastUpdate, error)

	// ImageNames returns the distinct image files referenced by plants.
	ImageNames(ctx context.Context) ([]string, error)

	Count(ctx context.Context) (int, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const plantColumns = `p.plant_id, p.plant_name, p.image, p.description, p.species, p.color,
	p.lower_threshold, p.upper_threshold, p.reading_delay, p.reading_delay_mult,
	p.watering_time, p.temperature_min, p.created_at, p.updated_at`

// List returns plants ordered by ID.
func (r *SQLiteRepository) List(ctx context.Context, search string) ([]Summary, error) {
	query := `
		SELECT ` + plantColumns + `, lr.moisture_value, lr.timestamp
		FROM plants p
		LEFT JOIN readings lr ON lr.reading_id = (
			SELECT reading_id FROM readings
			WHERE plant_id = p.plant_id
			ORDER BY timestamp DESC, reading_id DESC
			LIMIT 1
		)`

	var args []any
	if search = strings.TrimSpace(search); search != "" {
		pattern := database.LikePattern(search)
		query += `
		WHERE p.plant_name LIKE ? ESCAPE '\'
			OR p.species LIKE ? ESCAPE '\'
			OR CAST(p.plant_id AS TEXT) = ?`
		args = append(args, pattern, pattern, search)
	}
	query += " ORDER BY p.plant_id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying plants: %w", err)
	}
	defer rows.Close()

	summaries := make([]Summary, 0)
	for rows.Next() {
		var (
			moisture sql.NullInt64
			last     sql.NullString
		)
		p, err := scanPlant(rows, &moisture, &last)
		if err != nil {
			return nil, fmt.Errorf("scanning plant: %w", err)
		}
		s := Summary{Plant: *p}
		if moisture.Valid {
			v := int(moisture.Int64)
			s.MoistureValue = &v
		}
		if last.Valid {
			t, err := database.ParseTime(last.String)
			if err != nil {
				return nil, err
			}
			s.LastReading = &t
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating plants: %w", err)
	}
	return summaries, nil
}

// GetByID retrieves a plant by ID.
func (r *SQLiteRepository) GetByID(ctx context.Context, id int64) (*Plant, error) {
	query := `SELECT ` + plantColumns + ` FROM plants p WHERE p.plant_id = ?`

	p, err := scanPlant(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPlantNotFound
		}
		return nil, fmt.Errorf("querying plant: %w", err)
	}
	return p, nil
}

// GetDetail retrieves a plant with its placements and readings.
func (r *SQLiteRepository) GetDetail(ctx context.Context, id int64, limit int) (*Detail, error) {
	p, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	placements, err := r.placements(ctx, id)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT reading_id, plant_id, moisture_value, timestamp
		FROM readings
		WHERE plant_id = ?
		ORDER BY timestamp DESC, reading_id DESC
		LIMIT ?`, id, limit)
	if err != nil {
		return nil, fmt.Errorf("querying readings: %w", err)
	}
	defer rows.Close()

	readings := make([]Reading, 0)
	for rows.Next() {
		var (
			rd Reading
			ts string
		)
		if err := rows.Scan(&rd.ID, &rd.PlantID, &rd.MoistureValue, &ts); err != nil {
			return nil, fmt.Errorf("scanning reading: %w", err)
		}
		if rd.Timestamp, err = database.ParseTime(ts); err != nil {
			return nil, err
		}
		rd.PlantName = p.Name
		readings = append(readings, rd)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating readings: %w", err)
	}

	return &Detail{Plant: *p, Placements: placements, Readings: readings}, nil
}

// placements lists every device slot holding the plant.
func (r *SQLiteRepository) placements(ctx context.Context, id int64) ([]Placement, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT device_id, device_name, 1 AS slot FROM devices WHERE plant_1 = ?
		UNION ALL
		SELECT device_id, device_name, 2 FROM devices WHERE plant_2 = ?
		UNION ALL
		SELECT device_id, device_name, 3 FROM devices WHERE plant_3 = ?
		UNION ALL
		SELECT device_id, device_name, 4 FROM devices WHERE plant_4 = ?
		ORDER BY device_id, slot`, id, id, id, id)
	if err != nil {
		return nil, fmt.Errorf("querying placements: %w", err)
	}
	defer rows.Close()

	placements := make([]Placement, 0)
	for rows.Next() {
		var pl Placement
		if err := rows.Scan(&pl.DeviceID, &pl.DeviceName, &pl.Slot); err != nil {
			return nil, fmt.Errorf("scanning placement: %w", err)
		}
		placements = append(placements, pl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating placements: %w", err)
	}
	return placements, nil
}

// Create inserts a plant and sets its generated ID.
func (r *SQLiteRepository) Create(ctx context.Context, p *Plant) error {
	now := time.Now().UTC().Truncate(time.Millisecond)
	p.CreatedAt = now
	p.UpdatedAt = now

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO plants (
			plant_name, image, description, species, color,
			lower_threshold, upper_threshold, reading_delay, reading_delay_mult,
			watering_time, temperature_min, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Name, nullableString(p.Image), nullableString(p.Description), nullableString(p.Species), p.Color,
		p.LowerThreshold, p.UpperThreshold, p.ReadingDelay, p.ReadingDelayMult,
		p.WateringTime, nullableInt(p.TemperatureMin),
		database.FormatTime(p.CreatedAt), database.FormatTime(p.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting plant: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading plant id: %w", err)
	}
	p.ID = id
	return nil
}

// Update overwrites every editable field of an existing plant.
func (r *SQLiteRepository) Update(ctx context.Context, p *Plant) error {
	p.UpdatedAt = time.Now().UTC().Truncate(time.Millisecond)

	res, err := r.db.ExecContext(ctx, `
		UPDATE plants SET
			plant_name = ?, image = ?, description = ?, species = ?, color = ?,
			lower_threshold = ?, upper_threshold = ?, reading_delay = ?, reading_delay_mult = ?,
			watering_time = ?, temperature_min = ?, updated_at = ?
		WHERE plant_id = ?`,
		p.Name, nullableString(p.Image), nullableString(p.Description), nullableString(p.Species), p.Color,
		p.LowerThreshold, p.UpperThreshold, p.ReadingDelay, p.ReadingDelayMult,
		p.WateringTime, nullableInt(p.TemperatureMin), database.FormatTime(p.UpdatedAt),
		p.ID,
	)
	if err != nil {
		return fmt.Errorf("updating plant: %w", err)
	}
	return requireAffected(res)
}

// Delete removes the plant's readings and then the plant in one transaction.
// Device slots that still reference the plant are left for the config
// resolver to report.
func (r *SQLiteRepository) Delete(ctx context.Context, id int64) error {
	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM readings WHERE plant_id = ?", id); err != nil {
			return fmt.Errorf("deleting readings: %w", err)
		}
		res, err := tx.ExecContext(ctx, "DELETE FROM plants WHERE plant_id = ?", id)
		if err != nil {
			return fmt.Errorf("deleting plant: %w", err)
		}
		return requireAffected(res)
	})
}

// AppendReading stores a moisture sample taken at the given time.
func (r *SQLiteRepository) AppendReading(ctx context.Context, plantID int64, value int, at time.Time) (*Reading, error) {
	at = at.UTC().Truncate(time.Millisecond)
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO readings (plant_id, moisture_value, timestamp) VALUES (?, ?, ?)",
		plantID, value, database.FormatTime(at),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting reading: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading reading id: %w", err)
	}
	return &Reading{ID: id, PlantID: plantID, MoistureValue: value, Timestamp: at}, nil
}

// LatestReadingTime returns the timestamp of the plant's newest reading.
func (r *SQLiteRepository) LatestReadingTime(ctx context.Context, plantID int64) (*time.Time, error) {
	var last sql.NullString
	err := r.db.QueryRowContext(ctx,
		"SELECT MAX(timestamp) FROM readings WHERE plant_id = ?", plantID,
	).Scan(&last)
	if err != nil {
		return nil, fmt.Errorf("querying latest reading: %w", err)
	}
	if !last.Valid {
		return nil, nil
	}
	t, err := database.ParseTime(last.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// RecentReadings returns the newest readings joined with their plant name.
func (r *SQLiteRepository) RecentReadings(ctx context.Context, limit int) ([]Reading, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT r.reading_id, r.plant_id, p.plant_name, r.moisture_value, r.timestamp
		FROM readings r
		JOIN plants p ON p.plant_id = r.plant_id
		ORDER BY r.timestamp DESC, r.reading_id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying readings: %w", err)
	}
	defer rows.Close()

	readings := make([]Reading, 0)
	for rows.Next() {
		var (
			rd Reading
			ts string
		)
		if err := rows.Scan(&rd.ID, &rd.PlantID, &rd.PlantName, &rd.MoistureValue, &ts); err != nil {
			return nil, fmt.Errorf("scanning reading: %w", err)
		}
		if rd.Timestamp, err = database.ParseTime(ts); err != nil {
			return nil, err
		}
		readings = append(readings, rd)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating readings: %w", err)
	}
	return readings, nil
}

// LatestUpdates returns one row per plant that has readings.
func (r *SQLiteRepository) LatestUpdates(ctx context.Context, limit int) ([]LastUpdate, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT p.plant_id, p.plant_name, MAX(r.timestamp) AS last_reading
		FROM readings r
		JOIN plants p ON p.plant_id = r.plant_id
		GROUP BY p.plant_id, p.plant_name
		ORDER BY last_reading DESC, p.plant_id
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying plant updates: %w", err)
	}
	defer rows.Close()

	updates := make([]LastUpdate, 0)
	for rows.Next() {
		var (
			u  LastUpdate
			ts string
		)
		if err := rows.Scan(&u.PlantID, &u.PlantName, &ts); err != nil {
			return nil, fmt.Errorf("scanning plant update: %w", err)
		}
		if u.LastReading, err = database.ParseTime(ts); err != nil {
			return nil, err
		}
		updates = append(updates, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating plant updates: %w", err)
	}
	return updates, nil
}

// ImageNames lists image file names in use, skipping empty values.
func (r *SQLiteRepository) ImageNames(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT image FROM plants
		WHERE image IS NOT NULL AND image <> ''
		ORDER BY image`)
	if err != nil {
		return nil, fmt.Errorf("querying plant images: %w", err)
	}
	defer rows.Close()

	names := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning plant image: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating plant images: %w", err)
	}
	return names, nil
}

// Count returns the number of plants.
func (r *SQLiteRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM plants").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting plants: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanPlant scans a row selected with plantColumns. Extra destinations
// for trailing columns are scanned in the same call.
func scanPlant(row rowScanner, extra ...any) (*Plant, error) {
	var (
		p                           Plant
		image, description, species sql.NullString
		temperatureMin              sql.NullInt64
		createdAt, updatedAt        string
	)
	dest := []any{
		&p.ID, &p.Name, &image, &description, &species, &p.Color,
		&p.LowerThreshold, &p.UpperThreshold, &p.ReadingDelay, &p.ReadingDelayMult,
		&p.WateringTime, &temperatureMin, &createdAt, &updatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	p.Image = stringPtr(image)
	p.Description = stringPtr(description)
	p.Species = stringPtr(species)
	if temperatureMin.Valid {
		v := int(temperatureMin.Int64)
		p.TemperatureMin = &v
	}

	var err error
	if p.CreatedAt, err = database.ParseTime(createdAt); err != nil {
		return nil, err
	}
	if p.UpdatedAt, err = database.ParseTime(updatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrPlantNotFound
	}
	return nil
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func nullableString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullableInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}
