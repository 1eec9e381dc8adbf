package plant

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/leafbox/leafbox-core/internal/infrastructure/database"
)

const (
	maxLatinNameLength = 200
	maxSearchLength    = 100
	maxRating          = 5

	// lookupLimit caps the rows returned by one reference search.
	lookupLimit = 100
)

// Info is a reference record describing the growing conditions of a
// species. Ratings run from 0 to 5.
type Info struct {
	ID             int64    `json:"info_id"`
	LatinName      string   `json:"latin_name"`
	CommonName     *string  `json:"common_name"`
	USDA           *string  `json:"usda"`
	Hazards        *string  `json:"hazards"`
	Edibility      *int     `json:"edibility"`
	Medicinal      *int     `json:"medicinal"`
	Moisture       *string  `json:"moisture"`
	Sun            *string  `json:"sun"`
	TemperatureMin *float64 `json:"temperature_min"`
	EdibleParts    *string  `json:"edible_parts"`
}

// Validate checks a reference record before it is stored.
func (i *Info) Validate() error {
	i.LatinName = strings.TrimSpace(i.LatinName)
	if i.LatinName == "" {
		return fmt.Errorf("%w: latin_name is required", ErrInvalidInfo)
	}
	if len(i.LatinName) > maxLatinNameLength {
		return fmt.Errorf("%w: latin_name exceeds %d characters", ErrInvalidInfo, maxLatinNameLength)
	}
	if !validRating(i.Edibility) {
		return fmt.Errorf("%w: edibility must be between 0 and %d", ErrInvalidInfo, maxRating)
	}
	if !validRating(i.Medicinal) {
		return fmt.Errorf("%w: medicinal must be between 0 and %d", ErrInvalidInfo, maxRating)
	}
	return nil
}

// InfoRepository stores and searches plant reference data.
type InfoRepository interface {
	// Lookup matches search as a substring of the latin name, common name
	// or edible parts. Returns ErrInvalidSearch for an empty term.
	Lookup(ctx context.Context, search string) ([]Info, error)

	// Add inserts a record unless one with the same latin name exists.
	// Reports whether a row was inserted.
	Add(ctx context.Context, info *Info) (bool, error)
}

// SQLiteInfoRepository implements InfoRepository using SQLite.
type SQLiteInfoRepository struct {
	db *sql.DB
}

// NewInfoRepository creates a SQLite-backed reference data repository.
func NewInfoRepository(db *sql.DB) *SQLiteInfoRepository {
	return &SQLiteInfoRepository{db: db}
}

// Lookup returns matches ordered by latin name.
func (r *SQLiteInfoRepository) Lookup(ctx context.Context, search string) ([]Info, error) {
	search = strings.TrimSpace(search)
	if search == "" {
		return nil, fmt.Errorf("%w: search term is required", ErrInvalidSearch)
	}
	if len(search) > maxSearchLength {
		return nil, fmt.Errorf("%w: search exceeds %d characters", ErrInvalidSearch, maxSearchLength)
	}

	pattern := database.LikePattern(search)
	rows, err := r.db.QueryContext(ctx, `
		SELECT info_id, latin_name, common_name, usda, hazards, edibility,
			medicinal, moisture, sun, temperature_min, edible_parts
		FROM plant_info
		WHERE latin_name LIKE ? ESCAPE '\'
			OR common_name LIKE ? ESCAPE '\'
			OR edible_parts LIKE ? ESCAPE '\'
		ORDER BY latin_name
		LIMIT ?`, pattern, pattern, pattern, lookupLimit)
	if err != nil {
		return nil, fmt.Errorf("querying plant info: %w", err)
	}
	defer rows.Close()

	results := make([]Info, 0)
	for rows.Next() {
		var (
			info                       Info
			common, usda, hazards      sql.NullString
			moisture, sun, edibleParts sql.NullString
			edibility, medicinal       sql.NullInt64
			temperatureMin             sql.NullFloat64
		)
		if err := rows.Scan(&info.ID, &info.LatinName, &common, &usda, &hazards, &edibility,
			&medicinal, &moisture, &sun, &temperatureMin, &edibleParts); err != nil {
			return nil, fmt.Errorf("scanning plant info: %w", err)
		}
		info.CommonName = stringPtr(common)
		info.USDA = stringPtr(usda)
		info.Hazards = stringPtr(hazards)
		info.Moisture = stringPtr(moisture)
		info.Sun = stringPtr(sun)
		info.EdibleParts = stringPtr(edibleParts)
		info.Edibility = intPtr(edibility)
		info.Medicinal = intPtr(medicinal)
		if temperatureMin.Valid {
			v := temperatureMin.Float64
			info.TemperatureMin = &v
		}
		results = append(results, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating plant info: %w", err)
	}
	return results, nil
}

// Add validates and inserts info, setting its ID when a row is written.
func (r *SQLiteInfoRepository) Add(ctx context.Context, info *Info) (bool, error) {
	if err := info.Validate(); err != nil {
		return false, err
	}

	var temperatureMin sql.NullFloat64
	if info.TemperatureMin != nil {
		temperatureMin = sql.NullFloat64{Float64: *info.TemperatureMin, Valid: true}
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO plant_info (
			latin_name, common_name, usda, hazards, edibility,
			medicinal, moisture, sun, temperature_min, edible_parts
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		info.LatinName, nullableString(info.CommonName), nullableString(info.USDA),
		nullableString(info.Hazards), nullableInt(info.Edibility), nullableInt(info.Medicinal),
		nullableString(info.Moisture), nullableString(info.Sun), temperatureMin,
		nullableString(info.EdibleParts),
	)
	if err != nil {
		return false, fmt.Errorf("inserting plant info: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return false, nil
	}
	if info.ID, err = res.LastInsertId(); err != nil {
		return false, fmt.Errorf("reading plant info id: %w", err)
	}
	return true, nil
}

func validRating(v *int) bool {
	return v == nil || (*v >= 0 && *v <= maxRating)
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}
