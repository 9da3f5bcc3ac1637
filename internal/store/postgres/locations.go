package postgres

import (
	"context"
	"errors"

	"qms/virtual-queue/internal/geo"
	"qms/virtual-queue/internal/models"
	"qms/virtual-queue/internal/store"

	"github.com/jackc/pgx/v5"
)

const locationColumns = `location_id, name, category, services, address, phone, hours, document`

func (s *Store) ListLocations(ctx context.Context) ([]models.Location, error) {
	rows, err := s.db.Query(ctx, `SELECT `+locationColumns+` FROM locations ORDER BY name ASC, location_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var locations []models.Location
	for rows.Next() {
		location, err := scanLocation(rows)
		if err != nil {
			return nil, err
		}
		locations = append(locations, location)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return locations, nil
}

func (s *Store) GetLocation(ctx context.Context, locationID string) (models.Location, error) {
	row := s.db.QueryRow(ctx, `SELECT `+locationColumns+` FROM locations WHERE location_id = $1`, locationID)
	location, err := scanLocation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Location{}, store.ErrLocationNotFound
		}
		return models.Location{}, err
	}
	return location, nil
}

// UpsertLocation stores a location together with the raw document its
// coordinates were read from.
func (s *Store) UpsertLocation(ctx context.Context, location models.Location, document []byte) error {
	if len(document) == 0 {
		document = []byte("{}")
	}
	location = location.Normalize()
	_, err := s.db.Exec(ctx, `
		INSERT INTO locations (location_id, name, category, services, address, phone, hours, document)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (location_id) DO UPDATE
		SET name = EXCLUDED.name, category = EXCLUDED.category, services = EXCLUDED.services,
			address = EXCLUDED.address, phone = EXCLUDED.phone, hours = EXCLUDED.hours, document = EXCLUDED.document
	`, location.LocationID, location.Name, location.Category, location.Services, location.Address,
		location.Phone, location.Hours, document)
	return err
}

func scanLocation(row pgx.Row) (models.Location, error) {
	var location models.Location
	var document []byte
	if err := row.Scan(&location.LocationID, &location.Name, &location.Category, &location.Services,
		&location.Address, &location.Phone, &location.Hours, &document); err != nil {
		return models.Location{}, err
	}
	location.RawCoordinates = geo.FromDocument(document)
	return location.Normalize(), nil
}
