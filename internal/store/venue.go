package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/eventsync/internal/database"
	"github.com/dukerupert/eventsync/internal/model"
)

type VenueStore struct {
	db *database.DB
}

func NewVenueStore(db *database.DB) *VenueStore {
	return &VenueStore{db: db}
}

// List returns every venue with its aliases, ordered by id.
func (s *VenueStore) List() ([]model.VenueRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, name, address, city, state, zip, latitude, longitude FROM venues ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("list venues: %w", err)
	}

	var venues []model.VenueRecord
	index := make(map[string]int)
	for rows.Next() {
		var v model.VenueRecord
		var lat, lon sql.NullFloat64
		if err := rows.Scan(&v.ID, &v.Name, &v.Address, &v.City, &v.State, &v.Zip, &lat, &lon); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan venue: %w", err)
		}
		if lat.Valid && lon.Valid {
			v.Latitude, v.Longitude = &lat.Float64, &lon.Float64
		}
		index[v.ID] = len(venues)
		venues = append(venues, v)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list venues: %w", err)
	}

	aliases, err := s.db.Query(`SELECT venue_id, alias FROM venue_aliases ORDER BY venue_id, alias`)
	if err != nil {
		return nil, fmt.Errorf("list venue aliases: %w", err)
	}
	defer aliases.Close()
	for aliases.Next() {
		var id, alias string
		if err := aliases.Scan(&id, &alias); err != nil {
			return nil, fmt.Errorf("scan venue alias: %w", err)
		}
		if i, ok := index[id]; ok {
			venues[i].Aliases = append(venues[i].Aliases, alias)
		}
	}
	return venues, aliases.Err()
}

// Upsert writes a venue and replaces its alias set in one transaction.
func (s *VenueStore) Upsert(v model.VenueRecord) error {
	if v.ID == "" || v.Name == "" {
		return fmt.Errorf("upsert venue: id and name are required")
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin venue upsert: %w", err)
	}
	defer tx.Rollback()

	var lat, lon sql.NullFloat64
	if v.Latitude != nil && v.Longitude != nil {
		lat = sql.NullFloat64{Float64: *v.Latitude, Valid: true}
		lon = sql.NullFloat64{Float64: *v.Longitude, Valid: true}
	}
	_, err = tx.Exec(
		`INSERT INTO venues (id, name, address, city, state, zip, latitude, longitude, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, address = excluded.address, city = excluded.city,
			state = excluded.state, zip = excluded.zip, latitude = excluded.latitude,
			longitude = excluded.longitude, updated_at = excluded.updated_at`,
		v.ID, v.Name, v.Address, v.City, v.State, v.Zip, lat, lon, utc(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("upsert venue %s: %w", v.ID, err)
	}

	if _, err := tx.Exec(`DELETE FROM venue_aliases WHERE venue_id = ?`, v.ID); err != nil {
		return fmt.Errorf("clear venue aliases: %w", err)
	}
	for _, alias := range v.Aliases {
		if alias == "" {
			continue
		}
		_, err := tx.Exec(
			`INSERT INTO venue_aliases (venue_id, alias) VALUES (?, ?) ON CONFLICT DO NOTHING`,
			v.ID, alias,
		)
		if err != nil {
			return fmt.Errorf("insert venue alias: %w", err)
		}
	}
	return tx.Commit()
}

func (s *VenueStore) GetByID(id string) (*model.VenueRecord, error) {
	var v model.VenueRecord
	var lat, lon sql.NullFloat64
	err := s.db.QueryRow(
		`SELECT id, name, address, city, state, zip, latitude, longitude FROM venues WHERE id = ?`, id,
	).Scan(&v.ID, &v.Name, &v.Address, &v.City, &v.State, &v.Zip, &lat, &lon)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get venue: %w", err)
	}
	if lat.Valid && lon.Valid {
		v.Latitude, v.Longitude = &lat.Float64, &lon.Float64
	}
	return &v, nil
}
