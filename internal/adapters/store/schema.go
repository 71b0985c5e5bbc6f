package store

import (
	"database/sql"
	"errors"
	"fmt"
)

// Initialize the database schema. The DDL is deliberately restricted to the
// dialect subset shared by Postgres and SQLite so the same store code runs
// against either backend.
func InitSchema(db *sql.DB) error {
	if db == nil {
		return errors.New("init schema: DB is nil")
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("init schema: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	createSourcesQuery := `
	CREATE TABLE IF NOT EXISTS sources (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		address TEXT NOT NULL DEFAULT '',
		lon DOUBLE PRECISION NOT NULL,
		lat DOUBLE PRECISION NOT NULL,
		created_at BIGINT NOT NULL
	);
	`

	createDestinationsQuery := `
	CREATE TABLE IF NOT EXISTS destinations (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		pincode TEXT NOT NULL DEFAULT '',
		address TEXT NOT NULL DEFAULT '',
		lon DOUBLE PRECISION,
		lat DOUBLE PRECISION,
		created_at BIGINT NOT NULL
	);
	`

	createDistancesQuery := `
	CREATE TABLE IF NOT EXISTS distances (
		id TEXT PRIMARY KEY,
		source_id TEXT NOT NULL REFERENCES sources(id),
		destination_id TEXT NOT NULL REFERENCES destinations(id),
		distance_km DOUBLE PRECISION NOT NULL,
		duration_minutes DOUBLE PRECISION NOT NULL,
		route_meta TEXT NOT NULL DEFAULT '',
		directions_link TEXT NOT NULL DEFAULT '',
		created_at BIGINT NOT NULL,
		UNIQUE (source_id, destination_id)
	);
	`

	// Pincodes must be unique only when present; empty means "not provided".
	createPincodeIndexQuery := `
	CREATE UNIQUE INDEX IF NOT EXISTS ux_destinations_pincode
	ON destinations(pincode) WHERE pincode <> '';
	`

	createDistanceIndexQuery := `
	CREATE INDEX IF NOT EXISTS idx_distances_destination_source
	ON distances(destination_id, source_id);
	`

	statements := []string{
		createSourcesQuery,
		createDestinationsQuery,
		createDistancesQuery,
		createPincodeIndexQuery,
		createDistanceIndexQuery,
	}

	for i, stmt := range statements {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: exec statement #%d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("init schema: commit tx: %w", err)
	}

	return nil
}
