package store

import (
	"database/sql"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Populate the sources table from a CSV file with header
// name,address,lat,lon. The whole file is validated before anything is
// written, and all rows land in a single transaction.
func SeedSourcesFromCSV(db *sql.DB, csvPath string) (int, error) {
	records, err := readCSV(csvPath, []string{"name", "address", "lat", "lon"})
	if err != nil {
		return 0, fmt.Errorf("seed sources: %w", err)
	}

	type row struct {
		name, address string
		lat, lon      float64
	}
	rows := make([]row, 0, len(records))
	for i, rec := range records {
		name := strings.TrimSpace(rec[0])
		if name == "" {
			return 0, fmt.Errorf("seed sources: row %d: name cannot be empty", i+2)
		}
		lat, err := strconv.ParseFloat(strings.TrimSpace(rec[2]), 64)
		if err != nil {
			return 0, fmt.Errorf("seed sources: row %d: parse lat: %w", i+2, err)
		}
		lon, err := strconv.ParseFloat(strings.TrimSpace(rec[3]), 64)
		if err != nil {
			return 0, fmt.Errorf("seed sources: row %d: parse lon: %w", i+2, err)
		}
		rows = append(rows, row{name: name, address: strings.TrimSpace(rec[1]), lat: lat, lon: lon})
	}

	tx, err := db.Begin()
	if err != nil {
		return 0, fmt.Errorf("seed sources: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
	INSERT INTO sources (id, name, address, lon, lat, created_at)
	VALUES ($1, $2, $3, $4, $5, $6);
	`)
	if err != nil {
		return 0, fmt.Errorf("seed sources: prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Unix()
	for _, r := range rows {
		if _, err := stmt.Exec(uuid.NewString(), r.name, r.address, r.lon, r.lat, now); err != nil {
			return 0, fmt.Errorf("seed sources: insert %q: %w", r.name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("seed sources: commit tx: %w", err)
	}

	return len(rows), nil
}

// Populate the destinations table from a CSV file with header
// name,pincode,address,lat,lon. lat/lon may be empty; such destinations stay
// unresolved until geocoded.
func SeedDestinationsFromCSV(db *sql.DB, csvPath string) (int, error) {
	records, err := readCSV(csvPath, []string{"name", "pincode", "address", "lat", "lon"})
	if err != nil {
		return 0, fmt.Errorf("seed destinations: %w", err)
	}

	type row struct {
		name, pincode, address string
		lat, lon               any
	}
	rows := make([]row, 0, len(records))
	for i, rec := range records {
		name := strings.TrimSpace(rec[0])
		if name == "" {
			return 0, fmt.Errorf("seed destinations: row %d: name cannot be empty", i+2)
		}

		r := row{name: name, pincode: strings.TrimSpace(rec[1]), address: strings.TrimSpace(rec[2])}

		latStr := strings.TrimSpace(rec[3])
		lonStr := strings.TrimSpace(rec[4])
		if latStr != "" && lonStr != "" {
			lat, err := strconv.ParseFloat(latStr, 64)
			if err != nil {
				return 0, fmt.Errorf("seed destinations: row %d: parse lat: %w", i+2, err)
			}
			lon, err := strconv.ParseFloat(lonStr, 64)
			if err != nil {
				return 0, fmt.Errorf("seed destinations: row %d: parse lon: %w", i+2, err)
			}
			r.lat, r.lon = lat, lon
		}
		rows = append(rows, r)
	}

	tx, err := db.Begin()
	if err != nil {
		return 0, fmt.Errorf("seed destinations: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
	INSERT INTO destinations (id, name, pincode, address, lon, lat, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7);
	`)
	if err != nil {
		return 0, fmt.Errorf("seed destinations: prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Unix()
	for _, r := range rows {
		if _, err := stmt.Exec(uuid.NewString(), r.name, r.pincode, r.address, r.lon, r.lat, now); err != nil {
			return 0, fmt.Errorf("seed destinations: insert %q: %w", r.name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("seed destinations: commit tx: %w", err)
	}

	return len(rows), nil
}

func readCSV(path string, header []string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(header)

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%q is empty", path)
	}

	for i, col := range records[0] {
		if !strings.EqualFold(strings.TrimSpace(col), header[i]) {
			return nil, fmt.Errorf("%q: expected header %q, got %q", path, strings.Join(header, ","), strings.Join(records[0], ","))
		}
	}

	return records[1:], nil
}
