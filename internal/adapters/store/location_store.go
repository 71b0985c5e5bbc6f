package store

import (
	"context"
	"database/sql"
	"distance-matrix-service/internal/domain"
	"errors"
	"fmt"
	"strings"
	"time"
)

// SQLLocationStore is the SQL-backed implementation of the LocationStore port.
// It runs unchanged against Postgres (pgx) and SQLite (modernc).
type SQLLocationStore struct {
	DB *sql.DB
}

func NewSQLLocationStore(db *sql.DB) *SQLLocationStore {
	return &SQLLocationStore{DB: db}
}

func (s *SQLLocationStore) CreateSource(ctx context.Context, src *domain.Source) error {
	if s.DB == nil {
		return errors.New("location store: db is nil")
	}
	if strings.TrimSpace(src.Name) == "" {
		return errors.New("create source: name must be non-empty")
	}

	q := `
	INSERT INTO sources (id, name, address, lon, lat, created_at)
	VALUES ($1, $2, $3, $4, $5, $6);
	`
	_, err := s.DB.ExecContext(ctx, q,
		src.ID, src.Name, src.Address, src.Coords.Lon, src.Coords.Lat, src.CreatedAt.UTC().Unix(),
	)
	if err != nil {
		return fmt.Errorf("create source %q: %w", src.Name, err)
	}

	return nil
}

func (s *SQLLocationStore) GetSource(ctx context.Context, id string) (*domain.Source, error) {
	if s.DB == nil {
		return nil, errors.New("location store: db is nil")
	}

	q := `
	SELECT id, name, address, lon, lat, created_at
	FROM sources
	WHERE id = $1;
	`
	var src domain.Source
	var created int64
	err := s.DB.QueryRowContext(ctx, q, id).Scan(
		&src.ID, &src.Name, &src.Address, &src.Coords.Lon, &src.Coords.Lat, &created,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get source %q: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get source %q: %w", id, err)
	}
	src.CreatedAt = time.Unix(created, 0).UTC()

	return &src, nil
}

func (s *SQLLocationStore) ListSources(ctx context.Context) ([]*domain.Source, error) {
	if s.DB == nil {
		return nil, errors.New("location store: db is nil")
	}

	q := `
	SELECT id, name, address, lon, lat, created_at
	FROM sources
	ORDER BY name, id;
	`
	rows, err := s.DB.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list sources: query sources table: %w", err)
	}
	defer rows.Close()

	out := make([]*domain.Source, 0, 32)
	for rows.Next() {
		var src domain.Source
		var created int64
		if err := rows.Scan(&src.ID, &src.Name, &src.Address, &src.Coords.Lon, &src.Coords.Lat, &created); err != nil {
			return nil, fmt.Errorf("list sources: scan row: %w", err)
		}
		src.CreatedAt = time.Unix(created, 0).UTC()
		out = append(out, &src)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sources: row iteration: %w", err)
	}

	return out, nil
}

func (s *SQLLocationStore) UpdateSource(ctx context.Context, src *domain.Source) error {
	if s.DB == nil {
		return errors.New("location store: db is nil")
	}

	q := `
	UPDATE sources
	SET name = $2, address = $3, lon = $4, lat = $5
	WHERE id = $1;
	`
	res, err := s.DB.ExecContext(ctx, q, src.ID, src.Name, src.Address, src.Coords.Lon, src.Coords.Lat)
	if err != nil {
		return fmt.Errorf("update source %q: %w", src.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update source %q: rows affected: %w", src.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("update source %q: %w", src.ID, domain.ErrNotFound)
	}

	return nil
}

// Delete a source and every cached distance that references it in one
// transaction, reporting how many distance rows were removed.
func (s *SQLLocationStore) DeleteSource(ctx context.Context, id string) (int, error) {
	if s.DB == nil {
		return 0, errors.New("location store: db is nil")
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("delete source %q: begin tx: %w", id, err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM distances WHERE source_id = $1;`, id)
	if err != nil {
		return 0, fmt.Errorf("delete source %q: cascade distances: %w", id, err)
	}
	cascaded, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete source %q: cascade rows affected: %w", id, err)
	}

	res, err = tx.ExecContext(ctx, `DELETE FROM sources WHERE id = $1;`, id)
	if err != nil {
		return 0, fmt.Errorf("delete source %q: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete source %q: rows affected: %w", id, err)
	}
	if n == 0 {
		return 0, fmt.Errorf("delete source %q: %w", id, domain.ErrNotFound)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("delete source %q: commit tx: %w", id, err)
	}

	return int(cascaded), nil
}

func (s *SQLLocationStore) CreateDestination(ctx context.Context, d *domain.Destination) error {
	if s.DB == nil {
		return errors.New("location store: db is nil")
	}
	if strings.TrimSpace(d.Name) == "" {
		return errors.New("create destination: name must be non-empty")
	}

	lon, lat := coordsToNullable(d.Coords)

	q := `
	INSERT INTO destinations (id, name, pincode, address, lon, lat, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7);
	`
	_, err := s.DB.ExecContext(ctx, q,
		d.ID, d.Name, d.Pincode, d.Address, lon, lat, d.CreatedAt.UTC().Unix(),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("create destination %q: pincode %q already registered: %w", d.Name, d.Pincode, domain.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("create destination %q: %w", d.Name, err)
	}

	return nil
}

func (s *SQLLocationStore) GetDestination(ctx context.Context, id string) (*domain.Destination, error) {
	if s.DB == nil {
		return nil, errors.New("location store: db is nil")
	}

	q := `
	SELECT id, name, pincode, address, lon, lat, created_at
	FROM destinations
	WHERE id = $1;
	`
	d, err := scanDestination(s.DB.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get destination %q: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get destination %q: %w", id, err)
	}

	return d, nil
}

func (s *SQLLocationStore) ListDestinations(ctx context.Context) ([]*domain.Destination, error) {
	if s.DB == nil {
		return nil, errors.New("location store: db is nil")
	}

	q := `
	SELECT id, name, pincode, address, lon, lat, created_at
	FROM destinations
	ORDER BY name, id;
	`
	rows, err := s.DB.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list destinations: query destinations table: %w", err)
	}
	defer rows.Close()

	out := make([]*domain.Destination, 0, 64)
	for rows.Next() {
		d, err := scanDestination(rows)
		if err != nil {
			return nil, fmt.Errorf("list destinations: scan row: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list destinations: row iteration: %w", err)
	}

	return out, nil
}

func (s *SQLLocationStore) UpdateDestination(ctx context.Context, d *domain.Destination) error {
	if s.DB == nil {
		return errors.New("location store: db is nil")
	}

	lon, lat := coordsToNullable(d.Coords)

	q := `
	UPDATE destinations
	SET name = $2, pincode = $3, address = $4, lon = $5, lat = $6
	WHERE id = $1;
	`
	res, err := s.DB.ExecContext(ctx, q, d.ID, d.Name, d.Pincode, d.Address, lon, lat)
	if isUniqueViolation(err) {
		return fmt.Errorf("update destination %q: pincode %q already registered: %w", d.ID, d.Pincode, domain.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("update destination %q: %w", d.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update destination %q: rows affected: %w", d.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("update destination %q: %w", d.ID, domain.ErrNotFound)
	}

	return nil
}

// Persist geocoded coordinates onto a destination that lacked them.
func (s *SQLLocationStore) UpdateDestinationCoords(ctx context.Context, id string, coords domain.Coordinates) error {
	if s.DB == nil {
		return errors.New("location store: db is nil")
	}

	q := `
	UPDATE destinations
	SET lon = $2, lat = $3
	WHERE id = $1;
	`
	res, err := s.DB.ExecContext(ctx, q, id, coords.Lon, coords.Lat)
	if err != nil {
		return fmt.Errorf("update destination coords %q: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update destination coords %q: rows affected: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("update destination coords %q: %w", id, domain.ErrNotFound)
	}

	return nil
}

func (s *SQLLocationStore) DeleteDestination(ctx context.Context, id string) (int, error) {
	if s.DB == nil {
		return 0, errors.New("location store: db is nil")
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("delete destination %q: begin tx: %w", id, err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM distances WHERE destination_id = $1;`, id)
	if err != nil {
		return 0, fmt.Errorf("delete destination %q: cascade distances: %w", id, err)
	}
	cascaded, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete destination %q: cascade rows affected: %w", id, err)
	}

	res, err = tx.ExecContext(ctx, `DELETE FROM destinations WHERE id = $1;`, id)
	if err != nil {
		return 0, fmt.Errorf("delete destination %q: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete destination %q: rows affected: %w", id, err)
	}
	if n == 0 {
		return 0, fmt.Errorf("delete destination %q: %w", id, domain.ErrNotFound)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("delete destination %q: commit tx: %w", id, err)
	}

	return int(cascaded), nil
}

// isUniqueViolation recognizes unique-index failures from both backends:
// SQLSTATE 23505 (Postgres) and "UNIQUE constraint failed" (SQLite).
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "23505") || strings.Contains(msg, "unique constraint")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDestination(r rowScanner) (*domain.Destination, error) {
	var d domain.Destination
	var lon, lat sql.NullFloat64
	var created int64

	if err := r.Scan(&d.ID, &d.Name, &d.Pincode, &d.Address, &lon, &lat, &created); err != nil {
		return nil, err
	}

	if lon.Valid && lat.Valid {
		d.Coords = &domain.Coordinates{Lon: lon.Float64, Lat: lat.Float64}
	}
	d.CreatedAt = time.Unix(created, 0).UTC()

	return &d, nil
}

func coordsToNullable(c *domain.Coordinates) (lon, lat any) {
	if c == nil {
		return nil, nil
	}
	return c.Lon, c.Lat
}
