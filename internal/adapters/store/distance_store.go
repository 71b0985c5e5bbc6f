package store

import (
	"context"
	"database/sql"
	"distance-matrix-service/internal/domain"
	"distance-matrix-service/internal/platform/obs"
	"distance-matrix-service/internal/ports"
	"errors"
	"fmt"
	"strings"
	"time"
)

// SQLDistanceStore is the SQL-backed pair cache. The composite UNIQUE index on
// (source_id, destination_id) is the sole arbiter of the one-row-per-pair
// invariant; Put converts a violation into domain.ErrConflict so racing
// writers can re-read instead of failing.
type SQLDistanceStore struct {
	DB *sql.DB
}

func NewSQLDistanceStore(db *sql.DB) *SQLDistanceStore {
	return &SQLDistanceStore{DB: db}
}

// Exact-key lookup for one cached pair.
func (s *SQLDistanceStore) Get(ctx context.Context, sourceID, destinationID string) (*domain.Distance, error) {
	if s.DB == nil {
		return nil, errors.New("distance store: db is nil")
	}

	q := `
	SELECT id, source_id, destination_id, distance_km, duration_minutes,
		route_meta, directions_link, created_at
	FROM distances
	WHERE source_id = $1 AND destination_id = $2;
	`
	var d domain.Distance
	var created int64
	err := s.DB.QueryRowContext(ctx, q, sourceID, destinationID).Scan(
		&d.ID, &d.SourceID, &d.DestinationID, &d.DistanceKm, &d.DurationMinutes,
		&d.RouteMeta, &d.DirectionsLink, &created,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get distance %s -> %s: %w", sourceID, destinationID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get distance %s -> %s: %w", sourceID, destinationID, err)
	}
	d.CreatedAt = time.Unix(created, 0).UTC()

	return &d, nil
}

// Fetch every cached row for the candidate pair set in one round trip.
//
// SQLite cannot bind slices in an IN clause, so placeholders are built
// dynamically (values stay parameterized). The IN-superset over source and
// destination IDs can over-fetch pairs outside the requested set; those are
// filtered in memory, which is still one round trip instead of N.
func (s *SQLDistanceStore) GetMany(
	ctx context.Context,
	pairs []domain.PairKey,
) (_ map[domain.PairKey]*domain.Distance, err error) {
	defer obs.Time(ctx, "distance.store.GetMany")(&err)

	if s.DB == nil {
		return nil, errors.New("distance store: db is nil")
	}

	if len(pairs) == 0 {
		return map[domain.PairKey]*domain.Distance{}, nil
	}

	wanted := make(map[domain.PairKey]struct{}, len(pairs))
	srcSeen := map[string]struct{}{}
	dstSeen := map[string]struct{}{}
	srcIDs := make([]string, 0, len(pairs))
	dstIDs := make([]string, 0, len(pairs))
	for _, p := range pairs {
		if p.SourceID == "" || p.DestinationID == "" {
			continue
		}
		wanted[p] = struct{}{}
		if _, ok := srcSeen[p.SourceID]; !ok {
			srcSeen[p.SourceID] = struct{}{}
			srcIDs = append(srcIDs, p.SourceID)
		}
		if _, ok := dstSeen[p.DestinationID]; !ok {
			dstSeen[p.DestinationID] = struct{}{}
			dstIDs = append(dstIDs, p.DestinationID)
		}
	}

	if len(wanted) == 0 {
		return map[domain.PairKey]*domain.Distance{}, nil
	}

	args := make([]any, 0, len(srcIDs)+len(dstIDs))
	srcPH := make([]string, 0, len(srcIDs))
	for _, id := range srcIDs {
		args = append(args, id)
		srcPH = append(srcPH, fmt.Sprintf("$%d", len(args)))
	}
	dstPH := make([]string, 0, len(dstIDs))
	for _, id := range dstIDs {
		args = append(args, id)
		dstPH = append(dstPH, fmt.Sprintf("$%d", len(args)))
	}

	q := fmt.Sprintf(`
	SELECT id, source_id, destination_id, distance_km, duration_minutes,
		route_meta, directions_link, created_at
	FROM distances
	WHERE source_id IN (%s)
		AND destination_id IN (%s);
	`, strings.Join(srcPH, ","), strings.Join(dstPH, ","))

	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("get many distances: query distances table: %w", err)
	}
	defer rows.Close()

	out := make(map[domain.PairKey]*domain.Distance, len(wanted))
	for rows.Next() {
		var d domain.Distance
		var created int64
		if err := rows.Scan(
			&d.ID, &d.SourceID, &d.DestinationID, &d.DistanceKm, &d.DurationMinutes,
			&d.RouteMeta, &d.DirectionsLink, &created,
		); err != nil {
			return nil, fmt.Errorf("get many distances: scan row: %w", err)
		}
		d.CreatedAt = time.Unix(created, 0).UTC()

		key := domain.PairKey{SourceID: d.SourceID, DestinationID: d.DestinationID}
		if _, ok := wanted[key]; ok {
			out[key] = &d
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get many distances: row iteration: %w", err)
	}

	return out, nil
}

// Insert one new cache row. Returns domain.ErrConflict when the pair is
// already cached; rows are never updated in place.
func (s *SQLDistanceStore) Put(ctx context.Context, d *domain.Distance) error {
	if s.DB == nil {
		return errors.New("distance store: db is nil")
	}

	if d.SourceID == "" || d.DestinationID == "" {
		return errors.New("put distance: source and destination ids must be non-empty")
	}

	q := `
	INSERT INTO distances (
		id, source_id, destination_id, distance_km, duration_minutes,
		route_meta, directions_link, created_at
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (source_id, destination_id) DO NOTHING;
	`
	res, err := s.DB.ExecContext(ctx, q,
		d.ID, d.SourceID, d.DestinationID, d.DistanceKm, d.DurationMinutes,
		d.RouteMeta, d.DirectionsLink, d.CreatedAt.UTC().Unix(),
	)
	if err != nil {
		return fmt.Errorf("put distance %s -> %s: %w", d.SourceID, d.DestinationID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("put distance %s -> %s: rows affected: %w", d.SourceID, d.DestinationID, err)
	}
	if n == 0 {
		return fmt.Errorf("put distance %s -> %s: %w", d.SourceID, d.DestinationID, domain.ErrConflict)
	}

	return nil
}

// Paginated, filtered read over the cache joined with entity names.
// Ordering by source name then destination name keeps pagination deterministic.
func (s *SQLDistanceStore) Query(
	ctx context.Context,
	q ports.DistanceQuery,
) (_ []*domain.DistanceRow, _ int, err error) {
	defer obs.Time(ctx, "distance.store.Query")(&err)

	if s.DB == nil {
		return nil, 0, errors.New("distance store: db is nil")
	}

	page := q.Page
	if page < 1 {
		page = 1
	}
	pageSize := q.PageSize
	if pageSize < 1 {
		pageSize = 20
	}

	srcFilter := strings.TrimSpace(q.SourceNameContains)
	dstFilter := strings.TrimSpace(q.DestinationNameContains)

	where := `
	WHERE ($1 = '' OR LOWER(s.name) LIKE '%' || LOWER($1) || '%')
		AND ($2 = '' OR LOWER(t.name) LIKE '%' || LOWER($2) || '%')
	`

	countQuery := `
	SELECT COUNT(*)
	FROM distances d
	JOIN sources s ON s.id = d.source_id
	JOIN destinations t ON t.id = d.destination_id
	` + where

	var total int
	if err := s.DB.QueryRowContext(ctx, countQuery, srcFilter, dstFilter).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("query distances: count: %w", err)
	}

	listQuery := `
	SELECT d.id, d.source_id, d.destination_id, d.distance_km, d.duration_minutes,
		d.route_meta, d.directions_link, d.created_at, s.name, t.name
	FROM distances d
	JOIN sources s ON s.id = d.source_id
	JOIN destinations t ON t.id = d.destination_id
	` + where + `
	ORDER BY s.name, t.name, d.id
	LIMIT $3 OFFSET $4;
	`

	rows, err := s.DB.QueryContext(ctx, listQuery, srcFilter, dstFilter, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("query distances: query distances table: %w", err)
	}
	defer rows.Close()

	out := make([]*domain.DistanceRow, 0, pageSize)
	for rows.Next() {
		var r domain.DistanceRow
		var created int64
		if err := rows.Scan(
			&r.ID, &r.SourceID, &r.DestinationID, &r.DistanceKm, &r.DurationMinutes,
			&r.RouteMeta, &r.DirectionsLink, &created, &r.SourceName, &r.DestinationName,
		); err != nil {
			return nil, 0, fmt.Errorf("query distances: scan row: %w", err)
		}
		r.CreatedAt = time.Unix(created, 0).UTC()
		out = append(out, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("query distances: row iteration: %w", err)
	}

	return out, total, nil
}

// Aggregate cache completeness counters.
func (s *SQLDistanceStore) Stats(ctx context.Context) (*domain.CacheStats, error) {
	if s.DB == nil {
		return nil, errors.New("distance store: db is nil")
	}

	q := `
	SELECT
		(SELECT COUNT(*) FROM sources),
		(SELECT COUNT(*) FROM destinations),
		(SELECT COUNT(*) FROM distances);
	`
	var st domain.CacheStats
	if err := s.DB.QueryRowContext(ctx, q).Scan(
		&st.SourceCount, &st.DestinationCount, &st.CachedPairCount,
	); err != nil {
		return nil, fmt.Errorf("distance stats: %w", err)
	}

	st.PossiblePairCount = st.SourceCount * st.DestinationCount
	st.MissingPairCount = st.PossiblePairCount - st.CachedPairCount
	if st.MissingPairCount < 0 {
		st.MissingPairCount = 0
	}
	if st.PossiblePairCount > 0 {
		st.CompletionPct = float64(st.CachedPairCount) / float64(st.PossiblePairCount) * 100
	}

	return &st, nil
}
