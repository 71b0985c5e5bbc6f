package services

import (
	"bytes"
	"context"
	"database/sql"
	"distance-matrix-service/internal/adapters/store"
	"distance-matrix-service/internal/domain"
	"distance-matrix-service/internal/ports"
	"encoding/csv"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

// countingStore wraps a DistanceStore and counts read calls so tests can tell
// cache hits from store round trips.
type countingStore struct {
	ports.DistanceStore
	queryCalls int
	statsCalls int
}

func (c *countingStore) Query(ctx context.Context, q ports.DistanceQuery) ([]*domain.DistanceRow, int, error) {
	c.queryCalls++
	return c.DistanceStore.Query(ctx, q)
}

func (c *countingStore) Stats(ctx context.Context) (*domain.CacheStats, error) {
	c.statsCalls++
	return c.DistanceStore.Stats(ctx)
}

// memoryCache is a minimal in-process QueryCache for service tests.
type memoryCache struct {
	entries map[string][]byte
}

func newMemoryCache() *memoryCache { return &memoryCache{entries: map[string][]byte{}} }

func (m *memoryCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	p, ok := m.entries[key]
	return p, ok, nil
}

func (m *memoryCache) Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	m.entries[key] = payload
	return nil
}

func (m *memoryCache) Invalidate(ctx context.Context) error {
	m.entries = map[string][]byte{}
	return nil
}

func newQueryEnv(t *testing.T) (*QueryService, *countingStore, *store.SQLLocationStore, *store.SQLDistanceStore) {
	t.Helper()

	conn, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, store.InitSchema(conn))

	locations := store.NewSQLLocationStore(conn)
	distances := store.NewSQLDistanceStore(conn)
	counting := &countingStore{DistanceStore: distances}

	return &QueryService{Distances: counting}, counting, locations, distances
}

func seedPairs(
	t *testing.T,
	locations *store.SQLLocationStore,
	distances *store.SQLDistanceStore,
	sources, dests []string,
	km func(si, di int) float64,
) {
	t.Helper()
	ctx := context.Background()

	srcIDs := make([]string, len(sources))
	for i, name := range sources {
		s := &domain.Source{ID: uuid.NewString(), Name: name, Coords: domain.Coordinates{Lat: 13, Lon: 80}}
		require.NoError(t, locations.CreateSource(ctx, s))
		srcIDs[i] = s.ID
	}
	for j, name := range dests {
		d := &domain.Destination{ID: uuid.NewString(), Name: name, Coords: &domain.Coordinates{Lat: 12, Lon: 80}}
		require.NoError(t, locations.CreateDestination(ctx, d))
		for i := range sources {
			require.NoError(t, distances.Put(ctx, &domain.Distance{
				ID:              uuid.NewString(),
				SourceID:        srcIDs[i],
				DestinationID:   d.ID,
				DistanceKm:      km(i, j),
				DurationMinutes: 10,
				CreatedAt:       time.Now().UTC(),
			}))
		}
	}
}

func TestListPaginationMeta(t *testing.T) {
	svc, _, locations, distances := newQueryEnv(t)
	seedPairs(t, locations, distances,
		[]string{"Depot-A", "North Yard"},
		[]string{"Town-X", "Town-Y", "Town-Z"},
		func(si, di int) float64 { return float64(10*si + di) },
	)

	res, err := svc.List(context.Background(), ports.DistanceQuery{Page: 1, PageSize: 4})
	require.NoError(t, err)
	assert.Len(t, res.Rows, 4)
	assert.Equal(t, Page{Page: 1, PageSize: 4, Total: 6, TotalPages: 2, HasMore: true}, res.Page)

	res, err = svc.List(context.Background(), ports.DistanceQuery{Page: 2, PageSize: 4})
	require.NoError(t, err)
	assert.Len(t, res.Rows, 2)
	assert.Equal(t, Page{Page: 2, PageSize: 4, Total: 6, TotalPages: 2, HasMore: false}, res.Page)
}

func TestListDefaultsAndFilters(t *testing.T) {
	svc, _, locations, distances := newQueryEnv(t)
	seedPairs(t, locations, distances,
		[]string{"Depot-A", "North Yard"},
		[]string{"Town-X", "Village-Z"},
		func(si, di int) float64 { return 5 },
	)

	// Zero page and size fall back to 1 and 20.
	res, err := svc.List(context.Background(), ports.DistanceQuery{})
	require.NoError(t, err)
	assert.Len(t, res.Rows, 4)
	assert.Equal(t, 1, res.Page.Page)
	assert.Equal(t, 20, res.Page.PageSize)

	// Filters are case-insensitive substring matches on either endpoint.
	res, err = svc.List(context.Background(), ports.DistanceQuery{
		SourceNameContains:      "yard",
		DestinationNameContains: "TOWN",
	})
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "North Yard", res.Rows[0].SourceName)
	assert.Equal(t, "Town-X", res.Rows[0].DestinationName)
}

func TestListServedFromCache(t *testing.T) {
	svc, counting, locations, distances := newQueryEnv(t)
	svc.Cache = newMemoryCache()
	seedPairs(t, locations, distances, []string{"Depot-A"}, []string{"Town-X"}, func(si, di int) float64 { return 5 })

	q := ports.DistanceQuery{Page: 1, PageSize: 20}

	first, err := svc.List(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, 1, counting.queryCalls)

	second, err := svc.List(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, 1, counting.queryCalls, "a repeat query must be a cache hit")
	assert.Equal(t, first.Page, second.Page)
	require.Len(t, second.Rows, 1)
	assert.Equal(t, first.Rows[0].ID, second.Rows[0].ID)

	// Different parameters are distinct cache entries.
	_, err = svc.List(context.Background(), ports.DistanceQuery{Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, 2, counting.queryCalls)
}

func TestStats(t *testing.T) {
	svc, counting, locations, distances := newQueryEnv(t)
	svc.Cache = newMemoryCache()
	seedPairs(t, locations, distances, []string{"Depot-A"}, []string{"Town-X", "Town-Y"}, func(si, di int) float64 { return 5 })

	// One more destination without any cached pair.
	require.NoError(t, locations.CreateDestination(context.Background(), &domain.Destination{
		ID:   uuid.NewString(),
		Name: "Village-Z",
	}))

	st, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, st.SourceCount)
	assert.Equal(t, 3, st.DestinationCount)
	assert.Equal(t, 2, st.CachedPairCount)
	assert.Equal(t, 3, st.PossiblePairCount)
	assert.Equal(t, 1, st.MissingPairCount)
	assert.InDelta(t, 66.7, st.CompletionPct, 0.1)

	_, err = svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, counting.statsCalls)
}

func TestExportMatrix(t *testing.T) {
	svc, _, locations, distances := newQueryEnv(t)
	seedPairs(t, locations, distances,
		[]string{"Depot-A", "North Yard"},
		[]string{"Town-X", "Town-Y"},
		func(si, di int) float64 { return float64(10*(si+1) + di) },
	)

	// Remove one pair so the matrix has a blank cell.
	ctx := context.Background()
	res, err := svc.List(ctx, ports.DistanceQuery{SourceNameContains: "yard", DestinationNameContains: "Town-Y"})
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	_, err = distances.DB.Exec("DELETE FROM distances WHERE id = $1", res.Rows[0].ID)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, svc.ExportMatrix(ctx, &buf, "", ""))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, []string{"source", "Town-X", "Town-Y"}, records[0])
	assert.Equal(t, []string{"Depot-A", "10.00", "11.00"}, records[1])
	assert.Equal(t, []string{"North Yard", "20.00", ""}, records[2])
}

func TestExportMatrixFullGrid(t *testing.T) {
	svc, counting, locations, distances := newQueryEnv(t)

	seedPairs(t, locations, distances,
		[]string{"S-1", "S-2", "S-3"},
		[]string{"D-1", "D-2"},
		func(si, di int) float64 { return 1 },
	)

	var buf bytes.Buffer
	require.NoError(t, svc.ExportMatrix(context.Background(), &buf, "", ""))
	assert.Equal(t, 1, counting.queryCalls, "six rows fit one export page")

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)
	for _, rec := range records[1:] {
		assert.Len(t, rec, 3)
	}
}
