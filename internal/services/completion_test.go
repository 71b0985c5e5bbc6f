package services

import (
	"context"
	"database/sql"
	"distance-matrix-service/internal/adapters/route"
	"distance-matrix-service/internal/adapters/store"
	"distance-matrix-service/internal/domain"
	"distance-matrix-service/internal/ports"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

type completionEnv struct {
	locations *store.SQLLocationStore
	distances *store.SQLDistanceStore
	provider  *route.MockProvider
	engine    *CompletionEngine
}

func newCompletionEnv(t *testing.T) *completionEnv {
	t.Helper()

	conn, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, store.InitSchema(conn))

	env := &completionEnv{
		locations: store.NewSQLLocationStore(conn),
		distances: store.NewSQLDistanceStore(conn),
		provider:  route.NewMockProvider(),
	}
	env.engine = &CompletionEngine{
		Locations: env.locations,
		Distances: env.distances,
		Provider:  env.provider,
		Config: CompletionConfig{
			BatchSizeLimit: 100,
			FallbackLimit:  8,
			Budget:         30 * time.Second,
			CallDelay:      time.Millisecond,
		},
	}
	return env
}

func (env *completionEnv) addSource(t *testing.T, name string, lat, lon float64) *domain.Source {
	t.Helper()

	s := &domain.Source{
		ID:     uuid.NewString(),
		Name:   name,
		Coords: domain.Coordinates{Lat: lat, Lon: lon},
	}
	require.NoError(t, env.locations.CreateSource(context.Background(), s))
	return s
}

func (env *completionEnv) addDestination(t *testing.T, name string, coords *domain.Coordinates) *domain.Destination {
	t.Helper()

	d := &domain.Destination{
		ID:     uuid.NewString(),
		Name:   name,
		Coords: coords,
	}
	require.NoError(t, env.locations.CreateDestination(context.Background(), d))
	return d
}

func TestCompleteFullMatrixIsIdempotent(t *testing.T) {
	env := newCompletionEnv(t)
	ctx := context.Background()

	s1 := env.addSource(t, "Depot-A", 13.0, 80.2)
	s2 := env.addSource(t, "North Yard", 13.2, 80.1)
	d1 := env.addDestination(t, "Town-X", &domain.Coordinates{Lat: 12.9, Lon: 80.0})
	d2 := env.addDestination(t, "Town-Y", &domain.Coordinates{Lat: 12.8, Lon: 80.3})

	for i, src := range []*domain.Source{s1, s2} {
		for j, dst := range []*domain.Destination{d1, d2} {
			env.provider.AddRoute(src.Coords, *dst.Coords, float64(10+i*10+j), 15)
		}
	}

	res, err := env.engine.Complete(ctx, Scope{})
	require.NoError(t, err)
	require.Len(t, res.Rows, 4)
	assert.False(t, res.Truncated)
	assert.False(t, res.TimedOut)
	assert.Equal(t, 1, env.provider.BatchCalls, "the whole scope must fit in one batch call")
	assert.Equal(t, 0, env.provider.OneCalls)

	// Every pair is now persisted.
	for _, src := range []*domain.Source{s1, s2} {
		for _, dst := range []*domain.Destination{d1, d2} {
			_, err := env.distances.Get(ctx, src.ID, dst.ID)
			require.NoError(t, err)
		}
	}

	// A second run finds everything cached and never touches the provider.
	res2, err := env.engine.Complete(ctx, Scope{})
	require.NoError(t, err)
	assert.Len(t, res2.Rows, 4)
	assert.False(t, res2.Truncated)
	assert.Equal(t, 1, env.provider.BatchCalls)
	assert.Equal(t, 0, env.provider.OneCalls)
}

func TestCompleteRowsAreSorted(t *testing.T) {
	env := newCompletionEnv(t)
	ctx := context.Background()

	sB := env.addSource(t, "Bravo", 13.0, 80.2)
	sA := env.addSource(t, "Alpha", 13.1, 80.1)
	dZ := env.addDestination(t, "Zone-Z", &domain.Coordinates{Lat: 12.9, Lon: 80.0})
	dM := env.addDestination(t, "Mid-M", &domain.Coordinates{Lat: 12.8, Lon: 80.3})

	for _, src := range []*domain.Source{sA, sB} {
		for _, dst := range []*domain.Destination{dZ, dM} {
			env.provider.AddRoute(src.Coords, *dst.Coords, 5, 10)
		}
	}

	res, err := env.engine.Complete(ctx, Scope{})
	require.NoError(t, err)
	require.Len(t, res.Rows, 4)

	var got []string
	for _, r := range res.Rows {
		got = append(got, r.SourceName+"/"+r.DestinationName)
	}
	assert.Equal(t, []string{"Alpha/Mid-M", "Alpha/Zone-Z", "Bravo/Mid-M", "Bravo/Zone-Z"}, got)
}

func TestCompleteBatchSizeLimitTruncatesAndResumes(t *testing.T) {
	env := newCompletionEnv(t)
	env.engine.Config.BatchSizeLimit = 2
	ctx := context.Background()

	s := env.addSource(t, "Depot-A", 13.0, 80.2)
	dests := []*domain.Destination{
		env.addDestination(t, "D-1", &domain.Coordinates{Lat: 12.1, Lon: 80.1}),
		env.addDestination(t, "D-2", &domain.Coordinates{Lat: 12.2, Lon: 80.2}),
		env.addDestination(t, "D-3", &domain.Coordinates{Lat: 12.3, Lon: 80.3}),
	}
	for _, d := range dests {
		env.provider.AddRoute(s.Coords, *d.Coords, 7, 12)
	}

	res, err := env.engine.Complete(ctx, Scope{SourceID: s.ID})
	require.NoError(t, err)
	assert.Len(t, res.Rows, 2)
	assert.True(t, res.Truncated)
	assert.False(t, res.TimedOut)

	// The next run computes only the remainder and finishes the scope.
	res2, err := env.engine.Complete(ctx, Scope{SourceID: s.ID})
	require.NoError(t, err)
	assert.Len(t, res2.Rows, 3)
	assert.False(t, res2.Truncated)
}

func TestCompleteFallsBackToSingleCalls(t *testing.T) {
	env := newCompletionEnv(t)
	env.engine.Config.FallbackLimit = 2
	env.provider.FailBatch = true
	ctx := context.Background()

	s := env.addSource(t, "Depot-A", 13.0, 80.2)
	dests := []*domain.Destination{
		env.addDestination(t, "D-1", &domain.Coordinates{Lat: 12.1, Lon: 80.1}),
		env.addDestination(t, "D-2", &domain.Coordinates{Lat: 12.2, Lon: 80.2}),
		env.addDestination(t, "D-3", &domain.Coordinates{Lat: 12.3, Lon: 80.3}),
	}
	for _, d := range dests {
		env.provider.AddRoute(s.Coords, *d.Coords, 7, 12)
	}

	res, err := env.engine.Complete(ctx, Scope{SourceID: s.ID})
	require.NoError(t, err)
	assert.Len(t, res.Rows, 2, "fallback is bounded by FallbackLimit")
	assert.True(t, res.Truncated)
	assert.False(t, res.TimedOut)
	assert.Equal(t, 1, env.provider.BatchCalls)
	assert.Equal(t, 2, env.provider.OneCalls)
}

func TestCompleteBudgetExpiredBeforeWork(t *testing.T) {
	env := newCompletionEnv(t)
	env.engine.Config.Budget = time.Nanosecond
	ctx := context.Background()

	s := env.addSource(t, "Depot-A", 13.0, 80.2)
	d1 := env.addDestination(t, "D-1", &domain.Coordinates{Lat: 12.1, Lon: 80.1})
	env.addDestination(t, "D-2", &domain.Coordinates{Lat: 12.2, Lon: 80.2})

	// One pair is already cached; only it can be returned.
	require.NoError(t, env.distances.Put(ctx, &domain.Distance{
		ID:              uuid.NewString(),
		SourceID:        s.ID,
		DestinationID:   d1.ID,
		DistanceKm:      9.5,
		DurationMinutes: 14,
		CreatedAt:       time.Now().UTC(),
	}))

	res, err := env.engine.Complete(ctx, Scope{SourceID: s.ID})
	require.NoError(t, err)
	assert.Len(t, res.Rows, 1)
	assert.True(t, res.Truncated)
	assert.True(t, res.TimedOut)
	assert.Equal(t, 0, env.provider.BatchCalls, "an expired budget must preempt provider calls")
}

func TestCompleteSinglePairGeocodesOnce(t *testing.T) {
	env := newCompletionEnv(t)
	ctx := context.Background()

	s := env.addSource(t, "Depot-A", 13.0, 80.2)
	d := env.addDestination(t, "Town-X", nil)

	resolved := domain.Coordinates{Lat: 12.9, Lon: 80.0}
	env.provider.Geocodes["Town-X"] = resolved
	env.provider.AddRoute(s.Coords, resolved, 11.2, 18)

	res, err := env.engine.Complete(ctx, Scope{SourceID: s.ID, DestinationID: d.ID})
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, 11.2, res.Rows[0].DistanceKm)
	assert.Equal(t, 1, env.provider.GeocodeCalls)

	// The resolved coordinates were written back to the destination.
	stored, err := env.locations.GetDestination(ctx, d.ID)
	require.NoError(t, err)
	require.True(t, stored.HasCoords())
	assert.Equal(t, resolved, *stored.Coords)

	// With coordinates persisted, the next run skips geocoding entirely.
	_, err = env.engine.Complete(ctx, Scope{SourceID: s.ID, DestinationID: d.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, env.provider.GeocodeCalls)
}

func TestCompleteSinglePairUngeocodable(t *testing.T) {
	env := newCompletionEnv(t)
	ctx := context.Background()

	s := env.addSource(t, "Depot-A", 13.0, 80.2)
	d := env.addDestination(t, "Nowhere", nil)

	_, err := env.engine.Complete(ctx, Scope{SourceID: s.ID, DestinationID: d.ID})
	assert.ErrorIs(t, err, domain.ErrUngeocodable)
}

func TestCompleteBulkSkipsUnresolvedDestinations(t *testing.T) {
	env := newCompletionEnv(t)
	ctx := context.Background()

	s := env.addSource(t, "Depot-A", 13.0, 80.2)
	d1 := env.addDestination(t, "Resolved", &domain.Coordinates{Lat: 12.9, Lon: 80.0})
	env.addDestination(t, "Unresolved", nil)
	env.provider.AddRoute(s.Coords, *d1.Coords, 7, 12)

	res, err := env.engine.Complete(ctx, Scope{})
	require.NoError(t, err)
	assert.Len(t, res.Rows, 1)
	assert.False(t, res.Truncated, "skipped unresolved destinations are out of scope, not truncation")
	assert.Equal(t, 0, env.provider.GeocodeCalls, "bulk scopes never geocode")
}

func TestCompleteUnknownScope(t *testing.T) {
	env := newCompletionEnv(t)
	ctx := context.Background()

	_, err := env.engine.Complete(ctx, Scope{SourceID: uuid.NewString()})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCompleteNoRouteNotPersisted(t *testing.T) {
	env := newCompletionEnv(t)
	ctx := context.Background()

	s := env.addSource(t, "Depot-A", 13.0, 80.2)
	d := env.addDestination(t, "Island", &domain.Coordinates{Lat: 6.9, Lon: 93.9})
	// No route registered: the batch cell stays absent.

	res, err := env.engine.Complete(ctx, Scope{SourceID: s.ID, DestinationID: d.ID})
	require.NoError(t, err)
	assert.Empty(t, res.Rows)
	assert.False(t, res.Truncated, "a genuine no-route answer is complete, not truncated")

	_, err = env.distances.Get(ctx, s.ID, d.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// Nothing was cached, so the pair is retried on the next run.
	_, err = env.engine.Complete(ctx, Scope{SourceID: s.ID, DestinationID: d.ID})
	require.NoError(t, err)
	assert.Equal(t, 2, env.provider.BatchCalls)
}

// spyCache records invalidations so tests can assert whether a run wrote.
type spyCache struct {
	invalidations int
}

func newSpyCache() *spyCache { return &spyCache{} }

func (c *spyCache) Get(ctx context.Context, key string) ([]byte, bool, error) { return nil, false, nil }

func (c *spyCache) Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	return nil
}

func (c *spyCache) Invalidate(ctx context.Context) error {
	c.invalidations++
	return nil
}

// maskingStore hides chosen pairs from GetMany, simulating a concurrent run
// that inserts a pair between this run's existence check and its write.
type maskingStore struct {
	ports.DistanceStore
	hidden map[domain.PairKey]bool
}

func (m *maskingStore) GetMany(ctx context.Context, pairs []domain.PairKey) (map[domain.PairKey]*domain.Distance, error) {
	got, err := m.DistanceStore.GetMany(ctx, pairs)
	if err != nil {
		return nil, err
	}
	for k := range got {
		if m.hidden[k] {
			delete(got, k)
		}
	}
	return got, nil
}

func TestCompleteSwallowsLostInsertRace(t *testing.T) {
	env := newCompletionEnv(t)
	ctx := context.Background()

	s := env.addSource(t, "Depot-A", 13.0, 80.2)
	d := env.addDestination(t, "Town-X", &domain.Coordinates{Lat: 12.9, Lon: 80.0})
	pair := domain.PairKey{SourceID: s.ID, DestinationID: d.ID}

	// The "other run" already cached the pair; this run's existence check
	// misses it and its insert loses the race.
	require.NoError(t, env.distances.Put(ctx, &domain.Distance{
		ID:              uuid.NewString(),
		SourceID:        s.ID,
		DestinationID:   d.ID,
		DistanceKm:      42.5,
		DurationMinutes: 31,
		CreatedAt:       time.Now().UTC(),
	}))
	env.engine.Distances = &maskingStore{
		DistanceStore: env.distances,
		hidden:        map[domain.PairKey]bool{pair: true},
	}
	env.provider.AddRoute(s.Coords, *d.Coords, 99, 99)

	cache := newSpyCache()
	env.engine.Cache = cache

	res, err := env.engine.Complete(ctx, Scope{SourceID: s.ID, DestinationID: d.ID})
	require.NoError(t, err, "a lost insert race must not fail the run")
	require.Len(t, res.Rows, 1)
	assert.False(t, res.Truncated)

	// The winner's row is authoritative; this run's computed values are
	// discarded.
	assert.Equal(t, 42.5, res.Rows[0].DistanceKm)
	assert.Equal(t, 31.0, res.Rows[0].DurationMinutes)

	// Exactly one row exists for the pair.
	_, total, err := env.distances.Query(ctx, ports.DistanceQuery{Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	stored, err := env.distances.Get(ctx, s.ID, d.ID)
	require.NoError(t, err)
	assert.Equal(t, 42.5, stored.DistanceKm)

	// Nothing was written, so the query cache stays untouched.
	assert.Equal(t, 0, cache.invalidations)
}

func TestCompleteFailedCellsTruncate(t *testing.T) {
	env := newCompletionEnv(t)
	ctx := context.Background()

	s := env.addSource(t, "Depot-A", 13.0, 80.2)
	d1 := env.addDestination(t, "Town-X", &domain.Coordinates{Lat: 12.9, Lon: 80.0})
	d2 := env.addDestination(t, "Town-Y", &domain.Coordinates{Lat: 12.8, Lon: 80.3})
	env.provider.AddRoute(s.Coords, *d1.Coords, 7, 12)
	env.provider.AddRoute(s.Coords, *d2.Coords, 9, 14)
	env.provider.FailedCells[route.MockPairKey(s.Coords, *d2.Coords)] = true

	res, err := env.engine.Complete(ctx, Scope{SourceID: s.ID})
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "Town-X", res.Rows[0].DestinationName)
	assert.True(t, res.Truncated, "a provider-failed cell is an uncomputed pair, not a no-route answer")
	assert.False(t, res.TimedOut)

	_, err = env.distances.Get(ctx, s.ID, d2.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// Once the provider recovers, the next run completes the scope.
	delete(env.provider.FailedCells, route.MockPairKey(s.Coords, *d2.Coords))
	res2, err := env.engine.Complete(ctx, Scope{SourceID: s.ID})
	require.NoError(t, err)
	assert.Len(t, res2.Rows, 2)
	assert.False(t, res2.Truncated)
}

func TestCompleteProviderNotConfigured(t *testing.T) {
	env := newCompletionEnv(t)
	env.engine.Provider = nil

	_, err := env.engine.Complete(context.Background(), Scope{})
	assert.ErrorIs(t, err, domain.ErrProviderNotConfigured)
}

func TestCompleteEmptyScope(t *testing.T) {
	env := newCompletionEnv(t)

	res, err := env.engine.Complete(context.Background(), Scope{})
	require.NoError(t, err)
	assert.Empty(t, res.Rows)
	assert.False(t, res.Truncated)
	assert.False(t, res.TimedOut)
	assert.Equal(t, 0, env.provider.BatchCalls)
}
