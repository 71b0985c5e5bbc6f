package services

import (
	"context"
	"distance-matrix-service/internal/domain"
	"distance-matrix-service/internal/platform/obs"
	"distance-matrix-service/internal/ports"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"
)

// CompletionConfig carries the environment-dependent budgets of a run.
// Resource-constrained deployments use smaller batches and shorter budgets.
type CompletionConfig struct {
	// Maximum missing pairs attempted through the batch path in one run.
	BatchSizeLimit int
	// Maximum sequential single calls when the batch path fails.
	FallbackLimit int
	// Wall-clock ceiling for one run; exceeding it forces partial completion.
	Budget time.Duration
	// Pause between successive single provider calls (provider quota pacing).
	CallDelay time.Duration
}

func (c CompletionConfig) withDefaults() CompletionConfig {
	if c.BatchSizeLimit <= 0 {
		c.BatchSizeLimit = 100
	}
	if c.FallbackLimit <= 0 {
		c.FallbackLimit = 8
	}
	if c.Budget <= 0 {
		c.Budget = 55 * time.Second
	}
	if c.CallDelay <= 0 {
		c.CallDelay = 150 * time.Millisecond
	}
	return c
}

// Scope selects the pairs a completion run targets. Empty IDs widen the
// scope: both empty means the full sources x destinations matrix.
type Scope struct {
	SourceID      string
	DestinationID string
}

// CompletionResult is the single normalized response shape for a run.
// Truncated means some requested pairs were left uncomputed; TimedOut means
// the wall-clock budget forced an early exit. Both partial and complete runs
// return every row assembled so far.
type CompletionResult struct {
	Rows      []*domain.DistanceRow
	Truncated bool
	TimedOut  bool
	ElapsedMS int64
}

// CompletionEngine produces the full cached row set for a scope, computing
// only what is missing and never violating the one-row-per-pair invariant.
// Each run is self-contained; re-running a truncated scope resumes naturally
// because only still-missing pairs are recomputed.
type CompletionEngine struct {
	Locations ports.LocationStore
	Distances ports.DistanceStore
	Provider  ports.RouteProvider
	Cache     ports.QueryCache
	Config    CompletionConfig
}

// candidate is one plannable pair with its resolved endpoints.
type candidate struct {
	key    domain.PairKey
	source *domain.Source
	dest   *domain.Destination
}

// Complete runs the scope to completion or to budget exhaustion.
func (e *CompletionEngine) Complete(ctx context.Context, scope Scope) (_ *CompletionResult, err error) {
	defer obs.Time(ctx, "completion.Complete")(&err)

	if e.Provider == nil {
		return nil, domain.ErrProviderNotConfigured
	}

	cfg := e.Config.withDefaults()
	start := time.Now()

	candidates, err := e.plan(ctx, scope)
	if err != nil {
		return nil, err
	}

	// One bulk existence check for the whole candidate set. Looping single
	// lookups here would reintroduce O(n) round trips per request.
	pairs := make([]domain.PairKey, 0, len(candidates))
	for _, c := range candidates {
		pairs = append(pairs, c.key)
	}
	existing, err := e.Distances.GetMany(ctx, pairs)
	if err != nil {
		return nil, fmt.Errorf("complete scope: bulk existence check: %w", err)
	}

	rows := make(map[domain.PairKey]*domain.DistanceRow, len(candidates))
	missing := make([]candidate, 0, len(candidates))
	for _, c := range candidates {
		if d, ok := existing[c.key]; ok {
			rows[c.key] = joinRow(d, c.source, c.dest)
			continue
		}
		missing = append(missing, c)
	}

	res := &CompletionResult{}
	if len(missing) > 0 {
		res.Truncated, res.TimedOut = e.fill(ctx, cfg, start, missing, rows)
	}

	res.Rows = sortedRows(rows)
	res.ElapsedMS = time.Since(start).Milliseconds()

	return res, nil
}

// plan resolves the scope to concrete candidate pairs. Destinations without
// coordinates are excluded from bulk scopes; a specifically requested single
// pair gets one geocode attempt before giving up.
func (e *CompletionEngine) plan(ctx context.Context, scope Scope) ([]candidate, error) {
	var sources []*domain.Source
	if scope.SourceID != "" {
		s, err := e.Locations.GetSource(ctx, scope.SourceID)
		if err != nil {
			return nil, fmt.Errorf("plan scope: %w", err)
		}
		sources = []*domain.Source{s}
	} else {
		var err error
		sources, err = e.Locations.ListSources(ctx)
		if err != nil {
			return nil, fmt.Errorf("plan scope: list sources: %w", err)
		}
	}

	var dests []*domain.Destination
	if scope.DestinationID != "" {
		d, err := e.Locations.GetDestination(ctx, scope.DestinationID)
		if err != nil {
			return nil, fmt.Errorf("plan scope: %w", err)
		}
		dests = []*domain.Destination{d}
	} else {
		var err error
		dests, err = e.Locations.ListDestinations(ctx)
		if err != nil {
			return nil, fmt.Errorf("plan scope: list destinations: %w", err)
		}
	}

	singlePair := scope.SourceID != "" && scope.DestinationID != ""

	resolved := make([]*domain.Destination, 0, len(dests))
	for _, d := range dests {
		if d.HasCoords() {
			resolved = append(resolved, d)
			continue
		}

		if !singlePair {
			// Bulk scopes silently skip unresolved destinations.
			continue
		}

		coords, err := e.geocodeDestination(ctx, d)
		if err != nil {
			return nil, err
		}
		d.Coords = coords
		resolved = append(resolved, d)
	}

	out := make([]candidate, 0, len(sources)*len(resolved))
	for _, s := range sources {
		for _, d := range resolved {
			out = append(out, candidate{
				key:    domain.PairKey{SourceID: s.ID, DestinationID: d.ID},
				source: s,
				dest:   d,
			})
		}
	}

	return out, nil
}

// geocodeDestination attempts the fallback chain once and persists a hit
// onto the destination so later runs skip the provider entirely.
func (e *CompletionEngine) geocodeDestination(ctx context.Context, d *domain.Destination) (*domain.Coordinates, error) {
	coords, err := e.Provider.Geocode(ctx, ports.GeocodeQuery{
		Name:    d.Name,
		Pincode: d.Pincode,
		Address: d.Address,
	})
	if err != nil {
		return nil, fmt.Errorf("plan scope: geocode destination %q: %w", d.Name, err)
	}
	if coords == nil {
		return nil, fmt.Errorf("plan scope: destination %q: %w", d.Name, domain.ErrUngeocodable)
	}

	if err := e.Locations.UpdateDestinationCoords(ctx, d.ID, *coords); err != nil {
		// The resolved coordinates are still usable within this run.
		log.Printf("persist geocoded coords failed: destination=%s err=%v", d.ID, err)
	}

	return coords, nil
}

// fill computes as many missing pairs as budget allows, preferring one batch
// call and degrading to a bounded number of sequential calls. Returns the
// truncated and timed-out flags for the run.
func (e *CompletionEngine) fill(
	ctx context.Context,
	cfg CompletionConfig,
	start time.Time,
	missing []candidate,
	rows map[domain.PairKey]*domain.DistanceRow,
) (truncated, timedOut bool) {
	expired := func() bool { return time.Since(start) >= cfg.Budget }

	if expired() {
		return true, true
	}

	attempt := missing
	if len(attempt) > cfg.BatchSizeLimit {
		attempt = attempt[:cfg.BatchSizeLimit]
		truncated = true
	}

	computed, batchErr := e.batchCompute(ctx, attempt)
	if batchErr != nil {
		log.Printf("batch compute failed, falling back to single calls: err=%v", batchErr)
		computed, timedOut = e.fallbackCompute(ctx, cfg, start, attempt)
		if timedOut {
			truncated = true
		}
		if len(computed) < len(attempt) {
			truncated = true
		}
	}

	wrote := false
	for _, c := range attempt {
		r, attempted := computed[c.key]
		if !attempted {
			// Outside the fallback bound, a failed chunk cell, or budget cut.
			truncated = true
			continue
		}
		if r == nil {
			// No viable route: a legitimate absent result, never persisted
			// and never retried within the same run.
			continue
		}

		row, didWrite := e.persist(ctx, c, r)
		if row != nil {
			rows[c.key] = row
		}
		wrote = wrote || didWrite
	}

	if wrote && e.Cache != nil {
		if err := e.Cache.Invalidate(ctx); err != nil {
			log.Printf("query cache invalidation failed: err=%v", err)
		}
	}

	return truncated, timedOut
}

// batchCompute runs one rectangular matrix call covering the unique origins
// and destinations of the attempted pairs, then keeps only the cells that
// correspond to actually-missing pairs.
func (e *CompletionEngine) batchCompute(
	ctx context.Context,
	attempt []candidate,
) (map[domain.PairKey]*ports.RouteResult, error) {
	srcIdx := map[string]int{}
	dstIdx := map[string]int{}
	origins := make([]domain.Coordinates, 0, len(attempt))
	dests := make([]domain.Coordinates, 0, len(attempt))
	for _, c := range attempt {
		if _, ok := srcIdx[c.source.ID]; !ok {
			srcIdx[c.source.ID] = len(origins)
			origins = append(origins, c.source.Coords)
		}
		if _, ok := dstIdx[c.dest.ID]; !ok {
			dstIdx[c.dest.ID] = len(dests)
			dests = append(dests, *c.dest.Coords)
		}
	}

	matrix, failedCells, err := e.Provider.ComputeBatch(ctx, origins, dests)
	if err != nil {
		return nil, err
	}
	if len(matrix) != len(origins) || len(failedCells) != len(origins) {
		return nil, fmt.Errorf("batch compute: provider returned %d rows for %d origins", len(matrix), len(origins))
	}

	out := make(map[domain.PairKey]*ports.RouteResult, len(attempt))
	for _, c := range attempt {
		i, j := srcIdx[c.source.ID], dstIdx[c.dest.ID]
		row, failedRow := matrix[i], failedCells[i]
		if len(row) != len(dests) || len(failedRow) != len(dests) {
			return nil, fmt.Errorf("batch compute: provider row has %d cells for %d destinations", len(row), len(dests))
		}

		// A failed cell stays out of the map entirely, so the pair counts
		// as unattempted, the run reports truncation, and a later run
		// retries it. A nil cell in the map is a genuine no-route answer.
		if failedRow[j] {
			continue
		}
		out[c.key] = row[j]
	}

	return out, nil
}

// fallbackCompute serially computes pairs when the batch path degrades,
// bounded by FallbackLimit and the wall-clock budget, pausing CallDelay
// between calls to respect provider quotas.
func (e *CompletionEngine) fallbackCompute(
	ctx context.Context,
	cfg CompletionConfig,
	start time.Time,
	attempt []candidate,
) (map[domain.PairKey]*ports.RouteResult, bool) {
	out := make(map[domain.PairKey]*ports.RouteResult, cfg.FallbackLimit)

	limit := cfg.FallbackLimit
	if limit > len(attempt) {
		limit = len(attempt)
	}

	for i := 0; i < limit; i++ {
		if time.Since(start) >= cfg.Budget {
			return out, true
		}

		if i > 0 {
			timer := time.NewTimer(cfg.CallDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return out, true
			case <-timer.C:
			}
		}

		c := attempt[i]
		r, err := e.Provider.ComputeOne(ctx, c.source.Coords, *c.dest.Coords)
		if err != nil {
			// Skip the pair; the rest of the scope still completes.
			log.Printf("fallback compute failed: pair=%s->%s err=%v", c.key.SourceID, c.key.DestinationID, err)
			continue
		}
		out[c.key] = r
	}

	return out, false
}

// persist writes one computed pair, converting a lost insert race into a
// benign re-read of the winner's row. Returns the row (nil if unavailable)
// and whether this call actually inserted.
func (e *CompletionEngine) persist(
	ctx context.Context,
	c candidate,
	r *ports.RouteResult,
) (*domain.DistanceRow, bool) {
	d := &domain.Distance{
		ID:              uuid.NewString(),
		SourceID:        c.key.SourceID,
		DestinationID:   c.key.DestinationID,
		DistanceKm:      r.DistanceKm,
		DurationMinutes: r.DurationMinutes,
		RouteMeta:       r.RouteMeta,
		DirectionsLink:  r.DirectionsLink,
		CreatedAt:       time.Now().UTC(),
	}

	err := e.Distances.Put(ctx, d)
	if err == nil {
		return joinRow(d, c.source, c.dest), true
	}

	if errors.Is(err, domain.ErrConflict) {
		// A concurrent run won the insert race; its row is authoritative.
		stored, getErr := e.Distances.Get(ctx, c.key.SourceID, c.key.DestinationID)
		if getErr != nil {
			log.Printf("re-read after conflict failed: pair=%s->%s err=%v", c.key.SourceID, c.key.DestinationID, getErr)
			return nil, false
		}
		return joinRow(stored, c.source, c.dest), false
	}

	log.Printf("persist distance failed: pair=%s->%s err=%v", c.key.SourceID, c.key.DestinationID, err)
	return nil, false
}

func joinRow(d *domain.Distance, s *domain.Source, dst *domain.Destination) *domain.DistanceRow {
	return &domain.DistanceRow{
		Distance:        *d,
		SourceName:      s.Name,
		DestinationName: dst.Name,
	}
}

// sortedRows flattens the pair map into the deterministic client ordering:
// source name, then destination name, then pair identity.
func sortedRows(rows map[domain.PairKey]*domain.DistanceRow) []*domain.DistanceRow {
	out := make([]*domain.DistanceRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, r)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].SourceName != out[j].SourceName {
			return out[i].SourceName < out[j].SourceName
		}
		if out[i].DestinationName != out[j].DestinationName {
			return out[i].DestinationName < out[j].DestinationName
		}
		if out[i].SourceID != out[j].SourceID {
			return out[i].SourceID < out[j].SourceID
		}
		return out[i].DestinationID < out[j].DestinationID
	})

	return out
}
