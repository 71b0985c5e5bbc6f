package ports

import (
	"context"
	"distance-matrix-service/internal/domain"
)

// RouteResult is one computed provider answer for a pair.
// Kilometers are rounded to 2 decimals, minutes to the nearest integer.
type RouteResult struct {
	DistanceKm      float64
	DurationMinutes float64
	RouteMeta       string
	DirectionsLink  string
}

// GeocodeQuery carries the fields fed into the geocode fallback chain.
type GeocodeQuery struct {
	Name    string
	Pincode string
	Address string
}

// RouteProvider is the boundary to the external routing/geocoding service.
//
// ComputeOne and ComputeBatch distinguish "no viable route" (nil result, nil
// error) from transport/auth failures (non-nil error). Rate limiting between
// successive calls is a caller responsibility: budget policy differs between
// interactive and background contexts.
type RouteProvider interface {
	// Return the driving distance between two coordinates, or nil when the
	// provider reports that no route exists.
	ComputeOne(ctx context.Context, origin, destination domain.Coordinates) (*RouteResult, error)

	// Return a matrix with one row per origin and one cell per destination.
	// A nil cell with failed[i][j] == false is a genuine no-route answer;
	// failed[i][j] == true marks a cell whose chunk call did not succeed, so
	// its value is unknown. A chunk failure never fails the whole call; only
	// a total failure returns a non-nil error.
	ComputeBatch(ctx context.Context, origins, destinations []domain.Coordinates) (results [][]*RouteResult, failed [][]bool, err error)

	// Resolve coordinates for a free-text place using an ordered list of
	// fallback query strategies. Returns nil when every strategy misses.
	Geocode(ctx context.Context, q GeocodeQuery) (*domain.Coordinates, error)
}
