package route

import (
	"context"
	"distance-matrix-service/internal/domain"
	"distance-matrix-service/internal/ports"
	"errors"
	"fmt"
)

// MockProvider is an in-memory RouteProvider for tests. Results are keyed by
// coordinate pair; pairs absent from Routes behave as "no route", and pairs
// in FailedCells come back marked failed, as if their chunk call broke. Call
// counters let tests assert how many provider invocations a run performed.
type MockProvider struct {
	Routes       map[string]ports.RouteResult
	Geocodes     map[string]domain.Coordinates
	FailedCells  map[string]bool
	FailBatch    bool
	FailOne      bool
	BatchCalls   int
	OneCalls     int
	GeocodeCalls int
}

func NewMockProvider() *MockProvider {
	return &MockProvider{
		Routes:      map[string]ports.RouteResult{},
		Geocodes:    map[string]domain.Coordinates{},
		FailedCells: map[string]bool{},
	}
}

func MockPairKey(origin, destination domain.Coordinates) string {
	return fmt.Sprintf("%.6f,%.6f|%.6f,%.6f", origin.Lat, origin.Lon, destination.Lat, destination.Lon)
}

// AddRoute registers a bidirectionally distinct result for one pair.
func (m *MockProvider) AddRoute(origin, destination domain.Coordinates, km, minutes float64) {
	m.Routes[MockPairKey(origin, destination)] = ports.RouteResult{
		DistanceKm:      km,
		DurationMinutes: minutes,
		DirectionsLink:  directionsLink(origin, destination),
	}
}

func (m *MockProvider) ComputeOne(
	ctx context.Context,
	origin, destination domain.Coordinates,
) (*ports.RouteResult, error) {
	m.OneCalls++
	if m.FailOne {
		return nil, errors.New("mock provider: single call failure")
	}

	r, ok := m.Routes[MockPairKey(origin, destination)]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (m *MockProvider) ComputeBatch(
	ctx context.Context,
	origins, destinations []domain.Coordinates,
) ([][]*ports.RouteResult, [][]bool, error) {
	m.BatchCalls++
	if m.FailBatch {
		return nil, nil, errors.New("mock provider: batch failure")
	}

	out := make([][]*ports.RouteResult, len(origins))
	failed := make([][]bool, len(origins))
	for i, o := range origins {
		out[i] = make([]*ports.RouteResult, len(destinations))
		failed[i] = make([]bool, len(destinations))
		for j, d := range destinations {
			key := MockPairKey(o, d)
			if m.FailedCells[key] {
				failed[i][j] = true
				continue
			}
			if r, ok := m.Routes[key]; ok {
				cp := r
				out[i][j] = &cp
			}
		}
	}

	return out, failed, nil
}

func (m *MockProvider) Geocode(
	ctx context.Context,
	q ports.GeocodeQuery,
) (*domain.Coordinates, error) {
	m.GeocodeCalls++

	if c, ok := m.Geocodes[q.Name]; ok {
		cp := c
		return &cp, nil
	}
	return nil, nil
}
