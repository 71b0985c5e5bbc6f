package route

import (
	"context"
	"distance-matrix-service/internal/domain"
	"distance-matrix-service/internal/ports"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"
)

// Per-call limits of the provider's matrix endpoint. Larger inputs are
// chunked and stitched back together in ComputeBatch.
const (
	maxMatrixOrigins      = 10
	maxMatrixDestinations = 25
)

// Provider implements the RouteProvider port against an
// OpenRouteService-compatible API.
//
// It handles unit conversion (meters to km, seconds to minutes), per-request
// chunking, and retry/backoff for transient failures. The provider is
// stateless and safe for concurrent use. It deliberately does not rate-limit
// sequential calls: pacing policy belongs to the caller.
type Provider struct {
	session *http.Client
	apiKey  string
	baseURL string
	profile string
	region  string
}

type Option func(*Provider)

// WithBaseURL points the provider at a non-default API host (used in tests).
func WithBaseURL(u string) Option {
	return func(p *Provider) { p.baseURL = u }
}

// WithRegion sets the ISO country code used to bias geocode queries.
func WithRegion(code string) Option {
	return func(p *Provider) { p.region = code }
}

func NewProvider(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, domain.ErrProviderNotConfigured
	}

	p := &Provider{
		session: &http.Client{Timeout: 10 * time.Second},
		apiKey:  apiKey,
		baseURL: "https://api.openrouteservice.org",
		profile: "driving-car",
		region:  "IN",
	}
	for _, opt := range opts {
		opt(p)
	}

	return p, nil
}

// routeMeta is the opaque blob persisted alongside each cached distance.
type routeMeta struct {
	DistanceMeters  float64 `json:"distance_m"`
	DurationSeconds float64 `json:"duration_s"`
	Profile         string  `json:"profile"`
}

// Convert one raw matrix cell into a RouteResult. Nil cell values mean the
// provider found no viable route; that is an absent result, not an error.
func (p *Provider) cellToResult(origin, destination domain.Coordinates, meters, seconds *float64) *ports.RouteResult {
	if meters == nil || seconds == nil {
		return nil
	}

	meta, err := json.Marshal(routeMeta{
		DistanceMeters:  *meters,
		DurationSeconds: *seconds,
		Profile:         p.profile,
	})
	if err != nil {
		meta = nil
	}

	return &ports.RouteResult{
		DistanceKm:      math.Round(*meters/1000*100) / 100,
		DurationMinutes: math.Round(*seconds / 60),
		RouteMeta:       string(meta),
		DirectionsLink:  directionsLink(origin, destination),
	}
}

// directionsLink builds a shareable deep link for a computed pair.
func directionsLink(origin, destination domain.Coordinates) string {
	return fmt.Sprintf(
		"https://www.google.com/maps/dir/?api=1&origin=%f,%f&destination=%f,%f",
		origin.Lat, origin.Lon, destination.Lat, destination.Lon,
	)
}

// ComputeOne returns the driving distance between two coordinates, or nil
// when no route exists between them.
func (p *Provider) ComputeOne(
	ctx context.Context,
	origin, destination domain.Coordinates,
) (*ports.RouteResult, error) {
	cells, err := p.fetchMatrixChunk(ctx, []domain.Coordinates{origin}, []domain.Coordinates{destination})
	if err != nil {
		return nil, fmt.Errorf("compute one %v -> %v: %w", origin, destination, err)
	}

	if len(cells) != 1 || len(cells[0]) != 1 {
		return nil, errors.New("compute one: provider returned an unexpected matrix shape")
	}

	cell := cells[0][0]
	return p.cellToResult(origin, destination, cell.meters, cell.seconds), nil
}
