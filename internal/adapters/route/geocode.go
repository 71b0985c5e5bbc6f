package route

import (
	"context"
	"distance-matrix-service/internal/domain"
	"distance-matrix-service/internal/platform/obs"
	"distance-matrix-service/internal/ports"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
)

type geocodeResponse struct {
	Features []struct {
		Geometry struct {
			Coordinates []float64 `json:"coordinates"`
		} `json:"geometry"`
	} `json:"features"`
}

// geocodeQueries builds the ordered fallback chain for a destination lacking
// coordinates, most specific first. More qualifiers lower the odds of a
// false-positive match, so the chain is a confidence gradient.
func (p *Provider) geocodeQueries(q ports.GeocodeQuery) []string {
	name := strings.Join(strings.Fields(q.Name), " ")
	pincode := strings.TrimSpace(q.Pincode)
	address := strings.Join(strings.Fields(q.Address), " ")

	candidates := [][]string{
		{name, address, pincode},
		{name, pincode},
		{pincode},
		{name, address},
		{name},
	}

	seen := make(map[string]struct{}, len(candidates))
	out := make([]string, 0, len(candidates))
	for _, parts := range candidates {
		fields := make([]string, 0, len(parts))
		for _, part := range parts {
			if part != "" {
				fields = append(fields, part)
			}
		}
		if len(fields) == 0 {
			continue
		}

		text := strings.Join(fields, ", ")
		if _, ok := seen[text]; ok {
			continue
		}
		seen[text] = struct{}{}
		out = append(out, text)
	}

	return out
}

// Geocode resolves coordinates for a named place by walking the fallback
// chain and returning the first strategy that yields a hit. A nil result
// with nil error means every strategy missed.
func (p *Provider) Geocode(
	ctx context.Context,
	q ports.GeocodeQuery,
) (_ *domain.Coordinates, err error) {
	defer obs.Time(ctx, "route.Geocode")(&err)

	for _, text := range p.geocodeQueries(q) {
		coords, err := p.geocodeOnce(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("geocode %q: %w", text, err)
		}
		if coords != nil {
			return coords, nil
		}
		log.Printf("geocode miss: query=%q", text)
	}

	return nil, nil
}

// geocodeOnce issues a single search biased to the configured region.
func (p *Provider) geocodeOnce(ctx context.Context, text string) (*domain.Coordinates, error) {
	endpoint := p.baseURL + "/geocode/search"

	resp, err := p.doWithRetry(ctx, func() (*http.Request, error) {
		req, err := p.newRequest(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		q := req.URL.Query()
		q.Set("text", text)
		q.Set("boundary.country", p.region)
		q.Set("size", "1")
		req.URL.RawQuery = q.Encode()
		return req, nil
	})
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	var decoded geocodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode geocode response: %w", err)
	}

	if len(decoded.Features) == 0 {
		return nil, nil
	}

	coords := decoded.Features[0].Geometry.Coordinates
	if len(coords) != 2 {
		return nil, fmt.Errorf("invalid coordinate format in geocode response")
	}

	return &domain.Coordinates{Lon: coords[0], Lat: coords[1]}, nil
}
