package route

import (
	"bytes"
	"context"
	"distance-matrix-service/internal/domain"
	"distance-matrix-service/internal/platform/obs"
	"distance-matrix-service/internal/ports"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
)

type matrixRequest struct {
	Locations    [][]float64 `json:"locations"`
	Sources      []int       `json:"sources"`
	Destinations []int       `json:"destinations"`
	Metrics      []string    `json:"metrics"`
}

type matrixResponse struct {
	Distances [][]*float64 `json:"distances"`
	Durations [][]*float64 `json:"durations"`
}

// rawCell carries one unconverted matrix cell; nil pointers mean no route.
type rawCell struct {
	meters  *float64
	seconds *float64
}

// ComputeBatch returns a matrix of results with one row per origin, chunking
// the input to the provider's per-call limits and stitching sub-results back
// in input order. A failed chunk marks its cells in the failed mask instead
// of failing the whole call, so partial provider outages degrade gracefully
// while callers can still tell an unknown cell from a no-route answer.
func (p *Provider) ComputeBatch(
	ctx context.Context,
	origins, destinations []domain.Coordinates,
) (_ [][]*ports.RouteResult, _ [][]bool, err error) {
	defer obs.Time(ctx, "route.ComputeBatch")(&err)

	out := make([][]*ports.RouteResult, len(origins))
	failed := make([][]bool, len(origins))
	for i := range out {
		out[i] = make([]*ports.RouteResult, len(destinations))
		failed[i] = make([]bool, len(destinations))
	}
	if len(origins) == 0 || len(destinations) == 0 {
		return out, failed, nil
	}

	anyOK := false
	var lastErr error

	for oStart := 0; oStart < len(origins); oStart += maxMatrixOrigins {
		oEnd := min(oStart+maxMatrixOrigins, len(origins))

		for dStart := 0; dStart < len(destinations); dStart += maxMatrixDestinations {
			dEnd := min(dStart+maxMatrixDestinations, len(destinations))

			if err := ctx.Err(); err != nil {
				return nil, nil, err
			}

			cells, err := p.fetchMatrixChunk(ctx, origins[oStart:oEnd], destinations[dStart:dEnd])
			if err != nil {
				// Mark this chunk's cells unknown; other chunks still count.
				log.Printf("matrix chunk failed: origins=%d..%d dests=%d..%d err=%v", oStart, oEnd, dStart, dEnd, err)
				lastErr = err
				for i := oStart; i < oEnd; i++ {
					for j := dStart; j < dEnd; j++ {
						failed[i][j] = true
					}
				}
				continue
			}
			anyOK = true

			for i, row := range cells {
				for j, cell := range row {
					out[oStart+i][dStart+j] = p.cellToResult(
						origins[oStart+i], destinations[dStart+j], cell.meters, cell.seconds,
					)
				}
			}
		}
	}

	// Only a total failure surfaces as an error; callers fall back to
	// sequential single calls in that case.
	if !anyOK && lastErr != nil {
		return nil, nil, fmt.Errorf("compute batch: all chunks failed: %w", lastErr)
	}

	return out, failed, nil
}

// fetchMatrixChunk issues one matrix call within the provider's size limits
// and returns raw per-cell metrics in request order.
func (p *Provider) fetchMatrixChunk(
	ctx context.Context,
	origins, destinations []domain.Coordinates,
) ([][]rawCell, error) {
	endpoint := fmt.Sprintf("%s/v2/matrix/%s", p.baseURL, p.profile)

	locations := make([][]float64, 0, len(origins)+len(destinations))
	srcIdx := make([]int, 0, len(origins))
	for _, c := range origins {
		srcIdx = append(srcIdx, len(locations))
		locations = append(locations, c.CoordsToList())
	}
	dstIdx := make([]int, 0, len(destinations))
	for _, c := range destinations {
		dstIdx = append(dstIdx, len(locations))
		locations = append(locations, c.CoordsToList())
	}

	bodyObj := matrixRequest{
		Locations:    locations,
		Sources:      srcIdx,
		Destinations: dstIdx,
		Metrics:      []string{"distance", "duration"},
	}

	payload, err := json.Marshal(bodyObj)
	if err != nil {
		return nil, fmt.Errorf("marshal matrix request: %w", err)
	}

	resp, err := p.doWithRetry(ctx, func() (*http.Request, error) {
		body := bytes.NewReader(payload)
		return p.newRequest(ctx, http.MethodPost, endpoint, body)
	})
	if err != nil {
		return nil, fmt.Errorf("matrix request failed: %w", err)
	}
	defer resp.Body.Close()

	var mr matrixResponse
	if err := json.NewDecoder(resp.Body).Decode(&mr); err != nil {
		return nil, fmt.Errorf("decode matrix response: %w", err)
	}

	if len(mr.Distances) != len(origins) || len(mr.Durations) != len(origins) {
		return nil, fmt.Errorf(
			"expected %d source rows; got distances=%d durations=%d",
			len(origins), len(mr.Distances), len(mr.Durations),
		)
	}

	cells := make([][]rawCell, len(origins))
	for i := range origins {
		if len(mr.Distances[i]) != len(destinations) || len(mr.Durations[i]) != len(destinations) {
			return nil, fmt.Errorf(
				"row %d lengths do not match destinations: distances=%d durations=%d destinations=%d",
				i, len(mr.Distances[i]), len(mr.Durations[i]), len(destinations),
			)
		}

		cells[i] = make([]rawCell, len(destinations))
		for j := range destinations {
			cells[i][j] = rawCell{meters: mr.Distances[i][j], seconds: mr.Durations[i][j]}
		}
	}

	return cells, nil
}
