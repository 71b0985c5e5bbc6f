package services

import (
	"context"
	"distance-matrix-service/internal/ports"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
)

// exportPageSize bounds each store round trip while paging the full snapshot.
const exportPageSize = 500

// ExportMatrix writes the (optionally filtered) pair cache as a CSV matrix:
// one row per source, one column per destination, kilometer values in the
// cells, blank where a pair is not cached.
func (s *QueryService) ExportMatrix(ctx context.Context, w io.Writer, sourceFilter, destFilter string) error {
	q := ports.DistanceQuery{
		SourceNameContains:      sourceFilter,
		DestinationNameContains: destFilter,
		Page:                    1,
		PageSize:                exportPageSize,
	}

	type cellKey struct{ src, dst string }
	cells := map[cellKey]float64{}
	srcSeen := map[string]struct{}{}
	dstSeen := map[string]struct{}{}
	srcNames := []string{}
	dstNames := []string{}

	for {
		rows, total, err := s.Distances.Query(ctx, q)
		if err != nil {
			return fmt.Errorf("export matrix: page %d: %w", q.Page, err)
		}

		for _, r := range rows {
			cells[cellKey{src: r.SourceName, dst: r.DestinationName}] = r.DistanceKm
			if _, ok := srcSeen[r.SourceName]; !ok {
				srcSeen[r.SourceName] = struct{}{}
				srcNames = append(srcNames, r.SourceName)
			}
			if _, ok := dstSeen[r.DestinationName]; !ok {
				dstSeen[r.DestinationName] = struct{}{}
				dstNames = append(dstNames, r.DestinationName)
			}
		}

		if q.Page*q.PageSize >= total {
			break
		}
		q.Page++
	}

	sort.Strings(srcNames)
	sort.Strings(dstNames)

	cw := csv.NewWriter(w)

	header := make([]string, 0, 1+len(dstNames))
	header = append(header, "source")
	header = append(header, dstNames...)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("export matrix: write header: %w", err)
	}

	record := make([]string, 1+len(dstNames))
	for _, src := range srcNames {
		record[0] = src
		for i, dst := range dstNames {
			if km, ok := cells[cellKey{src: src, dst: dst}]; ok {
				record[i+1] = strconv.FormatFloat(km, 'f', 2, 64)
			} else {
				record[i+1] = ""
			}
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("export matrix: write row %q: %w", src, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("export matrix: flush: %w", err)
	}

	return nil
}
