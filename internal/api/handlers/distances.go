package handlers

import (
	"bytes"
	"distance-matrix-service/internal/api/dto"
	"distance-matrix-service/internal/domain"
	"distance-matrix-service/internal/ports"
	"distance-matrix-service/internal/services"
	"log"
	"net/http"
	"strconv"
)

// DistanceHandler exposes the completion run plus the read-only list, stats
// and export endpoints over the pair cache.
type DistanceHandler struct {
	Engine  *services.CompletionEngine
	Queries *services.QueryService
}

// Complete runs a completion for the requested scope. Partial results are
// a success: the body's truncated/timed_out flags are the discriminator.
func (h *DistanceHandler) Complete(w http.ResponseWriter, r *http.Request) {
	var req dto.CompleteRequest
	if err := decodeStrict(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid json body")
		return
	}

	result, err := h.Engine.Complete(r.Context(), services.Scope{
		SourceID:      req.SourceID,
		DestinationID: req.DestinationID,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	res := dto.CompleteResponse{
		Rows:      rowsToDTO(result.Rows),
		Truncated: result.Truncated,
		TimedOut:  result.TimedOut,
		ElapsedMS: result.ElapsedMS,
	}

	writeJSON(w, r, http.StatusOK, res)
}

// List serves paginated, filtered reads; it never touches the provider.
func (h *DistanceHandler) List(w http.ResponseWriter, r *http.Request) {
	q := ports.DistanceQuery{
		SourceNameContains:      r.URL.Query().Get("source"),
		DestinationNameContains: r.URL.Query().Get("destination"),
		Page:                    queryInt(r, "page", 1),
		PageSize:                queryInt(r, "page_size", 20),
	}

	if q.PageSize > 200 {
		writeError(w, r, http.StatusBadRequest, "page_size must be at most 200")
		return
	}

	result, err := h.Queries.List(r.Context(), q)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	res := dto.ListDistancesResponse{
		Rows: rowsToDTO(result.Rows),
		Page: dto.PageMeta{
			Page:       result.Page.Page,
			PageSize:   result.Page.PageSize,
			Total:      result.Page.Total,
			TotalPages: result.Page.TotalPages,
			HasMore:    result.Page.HasMore,
		},
	}

	writeJSON(w, r, http.StatusOK, res)
}

func (h *DistanceHandler) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.Queries.Stats(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, dto.StatsResponse{
		SourceCount:       st.SourceCount,
		DestinationCount:  st.DestinationCount,
		CachedPairCount:   st.CachedPairCount,
		PossiblePairCount: st.PossiblePairCount,
		MissingPairCount:  st.MissingPairCount,
		CompletionPct:     st.CompletionPct,
	})
}

// Export serves the filtered cache snapshot as a CSV matrix. The snapshot is
// rendered into memory first so a mid-render failure yields a clean error
// response instead of a 200 with a partial body.
func (h *DistanceHandler) Export(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	err := h.Queries.ExportMatrix(
		r.Context(), &buf,
		r.URL.Query().Get("source"),
		r.URL.Query().Get("destination"),
	)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="distances.csv"`)
	if _, err := buf.WriteTo(w); err != nil {
		log.Printf("export write failed: err=%v", err)
	}
}

func rowsToDTO(rows []*domain.DistanceRow) []dto.DistanceRowResponse {
	out := make([]dto.DistanceRowResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, dto.DistanceRowResponse{
			ID:              row.ID,
			Source:          dto.LocationSummary{ID: row.SourceID, Name: row.SourceName},
			Destination:     dto.LocationSummary{ID: row.DestinationID, Name: row.DestinationName},
			DistanceKm:      row.DistanceKm,
			DurationMinutes: row.DurationMinutes,
			DirectionsLink:  row.DirectionsLink,
			CreatedAt:       row.CreatedAt,
		})
	}
	return out
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}
