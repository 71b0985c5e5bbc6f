package handlers

import (
	"distance-matrix-service/internal/api/dto"
	"distance-matrix-service/internal/domain"
	"distance-matrix-service/internal/ports"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SourceHandler exposes CRUD endpoints for origin locations.
type SourceHandler struct {
	Store ports.LocationStore
	Cache ports.QueryCache
}

func (h *SourceHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.SourceRequest
	if err := decodeStrict(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid json body")
		return
	}

	if strings.TrimSpace(req.Name) == "" {
		writeError(w, r, http.StatusBadRequest, "name is required")
		return
	}
	if req.Lat < -90 || req.Lat > 90 || req.Lon < -180 || req.Lon > 180 {
		writeError(w, r, http.StatusBadRequest, "lat/lon out of range")
		return
	}

	src := &domain.Source{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(req.Name),
		Address:   strings.TrimSpace(req.Address),
		Coords:    domain.Coordinates{Lat: req.Lat, Lon: req.Lon},
		CreatedAt: time.Now().UTC(),
	}

	if err := h.Store.CreateSource(r.Context(), src); err != nil {
		writeDomainError(w, r, err)
		return
	}

	// New entities change the cached stats counters.
	h.invalidate(r)

	writeJSON(w, r, http.StatusCreated, sourceToDTO(src))
}

func (h *SourceHandler) List(w http.ResponseWriter, r *http.Request) {
	sources, err := h.Store.ListSources(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	res := dto.ListSourcesResponse{Sources: make([]dto.SourceResponse, 0, len(sources))}
	for _, s := range sources {
		res.Sources = append(res.Sources, sourceToDTO(s))
	}

	writeJSON(w, r, http.StatusOK, res)
}

func (h *SourceHandler) Get(w http.ResponseWriter, r *http.Request) {
	src, err := h.Store.GetSource(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, sourceToDTO(src))
}

func (h *SourceHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req dto.SourceRequest
	if err := decodeStrict(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid json body")
		return
	}

	if strings.TrimSpace(req.Name) == "" {
		writeError(w, r, http.StatusBadRequest, "name is required")
		return
	}

	src := &domain.Source{
		ID:      r.PathValue("id"),
		Name:    strings.TrimSpace(req.Name),
		Address: strings.TrimSpace(req.Address),
		Coords:  domain.Coordinates{Lat: req.Lat, Lon: req.Lon},
	}

	if err := h.Store.UpdateSource(r.Context(), src); err != nil {
		writeDomainError(w, r, err)
		return
	}

	// Renames change the joined names in cached list payloads.
	h.invalidate(r)

	writeJSON(w, r, http.StatusOK, sourceToDTO(src))
}

// Delete removes a source and cascades its cached distances; the response
// reports exactly how many rows the cascade removed.
func (h *SourceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	cascaded, err := h.Store.DeleteSource(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	h.invalidate(r)

	writeJSON(w, r, http.StatusOK, dto.DeleteResponse{Deleted: true, CascadedDistances: cascaded})
}

func (h *SourceHandler) invalidate(r *http.Request) {
	if h.Cache == nil {
		return
	}
	if err := h.Cache.Invalidate(r.Context()); err != nil {
		log.Printf("query cache invalidation failed: err=%v", err)
	}
}

func sourceToDTO(s *domain.Source) dto.SourceResponse {
	return dto.SourceResponse{
		ID:        s.ID,
		Name:      s.Name,
		Address:   s.Address,
		Lat:       s.Coords.Lat,
		Lon:       s.Coords.Lon,
		CreatedAt: s.CreatedAt,
	}
}
