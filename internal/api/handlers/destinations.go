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

// DestinationHandler exposes CRUD endpoints for delivery locations.
// Destinations may be registered without coordinates; the completion engine
// geocodes them on demand.
type DestinationHandler struct {
	Store ports.LocationStore
	Cache ports.QueryCache
}

func (h *DestinationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.DestinationRequest
	if err := decodeStrict(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid json body")
		return
	}

	coords, errMsg := coordsFromDTO(req.Lat, req.Lon)
	if errMsg != "" {
		writeError(w, r, http.StatusBadRequest, errMsg)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, r, http.StatusBadRequest, "name is required")
		return
	}

	dest := &domain.Destination{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(req.Name),
		Pincode:   strings.TrimSpace(req.Pincode),
		Address:   strings.TrimSpace(req.Address),
		Coords:    coords,
		CreatedAt: time.Now().UTC(),
	}

	if err := h.Store.CreateDestination(r.Context(), dest); err != nil {
		writeDomainError(w, r, err)
		return
	}

	// New entities change the cached stats counters.
	h.invalidate(r)

	writeJSON(w, r, http.StatusCreated, destinationToDTO(dest))
}

func (h *DestinationHandler) List(w http.ResponseWriter, r *http.Request) {
	dests, err := h.Store.ListDestinations(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	res := dto.ListDestinationsResponse{Destinations: make([]dto.DestinationResponse, 0, len(dests))}
	for _, d := range dests {
		res.Destinations = append(res.Destinations, destinationToDTO(d))
	}

	writeJSON(w, r, http.StatusOK, res)
}

func (h *DestinationHandler) Get(w http.ResponseWriter, r *http.Request) {
	dest, err := h.Store.GetDestination(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, destinationToDTO(dest))
}

func (h *DestinationHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req dto.DestinationRequest
	if err := decodeStrict(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid json body")
		return
	}

	coords, errMsg := coordsFromDTO(req.Lat, req.Lon)
	if errMsg != "" {
		writeError(w, r, http.StatusBadRequest, errMsg)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, r, http.StatusBadRequest, "name is required")
		return
	}

	dest := &domain.Destination{
		ID:      r.PathValue("id"),
		Name:    strings.TrimSpace(req.Name),
		Pincode: strings.TrimSpace(req.Pincode),
		Address: strings.TrimSpace(req.Address),
		Coords:  coords,
	}

	if err := h.Store.UpdateDestination(r.Context(), dest); err != nil {
		writeDomainError(w, r, err)
		return
	}

	// Renames change the joined names in cached list payloads.
	h.invalidate(r)

	writeJSON(w, r, http.StatusOK, destinationToDTO(dest))
}

func (h *DestinationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	cascaded, err := h.Store.DeleteDestination(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	h.invalidate(r)

	writeJSON(w, r, http.StatusOK, dto.DeleteResponse{Deleted: true, CascadedDistances: cascaded})
}

func (h *DestinationHandler) invalidate(r *http.Request) {
	if h.Cache == nil {
		return
	}
	if err := h.Cache.Invalidate(r.Context()); err != nil {
		log.Printf("query cache invalidation failed: err=%v", err)
	}
}

// coordsFromDTO validates the optional coordinate pair: both present and in
// range, or both absent.
func coordsFromDTO(lat, lon *float64) (*domain.Coordinates, string) {
	if (lat == nil) != (lon == nil) {
		return nil, "lat and lon must be provided together"
	}
	if lat == nil {
		return nil, ""
	}
	if *lat < -90 || *lat > 90 || *lon < -180 || *lon > 180 {
		return nil, "lat/lon out of range"
	}
	return &domain.Coordinates{Lat: *lat, Lon: *lon}, ""
}

func destinationToDTO(d *domain.Destination) dto.DestinationResponse {
	res := dto.DestinationResponse{
		ID:        d.ID,
		Name:      d.Name,
		Pincode:   d.Pincode,
		Address:   d.Address,
		CreatedAt: d.CreatedAt,
	}
	if d.Coords != nil {
		lat, lon := d.Coords.Lat, d.Coords.Lon
		res.Lat, res.Lon = &lat, &lon
	}
	return res
}
