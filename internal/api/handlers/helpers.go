package handlers

import (
	"distance-matrix-service/internal/domain"
	"encoding/json"
	"errors"
	"log"
	"net/http"
)

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("encode failed: method=%s path=%s err=%v", r.Method, r.URL.Path, err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, r, status, map[string]string{"error": msg})
}

// writeDomainError maps the error taxonomy onto HTTP statuses. Anything
// unmapped is an internal error and its detail stays out of the response.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "resource not found")
	case errors.Is(err, domain.ErrUngeocodable):
		writeError(w, r, http.StatusUnprocessableEntity, "destination could not be geocoded")
	case errors.Is(err, domain.ErrProviderNotConfigured):
		writeError(w, r, http.StatusServiceUnavailable, "route provider not configured")
	case errors.Is(err, domain.ErrConflict):
		writeError(w, r, http.StatusConflict, "already exists")
	default:
		log.Printf("request failed: method=%s path=%s err=%v", r.Method, r.URL.Path, err)
		writeError(w, r, http.StatusInternalServerError, "internal server error")
	}
}

// decodeStrict decodes a single JSON object, rejecting unknown fields and
// trailing content.
func decodeStrict(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	defer r.Body.Close()
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("body must contain only one JSON object")
	}
	return nil
}
