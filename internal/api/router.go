package api

import (
	"distance-matrix-service/internal/api/handlers"
	"distance-matrix-service/internal/ports"
	"distance-matrix-service/internal/services"
	"net/http"
)

// NewRouter wires HTTP handlers with their dependencies and returns an
// http.Handler. This is the API composition root; handlers stay unaware of
// concrete adapters.
func NewRouter(
	locations ports.LocationStore,
	engine *services.CompletionEngine,
	queries *services.QueryService,
	cache ports.QueryCache,
) http.Handler {
	mux := http.NewServeMux()

	srcHandler := &handlers.SourceHandler{Store: locations, Cache: cache}
	dstHandler := &handlers.DestinationHandler{Store: locations, Cache: cache}
	distHandler := &handlers.DistanceHandler{Engine: engine, Queries: queries}

	mux.HandleFunc("GET /health", handlers.Health)

	mux.HandleFunc("POST /sources", srcHandler.Create)
	mux.HandleFunc("GET /sources", srcHandler.List)
	mux.HandleFunc("GET /sources/{id}", srcHandler.Get)
	mux.HandleFunc("PUT /sources/{id}", srcHandler.Update)
	mux.HandleFunc("DELETE /sources/{id}", srcHandler.Delete)

	mux.HandleFunc("POST /destinations", dstHandler.Create)
	mux.HandleFunc("GET /destinations", dstHandler.List)
	mux.HandleFunc("GET /destinations/{id}", dstHandler.Get)
	mux.HandleFunc("PUT /destinations/{id}", dstHandler.Update)
	mux.HandleFunc("DELETE /destinations/{id}", dstHandler.Delete)

	mux.HandleFunc("POST /distances/complete", distHandler.Complete)
	mux.HandleFunc("GET /distances", distHandler.List)
	mux.HandleFunc("GET /distances/stats", distHandler.Stats)
	mux.HandleFunc("GET /distances/export", distHandler.Export)

	return requestIDMiddleware(loggingMiddleware(mux))
}
