package main

import (
	"database/sql"
	"distance-matrix-service/internal/adapters/querycache"
	"distance-matrix-service/internal/adapters/route"
	"distance-matrix-service/internal/adapters/store"
	"distance-matrix-service/internal/api"
	"distance-matrix-service/internal/config"
	"distance-matrix-service/internal/platform/db"
	"distance-matrix-service/internal/ports"
	"distance-matrix-service/internal/services"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	_ "modernc.org/sqlite"
)

// main is the application composition root.
// It wires concrete adapters (Postgres/SQLite, Redis, ORS) behind ports and
// starts the HTTP server.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found (using environment variables)")
	}

	port := config.Get("PORT", "8080")

	orsKey := os.Getenv("ORS_API_KEY")
	if strings.TrimSpace(orsKey) == "" {
		log.Fatal("ORS_API_KEY is required")
	}

	conn, err := openDatabase()
	if err != nil {
		log.Fatal(err)
	}
	defer conn.Close()

	if err := store.InitSchema(conn); err != nil {
		log.Fatal(err)
	}

	provider, err := route.NewProvider(orsKey, route.WithRegion(config.Get("GEOCODE_REGION", "IN")))
	if err != nil {
		log.Fatal(err)
	}

	// Redis is optional; without it the read path goes straight to the store.
	var queryCache ports.QueryCache
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		queryCache = querycache.NewRedisQueryCache(redis.NewClient(&redis.Options{Addr: addr}))
		log.Printf("query cache enabled addr=%s", addr)
	}

	locations := store.NewSQLLocationStore(conn)
	distances := store.NewSQLDistanceStore(conn)

	engine := &services.CompletionEngine{
		Locations: locations,
		Distances: distances,
		Provider:  provider,
		Cache:     queryCache,
		Config: services.CompletionConfig{
			BatchSizeLimit: config.GetInt("BATCH_SIZE_LIMIT", 100),
			FallbackLimit:  config.GetInt("FALLBACK_LIMIT", 8),
			Budget:         config.GetDuration("COMPLETION_BUDGET", 55*time.Second),
			CallDelay:      config.GetDuration("CALL_DELAY", 150*time.Millisecond),
		},
	}
	queries := &services.QueryService{
		Distances: distances,
		Cache:     queryCache,
		CacheTTL:  config.GetDuration("QUERY_CACHE_TTL", 30*time.Second),
	}

	router := api.NewRouter(locations, engine, queries, queryCache)

	// Write timeout leaves headroom for a full completion budget.
	log.Printf("Server listening addr=:%s", port)
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	log.Fatal(srv.ListenAndServe())
}

// openDatabase prefers Postgres (DATABASE_URL) and falls back to a local
// SQLite file so the service runs with zero external dependencies.
func openDatabase() (*sql.DB, error) {
	if databaseURL := os.Getenv("DATABASE_URL"); strings.TrimSpace(databaseURL) != "" {
		return db.OpenPostgres(databaseURL)
	}
	return db.OpenSQLite(config.Get("DB_PATH", "data/app.db"))
}
