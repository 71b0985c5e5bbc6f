package domain

import "time"

// Distance is one cached routing result for a (source, destination) pair.
// Rows are write-once: at most one row exists per pair, and a row is only
// ever removed by cascade when its source or destination is deleted.
type Distance struct {
	ID              string
	SourceID        string
	DestinationID   string
	DistanceKm      float64
	DurationMinutes float64
	RouteMeta       string
	DirectionsLink  string
	CreatedAt       time.Time
}

// PairKey identifies one (source, destination) combination, the unit of caching.
type PairKey struct {
	SourceID      string
	DestinationID string
}

// DistanceRow is a Distance joined with the names of its endpoints,
// the shape served by list/export endpoints.
type DistanceRow struct {
	Distance
	SourceName      string
	DestinationName string
}

// CacheStats summarizes cache completeness over the registered locations.
type CacheStats struct {
	SourceCount       int
	DestinationCount  int
	CachedPairCount   int
	PossiblePairCount int
	MissingPairCount  int
	CompletionPct     float64
}
