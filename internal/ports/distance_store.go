package ports

import (
	"context"
	"distance-matrix-service/internal/domain"
)

// DistanceQuery selects a page of cached rows. Name filters are
// case-insensitive substring matches against the joined entity names.
type DistanceQuery struct {
	SourceNameContains      string
	DestinationNameContains string
	Page                    int
	PageSize                int
}

// Port: persistence boundary for the pair cache.
type DistanceStore interface {
	// Exact-key lookup; domain.ErrNotFound when the pair is not cached.
	Get(ctx context.Context, sourceID, destinationID string) (*domain.Distance, error)

	// Bulk existence check for a candidate pair set in a single round trip,
	// keyed by pair. Used before batch computation to avoid N+1 lookups.
	GetMany(ctx context.Context, pairs []domain.PairKey) (map[domain.PairKey]*domain.Distance, error)

	// Insert a new row; domain.ErrConflict when the pair already exists.
	// Rows are never updated in place.
	Put(ctx context.Context, d *domain.Distance) error

	// Paginated, filtered read ordered by source name then destination name.
	// The returned total counts all matching rows, not just the page.
	Query(ctx context.Context, q DistanceQuery) (rows []*domain.DistanceRow, total int, err error)

	Stats(ctx context.Context) (*domain.CacheStats, error)
}
