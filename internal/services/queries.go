package services

import (
	"context"
	"distance-matrix-service/internal/domain"
	"distance-matrix-service/internal/platform/obs"
	"distance-matrix-service/internal/ports"
	"encoding/json"
	"fmt"
	"log"
	"time"
)

// Page carries pagination metadata alongside a page of rows.
type Page struct {
	Page       int  `json:"page"`
	PageSize   int  `json:"page_size"`
	Total      int  `json:"total"`
	TotalPages int  `json:"total_pages"`
	HasMore    bool `json:"has_more"`
}

// ListResult is one paginated, filtered view over the pair cache.
type ListResult struct {
	Rows []*domain.DistanceRow `json:"rows"`
	Page Page                  `json:"page"`
}

// QueryService is the pure read path over the pair cache. It never triggers
// provider calls. When a query cache is configured, rendered results are
// served from it under a short TTL; cache trouble degrades to the store.
type QueryService struct {
	Distances ports.DistanceStore
	Cache     ports.QueryCache
	CacheTTL  time.Duration
}

const defaultCacheTTL = 30 * time.Second

// List returns one page of cached rows matching the filters.
func (s *QueryService) List(ctx context.Context, q ports.DistanceQuery) (_ *ListResult, err error) {
	defer obs.Time(ctx, "query.List")(&err)

	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = 20
	}

	key := fmt.Sprintf("list:%s|%s|%d|%d", q.SourceNameContains, q.DestinationNameContains, q.Page, q.PageSize)
	if cached, ok := s.cacheGet(ctx, key); ok {
		var out ListResult
		if err := json.Unmarshal(cached, &out); err == nil {
			return &out, nil
		}
	}

	rows, total, err := s.Distances.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list distances: %w", err)
	}

	totalPages := (total + q.PageSize - 1) / q.PageSize
	out := &ListResult{
		Rows: rows,
		Page: Page{
			Page:       q.Page,
			PageSize:   q.PageSize,
			Total:      total,
			TotalPages: totalPages,
			HasMore:    q.Page < totalPages,
		},
	}

	s.cacheSet(ctx, key, out)

	return out, nil
}

// Stats returns aggregate cache completeness counters.
func (s *QueryService) Stats(ctx context.Context) (*domain.CacheStats, error) {
	const key = "stats"
	if cached, ok := s.cacheGet(ctx, key); ok {
		var out domain.CacheStats
		if err := json.Unmarshal(cached, &out); err == nil {
			return &out, nil
		}
	}

	st, err := s.Distances.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("distance stats: %w", err)
	}

	s.cacheSet(ctx, key, st)

	return st, nil
}

func (s *QueryService) cacheGet(ctx context.Context, key string) ([]byte, bool) {
	if s.Cache == nil {
		return nil, false
	}

	payload, ok, err := s.Cache.Get(ctx, key)
	if err != nil {
		log.Printf("query cache read failed: key=%q err=%v", key, err)
		return nil, false
	}
	return payload, ok
}

func (s *QueryService) cacheSet(ctx context.Context, key string, v any) {
	if s.Cache == nil {
		return
	}

	payload, err := json.Marshal(v)
	if err != nil {
		return
	}

	ttl := s.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}

	if err := s.Cache.Set(ctx, key, payload, ttl); err != nil {
		log.Printf("query cache write failed: key=%q err=%v", key, err)
	}
}
