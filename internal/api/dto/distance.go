package dto

import "time"

type CompleteRequest struct {
	SourceID      string `json:"source_id"`
	DestinationID string `json:"destination_id"`
}

type LocationSummary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type DistanceRowResponse struct {
	ID              string          `json:"id"`
	Source          LocationSummary `json:"source"`
	Destination     LocationSummary `json:"destination"`
	DistanceKm      float64         `json:"distance_km"`
	DurationMinutes float64         `json:"duration_minutes"`
	DirectionsLink  string          `json:"directions_link,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// CompleteResponse is the single discriminated result shape for a run:
// always the rows assembled so far, plus explicit partiality flags.
type CompleteResponse struct {
	Rows      []DistanceRowResponse `json:"rows"`
	Truncated bool                  `json:"truncated"`
	TimedOut  bool                  `json:"timed_out"`
	ElapsedMS int64                 `json:"elapsed_ms"`
}

type PageMeta struct {
	Page       int  `json:"page"`
	PageSize   int  `json:"page_size"`
	Total      int  `json:"total"`
	TotalPages int  `json:"total_pages"`
	HasMore    bool `json:"has_more"`
}

type ListDistancesResponse struct {
	Rows []DistanceRowResponse `json:"rows"`
	Page PageMeta              `json:"page"`
}

type StatsResponse struct {
	SourceCount       int     `json:"source_count"`
	DestinationCount  int     `json:"destination_count"`
	CachedPairCount   int     `json:"cached_pair_count"`
	PossiblePairCount int     `json:"possible_pair_count"`
	MissingPairCount  int     `json:"missing_pair_count"`
	CompletionPct     float64 `json:"completion_pct"`
}
