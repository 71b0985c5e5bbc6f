package dto

import "time"

type SourceRequest struct {
	Name    string  `json:"name"`
	Address string  `json:"address"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

type SourceResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address,omitempty"`
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	CreatedAt time.Time `json:"created_at"`
}

type ListSourcesResponse struct {
	Sources []SourceResponse `json:"sources"`
}

// Lat/Lon are pointers: a destination may be registered before its position
// is known and geocoded later.
type DestinationRequest struct {
	Name    string   `json:"name"`
	Pincode string   `json:"pincode"`
	Address string   `json:"address"`
	Lat     *float64 `json:"lat"`
	Lon     *float64 `json:"lon"`
}

type DestinationResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Pincode   string    `json:"pincode,omitempty"`
	Address   string    `json:"address,omitempty"`
	Lat       *float64  `json:"lat"`
	Lon       *float64  `json:"lon"`
	CreatedAt time.Time `json:"created_at"`
}

type ListDestinationsResponse struct {
	Destinations []DestinationResponse `json:"destinations"`
}

// DeleteResponse reports how many cached distance rows the cascade removed.
type DeleteResponse struct {
	Deleted           bool `json:"deleted"`
	CascadedDistances int  `json:"cascaded_distances"`
}
