package ports

import (
	"context"
	"distance-matrix-service/internal/domain"
)

// Port: persistence boundary for Source and Destination entities.
//
// The two Delete operations cascade onto cached distance rows inside the same
// transaction as the entity delete and report how many rows were removed.
type LocationStore interface {
	CreateSource(ctx context.Context, s *domain.Source) error
	GetSource(ctx context.Context, id string) (*domain.Source, error)
	ListSources(ctx context.Context) ([]*domain.Source, error)
	UpdateSource(ctx context.Context, s *domain.Source) error
	DeleteSource(ctx context.Context, id string) (cascaded int, err error)

	CreateDestination(ctx context.Context, d *domain.Destination) error
	GetDestination(ctx context.Context, id string) (*domain.Destination, error)
	ListDestinations(ctx context.Context) ([]*domain.Destination, error)
	UpdateDestination(ctx context.Context, d *domain.Destination) error
	// Persist coordinates resolved by geocoding onto an existing destination.
	UpdateDestinationCoords(ctx context.Context, id string, coords domain.Coordinates) error
	DeleteDestination(ctx context.Context, id string) (cascaded int, err error)
}
