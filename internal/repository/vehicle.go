package repository

import (
	"context"

	"carrental/internal/domain"
)

// VehicleRepository defines the persistence operations for vehicle rentability.
type VehicleRepository interface {
	// Create adds a new vehicle.
	Create(ctx context.Context, vehicle *domain.Vehicle) error

	// GetByID retrieves a vehicle by ID.
	GetByID(ctx context.Context, id string) (*domain.Vehicle, error)

	// GetByIDForUpdate retrieves a vehicle and locks its row until the
	// surrounding transaction ends.
	GetByIDForUpdate(ctx context.Context, id string) (*domain.Vehicle, error)

	// Update overwrites the rentability fields of an existing vehicle.
	Update(ctx context.Context, vehicle *domain.Vehicle) error
}
