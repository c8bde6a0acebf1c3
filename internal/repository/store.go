package repository

import "context"

// Repositories groups the repositories that share one connection or transaction.
type Repositories interface {
	Rentals() RentalRepository
	Vehicles() VehicleRepository
}

// Transactor runs fn inside a single transaction.
// The transaction commits when fn returns nil and rolls back otherwise.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}

// Store is a storage backend for rentals and vehicles.
type Store interface {
	Repositories
	Transactor

	// Migrate creates or updates the schema.
	Migrate(ctx context.Context) error

	// Close releases the underlying connections.
	Close() error
}
