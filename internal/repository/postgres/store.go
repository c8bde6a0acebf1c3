package postgres

import (
	"context"
	"database/sql"
	_ "embed"

	"carrental/internal/repository"
)

//go:embed schema.sql
var schema string

// Store is a PostgreSQL implementation of repository.Store.
type Store struct {
	db       *sql.DB
	rentals  *RentalRepository
	vehicles *VehicleRepository
}

// Ensure Store implements repository.Store.
var _ repository.Store = (*Store)(nil)

// NewStore creates a store backed by the given connection pool.
func NewStore(db *sql.DB) *Store {
	return &Store{
		db:       db,
		rentals:  NewRentalRepository(db),
		vehicles: NewVehicleRepository(db),
	}
}

// Rentals returns the non-transactional rental repository.
func (s *Store) Rentals() repository.RentalRepository { return s.rentals }

// Vehicles returns the non-transactional vehicle repository.
func (s *Store) Vehicles() repository.VehicleRepository { return s.vehicles }

// WithinTx runs fn with transaction-scoped repositories.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(ctx, txRepositories{
		rentals:  NewRentalRepositoryWithTx(tx),
		vehicles: NewVehicleRepositoryWithTx(tx),
	}); err != nil {
		return err
	}

	return tx.Commit()
}

// Migrate applies the embedded schema. Statements are idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

type txRepositories struct {
	rentals  *RentalRepository
	vehicles *VehicleRepository
}

func (t txRepositories) Rentals() repository.RentalRepository   { return t.rentals }
func (t txRepositories) Vehicles() repository.VehicleRepository { return t.vehicles }
