// Package gormstore is an embedded SQLite store for local runs and tests.
package gormstore

import (
	"context"
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"carrental/internal/repository"
)

// Store is a GORM implementation of repository.Store.
type Store struct {
	db       *gorm.DB
	rentals  *RentalRepository
	vehicles *VehicleRepository
}

var _ repository.Store = (*Store)(nil)

// Open opens the SQLite database at path (":memory:" for a throwaway one).
// The pool is capped at one connection, so transactions never interleave.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	return NewStore(db), nil
}

// NewStore wraps an existing GORM handle.
func NewStore(db *gorm.DB) *Store {
	return &Store{
		db:       db,
		rentals:  NewRentalRepository(db),
		vehicles: NewVehicleRepository(db),
	}
}

func (s *Store) Rentals() repository.RentalRepository   { return s.rentals }
func (s *Store) Vehicles() repository.VehicleRepository { return s.vehicles }

// WithinTx runs fn inside a GORM transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, txRepositories{
			rentals:  NewRentalRepository(tx),
			vehicles: NewVehicleRepository(tx),
		})
	})
}

// Migrate creates or updates the rentals and vehicles tables.
func (s *Store) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&vehicleModel{}, &rentalModel{})
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

type txRepositories struct {
	rentals  *RentalRepository
	vehicles *VehicleRepository
}

func (t txRepositories) Rentals() repository.RentalRepository   { return t.rentals }
func (t txRepositories) Vehicles() repository.VehicleRepository { return t.vehicles }
