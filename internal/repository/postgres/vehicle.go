package postgres

import (
	"context"
	"database/sql"
	"errors"

	"carrental/internal/domain"
	"carrental/internal/repository"
)

const vehicleColumns = `id, is_rented, is_available, rented_by, status, rental_id, held_until, updated_at`

// VehicleRepository is a PostgreSQL implementation of repository.VehicleRepository.
type VehicleRepository struct {
	q Querier
}

// NewVehicleRepository creates a new PostgreSQL vehicle repository.
func NewVehicleRepository(db *sql.DB) *VehicleRepository {
	return &VehicleRepository{q: db}
}

// NewVehicleRepositoryWithTx creates a vehicle repository using a transaction.
func NewVehicleRepositoryWithTx(tx *sql.Tx) *VehicleRepository {
	return &VehicleRepository{q: tx}
}

// Create adds a new vehicle.
func (r *VehicleRepository) Create(ctx context.Context, vehicle *domain.Vehicle) error {
	query := `INSERT INTO vehicles (` + vehicleColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.q.ExecContext(ctx, query,
		vehicle.ID,
		vehicle.IsRented,
		vehicle.IsAvailable,
		nullString(vehicle.RentedBy),
		vehicle.Status,
		nullString(vehicle.RentalID),
		nullTime(vehicle.HeldUntil),
		vehicle.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return repository.ErrAlreadyExists
	}

	return err
}

// GetByID retrieves a vehicle by ID.
func (r *VehicleRepository) GetByID(ctx context.Context, id string) (*domain.Vehicle, error) {
	return r.getOne(ctx, `SELECT `+vehicleColumns+` FROM vehicles WHERE id = $1`, id)
}

// GetByIDForUpdate retrieves a vehicle and locks its row.
func (r *VehicleRepository) GetByIDForUpdate(ctx context.Context, id string) (*domain.Vehicle, error) {
	return r.getOne(ctx, `SELECT `+vehicleColumns+` FROM vehicles WHERE id = $1 FOR UPDATE`, id)
}

func (r *VehicleRepository) getOne(ctx context.Context, query string, id string) (*domain.Vehicle, error) {
	var vehicle domain.Vehicle
	var rentedBy, rentalID sql.NullString
	var heldUntil sql.NullTime

	err := r.q.QueryRowContext(ctx, query, id).Scan(
		&vehicle.ID,
		&vehicle.IsRented,
		&vehicle.IsAvailable,
		&rentedBy,
		&vehicle.Status,
		&rentalID,
		&heldUntil,
		&vehicle.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	if rentedBy.Valid {
		vehicle.RentedBy = rentedBy.String
	}
	if rentalID.Valid {
		vehicle.RentalID = rentalID.String
	}
	if heldUntil.Valid {
		vehicle.HeldUntil = heldUntil.Time
	}

	return &vehicle, nil
}

// Update overwrites the rentability fields of an existing vehicle.
func (r *VehicleRepository) Update(ctx context.Context, vehicle *domain.Vehicle) error {
	query := `
		UPDATE vehicles
		SET is_rented = $1, is_available = $2, rented_by = $3, status = $4, rental_id = $5, held_until = $6, updated_at = $7
		WHERE id = $8
	`

	result, err := r.q.ExecContext(ctx, query,
		vehicle.IsRented,
		vehicle.IsAvailable,
		nullString(vehicle.RentedBy),
		vehicle.Status,
		nullString(vehicle.RentalID),
		nullTime(vehicle.HeldUntil),
		vehicle.UpdatedAt,
		vehicle.ID,
	)
	if err != nil {
		return err
	}

	return requireAffected(result)
}
