package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"carrental/internal/domain"
	"carrental/internal/repository"
)

const rentalColumns = `id, vehicle_id, renter_id, start_date, end_date, total_price, status, payment_status, payment_reference, reserved_until, created_at, updated_at`

// RentalRepository is a PostgreSQL implementation of repository.RentalRepository.
type RentalRepository struct {
	q Querier
}

// NewRentalRepository creates a new PostgreSQL rental repository.
func NewRentalRepository(db *sql.DB) *RentalRepository {
	return &RentalRepository{q: db}
}

// NewRentalRepositoryWithTx creates a rental repository using a transaction.
func NewRentalRepositoryWithTx(tx *sql.Tx) *RentalRepository {
	return &RentalRepository{q: tx}
}

// Create persists a new rental.
func (r *RentalRepository) Create(ctx context.Context, rental *domain.Rental) error {
	query := `
		INSERT INTO rentals (` + rentalColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.q.ExecContext(ctx, query,
		rental.ID,
		rental.VehicleID,
		rental.RenterID,
		rental.StartDate,
		rental.EndDate,
		rental.TotalPrice,
		rental.Status,
		rental.PaymentStatus,
		nullString(rental.PaymentReference),
		nullTime(rental.ReservedUntil),
		rental.CreatedAt,
		rental.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return repository.ErrAlreadyExists
	}

	return err
}

// GetByID retrieves a rental by ID.
func (r *RentalRepository) GetByID(ctx context.Context, id string) (*domain.Rental, error) {
	query := `SELECT ` + rentalColumns + ` FROM rentals WHERE id = $1`
	return r.getOne(ctx, query, id)
}

// GetByIDForUpdate retrieves a rental and locks its row.
func (r *RentalRepository) GetByIDForUpdate(ctx context.Context, id string) (*domain.Rental, error) {
	query := `SELECT ` + rentalColumns + ` FROM rentals WHERE id = $1 FOR UPDATE`
	return r.getOne(ctx, query, id)
}

func (r *RentalRepository) getOne(ctx context.Context, query string, id string) (*domain.Rental, error) {
	rental, err := scanRental(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	return rental, nil
}

// Update overwrites the mutable fields of an existing rental.
func (r *RentalRepository) Update(ctx context.Context, rental *domain.Rental) error {
	query := `
		UPDATE rentals
		SET status = $1, payment_status = $2, payment_reference = $3, reserved_until = $4, updated_at = $5
		WHERE id = $6
	`

	result, err := r.q.ExecContext(ctx, query,
		rental.Status,
		rental.PaymentStatus,
		nullString(rental.PaymentReference),
		nullTime(rental.ReservedUntil),
		rental.UpdatedAt,
		rental.ID,
	)
	if err != nil {
		return err
	}

	return requireAffected(result)
}

// ListByStatus retrieves up to limit rentals in the given status after the
// cursor, in (created_at, id) order.
func (r *RentalRepository) ListByStatus(ctx context.Context, status domain.RentalStatus, after repository.RentalCursor, limit int) ([]*domain.Rental, error) {
	query := `
		SELECT ` + rentalColumns + `
		FROM rentals
		WHERE status = $1 AND (created_at, id) > ($2, $3)
		ORDER BY created_at ASC, id ASC LIMIT $4
	`

	return r.list(ctx, query, status, after.CreatedAt, after.ID, limit)
}

// ListExpiredHolds retrieves pending rentals whose hold lapsed before now.
func (r *RentalRepository) ListExpiredHolds(ctx context.Context, now time.Time, limit int) ([]*domain.Rental, error) {
	query := `
		SELECT ` + rentalColumns + `
		FROM rentals
		WHERE status = $1 AND reserved_until IS NOT NULL AND reserved_until <= $2
		ORDER BY reserved_until ASC LIMIT $3
	`

	return r.list(ctx, query, domain.RentalStatusPending, now, limit)
}

func (r *RentalRepository) list(ctx context.Context, query string, args ...any) ([]*domain.Rental, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rentals []*domain.Rental
	for rows.Next() {
		rental, err := scanRental(rows)
		if err != nil {
			return nil, err
		}
		rentals = append(rentals, rental)
	}
	return rentals, rows.Err()
}

func scanRental(row rowScanner) (*domain.Rental, error) {
	var rental domain.Rental
	var paymentReference sql.NullString
	var reservedUntil sql.NullTime

	err := row.Scan(
		&rental.ID,
		&rental.VehicleID,
		&rental.RenterID,
		&rental.StartDate,
		&rental.EndDate,
		&rental.TotalPrice,
		&rental.Status,
		&rental.PaymentStatus,
		&paymentReference,
		&reservedUntil,
		&rental.CreatedAt,
		&rental.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if paymentReference.Valid {
		rental.PaymentReference = paymentReference.String
	}
	if reservedUntil.Valid {
		rental.ReservedUntil = reservedUntil.Time
	}

	return &rental, nil
}
