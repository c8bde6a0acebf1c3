package repository

import (
	"context"
	"time"

	"carrental/internal/domain"
)

// RentalCursor is a position in creation order. The zero value starts before
// the first rental.
type RentalCursor struct {
	CreatedAt time.Time
	ID        string
}

// CursorAfter returns the cursor positioned just after rental.
func CursorAfter(rental *domain.Rental) RentalCursor {
	return RentalCursor{CreatedAt: rental.CreatedAt, ID: rental.ID}
}

// RentalRepository defines the persistence operations for rentals.
// Rentals are never deleted.
type RentalRepository interface {
	// Create persists a new rental.
	Create(ctx context.Context, rental *domain.Rental) error

	// GetByID retrieves a rental by ID.
	GetByID(ctx context.Context, id string) (*domain.Rental, error)

	// GetByIDForUpdate retrieves a rental and locks its row until the
	// surrounding transaction ends.
	GetByIDForUpdate(ctx context.Context, id string) (*domain.Rental, error)

	// Update overwrites the mutable fields of an existing rental.
	Update(ctx context.Context, rental *domain.Rental) error

	// ListByStatus retrieves up to limit rentals in the given status that come
	// after the cursor, ordered by creation time and then ID.
	ListByStatus(ctx context.Context, status domain.RentalStatus, after RentalCursor, limit int) ([]*domain.Rental, error)

	// ListExpiredHolds retrieves pending rentals whose hold lapsed before now.
	ListExpiredHolds(ctx context.Context, now time.Time, limit int) ([]*domain.Rental, error)
}
