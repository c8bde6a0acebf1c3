package gormstore

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"carrental/internal/domain"
	"carrental/internal/repository"
)

// RentalRepository is a GORM implementation of repository.RentalRepository.
type RentalRepository struct {
	db *gorm.DB
}

// NewRentalRepository creates a rental repository on the given handle,
// which may be a transaction.
func NewRentalRepository(db *gorm.DB) *RentalRepository {
	return &RentalRepository{db: db}
}

func (r *RentalRepository) Create(ctx context.Context, rental *domain.Rental) error {
	err := r.db.WithContext(ctx).Create(toRentalModel(rental)).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return repository.ErrAlreadyExists
	}
	return err
}

func (r *RentalRepository) GetByID(ctx context.Context, id string) (*domain.Rental, error) {
	var m rentalModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return m.toDomain(), nil
}

// GetByIDForUpdate is a plain read. SQLite has no row locks; the store
// serializes transactions over a single connection instead.
func (r *RentalRepository) GetByIDForUpdate(ctx context.Context, id string) (*domain.Rental, error) {
	return r.GetByID(ctx, id)
}

func (r *RentalRepository) Update(ctx context.Context, rental *domain.Rental) error {
	m := toRentalModel(rental)
	result := r.db.WithContext(ctx).
		Model(&rentalModel{}).
		Where("id = ?", rental.ID).
		Updates(map[string]any{
			"status":            m.Status,
			"payment_status":    m.PaymentStatus,
			"payment_reference": m.PaymentReference,
			"reserved_until":    m.ReservedUntil,
			"updated_at":        m.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *RentalRepository) ListByStatus(ctx context.Context, status domain.RentalStatus, after repository.RentalCursor, limit int) ([]*domain.Rental, error) {
	var models []rentalModel
	err := r.db.WithContext(ctx).
		Where("status = ?", string(status)).
		Where("(created_at > ? OR (created_at = ? AND id > ?))", after.CreatedAt, after.CreatedAt, after.ID).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return toRentals(models), nil
}

func (r *RentalRepository) ListExpiredHolds(ctx context.Context, now time.Time, limit int) ([]*domain.Rental, error) {
	var models []rentalModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND reserved_until IS NOT NULL AND reserved_until <= ?", string(domain.RentalStatusPending), now).
		Order("reserved_until ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return toRentals(models), nil
}

func toRentals(models []rentalModel) []*domain.Rental {
	rentals := make([]*domain.Rental, 0, len(models))
	for i := range models {
		rentals = append(rentals, models[i].toDomain())
	}
	return rentals
}
