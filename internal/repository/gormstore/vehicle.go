package gormstore

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"carrental/internal/domain"
	"carrental/internal/repository"
)

// VehicleRepository is a GORM implementation of repository.VehicleRepository.
type VehicleRepository struct {
	db *gorm.DB
}

// NewVehicleRepository creates a vehicle repository on the given handle.
func NewVehicleRepository(db *gorm.DB) *VehicleRepository {
	return &VehicleRepository{db: db}
}

func (r *VehicleRepository) Create(ctx context.Context, vehicle *domain.Vehicle) error {
	err := r.db.WithContext(ctx).Create(toVehicleModel(vehicle)).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return repository.ErrAlreadyExists
	}
	return err
}

func (r *VehicleRepository) GetByID(ctx context.Context, id string) (*domain.Vehicle, error) {
	var m vehicleModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return m.toDomain(), nil
}

// GetByIDForUpdate is a plain read, see RentalRepository.GetByIDForUpdate.
func (r *VehicleRepository) GetByIDForUpdate(ctx context.Context, id string) (*domain.Vehicle, error) {
	return r.GetByID(ctx, id)
}

func (r *VehicleRepository) Update(ctx context.Context, vehicle *domain.Vehicle) error {
	m := toVehicleModel(vehicle)
	result := r.db.WithContext(ctx).
		Model(&vehicleModel{}).
		Where("id = ?", vehicle.ID).
		Updates(map[string]any{
			"is_rented":    m.IsRented,
			"is_available": m.IsAvailable,
			"rented_by":    m.RentedBy,
			"status":       m.Status,
			"rental_id":    m.RentalID,
			"held_until":   m.HeldUntil,
			"updated_at":   m.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}
