package gormstore

import (
	"time"

	"carrental/internal/domain"
)

type rentalModel struct {
	ID               string     `gorm:"primaryKey;type:text"`
	VehicleID        string     `gorm:"not null;index"`
	RenterID         string     `gorm:"not null"`
	StartDate        time.Time  `gorm:"not null"`
	EndDate          time.Time  `gorm:"not null"`
	TotalPrice       float64    `gorm:"not null"`
	Status           string     `gorm:"not null;index:idx_rentals_status_created,priority:1"`
	PaymentStatus    string     `gorm:"not null"`
	PaymentReference *string    `gorm:"type:text"`
	ReservedUntil    *time.Time `gorm:"index"`
	CreatedAt        time.Time  `gorm:"not null;autoCreateTime:false;index:idx_rentals_status_created,priority:2"`
	UpdatedAt        time.Time  `gorm:"not null;autoUpdateTime:false"`
}

func (rentalModel) TableName() string { return "rentals" }

type vehicleModel struct {
	ID          string     `gorm:"primaryKey;type:text"`
	IsRented    bool       `gorm:"not null"`
	IsAvailable bool       `gorm:"not null"`
	RentedBy    *string    `gorm:"type:text"`
	Status      string     `gorm:"not null"`
	RentalID    *string    `gorm:"type:text"`
	HeldUntil   *time.Time `gorm:"index"`
	UpdatedAt   time.Time  `gorm:"not null;autoUpdateTime:false"`
}

func (vehicleModel) TableName() string { return "vehicles" }

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func optTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

func toRentalModel(r *domain.Rental) *rentalModel {
	return &rentalModel{
		ID:               r.ID,
		VehicleID:        r.VehicleID,
		RenterID:         r.RenterID,
		StartDate:        r.StartDate,
		EndDate:          r.EndDate,
		TotalPrice:       r.TotalPrice,
		Status:           string(r.Status),
		PaymentStatus:    string(r.PaymentStatus),
		PaymentReference: optString(r.PaymentReference),
		ReservedUntil:    optTime(r.ReservedUntil),
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

func (m *rentalModel) toDomain() *domain.Rental {
	return &domain.Rental{
		ID:               m.ID,
		VehicleID:        m.VehicleID,
		RenterID:         m.RenterID,
		StartDate:        m.StartDate,
		EndDate:          m.EndDate,
		TotalPrice:       m.TotalPrice,
		Status:           domain.RentalStatus(m.Status),
		PaymentStatus:    domain.PaymentStatus(m.PaymentStatus),
		PaymentReference: derefString(m.PaymentReference),
		ReservedUntil:    derefTime(m.ReservedUntil),
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

func toVehicleModel(v *domain.Vehicle) *vehicleModel {
	return &vehicleModel{
		ID:          v.ID,
		IsRented:    v.IsRented,
		IsAvailable: v.IsAvailable,
		RentedBy:    optString(v.RentedBy),
		Status:      string(v.Status),
		RentalID:    optString(v.RentalID),
		HeldUntil:   optTime(v.HeldUntil),
		UpdatedAt:   v.UpdatedAt,
	}
}

func (m *vehicleModel) toDomain() *domain.Vehicle {
	return &domain.Vehicle{
		ID:          m.ID,
		IsRented:    m.IsRented,
		IsAvailable: m.IsAvailable,
		RentedBy:    derefString(m.RentedBy),
		Status:      domain.VehicleStatus(m.Status),
		RentalID:    derefString(m.RentalID),
		HeldUntil:   derefTime(m.HeldUntil),
		UpdatedAt:   m.UpdatedAt,
	}
}
