package domain

import "time"

// VehicleStatus represents the rentability state of a vehicle.
type VehicleStatus string

const (
	VehicleStatusNotRented VehicleStatus = "not-rented"
	VehicleStatusPending   VehicleStatus = "pending"
	VehicleStatusApproved  VehicleStatus = "approved"
)

// Vehicle is the rentability subset of a car.
type Vehicle struct {
	ID          string
	IsRented    bool
	IsAvailable bool
	RentedBy    string // Empty when not rented
	Status      VehicleStatus
	RentalID    string    // Rental holding (pending) or renting (approved) the vehicle
	HeldUntil   time.Time // Zero means the hold never lapses
	UpdatedAt   time.Time
}

// NewVehicle returns a vehicle that is free to reserve.
func NewVehicle(id string) *Vehicle {
	return &Vehicle{
		ID:          id,
		IsAvailable: true,
		Status:      VehicleStatusNotRented,
	}
}

// HasLiveHold reports whether a pending reservation still holds the vehicle.
func (v *Vehicle) HasLiveHold(now time.Time) bool {
	if v.Status != VehicleStatusPending || v.RentalID == "" {
		return false
	}
	return v.HeldUntil.IsZero() || now.Before(v.HeldUntil)
}

// Hold soft-locks the vehicle for a pending rental without marking it unavailable.
func (v *Vehicle) Hold(rentalID string, until, at time.Time) {
	v.Status = VehicleStatusPending
	v.RentalID = rentalID
	v.HeldUntil = until
	v.UpdatedAt = at
}

// MarkRented flips the vehicle to approved for the given rental.
func (v *Vehicle) MarkRented(rentalID, renterID string, at time.Time) {
	v.IsRented = true
	v.IsAvailable = false
	v.RentedBy = renterID
	v.Status = VehicleStatusApproved
	v.RentalID = rentalID
	v.HeldUntil = time.Time{}
	v.UpdatedAt = at
}

// Release returns the vehicle to not-rented and available.
func (v *Vehicle) Release(at time.Time) {
	v.IsRented = false
	v.IsAvailable = true
	v.RentedBy = ""
	v.Status = VehicleStatusNotRented
	v.RentalID = ""
	v.HeldUntil = time.Time{}
	v.UpdatedAt = at
}

// RentedFor reports whether the vehicle is in the approved state for the rental.
func (v *Vehicle) RentedFor(r *Rental) bool {
	return v.IsRented &&
		!v.IsAvailable &&
		v.RentedBy == r.RenterID &&
		v.Status == VehicleStatusApproved &&
		v.RentalID == r.ID
}

// ValidFlags reports whether isRented, status and rentedBy agree with each other.
func (v *Vehicle) ValidFlags() bool {
	approved := v.Status == VehicleStatusApproved
	if v.IsRented != approved || v.IsRented != (v.RentedBy != "") {
		return false
	}
	if v.IsRented == v.IsAvailable {
		return false
	}
	switch v.Status {
	case VehicleStatusPending, VehicleStatusApproved:
		return v.RentalID != ""
	case VehicleStatusNotRented:
		return v.RentalID == ""
	default:
		return false
	}
}
