package domain

import "time"

// RentalStatus represents the reservation state of a rental.
type RentalStatus string

const (
	RentalStatusPending   RentalStatus = "pending"
	RentalStatusConfirmed RentalStatus = "confirmed"
	RentalStatusCancelled RentalStatus = "cancelled"
)

// PaymentStatus represents the payment state of a rental.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusFailed  PaymentStatus = "failed"
)

// Rental is a renter's reservation of a vehicle for a date range.
type Rental struct {
	ID               string
	VehicleID        string
	RenterID         string
	StartDate        time.Time
	EndDate          time.Time
	TotalPrice       float64
	Status           RentalStatus
	PaymentStatus    PaymentStatus
	PaymentReference string
	ReservedUntil    time.Time // Zero means the hold never lapses
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// IsPending reports whether the rental is still awaiting a payment outcome.
func (r *Rental) IsPending() bool {
	return r.Status == RentalStatusPending
}

// IsTerminal reports whether the rental has reached confirmed or cancelled.
func (r *Rental) IsTerminal() bool {
	return r.Status == RentalStatusConfirmed || r.Status == RentalStatusCancelled
}

// HoldExpired reports whether a pending rental's hold lapsed before now.
func (r *Rental) HoldExpired(now time.Time) bool {
	return r.IsPending() && !r.ReservedUntil.IsZero() && !now.Before(r.ReservedUntil)
}

// Confirm moves the rental to confirmed/paid.
// Fields are assigned, so applying it twice leaves the same state.
func (r *Rental) Confirm(reference string, at time.Time) {
	r.Status = RentalStatusConfirmed
	r.PaymentStatus = PaymentStatusPaid
	r.PaymentReference = reference
	r.UpdatedAt = at
}

// Cancel moves the rental to cancelled/failed.
func (r *Rental) Cancel(at time.Time) {
	r.Status = RentalStatusCancelled
	r.PaymentStatus = PaymentStatusFailed
	r.UpdatedAt = at
}

// Outcome returns the payment outcome already recorded on the rental.
// Pending rentals have no outcome yet.
func (r *Rental) Outcome() (Outcome, bool) {
	switch r.Status {
	case RentalStatusConfirmed:
		return OutcomeSucceeded, true
	case RentalStatusCancelled:
		return OutcomeFailed, true
	default:
		return "", false
	}
}

// ValidPair reports whether status and payment status form an allowed pairing.
func (r *Rental) ValidPair() bool {
	switch r.Status {
	case RentalStatusPending:
		return r.PaymentStatus == PaymentStatusPending
	case RentalStatusConfirmed:
		return r.PaymentStatus == PaymentStatusPaid
	case RentalStatusCancelled:
		return r.PaymentStatus == PaymentStatusFailed
	default:
		return false
	}
}
