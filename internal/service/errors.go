package service

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidVehicleID is returned when vehicle ID is empty.
	ErrInvalidVehicleID = errors.New("invalid vehicle id")

	// ErrInvalidRenterID is returned when renter ID is empty.
	ErrInvalidRenterID = errors.New("invalid renter id")

	// ErrInvalidRentalID is returned when rental ID is empty.
	ErrInvalidRentalID = errors.New("invalid rental id")

	// ErrInvalidDateRange is returned when the end date is not after the start date.
	ErrInvalidDateRange = errors.New("end date must be after start date")

	// ErrInvalidTotalPrice is returned when the total price is not positive.
	ErrInvalidTotalPrice = errors.New("invalid total price")

	// ErrInvalidEmail is returned when the payer email is empty.
	ErrInvalidEmail = errors.New("invalid payer email")

	// ErrInvalidPaymentAmount is returned when payment amount is invalid.
	ErrInvalidPaymentAmount = errors.New("invalid payment amount")

	// ErrInvalidReference is returned when the payment reference is empty.
	ErrInvalidReference = errors.New("invalid payment reference")

	// ErrVehicleAlreadyRented is returned when reserving a vehicle that is rented.
	ErrVehicleAlreadyRented = errors.New("vehicle is already rented")

	// ErrVehicleReserved is returned when another pending reservation holds the vehicle.
	ErrVehicleReserved = errors.New("vehicle is reserved by another rental")

	// ErrRentalNotPending is returned when paying for a rental that already has an outcome.
	ErrRentalNotPending = errors.New("rental is not pending")

	// ErrRentalMismatch is returned when the rental does not belong to the given vehicle or renter.
	ErrRentalMismatch = errors.New("rental does not match vehicle or renter")

	// ErrAmountMismatch is returned when the payment amount differs from the rental price.
	ErrAmountMismatch = errors.New("payment amount does not match rental total")

	// ErrReservationExpired is returned when the rental's hold has lapsed.
	ErrReservationExpired = errors.New("reservation hold has expired")

	// ErrReconcileInProgress is returned when another reconciliation holds the rental.
	ErrReconcileInProgress = errors.New("payment reconciliation already in progress")

	// ErrPaymentInit is returned when the gateway cannot initialize a payment.
	ErrPaymentInit = errors.New("payment initialization failed")

	// ErrPaymentVerify is returned when the gateway cannot verify a payment
	// or its answer does not belong to the rental.
	ErrPaymentVerify = errors.New("payment verification failed")

	// ErrInconsistentState is returned when a rental and its vehicle disagree
	// in a way that cannot be applied or repaired automatically.
	ErrInconsistentState = errors.New("rental and vehicle state are inconsistent")

	// ErrOutcomeConflict is returned when a gateway outcome contradicts the
	// outcome already recorded on the rental.
	ErrOutcomeConflict = fmt.Errorf("%w: outcome conflicts with recorded outcome", ErrInconsistentState)

	// ErrVehicleTaken is returned when a rental's vehicle is bound to another rental.
	ErrVehicleTaken = fmt.Errorf("%w: vehicle is bound to another rental", ErrInconsistentState)

	// ErrWebhookDisabled is returned when no webhook verifier is configured.
	ErrWebhookDisabled = errors.New("payment webhook not configured")
)
