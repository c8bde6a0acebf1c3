package service

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"carrental/internal/gateway"
	"carrental/internal/repository"
)

// PaymentService starts gateway transactions for pending rentals.
type PaymentService struct {
	store       repository.Store
	gateway     gateway.PaymentGateway
	callbackURL string
	now         func() time.Time
}

// NewPaymentService creates a new PaymentService. callbackURL is where the
// gateway returns the payer; the rental id is appended as rentalId.
func NewPaymentService(store repository.Store, gw gateway.PaymentGateway, callbackURL string) *PaymentService {
	return &PaymentService{
		store:       store,
		gateway:     gw,
		callbackURL: callbackURL,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the time source.
func (s *PaymentService) SetClock(now func() time.Time) {
	s.now = now
}

// InitializePaymentRequest contains the parameters for starting a payment.
type InitializePaymentRequest struct {
	VehicleID string
	RenterID  string
	Email     string
	Amount    float64
	RentalID  string
}

// InitializePayment asks the gateway for a payable transaction tagged with
// the rental's ids. It never mutates the rental; calling it again while the
// rental is pending starts another transaction.
func (s *PaymentService) InitializePayment(ctx context.Context, req InitializePaymentRequest) (*gateway.InitializeResult, error) {
	if err := validatePayment(req); err != nil {
		return nil, err
	}

	rental, err := s.store.Rentals().GetByID(ctx, req.RentalID)
	if err != nil {
		return nil, err
	}

	if rental.VehicleID != req.VehicleID || rental.RenterID != req.RenterID {
		return nil, ErrRentalMismatch
	}
	if !rental.IsPending() {
		return nil, ErrRentalNotPending
	}
	if rental.HoldExpired(s.now()) {
		return nil, ErrReservationExpired
	}
	if gateway.ToMinorUnits(req.Amount) != gateway.ToMinorUnits(rental.TotalPrice) {
		return nil, ErrAmountMismatch
	}

	result, err := s.gateway.Initialize(ctx, gateway.InitializeRequest{
		Email:  req.Email,
		Amount: req.Amount,
		Metadata: gateway.PaymentMetadata{
			VehicleID: rental.VehicleID,
			RenterID:  rental.RenterID,
			RentalID:  rental.ID,
		},
		CallbackURL: s.callbackFor(rental.ID),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPaymentInit, err)
	}
	if result == nil || result.RedirectURL == "" || result.Reference == "" {
		return nil, fmt.Errorf("%w: %w", ErrPaymentInit, gateway.ErrMalformedResponse)
	}

	return result, nil
}

func (s *PaymentService) callbackFor(rentalID string) string {
	if s.callbackURL == "" {
		return ""
	}

	u, err := url.Parse(s.callbackURL)
	if err != nil {
		return ""
	}
	q := u.Query()
	q.Set("rentalId", rentalID)
	u.RawQuery = q.Encode()
	return u.String()
}

func validatePayment(req InitializePaymentRequest) error {
	if req.RentalID == "" {
		return ErrInvalidRentalID
	}
	if req.VehicleID == "" {
		return ErrInvalidVehicleID
	}
	if req.RenterID == "" {
		return ErrInvalidRenterID
	}
	if req.Email == "" {
		return ErrInvalidEmail
	}
	if req.Amount <= 0 {
		return ErrInvalidPaymentAmount
	}
	return nil
}
