package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"carrental/internal/domain"
	"carrental/internal/gateway"
	"carrental/internal/repository"
	"carrental/internal/service"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// respondError sends an error response with the appropriate HTTP status code.
func respondError(c *gin.Context, err error) {
	code := mapErrorToHTTPStatus(err)
	if code >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.JSON(code, ErrorResponse{Error: err.Error()})
}

// respondJSON sends a JSON response with the given status code.
func respondJSON(c *gin.Context, code int, data any) {
	c.JSON(code, data)
}

// mapErrorToHTTPStatus maps service/repository errors to HTTP status codes.
func mapErrorToHTTPStatus(err error) int {
	switch {
	// Not found errors
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound

	// Validation errors - Bad Request
	case errors.Is(err, service.ErrInvalidVehicleID),
		errors.Is(err, service.ErrInvalidRenterID),
		errors.Is(err, service.ErrInvalidRentalID),
		errors.Is(err, service.ErrInvalidDateRange),
		errors.Is(err, service.ErrInvalidTotalPrice),
		errors.Is(err, service.ErrInvalidEmail),
		errors.Is(err, service.ErrInvalidPaymentAmount),
		errors.Is(err, service.ErrInvalidReference):
		return http.StatusBadRequest

	// Webhook authentication
	case errors.Is(err, gateway.ErrInvalidSignature):
		return http.StatusUnauthorized

	// Conflict errors, including detected inconsistency
	case errors.Is(err, repository.ErrAlreadyExists),
		errors.Is(err, service.ErrVehicleAlreadyRented),
		errors.Is(err, service.ErrVehicleReserved),
		errors.Is(err, service.ErrRentalNotPending),
		errors.Is(err, service.ErrRentalMismatch),
		errors.Is(err, service.ErrAmountMismatch),
		errors.Is(err, service.ErrReservationExpired),
		errors.Is(err, service.ErrReconcileInProgress),
		errors.Is(err, service.ErrInconsistentState):
		return http.StatusConflict

	// Gateway failures
	case errors.Is(err, service.ErrPaymentInit),
		errors.Is(err, service.ErrPaymentVerify):
		return http.StatusBadGateway

	case errors.Is(err, service.ErrWebhookDisabled):
		return http.StatusServiceUnavailable

	// Default to internal server error
	default:
		return http.StatusInternalServerError
	}
}

// RentalResponse is the HTTP representation of a rental.
type RentalResponse struct {
	ID               string     `json:"id"`
	VehicleID        string     `json:"vehicle_id"`
	RenterID         string     `json:"renter_id"`
	StartDate        time.Time  `json:"start_date"`
	EndDate          time.Time  `json:"end_date"`
	TotalPrice       float64    `json:"total_price"`
	Status           string     `json:"status"`
	PaymentStatus    string     `json:"payment_status"`
	PaymentReference string     `json:"payment_reference,omitempty"`
	ReservedUntil    *time.Time `json:"reserved_until,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// VehicleResponse is the HTTP representation of a vehicle's rentability.
type VehicleResponse struct {
	ID          string     `json:"id"`
	IsRented    bool       `json:"is_rented"`
	IsAvailable bool       `json:"is_available"`
	RentedBy    *string    `json:"rented_by"`
	Status      string     `json:"status"`
	RentalID    string     `json:"rental_id,omitempty"`
	HeldUntil   *time.Time `json:"held_until,omitempty"`
	Reservable  bool       `json:"reservable"`
}

func toRentalResponse(r *domain.Rental) *RentalResponse {
	if r == nil {
		return nil
	}

	resp := &RentalResponse{
		ID:               r.ID,
		VehicleID:        r.VehicleID,
		RenterID:         r.RenterID,
		StartDate:        r.StartDate,
		EndDate:          r.EndDate,
		TotalPrice:       r.TotalPrice,
		Status:           string(r.Status),
		PaymentStatus:    string(r.PaymentStatus),
		PaymentReference: r.PaymentReference,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
	if !r.ReservedUntil.IsZero() {
		until := r.ReservedUntil
		resp.ReservedUntil = &until
	}
	return resp
}

func toVehicleResponse(v *domain.Vehicle, now time.Time) *VehicleResponse {
	if v == nil {
		return nil
	}

	resp := &VehicleResponse{
		ID:          v.ID,
		IsRented:    v.IsRented,
		IsAvailable: v.IsAvailable,
		Status:      string(v.Status),
		RentalID:    v.RentalID,
		Reservable:  !v.IsRented && !v.HasLiveHold(now),
	}
	if v.RentedBy != "" {
		rentedBy := v.RentedBy
		resp.RentedBy = &rentedBy
	}
	if !v.HeldUntil.IsZero() {
		until := v.HeldUntil
		resp.HeldUntil = &until
	}
	return resp
}
