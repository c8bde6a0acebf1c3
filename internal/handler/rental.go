package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"carrental/internal/service"
)

// RentalHandler handles HTTP requests for reservations and vehicles.
type RentalHandler struct {
	reservations *service.ReservationService
	consistency  *service.ConsistencyService
}

// NewRentalHandler creates a new RentalHandler.
func NewRentalHandler(reservations *service.ReservationService, consistency *service.ConsistencyService) *RentalHandler {
	return &RentalHandler{reservations: reservations, consistency: consistency}
}

// CreateReservationRequest is the HTTP request body for reserving a vehicle.
// Dates accept YYYY-MM-DD or RFC 3339.
type CreateReservationRequest struct {
	RenterID   string  `json:"renter_id"`
	StartDate  string  `json:"start_date"`
	EndDate    string  `json:"end_date"`
	TotalPrice float64 `json:"total_price"`
}

// CreateReservationResponse is the HTTP response for a new reservation.
type CreateReservationResponse struct {
	Message string          `json:"message"`
	Rental  *RentalResponse `json:"rental"`
}

// CreateReservation handles POST /v1/vehicles/:id/rentals
func (h *RentalHandler) CreateReservation(c *gin.Context) {
	var req CreateReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	start, err := parseDate(req.StartDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "start_date must be YYYY-MM-DD or RFC 3339"})
		return
	}
	end, err := parseDate(req.EndDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "end_date must be YYYY-MM-DD or RFC 3339"})
		return
	}

	rental, err := h.reservations.CreateReservation(c.Request.Context(), service.CreateReservationRequest{
		VehicleID:  c.Param("id"),
		RenterID:   req.RenterID,
		StartDate:  start,
		EndDate:    end,
		TotalPrice: req.TotalPrice,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, CreateReservationResponse{
		Message: "Rental created. Proceed to payment.",
		Rental:  toRentalResponse(rental),
	})
}

// GetRental handles GET /v1/rentals/:id
func (h *RentalHandler) GetRental(c *gin.Context) {
	rental, err := h.reservations.GetRental(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toRentalResponse(rental))
}

// GetVehicle handles GET /v1/vehicles/:id
func (h *RentalHandler) GetVehicle(c *gin.Context) {
	vehicle, err := h.reservations.GetVehicle(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toVehicleResponse(vehicle, time.Now().UTC()))
}

// CheckConsistency handles GET /v1/rentals/:id/consistency
func (h *RentalHandler) CheckConsistency(c *gin.Context) {
	report, err := h.consistency.Check(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, report)
}

// Repair handles POST /v1/rentals/:id/repair
func (h *RentalHandler) Repair(c *gin.Context) {
	report, err := h.consistency.Repair(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, report)
}

func parseDate(value string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, value); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, value)
}
