package handler

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"

	"carrental/internal/domain"
	"carrental/internal/gateway/paystack"
	"carrental/internal/service"
)

const maxWebhookBody = 1 << 20

// RedirectURLs are the payer-facing destinations of the push callback.
type RedirectURLs struct {
	Success string
	Failure string
	Error   string
}

// PaymentHandler handles HTTP requests for payments.
type PaymentHandler struct {
	payments   *service.PaymentService
	reconciler *service.ReconciliationService
	redirects  RedirectURLs
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(payments *service.PaymentService, reconciler *service.ReconciliationService, redirects RedirectURLs) *PaymentHandler {
	return &PaymentHandler{
		payments:   payments,
		reconciler: reconciler,
		redirects:  redirects,
	}
}

// InitializePaymentRequest is the HTTP request body for starting a payment.
type InitializePaymentRequest struct {
	RenterID string  `json:"renter_id"`
	Email    string  `json:"email"`
	Amount   float64 `json:"amount"`
	RentalID string  `json:"rental_id"`
}

// InitializePaymentResponse is where to send the payer and what to verify later.
type InitializePaymentResponse struct {
	AuthorizationURL string `json:"authorization_url"`
	Reference        string `json:"reference"`
}

// VerifyPaymentResponse is the pull verification result.
type VerifyPaymentResponse struct {
	Message string           `json:"message"`
	Outcome string           `json:"outcome"`
	Applied bool             `json:"applied"`
	Rental  *RentalResponse  `json:"rental"`
	Vehicle *VehicleResponse `json:"vehicle,omitempty"`
	Data    json.RawMessage  `json:"data,omitempty"`
}

// InitializePayment handles POST /v1/vehicles/:id/payments
func (h *PaymentHandler) InitializePayment(c *gin.Context) {
	var req InitializePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	result, err := h.payments.InitializePayment(c.Request.Context(), service.InitializePaymentRequest{
		VehicleID: c.Param("id"),
		RenterID:  req.RenterID,
		Email:     req.Email,
		Amount:    req.Amount,
		RentalID:  req.RentalID,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, InitializePaymentResponse{
		AuthorizationURL: result.RedirectURL,
		Reference:        result.Reference,
	})
}

// VerifyPayment handles GET /v1/payments/verify?reference=&rentalId=
// A failed payment is reported as 400 after the rental is cancelled.
func (h *PaymentHandler) VerifyPayment(c *gin.Context) {
	result, err := h.reconciler.VerifyReservationPayment(c.Request.Context(), c.Query("reference"), c.Query("rentalId"))
	if err != nil {
		respondError(c, err)
		return
	}

	resp := VerifyPaymentResponse{
		Outcome: string(result.Outcome),
		Applied: result.Applied,
		Rental:  toRentalResponse(result.Rental),
		Vehicle: toVehicleResponse(result.Vehicle, time.Now().UTC()),
		Data:    result.Verification.Raw,
	}

	if result.Outcome == domain.OutcomeSucceeded {
		resp.Message = "Payment verified successfully"
		respondJSON(c, http.StatusOK, resp)
		return
	}

	resp.Message = "Payment not successful, rental cancelled."
	respondJSON(c, http.StatusBadRequest, resp)
}

// Callback handles GET /payment/callback?reference=&rentalId=
// It always answers with a redirect.
func (h *PaymentHandler) Callback(c *gin.Context) {
	reference := c.Query("reference")
	rentalID := c.Query("rentalId")

	if reference == "" || rentalID == "" {
		c.Redirect(http.StatusFound, withRentalID(h.redirects.Error, rentalID))
		return
	}

	target, err := h.reconciler.HandlePaymentCallback(c.Request.Context(), reference, rentalID)
	if err != nil {
		log.Printf("payment callback: rental %s reference %s: %v", rentalID, reference, err)
	}

	destination := h.redirects.Error
	switch target {
	case service.CallbackSuccess:
		destination = h.redirects.Success
	case service.CallbackFailure:
		destination = h.redirects.Failure
	}

	c.Redirect(http.StatusFound, withRentalID(destination, rentalID))
}

// Webhook handles POST /payment/webhook
func (h *PaymentHandler) Webhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "unreadable body"})
		return
	}

	result, err := h.reconciler.HandlePaymentWebhook(c.Request.Context(), c.GetHeader(paystack.SignatureHeader), body)
	if err != nil {
		respondError(c, err)
		return
	}

	if result == nil {
		respondJSON(c, http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	respondJSON(c, http.StatusOK, gin.H{
		"status":    "processed",
		"rental_id": result.Rental.ID,
		"outcome":   result.Outcome,
		"applied":   result.Applied,
	})
}

func withRentalID(destination, rentalID string) string {
	u, err := url.Parse(destination)
	if err != nil || rentalID == "" {
		return destination
	}
	q := u.Query()
	q.Set("rentalId", rentalID)
	u.RawQuery = q.Encode()
	return u.String()
}
