// Package gateway defines the payment gateway contract consumed by the
// reservation services, plus an in-process sandbox implementation.
package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"math"
)

var (
	// ErrMalformedResponse is returned when a gateway answer fails shape validation.
	ErrMalformedResponse = errors.New("malformed gateway response")

	// ErrInvalidSignature is returned when a webhook body does not match its signature.
	ErrInvalidSignature = errors.New("invalid webhook signature")

	// ErrUnknownReference is returned when the gateway has no transaction for a reference.
	ErrUnknownReference = errors.New("unknown payment reference")
)

// PaymentMetadata correlates a gateway transaction back to exactly one rental.
type PaymentMetadata struct {
	VehicleID string `json:"vehicle_id"`
	RenterID  string `json:"renter_id"`
	RentalID  string `json:"rental_id"`
}

// InitializeRequest asks the gateway for a payable transaction.
// Amount is in major currency units.
type InitializeRequest struct {
	Email       string
	Amount      float64
	Metadata    PaymentMetadata
	CallbackURL string
}

// InitializeResult is where the payer is sent and the reference to verify later.
type InitializeResult struct {
	RedirectURL string
	Reference   string
}

// VerifyResult is the validated outcome of a transaction.
type VerifyResult struct {
	Succeeded   bool
	Status      string
	Reference   string
	Metadata    PaymentMetadata
	AmountMinor int64
	Raw         json.RawMessage
}

// WebhookEvent is the part of a gateway push notification needed to reconcile.
type WebhookEvent struct {
	Event     string
	Reference string
	RentalID  string
}

// PaymentGateway is the outbound payment provider.
type PaymentGateway interface {
	Initialize(ctx context.Context, req InitializeRequest) (*InitializeResult, error)
	Verify(ctx context.Context, reference string) (*VerifyResult, error)
}

// WebhookVerifier authenticates and decodes gateway push notifications.
type WebhookVerifier interface {
	ParseWebhook(signature string, body []byte) (*WebhookEvent, error)
}

// ToMinorUnits converts a major-unit amount to the smallest currency unit.
func ToMinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// Sign returns the hex HMAC-SHA512 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignatureValid reports whether signature is the HMAC-SHA512 of body.
func SignatureValid(secret, signature string, body []byte) bool {
	if secret == "" || signature == "" {
		return false
	}
	return hmac.Equal([]byte(Sign(secret, body)), []byte(signature))
}
