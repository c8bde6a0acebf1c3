package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"

	"github.com/google/uuid"
)

type sandboxTxn struct {
	metadata    PaymentMetadata
	amountMinor int64
	succeeded   bool
}

// Sandbox is an in-process gateway used when no provider key is configured.
// Transactions succeed unless SetOutcome says otherwise.
type Sandbox struct {
	mu     sync.RWMutex
	secret string
	txns   map[string]*sandboxTxn
}

var (
	_ PaymentGateway  = (*Sandbox)(nil)
	_ WebhookVerifier = (*Sandbox)(nil)
)

// NewSandbox creates a sandbox gateway. Webhooks are checked against secret.
func NewSandbox(secret string) *Sandbox {
	return &Sandbox{
		secret: secret,
		txns:   make(map[string]*sandboxTxn),
	}
}

func (s *Sandbox) Initialize(ctx context.Context, req InitializeRequest) (*InitializeResult, error) {
	if req.Email == "" || req.Amount <= 0 {
		return nil, fmt.Errorf("sandbox: email and positive amount required")
	}

	reference := "sbx_" + uuid.New().String()

	s.mu.Lock()
	s.txns[reference] = &sandboxTxn{
		metadata:    req.Metadata,
		amountMinor: ToMinorUnits(req.Amount),
		succeeded:   true,
	}
	s.mu.Unlock()

	return &InitializeResult{
		RedirectURL: sandboxRedirect(req.CallbackURL, reference),
		Reference:   reference,
	}, nil
}

func (s *Sandbox) Verify(ctx context.Context, reference string) (*VerifyResult, error) {
	s.mu.RLock()
	txn, ok := s.txns[reference]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrUnknownReference
	}

	status := "failed"
	if txn.succeeded {
		status = "success"
	}

	raw, err := json.Marshal(map[string]any{
		"reference": reference,
		"status":    status,
		"amount":    txn.amountMinor,
		"metadata":  txn.metadata,
	})
	if err != nil {
		return nil, err
	}

	return &VerifyResult{
		Succeeded:   txn.succeeded,
		Status:      status,
		Reference:   reference,
		Metadata:    txn.metadata,
		AmountMinor: txn.amountMinor,
		Raw:         raw,
	}, nil
}

// SetOutcome decides how a sandbox transaction verifies.
func (s *Sandbox) SetOutcome(reference string, succeeded bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	txn, ok := s.txns[reference]
	if !ok {
		return ErrUnknownReference
	}
	txn.succeeded = succeeded
	return nil
}

// ParseWebhook accepts the same body layout as the hosted provider.
func (s *Sandbox) ParseWebhook(signature string, body []byte) (*WebhookEvent, error) {
	if !SignatureValid(s.secret, signature, body) {
		return nil, ErrInvalidSignature
	}

	var payload struct {
		Event string `json:"event"`
		Data  struct {
			Reference string          `json:"reference"`
			Metadata  PaymentMetadata `json:"metadata"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}

	return &WebhookEvent{
		Event:     payload.Event,
		Reference: payload.Data.Reference,
		RentalID:  payload.Data.Metadata.RentalID,
	}, nil
}

// sandboxRedirect sends the payer straight back to the callback, as if the
// hosted checkout page had completed.
func sandboxRedirect(callbackURL, reference string) string {
	u, err := url.Parse(callbackURL)
	if err != nil || callbackURL == "" {
		return "/payment/callback?reference=" + url.QueryEscape(reference)
	}
	q := u.Query()
	q.Set("reference", reference)
	u.RawQuery = q.Encode()
	return u.String()
}
