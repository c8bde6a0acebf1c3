// Package paystack is the Paystack implementation of gateway.PaymentGateway.
package paystack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"

	"carrental/internal/gateway"
)

const (
	// DefaultBaseURL is the Paystack REST API root.
	DefaultBaseURL = "https://api.paystack.co"

	// SignatureHeader carries the webhook HMAC.
	SignatureHeader = "x-paystack-signature"

	defaultTimeout  = 15 * time.Second
	maxResponseSize = 1 << 20
)

// Client talks to the Paystack transaction API.
type Client struct {
	secretKey     string
	webhookSecret string
	baseURL       string
	httpClient    *http.Client
}

var (
	_ gateway.PaymentGateway  = (*Client)(nil)
	_ gateway.WebhookVerifier = (*Client)(nil)
)

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API root, mainly for tests.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(baseURL, "/") }
}

// WithWebhookSecret checks webhook signatures against a key other than the API secret.
func WithWebhookSecret(secret string) Option {
	return func(c *Client) {
		if secret != "" {
			c.webhookSecret = secret
		}
	}
}

// WithHTTPClient replaces the instrumented default HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) { c.httpClient = httpClient }
}

// NewClient creates a Paystack client authenticated with secretKey.
// Outbound calls are recorded as New Relic external segments when the
// request context carries a transaction.
func NewClient(secretKey string, opts ...Option) *Client {
	c := &Client{
		secretKey:     secretKey,
		webhookSecret: secretKey,
		baseURL:       DefaultBaseURL,
		httpClient: &http.Client{
			Timeout:   defaultTimeout,
			Transport: newrelic.NewRoundTripper(http.DefaultTransport),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type initializeBody struct {
	Email       string                  `json:"email"`
	Amount      int64                   `json:"amount"`
	Metadata    gateway.PaymentMetadata `json:"metadata"`
	CallbackURL string                  `json:"callback_url,omitempty"`
}

type envelope struct {
	Status  *bool           `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type initializeData struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

type verifyData struct {
	Status    string   `json:"status"`
	Reference string   `json:"reference"`
	Amount    int64    `json:"amount"`
	Metadata  metadata `json:"metadata"`
}

// metadata accepts the object we send as well as the JSON string or empty
// string Paystack returns for some integrations.
type metadata struct {
	gateway.PaymentMetadata
}

func (m *metadata) UnmarshalJSON(b []byte) error {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}

	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		if s == "" {
			return nil
		}
		trimmed = []byte(s)
	}

	if trimmed[0] != '{' {
		return nil
	}
	return json.Unmarshal(trimmed, &m.PaymentMetadata)
}

// Initialize creates a transaction and returns the hosted checkout URL.
func (c *Client) Initialize(ctx context.Context, req gateway.InitializeRequest) (*gateway.InitializeResult, error) {
	body, err := json.Marshal(initializeBody{
		Email:       req.Email,
		Amount:      gateway.ToMinorUnits(req.Amount),
		Metadata:    req.Metadata,
		CallbackURL: req.CallbackURL,
	})
	if err != nil {
		return nil, err
	}

	env, err := c.do(ctx, http.MethodPost, "/transaction/initialize", body)
	if err != nil {
		return nil, fmt.Errorf("paystack initialize: %w", err)
	}

	var data initializeData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, fmt.Errorf("paystack initialize: %w: %w", gateway.ErrMalformedResponse, err)
	}
	if data.AuthorizationURL == "" || data.Reference == "" {
		return nil, fmt.Errorf("paystack initialize: %w: missing authorization_url or reference", gateway.ErrMalformedResponse)
	}

	return &gateway.InitializeResult{
		RedirectURL: data.AuthorizationURL,
		Reference:   data.Reference,
	}, nil
}

// Verify fetches the transaction status for reference.
// Any status other than "success" is reported as not succeeded.
func (c *Client) Verify(ctx context.Context, reference string) (*gateway.VerifyResult, error) {
	if reference == "" {
		return nil, gateway.ErrUnknownReference
	}

	env, err := c.do(ctx, http.MethodGet, "/transaction/verify/"+url.PathEscape(reference), nil)
	if err != nil {
		return nil, fmt.Errorf("paystack verify: %w", err)
	}

	var data verifyData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, fmt.Errorf("paystack verify: %w: %w", gateway.ErrMalformedResponse, err)
	}
	if data.Status == "" || data.Reference == "" {
		return nil, fmt.Errorf("paystack verify: %w: missing status or reference", gateway.ErrMalformedResponse)
	}

	return &gateway.VerifyResult{
		Succeeded:   data.Status == "success",
		Status:      data.Status,
		Reference:   data.Reference,
		Metadata:    data.Metadata.PaymentMetadata,
		AmountMinor: data.Amount,
		Raw:         env.Data,
	}, nil
}

// ParseWebhook checks the x-paystack-signature HMAC and decodes the event.
func (c *Client) ParseWebhook(signature string, body []byte) (*gateway.WebhookEvent, error) {
	if !gateway.SignatureValid(c.webhookSecret, signature, body) {
		return nil, gateway.ErrInvalidSignature
	}

	var payload struct {
		Event string `json:"event"`
		Data  struct {
			Reference string   `json:"reference"`
			Metadata  metadata `json:"metadata"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %w", gateway.ErrMalformedResponse, err)
	}

	return &gateway.WebhookEvent{
		Event:     payload.Event,
		Reference: payload.Data.Reference,
		RentalID:  payload.Data.Metadata.RentalID,
	}, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) (*envelope, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, err
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode >= 300 {
		if decodeErr == nil && env.Message != "" {
			return nil, fmt.Errorf("%s: %s", resp.Status, env.Message)
		}
		return nil, errors.New(resp.Status)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("%w: %w", gateway.ErrMalformedResponse, decodeErr)
	}
	if env.Status == nil || len(env.Data) == 0 {
		return nil, fmt.Errorf("%w: missing status or data", gateway.ErrMalformedResponse)
	}
	if !*env.Status {
		return nil, fmt.Errorf("request rejected: %s", env.Message)
	}

	return &env, nil
}
