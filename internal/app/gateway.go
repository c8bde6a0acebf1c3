package app

import (
	"fmt"
	"log"

	"carrental/internal/config"
	"carrental/internal/gateway"
	"carrental/internal/gateway/paystack"
)

// Gateway is a payment provider that also authenticates its own webhooks.
type Gateway interface {
	gateway.PaymentGateway
	gateway.WebhookVerifier
}

var (
	_ Gateway = (*paystack.Client)(nil)
	_ Gateway = (*gateway.Sandbox)(nil)
)

// NewGateway returns the gateway selected by cfg.Gateway. The Paystack client
// is never replaced by the sandbox when its secret key is missing.
func NewGateway(cfg config.PaystackConfig) (Gateway, error) {
	switch cfg.Gateway {
	case config.GatewayPaystack:
		if cfg.SecretKey == "" {
			return nil, config.ErrMissingSecretKey
		}
		return paystack.NewClient(cfg.SecretKey,
			paystack.WithBaseURL(cfg.BaseURL),
			paystack.WithWebhookSecret(cfg.WebhookSecret),
		), nil
	case config.GatewaySandbox:
		log.Println("WARNING: sandbox payment gateway selected, every payment will verify as successful")
		return gateway.NewSandbox(cfg.WebhookSecret), nil
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownGateway, cfg.Gateway)
	}
}
