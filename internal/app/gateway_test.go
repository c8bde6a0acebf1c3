package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carrental/internal/config"
	"carrental/internal/gateway"
	"carrental/internal/gateway/paystack"
)

func TestNewGateway(t *testing.T) {
	t.Run("paystack with key", func(t *testing.T) {
		gw, err := NewGateway(config.PaystackConfig{Gateway: config.GatewayPaystack, SecretKey: "sk_test_1"})
		require.NoError(t, err)
		assert.IsType(t, &paystack.Client{}, gw)
	})

	t.Run("paystack without key fails closed", func(t *testing.T) {
		gw, err := NewGateway(config.PaystackConfig{Gateway: config.GatewayPaystack})
		assert.ErrorIs(t, err, config.ErrMissingSecretKey)
		assert.Nil(t, gw)
	})

	t.Run("sandbox only when selected", func(t *testing.T) {
		gw, err := NewGateway(config.PaystackConfig{Gateway: config.GatewaySandbox, WebhookSecret: "whsec"})
		require.NoError(t, err)
		assert.IsType(t, &gateway.Sandbox{}, gw)
	})

	t.Run("unknown gateway", func(t *testing.T) {
		_, err := NewGateway(config.PaystackConfig{Gateway: "stripe", SecretKey: "sk_test_1"})
		assert.ErrorIs(t, err, config.ErrUnknownGateway)
	})
}
