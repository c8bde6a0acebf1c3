package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	for _, key := range []string{"DB_DRIVER", "RESERVATION_HOLD_TTL", "PAYMENT_GATEWAY", "PAYSTACK_SECRET_KEY", "PAYSTACK_WEBHOOK_SECRET", "RABBITMQ_ENABLED", "PAYMENT_SUCCESS_URL"} {
		t.Setenv(key, "")
	}

	cfg := FromEnv()

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, time.Duration(0), cfg.Reservation.HoldTTL)
	assert.Equal(t, GatewayPaystack, cfg.Paystack.Gateway)
	assert.Empty(t, cfg.Paystack.SecretKey)
	assert.False(t, cfg.RabbitMQ.Enabled)
	assert.Equal(t, "/payment-success", cfg.Redirects.SuccessURL)
	assert.Equal(t, "/payment-failed", cfg.Redirects.FailureURL)
	assert.Equal(t, "/payment-error", cfg.Redirects.ErrorURL)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("RESERVATION_HOLD_TTL", "15m")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("RABBITMQ_ENABLED", "true")
	t.Setenv("PAYSTACK_SECRET_KEY", "sk_test_123")
	t.Setenv("PAYSTACK_WEBHOOK_SECRET", "")

	cfg := FromEnv()

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 15*time.Minute, cfg.Reservation.HoldTTL)
	assert.Equal(t, 3, cfg.Redis.DB)
	assert.True(t, cfg.RabbitMQ.Enabled)
	assert.Equal(t, "sk_test_123", cfg.Paystack.WebhookSecret, "webhook secret defaults to the secret key")
}

func TestFromEnv_IgnoresMalformedValues(t *testing.T) {
	t.Setenv("RESERVATION_HOLD_TTL", "soon")
	t.Setenv("REDIS_DB", "three")
	t.Setenv("NEW_RELIC_ENABLED", "maybe")

	cfg := FromEnv()

	assert.Equal(t, time.Duration(0), cfg.Reservation.HoldTTL)
	assert.Equal(t, 0, cfg.Redis.DB)
	assert.False(t, cfg.NewRelic.Enabled)
}

func TestValidate_PaymentGateway(t *testing.T) {
	tests := []struct {
		name    string
		gateway string
		key     string
		wantErr error
	}{
		{name: "paystack with key", gateway: GatewayPaystack, key: "sk_test_1"},
		{name: "paystack without key", gateway: GatewayPaystack, wantErr: ErrMissingSecretKey},
		{name: "sandbox without key", gateway: GatewaySandbox},
		{name: "unknown gateway", gateway: "stripe", key: "sk_test_1", wantErr: ErrUnknownGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Paystack: PaystackConfig{Gateway: tt.gateway, SecretKey: tt.key}}
			err := cfg.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestLoad_RefusesMissingSecretKey(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("PAYMENT_GATEWAY", "")
	t.Setenv("PAYSTACK_SECRET_KEY", "")

	_, err = Load()
	assert.ErrorIs(t, err, ErrMissingSecretKey)

	t.Setenv("PAYMENT_GATEWAY", GatewaySandbox)
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, GatewaySandbox, cfg.Paystack.Gateway)
}
