package utils

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_123")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_123")
}

func TestConfigDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := configFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "8000", cfg.Port)
	assert.Equal(t, "ecommerce", cfg.MongoDatabase)
	assert.Equal(t, "stripe", cfg.PaymentGateway)
	assert.Equal(t, "inr", cfg.Currency)
	assert.True(t, cfg.TaxRate.Equal(decimal.RequireFromString("0.18")))
	assert.True(t, cfg.ShippingFee.IsZero())
	assert.Equal(t, 10*time.Second, cfg.GatewayTimeout)
	assert.Equal(t, 2*time.Second, cfg.OutboxPoll)
	assert.Equal(t, 5, cfg.OutboxMaxAttempt)
	assert.Equal(t, "none", cfg.EmailProvider)
	assert.Equal(t, "shophub.notifications", cfg.AMQPExchange)
}

func TestConfigOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PAYMENT_GATEWAY", "MOCK")
	t.Setenv("STRIPE_SECRET_KEY", "")
	t.Setenv("TAX_RATE", "0.05")
	t.Setenv("SHIPPING_FEE", "49.50")
	t.Setenv("GATEWAY_TIMEOUT", "3s")
	t.Setenv("OUTBOX_MAX_ATTEMPTS", "8")
	t.Setenv("LOG_FORMAT", "text")

	cfg, err := configFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "mock", cfg.PaymentGateway)
	assert.True(t, cfg.ShippingFee.Equal(decimal.RequireFromString("49.5")))
	assert.Equal(t, 3*time.Second, cfg.GatewayTimeout)
	assert.Equal(t, 8, cfg.OutboxMaxAttempt)
}

func TestConfigRejectsBadValues(t *testing.T) {
	tests := map[string]map[string]string{
		"missing jwt secret":     {"JWT_SECRET": ""},
		"unknown gateway":        {"PAYMENT_GATEWAY": "paypal"},
		"bad duration":           {"GATEWAY_TIMEOUT": "soon"},
		"negative tax":           {"TAX_RATE": "-0.1"},
		"bad number":             {"SHIPPING_FEE": "free"},
		"postmark without key":   {"EMAIL_PROVIDER": "postmark"},
		"zero attempts":          {"OUTBOX_MAX_ATTEMPTS": "0"},
		"unknown log level":      {"LOG_LEVEL": "loud"},
		"missing webhook secret": {"STRIPE_WEBHOOK_SECRET": ""},
	}
	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			setRequiredEnv(t)
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := configFromEnv()
			assert.Error(t, err)
		})
	}
}

func TestJWTRoundTrip(t *testing.T) {
	secret := []byte("secret")
	token, err := GenerateJWT(secret, "u1", "a@example.com", "admin", time.Hour)
	require.NoError(t, err)

	claims, err := ParseJWT(secret, token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "admin", claims.Role)

	_, err = ParseJWT([]byte("other"), token)
	assert.Error(t, err)

	expired, err := GenerateJWT(secret, "u1", "a@example.com", "user", -time.Minute)
	require.NoError(t, err)
	_, err = ParseJWT(secret, expired)
	assert.Error(t, err)

	anonymous, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{Email: "a@example.com"}).SignedString(secret)
	require.NoError(t, err)
	_, err = ParseJWT(secret, anonymous)
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(&buf, "warn", "json")
	require.NoError(t, err)

	logger.Info("dropped")
	logger.Warn("kept", "order_id", "ORD-1")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "kept", line["msg"])
	assert.Equal(t, "ORD-1", line["order_id"])
	assert.Equal(t, "shophub", line["service"])

	_, err = NewLogger(&buf, "chatty", "json")
	assert.Error(t, err)
}
