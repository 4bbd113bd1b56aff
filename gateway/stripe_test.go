package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"shophub/apperrors"
	"shophub/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStripe(t *testing.T, handler http.HandlerFunc) *Stripe {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewStripe(StripeConfig{
		SecretKey:       "sk_test_123",
		BaseURL:         srv.URL,
		HTTPClient:      srv.Client(),
		BreakerFailures: 2,
		BreakerTimeout:  time.Minute,
	})
}

func TestStripeCreateIntent(t *testing.T) {
	s := newTestStripe(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/payment_intents", r.URL.Path)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "29500", r.Form.Get("amount"))
		assert.Equal(t, "inr", r.Form.Get("currency"))
		assert.Equal(t, "ORD-1", r.Form.Get("metadata[orderId]"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"pi_123","object":"payment_intent","amount":29500,"currency":"inr",
			"status":"requires_payment_method","client_secret":"pi_123_secret_abc","metadata":{"orderId":"ORD-1"}}`))
	})

	intent, err := s.CreateIntent(context.Background(), 29500, "inr", map[string]string{models.MetadataOrderID: "ORD-1"})
	require.NoError(t, err)
	assert.Equal(t, "pi_123", intent.ID)
	assert.Equal(t, "pi_123_secret_abc", intent.ClientSecret)
	assert.Equal(t, "ORD-1", intent.OrderID())
}

func TestStripeRefundReason(t *testing.T) {
	s := newTestStripe(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/refunds", r.URL.Path)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "pi_123", r.Form.Get("payment_intent"))
		assert.Equal(t, "10000", r.Form.Get("amount"))
		assert.Equal(t, "requested_by_customer", r.Form.Get("reason"))
		assert.Equal(t, "item arrived damaged", r.Form.Get("metadata[reason]"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"re_1","object":"refund","amount":10000,"status":"succeeded"}`))
	})

	amount := int64(10000)
	refund, err := s.Refund(context.Background(), "pi_123", &amount, "item arrived damaged")
	require.NoError(t, err)
	assert.Equal(t, "re_1", refund.ID)
	assert.Equal(t, int64(10000), refund.Amount)
}

func TestStripeErrors(t *testing.T) {
	t.Run("server error is a gateway error and is not retried", func(t *testing.T) {
		var hits atomic.Int32
		s := newTestStripe(t, func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":{"type":"api_error","message":"boom"}}`))
		})

		_, err := s.RetrieveIntent(context.Background(), "pi_123")
		assert.ErrorIs(t, err, apperrors.ErrGateway)
		assert.Equal(t, http.StatusBadGateway, apperrors.HTTPStatus(err))
		assert.Equal(t, int32(1), hits.Load())
	})

	t.Run("missing intent does not trip the breaker", func(t *testing.T) {
		var hits atomic.Int32
		s := newTestStripe(t, func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","code":"resource_missing","message":"No such payment_intent"}}`))
		})

		for i := 0; i < 3; i++ {
			_, err := s.RetrieveIntent(context.Background(), "pi_missing")
			assert.ErrorIs(t, err, ErrIntentNotFound)
		}
		assert.Equal(t, int32(3), hits.Load())
	})

	t.Run("open breaker fails fast", func(t *testing.T) {
		var hits atomic.Int32
		s := newTestStripe(t, func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			w.WriteHeader(http.StatusServiceUnavailable)
		})

		for i := 0; i < 2; i++ {
			_, err := s.RetrieveIntent(context.Background(), "pi_123")
			assert.ErrorIs(t, err, apperrors.ErrGateway)
		}
		_, err := s.RetrieveIntent(context.Background(), "pi_123")
		assert.ErrorIs(t, err, apperrors.ErrGateway)
		assert.Equal(t, int32(2), hits.Load())
	})
}
