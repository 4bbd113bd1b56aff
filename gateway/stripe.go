package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"shophub/apperrors"
	"shophub/models"

	"github.com/sony/gobreaker/v2"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// ErrIntentNotFound is returned when the processor has no intent with the given id.
var ErrIntentNotFound = &apperrors.Error{Kind: apperrors.KindNotFound, Code: "intent_not_found", Message: "Payment intent not found"}

// StripeConfig configures the Stripe adapter.
type StripeConfig struct {
	SecretKey string
	// BaseURL overrides the API endpoint, for tests.
	BaseURL    string
	HTTPClient *http.Client
	// BreakerFailures consecutive failures open the breaker for BreakerTimeout.
	BreakerFailures uint32
	BreakerTimeout  time.Duration
	Logger          *slog.Logger
}

// Stripe talks to the Stripe API through an explicitly constructed client.
// Every call runs inside a circuit breaker so an unreachable processor fails
// fast instead of stacking up request goroutines.
type Stripe struct {
	api     *client.API
	breaker *gobreaker.CircuitBreaker[any]
	logger  *slog.Logger
}

func NewStripe(cfg StripeConfig) *Stripe {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerTimeout == 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}
	logger := cfg.Logger.With("component", "stripe_gateway")

	backendCfg := &stripe.BackendConfig{
		HTTPClient:        cfg.HTTPClient,
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	}
	if cfg.BaseURL != "" {
		backendCfg.URL = stripe.String(cfg.BaseURL)
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg)
	api := client.New(cfg.SecretKey, &stripe.Backends{API: backend, Connect: backend, Uploads: backend})

	breaker := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "stripe",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !transient(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	return &Stripe{api: api, breaker: breaker, logger: logger}
}

func (s *Stripe) CreateIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (*models.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amount),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	pi, err := execute(s, "create_intent", func() (*stripe.PaymentIntent, error) {
		return s.api.PaymentIntents.New(params)
	})
	if err != nil {
		return nil, err
	}
	intent := toIntent(pi)
	return &intent, nil
}

func (s *Stripe) RetrieveIntent(ctx context.Context, intentID string) (*models.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := execute(s, "retrieve_intent", func() (*stripe.PaymentIntent, error) {
		return s.api.PaymentIntents.Get(intentID, params)
	})
	if err != nil {
		return nil, err
	}
	intent := toIntent(pi)
	return &intent, nil
}

func (s *Stripe) Refund(ctx context.Context, intentID string, amount *int64, reason string) (*models.Refund, error) {
	params := &stripe.RefundParams{PaymentIntent: stripe.String(intentID)}
	params.Context = ctx
	if amount != nil {
		params.Amount = stripe.Int64(*amount)
	}
	switch stripe.RefundReason(reason) {
	case stripe.RefundReasonDuplicate, stripe.RefundReasonFraudulent, stripe.RefundReasonRequestedByCustomer:
		params.Reason = stripe.String(reason)
	default:
		// Stripe only accepts its own reason codes; free text travels in metadata.
		params.Reason = stripe.String(string(stripe.RefundReasonRequestedByCustomer))
		if reason != "" {
			params.AddMetadata("reason", reason)
		}
	}

	r, err := execute(s, "refund", func() (*stripe.Refund, error) {
		return s.api.Refunds.New(params)
	})
	if err != nil {
		return nil, err
	}
	return &models.Refund{ID: r.ID, IntentID: intentID, Amount: r.Amount, Status: string(r.Status)}, nil
}

func (s *Stripe) VerifyWebhook(payload []byte, header, secret string) (models.WebhookEvent, error) {
	return verifyEvent(payload, header, secret)
}

// execute runs fn through the breaker and translates failures into the
// application taxonomy.
func execute[T any](s *Stripe, op string, fn func() (T, error)) (T, error) {
	var zero T
	res, err := s.breaker.Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		s.logger.Warn("gateway call failed", "op", op, "error", err)
		return zero, translate(err)
	}
	out, ok := res.(T)
	if !ok {
		return zero, apperrors.ErrGateway.Wrap(fmt.Errorf("%s: unexpected result %T", op, res))
	}
	return out, nil
}

func translate(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return apperrors.ErrGateway.WithMessage("Payment gateway temporarily unavailable").Wrap(err)
	}
	var se *stripe.Error
	if errors.As(err, &se) && se.HTTPStatusCode == http.StatusNotFound {
		return ErrIntentNotFound.Wrap(err)
	}
	return apperrors.ErrGateway.Wrap(err)
}

// transient reports whether err says anything about the processor's health.
// Request errors such as a bad intent id do not count against the breaker.
func transient(err error) bool {
	var se *stripe.Error
	if errors.As(err, &se) {
		return se.HTTPStatusCode == 0 ||
			se.HTTPStatusCode == http.StatusTooManyRequests ||
			se.HTTPStatusCode >= http.StatusInternalServerError
	}
	return true
}
