package controllers

import (
	"io"
	"log/slog"
	"net/http"

	"shophub/apperrors"
	"shophub/models"
	"shophub/services"
	"shophub/utils"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
)

// maxWebhookBody bounds a gateway callback.
const maxWebhookBody = 512 << 10

// PaymentController handles payment initiation, verification, refunds and
// gateway callbacks
type PaymentController struct {
	payments *services.PaymentService
	webhooks *services.WebhookProcessor
	logger   *slog.Logger
}

func NewPaymentController(payments *services.PaymentService, webhooks *services.WebhookProcessor, logger *slog.Logger) *PaymentController {
	return &PaymentController{payments: payments, webhooks: webhooks, logger: logger}
}

type initiateRequest struct {
	Amount   decimal.Decimal   `json:"amount"`
	Currency string            `json:"currency"`
	Metadata map[string]string `json:"metadata"`
}

type initiateResponse struct {
	ClientSecret string `json:"clientSecret"`
	IntentID     string `json:"intentId"`
}

// InitiatePayment opens a payment intent for an order
func (pc *PaymentController) InitiatePayment(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req initiateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	intent, err := pc.payments.Initiate(r.Context(), actor, services.InitiateInput{
		Amount:   req.Amount,
		Currency: req.Currency,
		Metadata: req.Metadata,
	})
	if err != nil {
		respondError(w, r, pc.logger, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, initiateResponse{ClientSecret: intent.ClientSecret, IntentID: intent.ID})
}

type verifyResponse struct {
	PaymentStatus models.PaymentStatus `json:"paymentStatus"`
	Order         *models.Order        `json:"order"`
}

// VerifyPayment asks the gateway for an intent's state and applies it
func (pc *PaymentController) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req struct {
		PaymentIntentID string `json:"paymentIntentId"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	order, err := pc.payments.Verify(r.Context(), actor, req.PaymentIntentID)
	if err != nil {
		respondError(w, r, pc.logger, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, verifyResponse{PaymentStatus: order.PaymentStatus, Order: order})
}

// GetPaymentIntent returns the gateway's view of an intent
func (pc *PaymentController) GetPaymentIntent(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	intent, err := pc.payments.GetIntent(r.Context(), actor, mux.Vars(r)["intentId"])
	if err != nil {
		respondError(w, r, pc.logger, err)
		return
	}
	intent.ClientSecret = ""
	utils.RespondJSON(w, http.StatusOK, intent)
}

type refundRequest struct {
	OrderID string           `json:"orderId"`
	Amount  *decimal.Decimal `json:"amount"`
	Reason  string           `json:"reason"`
}

type refundResponse struct {
	RefundID string `json:"refundId"`
	Amount   int64  `json:"amount"`
	Status   string `json:"status"`
}

// Refund refunds a completed order (admin)
func (pc *PaymentController) Refund(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req refundRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	refund, err := pc.payments.Refund(r.Context(), actor, services.RefundInput{
		OrderID: req.OrderID,
		Amount:  req.Amount,
		Reason:  req.Reason,
	})
	if err != nil {
		respondError(w, r, pc.logger, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, refundResponse{RefundID: refund.ID, Amount: refund.Amount, Status: refund.Status})
}

// Webhook receives gateway callbacks. It is unauthenticated; the signature
// over the raw body is the authentication.
func (pc *PaymentController) Webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid_input", "Invalid payload")
		return
	}
	signature := r.Header.Get("Stripe-Signature")
	if signature == "" {
		signature = r.Header.Get("signature")
	}

	if _, err := pc.webhooks.Process(r.Context(), payload, signature); err != nil {
		if apperrors.KindOf(err) == apperrors.KindSignature {
			utils.RespondError(w, http.StatusBadRequest, "invalid_signature", "Webhook Error: signature verification failed")
			return
		}
		respondError(w, r, pc.logger, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]bool{"received": true})
}

// EMIOptions lists the instalment plans
func (pc *PaymentController) EMIOptions(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, models.EMIOptions())
}
