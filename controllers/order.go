package controllers

import (
	"log/slog"
	"net/http"

	"shophub/models"
	"shophub/services"
	"shophub/utils"

	"github.com/gorilla/mux"
)

// OrderController handles order-related requests
type OrderController struct {
	ledger *services.OrderLedger
	logger *slog.Logger
}

// NewOrderController creates a new OrderController
func NewOrderController(ledger *services.OrderLedger, logger *slog.Logger) *OrderController {
	return &OrderController{ledger: ledger, logger: logger}
}

type createOrderRequest struct {
	ShippingAddress models.Address `json:"shippingAddress"`
	BillingAddress  models.Address `json:"billingAddress"`
	PaymentMethod   string         `json:"paymentMethod"`
	CouponCode      string         `json:"couponCode"`
}

type orderResponse struct {
	Message string        `json:"message"`
	Order   *models.Order `json:"order"`
}

// CreateOrder creates a new order from the user's cart
func (oc *OrderController) CreateOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req createOrderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	order, err := oc.ledger.CreateOrder(r.Context(), actor, services.CreateOrderInput{
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  req.BillingAddress,
		PaymentMethod:   models.PaymentMethod(req.PaymentMethod),
		CouponCode:      req.CouponCode,
	})
	if err != nil {
		respondError(w, r, oc.logger, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, orderResponse{Message: "Order created", Order: order})
}

// GetOrders lists the caller's orders, newest first
func (oc *OrderController) GetOrders(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	orders, err := oc.ledger.ListOrders(r.Context(), actor)
	if err != nil {
		respondError(w, r, oc.logger, err)
		return
	}
	if orders == nil {
		orders = []models.Order{}
	}
	utils.RespondJSON(w, http.StatusOK, orders)
}

// GetOrder returns one order the caller may see
func (oc *OrderController) GetOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	order, err := oc.ledger.GetOrder(r.Context(), actor, mux.Vars(r)["id"])
	if err != nil {
		respondError(w, r, oc.logger, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, order)
}

// UpdateOrderStatus moves an order one step along its lifecycle (admin)
func (oc *OrderController) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req struct {
		OrderStatus string `json:"orderStatus"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	order, err := oc.ledger.UpdateStatus(r.Context(), actor, mux.Vars(r)["id"], models.OrderStatus(req.OrderStatus))
	if err != nil {
		respondError(w, r, oc.logger, transitionAsBadRequest(err))
		return
	}
	utils.RespondJSON(w, http.StatusOK, orderResponse{Message: "Order status updated", Order: order})
}

// CancelOrder cancels a pending or confirmed order
func (oc *OrderController) CancelOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	order, err := oc.ledger.CancelOrder(r.Context(), actor, mux.Vars(r)["id"])
	if err != nil {
		respondError(w, r, oc.logger, transitionAsBadRequest(err))
		return
	}
	utils.RespondJSON(w, http.StatusOK, orderResponse{Message: "Order cancelled", Order: order})
}

// RequestReturn opens a return request on a delivered order
func (oc *OrderController) RequestReturn(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	order, err := oc.ledger.RequestReturn(r.Context(), actor, mux.Vars(r)["id"], req.Reason)
	if err != nil {
		respondError(w, r, oc.logger, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, orderResponse{Message: "Return request created", Order: order})
}
