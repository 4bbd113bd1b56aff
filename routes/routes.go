// routes/routes.go
package routes

import (
	"log/slog"
	"net/http"
	"time"

	"shophub/controllers"
	"shophub/middleware"

	"github.com/gorilla/mux"
)

// Controllers groups the handlers the router serves.
type Controllers struct {
	Health    *controllers.HealthController
	Cart      *controllers.CartController
	Order     *controllers.OrderController
	Payment   *controllers.PaymentController
	Promotion *controllers.PromotionController
}

// RegisterRoutes sets up all the routes for the application
func RegisterRoutes(router *mux.Router, c Controllers, jwtSecret []byte, requestTimeout time.Duration, logger *slog.Logger) {
	router.Use(middleware.RequestID, middleware.AccessLog(logger), middleware.Deadline(requestTimeout))

	// Public routes
	router.HandleFunc("/health", c.Health.Health).Methods(http.MethodGet)
	router.HandleFunc("/payments/webhook", c.Payment.Webhook).Methods(http.MethodPost)
	router.HandleFunc("/promotions/active", c.Promotion.ActivePromotions).Methods(http.MethodGet)

	// Protected routes
	protected := router.PathPrefix("/").Subrouter()
	protected.Use(middleware.Auth(jwtSecret))

	// Cart Routes
	protected.HandleFunc("/cart", c.Cart.GetCart).Methods(http.MethodGet)
	protected.HandleFunc("/cart/add", c.Cart.AddToCart).Methods(http.MethodPost)
	protected.HandleFunc("/cart/update", c.Cart.UpdateCartItem).Methods(http.MethodPut)
	protected.HandleFunc("/cart/remove", c.Cart.RemoveFromCart).Methods(http.MethodDelete)
	protected.HandleFunc("/cart/clear", c.Cart.ClearCart).Methods(http.MethodDelete)

	// Order Routes
	protected.HandleFunc("/orders", c.Order.CreateOrder).Methods(http.MethodPost)
	protected.HandleFunc("/orders", c.Order.GetOrders).Methods(http.MethodGet)
	protected.HandleFunc("/orders/{id}", c.Order.GetOrder).Methods(http.MethodGet)
	protected.HandleFunc("/orders/{id}/cancel", c.Order.CancelOrder).Methods(http.MethodPut)
	protected.HandleFunc("/orders/{id}/return", c.Order.RequestReturn).Methods(http.MethodPost)

	// Payment Routes
	protected.HandleFunc("/payments/initiate", c.Payment.InitiatePayment).Methods(http.MethodPost)
	protected.HandleFunc("/payments/verify", c.Payment.VerifyPayment).Methods(http.MethodPost)
	protected.HandleFunc("/payments/emi-options", c.Payment.EMIOptions).Methods(http.MethodGet)
	protected.HandleFunc("/payments/{intentId}", c.Payment.GetPaymentIntent).Methods(http.MethodGet)

	// Promotion Routes
	protected.HandleFunc("/promotions/coupon/apply", c.Promotion.ApplyCoupon).Methods(http.MethodPost)

	// Admin routes
	admin := router.PathPrefix("/").Subrouter()
	admin.Use(middleware.Auth(jwtSecret))
	admin.Use(middleware.AdminOnly)
	admin.HandleFunc("/orders/{id}/status", c.Order.UpdateOrderStatus).Methods(http.MethodPut)
	admin.HandleFunc("/payments/refund", c.Payment.Refund).Methods(http.MethodPost)
	admin.HandleFunc("/promotions", c.Promotion.CreatePromotion).Methods(http.MethodPost)
}
