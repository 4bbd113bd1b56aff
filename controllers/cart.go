package controllers

import (
	"log/slog"
	"net/http"

	"shophub/models"
	"shophub/services"
	"shophub/utils"
)

// CartController handles cart-related requests
type CartController struct {
	carts  *services.CartService
	logger *slog.Logger
}

// NewCartController creates a new CartController
func NewCartController(carts *services.CartService, logger *slog.Logger) *CartController {
	return &CartController{carts: carts, logger: logger}
}

type cartItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type cartResponse struct {
	Message string       `json:"message"`
	Cart    *models.Cart `json:"cart"`
}

// GetCart retrieves the user's cart
func (cc *CartController) GetCart(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	cart, err := cc.carts.Get(r.Context(), actor.UserID)
	if err != nil {
		respondError(w, r, cc.logger, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, cart)
}

// AddToCart adds a product to the user's cart
func (cc *CartController) AddToCart(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req cartItemRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	cart, err := cc.carts.AddItem(r.Context(), actor.UserID, req.ProductID, req.Quantity)
	if err != nil {
		respondError(w, r, cc.logger, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, cartResponse{Message: "Product added to cart", Cart: cart})
}

// UpdateCartItem sets the quantity of a line
func (cc *CartController) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req cartItemRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	cart, err := cc.carts.UpdateItem(r.Context(), actor.UserID, req.ProductID, req.Quantity)
	if err != nil {
		respondError(w, r, cc.logger, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, cartResponse{Message: "Cart updated", Cart: cart})
}

// RemoveFromCart removes a product from the user's cart. The product may be
// named in the body or as a productId query parameter.
func (cc *CartController) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	productID := r.URL.Query().Get("productId")
	if productID == "" {
		var req cartItemRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		productID = req.ProductID
	}
	cart, err := cc.carts.RemoveItem(r.Context(), actor.UserID, productID)
	if err != nil {
		respondError(w, r, cc.logger, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, cartResponse{Message: "Item removed from cart", Cart: cart})
}

// ClearCart empties the user's cart
func (cc *CartController) ClearCart(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	if err := cc.carts.Clear(r.Context(), actor.UserID); err != nil {
		respondError(w, r, cc.logger, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, messageResponse{Message: "Cart cleared"})
}
