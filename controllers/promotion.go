package controllers

import (
	"log/slog"
	"net/http"
	"time"

	"shophub/apperrors"
	"shophub/models"
	"shophub/services"
	"shophub/utils"

	"github.com/shopspring/decimal"
)

// PromotionController handles promotions and coupon pricing
type PromotionController struct {
	promos *services.PromotionEngine
	logger *slog.Logger
}

func NewPromotionController(promos *services.PromotionEngine, logger *slog.Logger) *PromotionController {
	return &PromotionController{promos: promos, logger: logger}
}

type promotionResponse struct {
	Message   string            `json:"message"`
	Promotion *models.Promotion `json:"promotion"`
}

// CreatePromotion stores a new promotion (admin)
func (pc *PromotionController) CreatePromotion(w http.ResponseWriter, r *http.Request) {
	if _, ok := actorFrom(w, r); !ok {
		return
	}
	var promo models.Promotion
	if !decodeJSON(w, r, &promo) {
		return
	}
	if err := pc.promos.CreatePromotion(r.Context(), &promo); err != nil {
		respondError(w, r, pc.logger, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, promotionResponse{Message: "Promotion created", Promotion: &promo})
}

// ActivePromotions lists live promotions, optionally filtered by ?type=
func (pc *PromotionController) ActivePromotions(w http.ResponseWriter, r *http.Request) {
	typ := models.PromotionType(r.URL.Query().Get("type"))
	promos, err := pc.promos.ActivePromotions(r.Context(), time.Now().UTC(), typ)
	if err != nil {
		respondError(w, r, pc.logger, err)
		return
	}
	if promos == nil {
		promos = []models.Promotion{}
	}
	utils.RespondJSON(w, http.StatusOK, promos)
}

// ApplyCoupon prices a coupon against an order total
func (pc *PromotionController) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	if _, ok := actorFrom(w, r); !ok {
		return
	}
	var req struct {
		CouponCode string           `json:"couponCode"`
		OrderTotal *decimal.Decimal `json:"orderTotal"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.OrderTotal == nil {
		respondError(w, r, pc.logger, apperrors.Validation("missing_total", "couponCode and orderTotal are required"))
		return
	}
	res, err := pc.promos.ApplyCoupon(r.Context(), req.CouponCode, *req.OrderTotal, time.Now().UTC())
	if err != nil {
		respondError(w, r, pc.logger, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, res)
}
