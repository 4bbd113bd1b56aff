package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"shophub/apperrors"
	"shophub/models"
	"shophub/store"

	"github.com/shopspring/decimal"
)

// PromotionEngine validates and prices promotions.
type PromotionEngine struct {
	repo   store.PromotionRepository
	logger *slog.Logger
}

func NewPromotionEngine(repo store.PromotionRepository, logger *slog.Logger) *PromotionEngine {
	return &PromotionEngine{repo: repo, logger: logger.With("component", "promotions")}
}

// ApplyCoupon prices the coupon code against subtotal at now. The window is
// inclusive at both ends.
func (e *PromotionEngine) ApplyCoupon(ctx context.Context, code string, subtotal decimal.Decimal, now time.Time) (*models.CouponResult, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, apperrors.Validation("missing_coupon", "couponCode is required")
	}
	if subtotal.IsNegative() {
		return nil, apperrors.Validation("invalid_amount", "Order total cannot be negative")
	}

	promo, err := e.repo.FindCoupon(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperrors.ErrCouponNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find coupon: %w", err)
	}
	if !promo.ActiveAt(now) {
		return nil, apperrors.ErrCouponExpired
	}

	discount := models.Percent(subtotal, promo.Discount)
	return &models.CouponResult{
		Code:            promo.Code,
		DiscountPercent: promo.Discount,
		DiscountAmount:  discount,
		FinalAmount:     models.RoundMoney(subtotal.Sub(discount)),
	}, nil
}

// CreatePromotion validates and stores a new promotion. It starts active.
func (e *PromotionEngine) CreatePromotion(ctx context.Context, p *models.Promotion) error {
	p.Code = strings.TrimSpace(p.Code)
	switch {
	case strings.TrimSpace(p.Title) == "":
		return apperrors.Validation("missing_title", "title is required")
	case !p.Type.Valid():
		return apperrors.Validation("invalid_promotion_type", "Invalid promotion type")
	case !p.Discount.IsPositive() || p.Discount.GreaterThan(decimal.NewFromInt(100)):
		return apperrors.Validation("invalid_discount", "Discount must be between 0 and 100")
	case p.StartDate.IsZero() || p.EndDate.IsZero():
		return apperrors.Validation("missing_dates", "startDate and endDate are required")
	case !p.EndDate.After(p.StartDate):
		return apperrors.Validation("invalid_dates", "endDate must be after startDate")
	case p.Type == models.PromoCoupon && p.Code == "":
		return apperrors.Validation("missing_coupon", "A coupon promotion needs a code")
	}

	now := time.Now().UTC()
	p.IsActive = true
	p.CreatedAt = now
	p.UpdatedAt = now

	err := e.repo.CreatePromotion(ctx, p)
	if errors.Is(err, store.ErrDuplicate) {
		return &apperrors.Error{Kind: apperrors.KindConflict, Code: "duplicate_coupon", Message: "Coupon code already exists"}
	}
	if err != nil {
		return fmt.Errorf("create promotion: %w", err)
	}
	e.logger.Info("promotion created", "promotion_id", p.ID.Hex(), "type", p.Type)
	return nil
}

// ActivePromotions lists promotions live at now, optionally of one type.
func (e *PromotionEngine) ActivePromotions(ctx context.Context, now time.Time, typ models.PromotionType) ([]models.Promotion, error) {
	if typ != "" && !typ.Valid() {
		return nil, apperrors.Validation("invalid_promotion_type", "Invalid promotion type")
	}
	promos, err := e.repo.ListActive(ctx, now, typ)
	if err != nil {
		return nil, fmt.Errorf("list promotions: %w", err)
	}
	return promos, nil
}
