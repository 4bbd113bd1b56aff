package models

import (
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PromotionType is the kind of campaign.
type PromotionType string

const (
	PromoFlashSale PromotionType = "flash_sale"
	PromoSeasonal  PromotionType = "seasonal"
	PromoCoupon    PromotionType = "coupon"
	PromoBundle    PromotionType = "bundle"
	PromoBanner    PromotionType = "banner"
)

func (t PromotionType) Valid() bool {
	switch t {
	case PromoFlashSale, PromoSeasonal, PromoCoupon, PromoBundle, PromoBanner:
		return true
	}
	return false
}

// Promotion is a time-boxed discount rule.
type Promotion struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	Code        string             `bson:"code,omitempty" json:"code,omitempty"`
	Title       string             `bson:"title" json:"title"`
	Description string             `bson:"description,omitempty" json:"description,omitempty"`
	Type        PromotionType      `bson:"type" json:"type"`
	Discount    decimal.Decimal    `bson:"discount" json:"discount"` // percent
	ProductIDs  []string           `bson:"products,omitempty" json:"productIds,omitempty"`
	StartDate   time.Time          `bson:"start_date" json:"startDate"`
	EndDate     time.Time          `bson:"end_date" json:"endDate"`
	IsActive    bool               `bson:"is_active" json:"isActive"`
	CreatedAt   time.Time          `bson:"created_at" json:"createdAt"`
	UpdatedAt   time.Time          `bson:"updated_at" json:"updatedAt"`
}

// ActiveAt reports whether now falls inside [StartDate, EndDate].
func (p *Promotion) ActiveAt(now time.Time) bool {
	return !now.Before(p.StartDate) && !now.After(p.EndDate)
}

// CouponResult is the priced outcome of applying a coupon to a subtotal.
type CouponResult struct {
	Code            string          `json:"couponCode"`
	DiscountPercent decimal.Decimal `json:"discountPercentage"`
	DiscountAmount  decimal.Decimal `json:"discountAmount"`
	FinalAmount     decimal.Decimal `json:"finalAmount"`
}
