package models

import "github.com/shopspring/decimal"

// Product is the catalog record as seen by checkout. The catalog itself is
// managed elsewhere; checkout only reads it.
type Product struct {
	ID            string          `bson:"-" json:"id"`
	Name          string          `bson:"name" json:"name"`
	Price         decimal.Decimal `bson:"price" json:"price"`
	DiscountPrice decimal.Decimal `bson:"discount_price,omitempty" json:"discountPrice,omitempty"`
}

// EffectivePrice is the price a buyer pays right now.
func (p Product) EffectivePrice() decimal.Decimal {
	if p.DiscountPrice.IsPositive() {
		return p.DiscountPrice
	}
	return p.Price
}
