package models

import "github.com/shopspring/decimal"

// CurrencyPlaces is the precision all stored amounts are rounded to.
const CurrencyPlaces = 2

var hundred = decimal.NewFromInt(100)

// RoundMoney rounds half away from zero, which is half-up for the
// non-negative amounts checkout deals in.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(CurrencyPlaces)
}

// ToMinorUnits converts an amount to the gateway's smallest currency unit.
func ToMinorUnits(d decimal.Decimal) int64 {
	return d.Mul(hundred).Round(0).IntPart()
}

// FromMinorUnits converts a gateway amount back into a decimal amount.
func FromMinorUnits(n int64) decimal.Decimal {
	return decimal.New(n, -CurrencyPlaces)
}

// Percent returns amount * pct / 100, rounded to currency precision.
func Percent(amount, pct decimal.Decimal) decimal.Decimal {
	return RoundMoney(amount.Mul(pct).Div(hundred))
}
