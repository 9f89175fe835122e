// Package pricing turns cart lines into order totals.
//
// Every monetary output is rounded half-up to cents. Items are summed in full
// precision and rounded once; shipping and tax are derived from the rounded
// items price, and the total is the rounded sum of the three parts.
package pricing

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrInvalidInput reports a line with a negative unit price or a
// non-positive quantity.
var ErrInvalidInput = errors.New("invalid pricing input")

var (
	// FreeShippingThreshold is the items price above which shipping is free.
	FreeShippingThreshold = decimal.NewFromInt(100)
	// FlatShippingFee is charged when the items price is at or below the threshold.
	FlatShippingFee = decimal.NewFromInt(10)
	// TaxRate is applied to the rounded items price.
	TaxRate = decimal.RequireFromString("0.1")
)

// Line is the arithmetic view of a cart line.
type Line struct {
	UnitPrice decimal.Decimal
	Quantity  int
}

// Totals holds the computed order amounts, each rounded to cents.
type Totals struct {
	ItemsPrice    decimal.Decimal
	ShippingPrice decimal.Decimal
	TaxPrice      decimal.Decimal
	TotalPrice    decimal.Decimal
}

// ComputeTotals prices lines. An empty slice yields all-zero totals; callers
// that require a non-empty order must check that themselves.
func ComputeTotals(lines []Line) (Totals, error) {
	if len(lines) == 0 {
		return Totals{
			ItemsPrice:    decimal.Zero,
			ShippingPrice: decimal.Zero,
			TaxPrice:      decimal.Zero,
			TotalPrice:    decimal.Zero,
		}, nil
	}

	sum := decimal.Zero
	for i, line := range lines {
		if line.UnitPrice.IsNegative() {
			return Totals{}, errors.Wrapf(ErrInvalidInput, "line %d: negative unit price %s", i, line.UnitPrice)
		}
		if line.Quantity < 1 {
			return Totals{}, errors.Wrapf(ErrInvalidInput, "line %d: quantity %d", i, line.Quantity)
		}
		sum = sum.Add(line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}

	items := Round(sum)
	shipping := FlatShippingFee
	if items.GreaterThan(FreeShippingThreshold) {
		shipping = decimal.Zero
	}
	tax := Round(items.Mul(TaxRate))

	return Totals{
		ItemsPrice:    items,
		ShippingPrice: Round(shipping),
		TaxPrice:      tax,
		TotalPrice:    Round(items.Add(shipping).Add(tax)),
	}, nil
}

// Round rounds half-up to two fractional digits. decimal.Round rounds half
// away from zero, which is half-up for the non-negative amounts priced here.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
