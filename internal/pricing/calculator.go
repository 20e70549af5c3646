// Package pricing turns cart lines into checkout totals. It performs no I/O.
package pricing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var ErrInvalidInput = errors.New("invalid pricing input")

// Money amounts are rounded to cents.
const moneyPlaces = 2

type Line struct {
	UnitPrice decimal.Decimal
	Quantity  int
}

// Rates holds the store-wide pricing configuration.
// A FreeShippingThreshold of zero disables free shipping.
type Rates struct {
	TaxRate               decimal.Decimal
	FreeShippingThreshold decimal.Decimal
	ShippingCost          decimal.Decimal
}

type Totals struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Tax      decimal.Decimal `json:"tax"`
	Shipping decimal.Decimal `json:"shipping"`
	Discount decimal.Decimal `json:"discount"`
	Total    decimal.Decimal `json:"total"`
}

func (r Rates) validate() error {
	if r.TaxRate.IsNegative() {
		return fmt.Errorf("%w: negative tax rate", ErrInvalidInput)
	}
	if r.FreeShippingThreshold.IsNegative() {
		return fmt.Errorf("%w: negative free shipping threshold", ErrInvalidInput)
	}
	if r.ShippingCost.IsNegative() {
		return fmt.Errorf("%w: negative shipping cost", ErrInvalidInput)
	}
	return nil
}

// ComputeTotals derives subtotal, tax, shipping and total for lines.
//
//	subtotal = Σ unit_price × quantity
//	tax      = subtotal × tax_rate
//	shipping = 0 for an empty cart or when subtotal ≥ threshold, else the flat cost
//	total    = max(0, subtotal + tax + shipping − discount)
func ComputeTotals(lines []Line, rates Rates, discount decimal.Decimal) (Totals, error) {
	if err := rates.validate(); err != nil {
		return Totals{}, err
	}
	if discount.IsNegative() {
		return Totals{}, fmt.Errorf("%w: negative discount", ErrInvalidInput)
	}

	subtotal := decimal.Zero
	for i, l := range lines {
		if l.Quantity < 0 {
			return Totals{}, fmt.Errorf("%w: line %d has negative quantity", ErrInvalidInput, i)
		}
		if l.UnitPrice.IsNegative() {
			return Totals{}, fmt.Errorf("%w: line %d has negative price", ErrInvalidInput, i)
		}
		subtotal = subtotal.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	subtotal = subtotal.Round(moneyPlaces)

	tax := subtotal.Mul(rates.TaxRate).Round(moneyPlaces)
	shipping := decimal.Zero
	if len(lines) > 0 {
		shipping = Shipping(subtotal, rates)
	}

	total := subtotal.Add(tax).Add(shipping).Sub(discount)
	if total.IsNegative() {
		total = decimal.Zero
	}

	return Totals{
		Subtotal: subtotal,
		Tax:      tax,
		Shipping: shipping,
		Discount: discount,
		Total:    total.Round(moneyPlaces),
	}, nil
}

// Shipping returns the charge for a non-empty cart: zero exactly when the
// subtotal reaches the threshold, so a zero threshold ships everything free.
func Shipping(subtotal decimal.Decimal, rates Rates) decimal.Decimal {
	if subtotal.GreaterThanOrEqual(rates.FreeShippingThreshold) {
		return decimal.Zero
	}
	return rates.ShippingCost
}
