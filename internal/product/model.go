package product

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID            string              `json:"id"`
	Name          string              `json:"name"`
	Description   *string             `json:"description,omitempty"`
	Price         decimal.Decimal     `json:"price"`
	DiscountPrice decimal.NullDecimal `json:"discount_price"`
	Stock         int                 `json:"stock"`
	Sizes         []string            `json:"sizes"`
	Colors        []string            `json:"colors"`
	ImageURL      *string             `json:"image_url,omitempty"`
	Active        bool                `json:"active"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

// EffectivePrice is the discount price when one is set and positive,
// otherwise the list price.
func (p *Product) EffectivePrice() decimal.Decimal {
	if p.DiscountPrice.Valid && p.DiscountPrice.Decimal.IsPositive() {
		return p.DiscountPrice.Decimal
	}
	return p.Price
}

func (p *Product) HasSize(size string) bool {
	return slices.Contains(p.Sizes, size)
}

func (p *Product) HasColor(color string) bool {
	return slices.Contains(p.Colors, color)
}

func (p *Product) InStock() bool {
	return p.Stock > 0
}

type ListOptions struct {
	OnlyActive bool
	Search     string
	Limit      int
	Page       int
}
