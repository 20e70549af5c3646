package cart

import (
	"time"

	"storefront-be/internal/pricing"
	"storefront-be/internal/product"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Key is the natural key of a cart line within one user's cart.
type Key struct {
	ProductID string
	Size      string
	Color     string
}

type CartLine struct {
	ID        uuid.UUID        `json:"id"`
	UserID    uint             `json:"user_id"`
	ProductID string           `json:"product_id"`
	Size      string           `json:"size"`
	Color     string           `json:"color"`
	Quantity  int              `json:"quantity"`
	AddedAt   time.Time        `json:"added_at"`
	UpdatedAt time.Time        `json:"updated_at"`
	Product   *product.Product `json:"product,omitempty"`
}

func (l *CartLine) Key() Key {
	return Key{ProductID: l.ProductID, Size: l.Size, Color: l.Color}
}

// UnitPrice is the product's effective price; zero when the product is not loaded.
func (l *CartLine) UnitPrice() decimal.Decimal {
	if l.Product == nil {
		return decimal.Zero
	}
	return l.Product.EffectivePrice()
}

func (l *CartLine) LineTotal() decimal.Decimal {
	return l.UnitPrice().Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Cart is a derived snapshot of a user's lines with computed totals.
type Cart struct {
	UserID uint        `json:"user_id"`
	Items  []*CartLine `json:"items"`
	pricing.Totals
}

func (c *Cart) IsEmpty() bool {
	return c == nil || len(c.Items) == 0
}

func (c *Cart) ItemCount() int {
	if c == nil {
		return 0
	}
	n := 0
	for _, l := range c.Items {
		n += l.Quantity
	}
	return n
}

type AddToCartParams struct {
	UserID    uint
	ProductID string
	Size      string
	Color     string
	Quantity  int
}

type UpdateQuantityParams struct {
	UserID   uint
	LineID   uuid.UUID
	Quantity int
}

type UpsertCartLineParams struct {
	UserID    uint
	ProductID string
	Size      string
	Color     string
	Quantity  int
	// MaxQuantity bounds the merged quantity; zero means unbounded.
	MaxQuantity int
}
