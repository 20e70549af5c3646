package order

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"storefront-be/internal/cart"
	"storefront-be/internal/payment"
	"storefront-be/internal/pricing"
	"storefront-be/internal/product"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Order is written once per confirmed payment. After creation only Status,
// PaymentStatus and TrackingNumber change.
type Order struct {
	ID            uuid.UUID     `json:"id"`
	OrderNumber   string        `json:"order_number"`
	UserID        *uint         `json:"user_id,omitempty"`
	Status        OrderStatus   `json:"status"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	pricing.Totals
	Currency        string        `json:"currency"`
	ShippingAddress Address       `json:"shipping_address"`
	BillingAddress  Address       `json:"billing_address"`
	PaymentMethod   PaymentMethod `json:"payment_method"`
	PaymentID       *string       `json:"payment_id,omitempty"`
	TrackingNumber  *string       `json:"tracking_number,omitempty"`
	Notes           *string       `json:"notes,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
	Items           []OrderItem   `json:"items,omitempty"`
}

func (o *Order) OwnedBy(userID uint) bool {
	return o.UserID != nil && *o.UserID == userID
}

// OrderItem carries the product as it was at purchase time.
type OrderItem struct {
	ID              uuid.UUID       `json:"id"`
	OrderID         uuid.UUID       `json:"order_id"`
	ProductID       string          `json:"product_id"`
	ProductSnapshot json.RawMessage `json:"product_snapshot"`
	Quantity        int             `json:"quantity"`
	Size            string          `json:"size"`
	Color           string          `json:"color"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	TotalPrice      decimal.Decimal `json:"total_price"`
}

// Product decodes the frozen product.
func (i OrderItem) Product() (*product.Product, error) {
	var p product.Product
	if err := json.Unmarshal(i.ProductSnapshot, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

type Address struct {
	FullName   string `json:"full_name"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
}

func (a Address) IsZero() bool {
	return a == Address{}
}

func (a Address) Validate() error {
	required := []struct {
		name  string
		value string
	}{
		{"full_name", a.FullName},
		{"line1", a.Line1},
		{"city", a.City},
		{"postal_code", a.PostalCode},
		{"country", a.Country},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			return fmt.Errorf("%w: %s is required", ErrInvalidAddress, f.name)
		}
	}
	return nil
}

func (a Address) Value() (driver.Value, error) {
	return json.Marshal(a)
}

func (a *Address) Scan(src any) error {
	return scanJSON(src, a)
}

// PaymentMethod describes how an order was paid. It never holds card data
// beyond what the provider exposes for display.
type PaymentMethod struct {
	Provider payment.Provider `json:"provider"`
	Type     string           `json:"type"`
	Brand    string           `json:"brand,omitempty"`
	Last4    string           `json:"last4,omitempty"`
}

func (m PaymentMethod) Validate() error {
	if _, err := payment.ParseProvider(string(m.Provider)); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPaymentMethod, err)
	}
	if m.Last4 != "" {
		if len(m.Last4) != 4 || strings.Trim(m.Last4, "0123456789") != "" {
			return fmt.Errorf("%w: last4 must be four digits", ErrInvalidPaymentMethod)
		}
	}
	return nil
}

// withDefaults fills Type from the provider when unset.
func (m PaymentMethod) withDefaults() PaymentMethod {
	if m.Type == "" {
		switch m.Provider {
		case payment.ProviderStripe:
			m.Type = "card"
		case payment.ProviderPaypal:
			m.Type = "paypal"
		}
	}
	return m
}

func (m PaymentMethod) Value() (driver.Value, error) {
	return json.Marshal(m)
}

func (m *PaymentMethod) Scan(src any) error {
	return scanJSON(src, m)
}

func scanJSON(src any, dst any) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		return fmt.Errorf("cannot scan %T into %T", src, dst)
	}
}

type ListOptions struct {
	UserID *uint
	Status OrderStatus
	Limit  int
	Page   int
}

// CreateOrderParams are the inputs of the snapshot writer besides the cart.
type CreateOrderParams struct {
	UserID          *uint
	ShippingAddress Address
	// BillingAddress defaults to ShippingAddress when zero.
	BillingAddress Address
	PaymentMethod  PaymentMethod
	PaymentRef     string
	Currency       string
	Notes          *string
	SessionID      *uuid.UUID
	Status         OrderStatus
	PaymentStatus  PaymentStatus
}

type StartCheckoutParams struct {
	UserID          uint
	Provider        payment.Provider
	ShippingAddress Address
	BillingAddress  Address
	PaymentMethod   PaymentMethod
	Notes           *string
}

type CheckoutResult struct {
	SessionID    uuid.UUID        `json:"session_id"`
	Provider     payment.Provider `json:"provider"`
	PaymentRef   string           `json:"payment_ref"`
	ClientSecret string           `json:"client_secret"`
	pricing.Totals
	Currency  string    `json:"currency"`
	ExpiresAt time.Time `json:"expires_at"`
}

// PaymentMetadata is what a provider reported alongside a confirmation.
type PaymentMetadata struct {
	Provider payment.Provider
	EventID  string
	// AmountMinor is checked against the session total when non-zero.
	AmountMinor int64
	Currency    string
}

// CheckoutSession binds a payment reference to the cart as it was frozen at
// checkout, so the order can be written when the provider confirms.
type CheckoutSession struct {
	ID         uuid.UUID
	UserID     *uint
	Status     SessionStatus
	Provider   payment.Provider
	PaymentRef string
	Items      SessionItems
	pricing.Totals
	Currency        string
	ShippingAddress Address
	BillingAddress  Address
	PaymentMethod   PaymentMethod
	Notes           *string
	ExpiresAt       time.Time
	CreatedAt       time.Time
	CompletedAt     *time.Time
}

func (s *CheckoutSession) IsExpired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Cart rebuilds the frozen cart.
func (s *CheckoutSession) Cart() *cart.Cart {
	c := &cart.Cart{Items: []*cart.CartLine(s.Items), Totals: s.Totals}
	if s.UserID != nil {
		c.UserID = *s.UserID
	}
	return c
}

// SessionItems is stored as a JSON array of cart lines with their products.
type SessionItems []*cart.CartLine

func (s SessionItems) Value() (driver.Value, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s)
}

func (s *SessionItems) Scan(src any) error {
	return scanJSON(src, s)
}
