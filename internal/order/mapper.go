package order

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderSummary is the list view of an order.
type OrderSummary struct {
	ID             uuid.UUID       `json:"id"`
	OrderNumber    string          `json:"order_number"`
	Status         OrderStatus     `json:"status"`
	PaymentStatus  PaymentStatus   `json:"payment_status"`
	Total          decimal.Decimal `json:"total"`
	Currency       string          `json:"currency"`
	TrackingNumber *string         `json:"tracking_number,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

func ToOrderSummary(o *Order) OrderSummary {
	return OrderSummary{
		ID:             o.ID,
		OrderNumber:    o.OrderNumber,
		Status:         o.Status,
		PaymentStatus:  o.PaymentStatus,
		Total:          o.Total,
		Currency:       o.Currency,
		TrackingNumber: o.TrackingNumber,
		CreatedAt:      o.CreatedAt,
	}
}

func ToOrderSummaries(orders []*Order) []OrderSummary {
	out := make([]OrderSummary, 0, len(orders))
	for _, o := range orders {
		if o == nil {
			continue
		}
		out = append(out, ToOrderSummary(o))
	}
	return out
}
