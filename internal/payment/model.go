package payment

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Provider string

const (
	ProviderStripe Provider = "stripe"
	ProviderPaypal Provider = "paypal"
)

func ParseProvider(s string) (Provider, error) {
	switch p := Provider(strings.ToLower(strings.TrimSpace(s))); p {
	case ProviderStripe, ProviderPaypal:
		return p, nil
	}
	return "", ErrUnknownProvider
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusRefunded  Status = "refunded"
)

// Payment is one payment intent created with a provider.
type Payment struct {
	ID                uuid.UUID
	CheckoutSessionID *uuid.UUID
	Provider          Provider
	Reference         string
	Amount            decimal.Decimal
	AmountMinor       int64
	Currency          string
	Status            Status
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type IntentRequest struct {
	// AmountMinor is the amount in the currency's minor units.
	AmountMinor int64
	Currency    string
	Description string
	Metadata    map[string]string
	// IdempotencyKey is forwarded to providers that support it.
	IdempotencyKey string
}

type Intent struct {
	Provider     Provider        `json:"provider"`
	Reference    string          `json:"reference"`
	ClientSecret string          `json:"client_secret"`
	Status       string          `json:"status"`
	Raw          json.RawMessage `json:"-"`
}

// EventType is the provider-independent meaning of a webhook event.
type EventType string

const (
	EventPaymentSucceeded EventType = "payment_succeeded"
	EventPaymentFailed    EventType = "payment_failed"
	EventPaymentRefunded  EventType = "payment_refunded"
	EventIgnored          EventType = "ignored"
)

// Event is a verified webhook delivery normalized across providers.
type Event struct {
	ID            string
	Provider      Provider
	Type          EventType
	ProviderType  string
	Reference     string
	AmountMinor   int64
	Currency      string
	FailureReason string
	Payload       json.RawMessage
}
