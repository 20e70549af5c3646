package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"storefront-be/internal/logger"

	"go.uber.org/zap"
)

const (
	stripeBaseURL = "https://api.stripe.com"

	// StripeSignatureHeader carries "t=<unix>,v1=<hex hmac>" pairs.
	StripeSignatureHeader = "Stripe-Signature"

	stripeSignatureTolerance = 5 * time.Minute
)

type stripeGateway struct {
	secretKey     string
	webhookSecret string
	baseURL       string
	httpClient    *http.Client
	now           func() time.Time
}

func NewStripeGateway(secretKey, webhookSecret string) Gateway {
	return newStripeGateway(secretKey, webhookSecret, stripeBaseURL, nil)
}

func newStripeGateway(secretKey, webhookSecret, baseURL string, client *http.Client) *stripeGateway {
	if secretKey == "" {
		logger.L().Warn("Stripe secret key is empty")
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &stripeGateway{
		secretKey:     secretKey,
		webhookSecret: webhookSecret,
		baseURL:       strings.TrimRight(baseURL, "/"),
		httpClient:    client,
		now:           time.Now,
	}
}

func (s *stripeGateway) Provider() Provider {
	return ProviderStripe
}

type stripeIntentResponse struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	Status       string `json:"status"`
}

type stripeErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// ----------------- CreatePaymentIntent -----------------

func (s *stripeGateway) CreatePaymentIntent(ctx context.Context, in IntentRequest) (*Intent, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("provider", string(ProviderStripe)),
		zap.Int64("amount_minor", in.AmountMinor),
		zap.String("currency", in.Currency),
	)

	if in.AmountMinor <= 0 {
		return nil, ErrInvalidAmount
	}

	form := url.Values{}
	form.Set("amount", strconv.FormatInt(in.AmountMinor, 10))
	form.Set("currency", strings.ToLower(in.Currency))
	form.Set("automatic_payment_methods[enabled]", "true")
	if in.Description != "" {
		form.Set("description", in.Description)
	}
	for k, v := range in.Metadata {
		form.Set("metadata["+k+"]", v)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v1/payment_intents", strings.NewReader(form.Encode()))
	if err != nil {
		log.Error("Failed creating request", zap.Error(err))
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+s.secretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if in.IdempotencyKey != "" {
		req.Header.Set("Idempotency-Key", in.IdempotencyKey)
	}

	log.Info("Sending payment intent request to Stripe")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		log.Error("Stripe request failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrProviderRequest, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Error("Failed to read response body", zap.Error(err))
		return nil, fmt.Errorf("failed to read stripe response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e stripeErrorResponse
		msg := string(body)
		if json.Unmarshal(body, &e) == nil && e.Error.Message != "" {
			msg = e.Error.Message
		}
		log.Error("Stripe returned non-success status",
			zap.Int("status", resp.StatusCode),
			zap.String("message", msg),
		)
		return nil, fmt.Errorf("%w: stripe: %s", ErrProviderRequest, msg)
	}

	var res stripeIntentResponse
	if err := json.Unmarshal(body, &res); err != nil {
		log.Error("Failed decoding Stripe response", zap.Error(err))
		return nil, err
	}

	log.Info("Stripe payment intent created",
		zap.String("payment_intent", res.ID),
		zap.String("status", res.Status),
	)

	return &Intent{
		Provider:     ProviderStripe,
		Reference:    res.ID,
		ClientSecret: res.ClientSecret,
		Status:       res.Status,
		Raw:          json.RawMessage(body),
	}, nil
}

// ----------------- Verify Webhook -----------------

func (s *stripeGateway) VerifyWebhook(_ context.Context, header http.Header, body []byte) error {
	if s.webhookSecret == "" {
		return fmt.Errorf("%w: stripe webhook secret not configured", ErrInvalidSignature)
	}

	ts, sigs, err := parseStripeSignature(header.Get(StripeSignatureHeader))
	if err != nil {
		return err
	}

	if d := s.now().Sub(time.Unix(ts, 0)); d > stripeSignatureTolerance || d < -stripeSignatureTolerance {
		return ErrSignatureExpired
	}

	expected := StripeSignature(s.webhookSecret, ts, body)
	for _, sig := range sigs {
		if hmac.Equal([]byte(sig), []byte(expected)) {
			return nil
		}
	}
	return ErrInvalidSignature
}

// StripeSignature computes the v1 signature of a payload.
func StripeSignature(secret string, timestamp int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func parseStripeSignature(h string) (int64, []string, error) {
	if h == "" {
		return 0, nil, fmt.Errorf("%w: missing %s header", ErrInvalidSignature, StripeSignatureHeader)
	}

	var (
		ts   int64
		sigs []string
	)
	for _, part := range strings.Split(h, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return 0, nil, fmt.Errorf("%w: bad timestamp", ErrInvalidSignature)
			}
			ts = n
		case "v1":
			sigs = append(sigs, v)
		}
	}

	if ts == 0 || len(sigs) == 0 {
		return 0, nil, fmt.Errorf("%w: malformed %s header", ErrInvalidSignature, StripeSignatureHeader)
	}
	return ts, sigs, nil
}

// ----------------- Parse Event -----------------

type stripeEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID               string `json:"id"`
			Amount           int64  `json:"amount"`
			AmountReceived   int64  `json:"amount_received"`
			AmountRefunded   int64  `json:"amount_refunded"`
			Refunded         bool   `json:"refunded"`
			Currency         string `json:"currency"`
			PaymentIntent    string `json:"payment_intent"`
			LastPaymentError *struct {
				Message string `json:"message"`
			} `json:"last_payment_error"`
		} `json:"object"`
	} `json:"data"`
}

func (s *stripeGateway) ParseEvent(body []byte) (*Event, error) {
	var e stripeEvent
	if err := json.Unmarshal(body, &e); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	if e.ID == "" || e.Type == "" {
		return nil, fmt.Errorf("%w: missing event id or type", ErrInvalidPayload)
	}

	obj := e.Data.Object
	evt := &Event{
		ID:           e.ID,
		Provider:     ProviderStripe,
		Type:         EventIgnored,
		ProviderType: e.Type,
		Reference:    obj.ID,
		AmountMinor:  obj.Amount,
		Currency:     strings.ToUpper(obj.Currency),
		Payload:      json.RawMessage(body),
	}

	switch e.Type {
	case "payment_intent.succeeded":
		evt.Type = EventPaymentSucceeded
		if obj.AmountReceived > 0 {
			evt.AmountMinor = obj.AmountReceived
		}
	case "payment_intent.payment_failed":
		evt.Type = EventPaymentFailed
		evt.FailureReason = "payment failed"
		if obj.LastPaymentError != nil && obj.LastPaymentError.Message != "" {
			evt.FailureReason = obj.LastPaymentError.Message
		}
	case "charge.refunded":
		// Charges reference the intent the order was keyed on. Partial
		// refunds are recorded but leave the order as it is.
		evt.Reference = obj.PaymentIntent
		evt.AmountMinor = obj.AmountRefunded
		if obj.Refunded || (obj.Amount > 0 && obj.AmountRefunded >= obj.Amount) {
			evt.Type = EventPaymentRefunded
		}
	}

	if evt.Type != EventIgnored && evt.Reference == "" {
		return nil, fmt.Errorf("%w: event %s has no payment reference", ErrInvalidPayload, e.ID)
	}
	return evt, nil
}
