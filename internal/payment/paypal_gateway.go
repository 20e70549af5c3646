package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"storefront-be/internal/logger"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const PaypalSandboxBaseURL = "https://api-m.sandbox.paypal.com"

// Headers PayPal signs every webhook delivery with.
var paypalSignatureHeaders = []string{
	"Paypal-Transmission-Id",
	"Paypal-Transmission-Time",
	"Paypal-Transmission-Sig",
	"Paypal-Cert-Url",
	"Paypal-Auth-Algo",
}

type paypalGateway struct {
	clientID     string
	clientSecret string
	webhookID    string
	baseURL      string
	httpClient   *http.Client
	now          func() time.Time

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

func NewPaypalGateway(clientID, clientSecret, webhookID, baseURL string) Gateway {
	return newPaypalGateway(clientID, clientSecret, webhookID, baseURL, nil)
}

func newPaypalGateway(clientID, clientSecret, webhookID, baseURL string, client *http.Client) *paypalGateway {
	if clientID == "" || clientSecret == "" {
		logger.L().Warn("PayPal credentials are empty")
	}
	if baseURL == "" {
		baseURL = PaypalSandboxBaseURL
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &paypalGateway{
		clientID:     clientID,
		clientSecret: clientSecret,
		webhookID:    webhookID,
		baseURL:      strings.TrimRight(baseURL, "/"),
		httpClient:   client,
		now:          time.Now,
	}
}

func (p *paypalGateway) Provider() Provider {
	return ProviderPaypal
}

// ----------------- OAuth -----------------

type paypalTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// accessToken returns a cached client-credentials token, refreshing it a
// minute before expiry.
func (p *paypalGateway) accessToken(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token != "" && p.now().Before(p.tokenExpiry) {
		return p.token, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(p.clientID, p.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	body, status, err := p.do(req)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("%w: paypal oauth: %s", ErrProviderRequest, string(body))
	}

	var tok paypalTokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", err
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("%w: paypal oauth returned no token", ErrProviderRequest)
	}

	p.token = tok.AccessToken
	p.tokenExpiry = p.now().Add(time.Duration(tok.ExpiresIn)*time.Second - time.Minute)
	return p.token, nil
}

func (p *paypalGateway) do(req *http.Request) ([]byte, int, error) {
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrProviderRequest, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read paypal response: %w", err)
	}
	return body, resp.StatusCode, nil
}

func (p *paypalGateway) postJSON(ctx context.Context, path string, payload any, header map[string]string) ([]byte, int, error) {
	token, err := p.accessToken(ctx)
	if err != nil {
		return nil, 0, err
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	return p.do(req)
}

// ----------------- CreatePaymentIntent -----------------

type paypalAmount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type paypalPurchaseUnit struct {
	ReferenceID string       `json:"reference_id,omitempty"`
	CustomID    string       `json:"custom_id,omitempty"`
	Description string       `json:"description,omitempty"`
	Amount      paypalAmount `json:"amount"`
}

type paypalOrderRequest struct {
	Intent        string               `json:"intent"`
	PurchaseUnits []paypalPurchaseUnit `json:"purchase_units"`
}

type paypalOrderResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// CreatePaymentIntent creates a PayPal order. The order id doubles as the
// client secret since the buyer approves it on the client.
func (p *paypalGateway) CreatePaymentIntent(ctx context.Context, in IntentRequest) (*Intent, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("provider", string(ProviderPaypal)),
		zap.Int64("amount_minor", in.AmountMinor),
		zap.String("currency", in.Currency),
	)

	if in.AmountMinor <= 0 {
		return nil, ErrInvalidAmount
	}

	currency := strings.ToUpper(in.Currency)
	unit := paypalPurchaseUnit{
		ReferenceID: in.Metadata["checkout_session_id"],
		CustomID:    in.Metadata["checkout_session_id"],
		Description: in.Description,
		Amount: paypalAmount{
			CurrencyCode: currency,
			Value:        FormatMajor(in.AmountMinor, currency),
		},
	}

	header := map[string]string{}
	if in.IdempotencyKey != "" {
		header["PayPal-Request-Id"] = in.IdempotencyKey
	}

	log.Info("Sending order request to PayPal")

	body, status, err := p.postJSON(ctx, "/v2/checkout/orders", paypalOrderRequest{
		Intent:        "CAPTURE",
		PurchaseUnits: []paypalPurchaseUnit{unit},
	}, header)
	if err != nil {
		log.Error("PayPal request failed", zap.Error(err))
		return nil, err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		log.Error("PayPal returned non-success status",
			zap.Int("status", status),
			zap.ByteString("response", body),
		)
		return nil, fmt.Errorf("%w: paypal: %s", ErrProviderRequest, string(body))
	}

	var res paypalOrderResponse
	if err := json.Unmarshal(body, &res); err != nil {
		log.Error("Failed decoding PayPal response", zap.Error(err))
		return nil, err
	}

	log.Info("PayPal order created",
		zap.String("paypal_order_id", res.ID),
		zap.String("status", res.Status),
	)

	return &Intent{
		Provider:     ProviderPaypal,
		Reference:    res.ID,
		ClientSecret: res.ID,
		Status:       res.Status,
		Raw:          json.RawMessage(body),
	}, nil
}

// ----------------- Verify Webhook -----------------

type paypalVerifyRequest struct {
	AuthAlgo         string          `json:"auth_algo"`
	CertURL          string          `json:"cert_url"`
	TransmissionID   string          `json:"transmission_id"`
	TransmissionSig  string          `json:"transmission_sig"`
	TransmissionTime string          `json:"transmission_time"`
	WebhookID        string          `json:"webhook_id"`
	WebhookEvent     json.RawMessage `json:"webhook_event"`
}

// VerifyWebhook asks PayPal to validate the transmission signature.
func (p *paypalGateway) VerifyWebhook(ctx context.Context, header http.Header, body []byte) error {
	if p.webhookID == "" {
		return fmt.Errorf("%w: paypal webhook id not configured", ErrInvalidSignature)
	}
	for _, h := range paypalSignatureHeaders {
		if header.Get(h) == "" {
			return fmt.Errorf("%w: missing %s header", ErrInvalidSignature, h)
		}
	}
	if !json.Valid(body) {
		return ErrInvalidPayload
	}

	res, status, err := p.postJSON(ctx, "/v1/notifications/verify-webhook-signature", paypalVerifyRequest{
		AuthAlgo:         header.Get("Paypal-Auth-Algo"),
		CertURL:          header.Get("Paypal-Cert-Url"),
		TransmissionID:   header.Get("Paypal-Transmission-Id"),
		TransmissionSig:  header.Get("Paypal-Transmission-Sig"),
		TransmissionTime: header.Get("Paypal-Transmission-Time"),
		WebhookID:        p.webhookID,
		WebhookEvent:     json.RawMessage(body),
	}, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("%w: paypal verify: %s", ErrProviderRequest, string(res))
	}

	var out struct {
		VerificationStatus string `json:"verification_status"`
	}
	if err := json.Unmarshal(res, &out); err != nil {
		return err
	}
	if out.VerificationStatus != "SUCCESS" {
		return ErrInvalidSignature
	}
	return nil
}

// ----------------- Parse Event -----------------

type paypalEvent struct {
	ID        string `json:"id"`
	EventType string `json:"event_type"`
	Resource  struct {
		ID     string        `json:"id"`
		Status string        `json:"status"`
		Amount *paypalAmount `json:"amount"`
		// Present on DENIED captures.
		StatusDetails *struct {
			Reason string `json:"reason"`
		} `json:"status_details"`
		SupplementaryData struct {
			RelatedIDs struct {
				OrderID string `json:"order_id"`
			} `json:"related_ids"`
		} `json:"supplementary_data"`
	} `json:"resource"`
}

func (p *paypalGateway) ParseEvent(body []byte) (*Event, error) {
	var e paypalEvent
	if err := json.Unmarshal(body, &e); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	if e.ID == "" || e.EventType == "" {
		return nil, fmt.Errorf("%w: missing event id or type", ErrInvalidPayload)
	}

	res := e.Resource
	evt := &Event{
		ID:           e.ID,
		Provider:     ProviderPaypal,
		Type:         EventIgnored,
		ProviderType: e.EventType,
		Reference:    res.SupplementaryData.RelatedIDs.OrderID,
		Payload:      json.RawMessage(body),
	}
	if evt.Reference == "" {
		evt.Reference = res.ID
	}
	if res.Amount != nil {
		evt.Currency = strings.ToUpper(res.Amount.CurrencyCode)
		if v, err := decimal.NewFromString(res.Amount.Value); err == nil {
			evt.AmountMinor = ToMinorUnits(v, evt.Currency)
		}
	}

	switch e.EventType {
	case "PAYMENT.CAPTURE.COMPLETED":
		evt.Type = EventPaymentSucceeded
	case "PAYMENT.CAPTURE.DENIED":
		evt.Type = EventPaymentFailed
		evt.FailureReason = "capture denied"
		if res.StatusDetails != nil && res.StatusDetails.Reason != "" {
			evt.FailureReason = res.StatusDetails.Reason
		}
	case "PAYMENT.CAPTURE.REFUNDED":
		evt.Type = EventPaymentRefunded
	}

	return evt, nil
}
