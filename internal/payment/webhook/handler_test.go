package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"storefront-be/internal/order"
	"storefront-be/internal/payment"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockOrderService struct {
	mock.Mock
}

func (m *MockOrderService) ConfirmPayment(ctx context.Context, ref string, meta order.PaymentMetadata) (*order.Order, error) {
	args := m.Called(ctx, ref, meta)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *MockOrderService) FailPayment(ctx context.Context, ref string, reason string) error {
	args := m.Called(ctx, ref, reason)
	return args.Error(0)
}

func (m *MockOrderService) RefundPayment(ctx context.Context, ref string) (*order.Order, error) {
	args := m.Called(ctx, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

type MockPaymentRepository struct {
	mock.Mock
}

func (m *MockPaymentRepository) CreatePayment(ctx context.Context, p *payment.Payment) error {
	return m.Called(ctx, p).Error(0)
}

func (m *MockPaymentRepository) UpdatePaymentStatus(ctx context.Context, provider payment.Provider, ref string, status payment.Status) error {
	return m.Called(ctx, provider, ref, status).Error(0)
}

func (m *MockPaymentRepository) GetPaymentByReference(ctx context.Context, provider payment.Provider, ref string) (*payment.Payment, error) {
	args := m.Called(ctx, provider, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Payment), args.Error(1)
}

func (m *MockPaymentRepository) SavePaymentWebhook(
	ctx context.Context,
	provider payment.Provider,
	eventID, eventType, reference string,
	payload json.RawMessage,
	signatureValid bool,
) (int64, bool, error) {
	args := m.Called(ctx, provider, eventID, eventType, reference, payload, signatureValid)
	return args.Get(0).(int64), args.Bool(1), args.Error(2)
}

func (m *MockPaymentRepository) MarkWebhookProcessed(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockPaymentRepository) MarkWebhookFailed(ctx context.Context, id int64, reason string) error {
	return m.Called(ctx, id, reason).Error(0)
}

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) Provider() payment.Provider { return payment.ProviderStripe }

func (m *MockGateway) CreatePaymentIntent(ctx context.Context, req payment.IntentRequest) (*payment.Intent, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Intent), args.Error(1)
}

func (m *MockGateway) VerifyWebhook(ctx context.Context, header http.Header, body []byte) error {
	return m.Called(ctx, header, body).Error(0)
}

func (m *MockGateway) ParseEvent(body []byte) (*payment.Event, error) {
	args := m.Called(body)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Event), args.Error(1)
}

type fixture struct {
	orders   *MockOrderService
	payments *MockPaymentRepository
	gateway  *MockGateway
	mux      *http.ServeMux
}

func newFixture() *fixture {
	f := &fixture{
		orders:   new(MockOrderService),
		payments: new(MockPaymentRepository),
		gateway:  new(MockGateway),
	}
	f.mux = http.NewServeMux()
	f.mux.Handle("POST /webhook/{provider}", NewHandler(f.orders, payment.NewRegistry(f.gateway), f.payments))
	return f
}

func (f *fixture) post(provider, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook/"+provider, strings.NewReader(body))
	w := httptest.NewRecorder()
	f.mux.ServeHTTP(w, req)
	return w
}

const body = `{"id":"evt_1"}`

func succeeded() *payment.Event {
	return &payment.Event{
		ID:           "evt_1",
		Provider:     payment.ProviderStripe,
		Type:         payment.EventPaymentSucceeded,
		ProviderType: "payment_intent.succeeded",
		Reference:    "pi_1",
		AmountMinor:  37300,
		Currency:     "mxn",
		Payload:      json.RawMessage(body),
	}
}

func TestHandler_PaymentSucceeded(t *testing.T) {
	f := newFixture()
	ev := succeeded()

	f.gateway.On("VerifyWebhook", mock.Anything, mock.Anything, []byte(body)).Return(nil)
	f.gateway.On("ParseEvent", []byte(body)).Return(ev, nil)
	f.payments.On("SavePaymentWebhook", mock.Anything, payment.ProviderStripe, "evt_1", "payment_intent.succeeded", "pi_1", ev.Payload, true).
		Return(int64(11), false, nil)
	f.orders.On("ConfirmPayment", mock.Anything, "pi_1", order.PaymentMetadata{
		Provider:    payment.ProviderStripe,
		EventID:     "evt_1",
		AmountMinor: 37300,
		Currency:    "mxn",
	}).Return(&order.Order{ID: uuid.New()}, nil)
	f.payments.On("MarkWebhookProcessed", mock.Anything, int64(11)).Return(nil)

	w := f.post("stripe", body)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	f.orders.AssertExpectations(t)
	f.payments.AssertExpectations(t)
}

func TestHandler_Duplicate(t *testing.T) {
	f := newFixture()

	f.gateway.On("VerifyWebhook", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.gateway.On("ParseEvent", mock.Anything).Return(succeeded(), nil)
	f.payments.On("SavePaymentWebhook", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, true).
		Return(int64(11), true, nil)

	w := f.post("stripe", body)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"duplicate"}`, w.Body.String())
	f.orders.AssertNotCalled(t, "ConfirmPayment", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandler_FailedAndRefunded(t *testing.T) {
	t.Run("Failed", func(t *testing.T) {
		f := newFixture()
		ev := succeeded()
		ev.Type = payment.EventPaymentFailed
		ev.FailureReason = "card_declined"

		f.gateway.On("VerifyWebhook", mock.Anything, mock.Anything, mock.Anything).Return(nil)
		f.gateway.On("ParseEvent", mock.Anything).Return(ev, nil)
		f.payments.On("SavePaymentWebhook", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, true).
			Return(int64(12), false, nil)
		f.orders.On("FailPayment", mock.Anything, "pi_1", "card_declined").Return(nil)
		f.payments.On("MarkWebhookProcessed", mock.Anything, int64(12)).Return(nil)

		w := f.post("stripe", body)

		assert.Equal(t, http.StatusOK, w.Code)
		f.orders.AssertExpectations(t)
	})

	t.Run("Refunded", func(t *testing.T) {
		f := newFixture()
		ev := succeeded()
		ev.Type = payment.EventPaymentRefunded

		f.gateway.On("VerifyWebhook", mock.Anything, mock.Anything, mock.Anything).Return(nil)
		f.gateway.On("ParseEvent", mock.Anything).Return(ev, nil)
		f.payments.On("SavePaymentWebhook", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, true).
			Return(int64(13), false, nil)
		f.orders.On("RefundPayment", mock.Anything, "pi_1").Return(&order.Order{}, nil)
		f.payments.On("MarkWebhookProcessed", mock.Anything, int64(13)).Return(nil)

		w := f.post("stripe", body)

		assert.Equal(t, http.StatusOK, w.Code)
		f.orders.AssertExpectations(t)
	})

	t.Run("Ignored event", func(t *testing.T) {
		f := newFixture()
		ev := succeeded()
		ev.Type = payment.EventIgnored

		f.gateway.On("VerifyWebhook", mock.Anything, mock.Anything, mock.Anything).Return(nil)
		f.gateway.On("ParseEvent", mock.Anything).Return(ev, nil)
		f.payments.On("SavePaymentWebhook", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, true).
			Return(int64(14), false, nil)
		f.payments.On("MarkWebhookProcessed", mock.Anything, int64(14)).Return(nil)

		w := f.post("stripe", body)

		assert.Equal(t, http.StatusOK, w.Code)
		f.payments.AssertExpectations(t)
	})
}

func TestHandler_ProcessingErrors(t *testing.T) {
	t.Run("Unknown session is acknowledged", func(t *testing.T) {
		f := newFixture()

		f.gateway.On("VerifyWebhook", mock.Anything, mock.Anything, mock.Anything).Return(nil)
		f.gateway.On("ParseEvent", mock.Anything).Return(succeeded(), nil)
		f.payments.On("SavePaymentWebhook", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, true).
			Return(int64(15), false, nil)
		f.orders.On("ConfirmPayment", mock.Anything, "pi_1", mock.Anything).Return(nil, order.ErrSessionNotFound)
		f.payments.On("MarkWebhookFailed", mock.Anything, int64(15), order.ErrSessionNotFound.Error()).Return(nil)

		w := f.post("stripe", body)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"status":"rejected"}`, w.Body.String())
		f.payments.AssertExpectations(t)
		f.payments.AssertNotCalled(t, "MarkWebhookProcessed", mock.Anything, mock.Anything)
	})

	t.Run("Transient error asks for a retry", func(t *testing.T) {
		f := newFixture()
		dbErr := errors.New("db down")

		f.gateway.On("VerifyWebhook", mock.Anything, mock.Anything, mock.Anything).Return(nil)
		f.gateway.On("ParseEvent", mock.Anything).Return(succeeded(), nil)
		f.payments.On("SavePaymentWebhook", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, true).
			Return(int64(16), false, nil)
		f.orders.On("ConfirmPayment", mock.Anything, "pi_1", mock.Anything).Return(nil, dbErr)
		f.payments.On("MarkWebhookFailed", mock.Anything, int64(16), "db down").Return(nil)

		w := f.post("stripe", body)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		f.payments.AssertExpectations(t)
	})

	t.Run("Record failure", func(t *testing.T) {
		f := newFixture()

		f.gateway.On("VerifyWebhook", mock.Anything, mock.Anything, mock.Anything).Return(nil)
		f.gateway.On("ParseEvent", mock.Anything).Return(succeeded(), nil)
		f.payments.On("SavePaymentWebhook", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, true).
			Return(int64(0), false, payment.ErrFailedSaveWebhook)

		w := f.post("stripe", body)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		f.orders.AssertNotCalled(t, "ConfirmPayment", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestHandler_Rejections(t *testing.T) {
	t.Run("Unknown provider", func(t *testing.T) {
		f := newFixture()
		w := f.post("xendit", body)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("Provider not configured", func(t *testing.T) {
		f := newFixture()
		w := f.post("paypal", body)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("Bad signature", func(t *testing.T) {
		f := newFixture()
		f.gateway.On("VerifyWebhook", mock.Anything, mock.Anything, mock.Anything).Return(payment.ErrInvalidSignature)

		w := f.post("stripe", body)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		f.gateway.AssertNotCalled(t, "ParseEvent", mock.Anything)
		f.payments.AssertNotCalled(t, "SavePaymentWebhook",
			mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Unparseable payload", func(t *testing.T) {
		f := newFixture()
		f.gateway.On("VerifyWebhook", mock.Anything, mock.Anything, mock.Anything).Return(nil)
		f.gateway.On("ParseEvent", mock.Anything).Return(nil, payment.ErrInvalidPayload)

		w := f.post("stripe", "not json")

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Body too large", func(t *testing.T) {
		f := newFixture()
		w := f.post("stripe", strings.Repeat("x", MaxBodyBytes+1))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Wrong method", func(t *testing.T) {
		f := newFixture()
		req := httptest.NewRequest(http.MethodGet, "/webhook/stripe", nil)
		w := httptest.NewRecorder()
		f.mux.ServeHTTP(w, req)
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	})
}
