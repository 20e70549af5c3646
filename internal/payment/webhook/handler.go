package webhook

import (
	"context"
	"errors"
	"io"
	"net/http"

	"storefront-be/internal/logger"
	"storefront-be/internal/metrics"
	"storefront-be/internal/order"
	"storefront-be/internal/payment"
	"storefront-be/internal/utils"

	"go.uber.org/zap"
)

// MaxBodyBytes bounds a single webhook delivery.
const MaxBodyBytes = 1 << 20

// OrderService is the payment intake side of the order service.
type OrderService interface {
	ConfirmPayment(ctx context.Context, paymentRef string, meta order.PaymentMetadata) (*order.Order, error)
	FailPayment(ctx context.Context, paymentRef string, reason string) error
	RefundPayment(ctx context.Context, paymentRef string) (*order.Order, error)
}

type Handler struct {
	orders   OrderService
	gateways *payment.Registry
	payments payment.Repository
}

func NewHandler(orders OrderService, gateways *payment.Registry, payments payment.Repository) *Handler {
	return &Handler{
		orders:   orders,
		gateways: gateways,
		payments: payments,
	}
}

// ServeHTTP handles POST /webhook/{provider}. Deliveries are recorded per
// (provider, event id) so a redelivered event is acknowledged without being
// applied twice. Permanent failures are acknowledged with 200 so the
// provider stops retrying; transient ones return 500.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	provider := payment.Provider(r.PathValue("provider"))
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "webhook"),
		zap.String("provider", string(provider)),
	)
	timer := metrics.StartTimer()

	gw, err := h.gateways.Get(provider)
	if err != nil {
		log.Warn("webhook for unavailable provider", zap.Error(err))
		utils.WriteJSONError(w, "unknown provider", http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		log.Warn("failed to read webhook body", zap.Error(err))
		utils.WriteJSONError(w, "failed to read body", http.StatusBadRequest)
		return
	}
	metrics.WebhooksReceived.Inc()

	if err := gw.VerifyWebhook(ctx, r.Header, body); err != nil {
		log.Warn("webhook signature rejected", zap.Error(err))
		metrics.WebhooksFailed.Inc()
		utils.WriteJSONError(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	event, err := gw.ParseEvent(body)
	if err != nil {
		log.Warn("failed to parse webhook event", zap.Error(err))
		metrics.WebhooksFailed.Inc()
		utils.WriteJSONError(w, "invalid payload", http.StatusBadRequest)
		return
	}
	log = log.With(
		zap.String("event_id", event.ID),
		zap.String("event_type", event.ProviderType),
		zap.String("payment_ref", event.Reference),
	)

	webhookID, duplicate, err := h.payments.SavePaymentWebhook(
		ctx, provider, event.ID, event.ProviderType, event.Reference, event.Payload, true,
	)
	if err != nil {
		log.Error("failed to record webhook", zap.Error(err))
		utils.WriteJSONError(w, "failed to record webhook", http.StatusInternalServerError)
		return
	}
	if duplicate {
		metrics.WebhooksDuplicate.Inc()
		log.Info("duplicate webhook ignored")
		utils.WriteJSON(w, http.StatusOK, map[string]string{"status": "duplicate"})
		return
	}

	if err := h.apply(ctx, event); err != nil {
		metrics.WebhooksFailed.Inc()
		if markErr := h.payments.MarkWebhookFailed(ctx, webhookID, err.Error()); markErr != nil {
			log.Error("failed to mark webhook failed", zap.Error(markErr))
		}

		if isPermanent(err) {
			log.Warn("webhook not applicable", zap.Error(err))
			utils.WriteJSON(w, http.StatusOK, map[string]string{"status": "rejected"})
			return
		}
		log.Error("failed to process webhook", zap.Error(err))
		utils.WriteJSONError(w, "failed to process webhook", http.StatusInternalServerError)
		return
	}

	if err := h.payments.MarkWebhookProcessed(ctx, webhookID); err != nil {
		log.Error("failed to mark webhook processed", zap.Error(err))
	}

	log.Info("webhook processed", zap.Duration("duration", timer.Duration()))
	utils.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) apply(ctx context.Context, event *payment.Event) error {
	switch event.Type {
	case payment.EventPaymentSucceeded:
		_, err := h.orders.ConfirmPayment(ctx, event.Reference, order.PaymentMetadata{
			Provider:    event.Provider,
			EventID:     event.ID,
			AmountMinor: event.AmountMinor,
			Currency:    event.Currency,
		})
		return err
	case payment.EventPaymentFailed:
		return h.orders.FailPayment(ctx, event.Reference, event.FailureReason)
	case payment.EventPaymentRefunded:
		_, err := h.orders.RefundPayment(ctx, event.Reference)
		return err
	default:
		return nil
	}
}

// isPermanent reports errors a redelivery cannot fix.
func isPermanent(err error) bool {
	return errors.Is(err, order.ErrSessionNotFound) ||
		errors.Is(err, order.ErrOrderNotFound) ||
		errors.Is(err, order.ErrAmountMismatch) ||
		errors.Is(err, order.ErrInvalidTransition) ||
		errors.Is(err, order.ErrInvalidPaymentRef)
}
