package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"storefront-be/internal/cart"
	"storefront-be/internal/logger"
	"storefront-be/internal/metrics"
	"storefront-be/internal/payment"
	"storefront-be/internal/utils"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// StartCheckout freezes the user's cart into a checkout session and opens a
// payment intent with the chosen provider. The order itself is only written
// when the provider confirms the payment.
func (s *service) StartCheckout(ctx context.Context, params StartCheckoutParams) (*CheckoutResult, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "StartCheckout"),
		zap.Uint("user_id", params.UserID),
		zap.String("provider", string(params.Provider)),
	)

	if params.UserID == 0 {
		return nil, ErrUnauthorized
	}

	billing, err := resolveAddresses(params.ShippingAddress, params.BillingAddress)
	if err != nil {
		return nil, err
	}

	method := params.PaymentMethod
	method.Provider = params.Provider
	method = method.withDefaults()
	if err := method.Validate(); err != nil {
		return nil, err
	}

	gw, err := s.gateways.Get(params.Provider)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPaymentMethod, err)
	}

	c, err := s.carts.GetCart(ctx, params.UserID)
	if err != nil {
		log.Error("failed to load cart", zap.Error(err))
		return nil, err
	}
	if c.IsEmpty() {
		return nil, ErrEmptyCart
	}

	amount := payment.ToMinorUnits(c.Total, s.currency)
	if amount <= 0 {
		return nil, payment.ErrInvalidAmount
	}

	sessionID := uuid.New()
	intent, err := gw.CreatePaymentIntent(ctx, payment.IntentRequest{
		AmountMinor: amount,
		Currency:    s.currency,
		Description: fmt.Sprintf("Checkout %s", sessionID),
		Metadata: map[string]string{
			"checkout_session_id": sessionID.String(),
			"user_id":             strconv.FormatUint(uint64(params.UserID), 10),
		},
		IdempotencyKey: sessionID.String(),
	})
	if err != nil {
		log.Error("failed to create payment intent", zap.Error(err))
		return nil, err
	}

	userID := params.UserID
	session := &CheckoutSession{
		ID:              sessionID,
		UserID:          &userID,
		Status:          SessionPending,
		Provider:        params.Provider,
		PaymentRef:      intent.Reference,
		Items:           SessionItems(c.Items),
		Totals:          c.Totals,
		Currency:        s.currency,
		ShippingAddress: params.ShippingAddress,
		BillingAddress:  billing,
		PaymentMethod:   method,
		Notes:           params.Notes,
		ExpiresAt:       s.now().Add(s.sessionTTL),
	}
	if err := s.repo.CreateCheckoutSession(ctx, session); err != nil {
		return nil, err
	}

	if err := s.payments.CreatePayment(ctx, &payment.Payment{
		CheckoutSessionID: &session.ID,
		Provider:          params.Provider,
		Reference:         intent.Reference,
		Amount:            c.Total,
		AmountMinor:       amount,
		Currency:          s.currency,
		Status:            payment.StatusPending,
	}); err != nil {
		// The session alone is enough to confirm the payment later.
		log.Warn("failed to record payment", zap.Error(err))
	}

	metrics.CheckoutsStarted.Inc()
	log.Info("checkout started",
		zap.String("session_id", session.ID.String()),
		zap.String("payment_ref", intent.Reference),
		zap.Int64("amount_minor", amount),
	)

	return &CheckoutResult{
		SessionID:    session.ID,
		Provider:     params.Provider,
		PaymentRef:   intent.Reference,
		ClientSecret: intent.ClientSecret,
		Totals:       c.Totals,
		Currency:     s.currency,
		ExpiresAt:    session.ExpiresAt,
	}, nil
}

// resolveAddresses validates both addresses and returns the billing address
// to store, which defaults to the shipping address.
func resolveAddresses(shipping, billing Address) (Address, error) {
	if err := shipping.Validate(); err != nil {
		return Address{}, err
	}
	if billing.IsZero() {
		return shipping, nil
	}
	if err := billing.Validate(); err != nil {
		return Address{}, err
	}
	return billing, nil
}

// CreateOrder writes an immutable order from a cart snapshot. An empty cart
// is rejected before anything is written. When PaymentRef is set and an
// order already exists for it, that order is returned instead.
func (s *service) CreateOrder(ctx context.Context, c *cart.Cart, params CreateOrderParams) (*Order, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "CreateOrder"),
		zap.String("payment_ref", params.PaymentRef),
	)

	if c.IsEmpty() {
		return nil, ErrEmptyCart
	}

	billing, err := resolveAddresses(params.ShippingAddress, params.BillingAddress)
	if err != nil {
		return nil, err
	}

	method := params.PaymentMethod.withDefaults()
	if err := method.Validate(); err != nil {
		return nil, err
	}

	items, err := snapshotItems(c.Items)
	if err != nil {
		return nil, err
	}

	currency := params.Currency
	if currency == "" {
		currency = s.currency
	}
	status := params.Status
	if status == "" {
		status = StatusPending
	}
	paymentStatus := params.PaymentStatus
	if paymentStatus == "" {
		paymentStatus = PaymentStatusPending
	}

	o := &Order{
		ID:              uuid.New(),
		OrderNumber:     utils.GenerateOrderNumber(),
		UserID:          params.UserID,
		Status:          status,
		PaymentStatus:   paymentStatus,
		Totals:          c.Totals,
		Currency:        currency,
		ShippingAddress: params.ShippingAddress,
		BillingAddress:  billing,
		PaymentMethod:   method,
		Notes:           params.Notes,
		Items:           items,
	}
	if ref := strings.TrimSpace(params.PaymentRef); ref != "" {
		o.PaymentID = &ref
	}

	created, err := s.repo.CreateOrderTx(ctx, o, params.SessionID)
	if err != nil {
		log.Error("failed to write order", zap.Error(err))
		return nil, err
	}

	if !created {
		existing, err := s.repo.GetOrderByPaymentID(ctx, params.PaymentRef)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, fmt.Errorf("%w: conflicting order for payment %s not found", ErrFailedCreateOrder, params.PaymentRef)
		}
		metrics.OrdersDeduplicated.Inc()
		log.Info("order already written for payment", zap.String("order_id", existing.ID.String()))
		return existing, nil
	}

	metrics.OrdersCreated.Inc()
	log.Info("order created",
		zap.String("order_id", o.ID.String()),
		zap.String("order_number", o.OrderNumber),
		zap.String("total", o.Total.StringFixed(2)),
	)

	// Clearing the cart is cleanup; the order stands either way.
	if o.UserID != nil {
		if err := s.carts.ClearCart(ctx, *o.UserID); err != nil {
			log.Warn("failed to clear cart after order", zap.Error(err))
		}
	}

	return o, nil
}

// snapshotItems freezes each line's product and price.
func snapshotItems(lines []*cart.CartLine) ([]OrderItem, error) {
	items := make([]OrderItem, 0, len(lines))
	for _, l := range lines {
		if l.Product == nil {
			return nil, fmt.Errorf("%w: %s", ErrMissingProduct, l.ProductID)
		}
		snapshot, err := json.Marshal(l.Product)
		if err != nil {
			return nil, err
		}

		unit := l.UnitPrice()
		items = append(items, OrderItem{
			ID:              uuid.New(),
			ProductID:       l.ProductID,
			ProductSnapshot: snapshot,
			Quantity:        l.Quantity,
			Size:            l.Size,
			Color:           l.Color,
			UnitPrice:       unit,
			TotalPrice:      unit.Mul(decimal.NewFromInt(int64(l.Quantity))).Round(2),
		})
	}
	return items, nil
}

// ConfirmPayment turns a confirmed payment into exactly one order. Repeated
// or concurrent confirmations of the same reference return the same order.
func (s *service) ConfirmPayment(ctx context.Context, paymentRef string, meta PaymentMetadata) (*Order, error) {
	paymentRef = strings.TrimSpace(paymentRef)
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "ConfirmPayment"),
		zap.String("payment_ref", paymentRef),
		zap.String("event_id", meta.EventID),
	)

	if paymentRef == "" {
		return nil, ErrInvalidPaymentRef
	}

	existing, err := s.repo.GetOrderByPaymentID(ctx, paymentRef)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		metrics.OrdersDeduplicated.Inc()
		log.Info("payment already confirmed", zap.String("order_id", existing.ID.String()))
		return existing, nil
	}

	session, err := s.repo.GetCheckoutSessionByPaymentRef(ctx, paymentRef)
	if err != nil {
		return nil, err
	}
	if session == nil {
		log.Warn("no checkout session for payment")
		return nil, ErrSessionNotFound
	}
	if session.IsExpired(s.now()) || session.Status == SessionExpired {
		// The money is captured; honour the frozen cart anyway.
		log.Warn("confirming payment for expired session", zap.String("session_id", session.ID.String()))
	}

	if err := checkAmount(session, meta); err != nil {
		log.Error("paid amount mismatch",
			zap.Int64("paid_minor", meta.AmountMinor),
			zap.String("paid_currency", meta.Currency),
			zap.String("expected_total", session.Total.StringFixed(2)),
		)
		return nil, err
	}

	o, err := s.CreateOrder(ctx, session.Cart(), CreateOrderParams{
		UserID:          session.UserID,
		ShippingAddress: session.ShippingAddress,
		BillingAddress:  session.BillingAddress,
		PaymentMethod:   session.PaymentMethod,
		PaymentRef:      paymentRef,
		Currency:        session.Currency,
		Notes:           session.Notes,
		SessionID:       &session.ID,
		Status:          StatusConfirmed,
		PaymentStatus:   PaymentStatusPaid,
	})
	if err != nil {
		return nil, err
	}

	if err := s.payments.UpdatePaymentStatus(ctx, session.Provider, paymentRef, payment.StatusSucceeded); err != nil {
		log.Warn("failed to update payment record", zap.Error(err))
	}
	return o, nil
}

func checkAmount(session *CheckoutSession, meta PaymentMetadata) error {
	if meta.Currency != "" && !strings.EqualFold(meta.Currency, session.Currency) {
		return fmt.Errorf("%w: currency %s, expected %s", ErrAmountMismatch, meta.Currency, session.Currency)
	}
	if meta.AmountMinor == 0 {
		return nil
	}
	expected := payment.ToMinorUnits(session.Total, session.Currency)
	if meta.AmountMinor != expected {
		return fmt.Errorf("%w: paid %d, expected %d", ErrAmountMismatch, meta.AmountMinor, expected)
	}
	return nil
}

// FailPayment marks the session failed and cancels an order that was
// already written for the reference, when its status still allows it.
func (s *service) FailPayment(ctx context.Context, paymentRef string, reason string) error {
	paymentRef = strings.TrimSpace(paymentRef)
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "FailPayment"),
		zap.String("payment_ref", paymentRef),
		zap.String("reason", reason),
	)

	if paymentRef == "" {
		return ErrInvalidPaymentRef
	}

	session, err := s.repo.GetCheckoutSessionByPaymentRef(ctx, paymentRef)
	if err != nil {
		return err
	}
	o, err := s.repo.GetOrderByPaymentID(ctx, paymentRef)
	if err != nil {
		return err
	}
	if session == nil && o == nil {
		return ErrSessionNotFound
	}

	provider := payment.Provider("")
	if session != nil {
		provider = session.Provider
		if _, err := s.repo.UpdateCheckoutSessionStatus(ctx, session.ID, SessionPending, SessionFailed); err != nil {
			return err
		}
	}

	if o != nil && o.PaymentStatus == PaymentStatusPaid {
		// A failure for an earlier attempt can arrive after the success
		// event; the captured payment stands.
		log.Warn("ignoring payment failure for paid order", zap.String("order_id", o.ID.String()))
		return nil
	}

	if o != nil {
		provider = o.PaymentMethod.Provider
		if o.Status.CanTransitionTo(StatusCancelled) {
			err := s.repo.UpdateOrderStatus(ctx, o.ID, o.Status, StatusCancelled, PaymentStatusFailed)
			if err != nil && !errors.Is(err, ErrStatusConflict) {
				return err
			}
			log.Info("order cancelled after payment failure", zap.String("order_id", o.ID.String()))
		}
	}

	if err := s.payments.UpdatePaymentStatus(ctx, provider, paymentRef, payment.StatusFailed); err != nil {
		log.Warn("failed to update payment record", zap.Error(err))
	}

	log.Info("payment failure recorded")
	return nil
}

// RefundPayment moves the order for the reference to refunded. Repeated
// refunds of a refunded order are no-ops.
func (s *service) RefundPayment(ctx context.Context, paymentRef string) (*Order, error) {
	paymentRef = strings.TrimSpace(paymentRef)
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "RefundPayment"),
		zap.String("payment_ref", paymentRef),
	)

	if paymentRef == "" {
		return nil, ErrInvalidPaymentRef
	}

	o, err := s.repo.GetOrderByPaymentID(ctx, paymentRef)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, ErrOrderNotFound
	}
	if o.Status == StatusRefunded {
		return o, nil
	}
	if !o.Status.CanTransitionTo(StatusRefunded) {
		log.Warn("refund for order in non-refundable status", zap.String("status", string(o.Status)))
		return nil, ErrInvalidTransition
	}

	if err := s.repo.UpdateOrderStatus(ctx, o.ID, o.Status, StatusRefunded, PaymentStatusRefunded); err != nil {
		return nil, err
	}
	o.Status = StatusRefunded
	o.PaymentStatus = PaymentStatusRefunded

	if err := s.payments.UpdatePaymentStatus(ctx, o.PaymentMethod.Provider, paymentRef, payment.StatusRefunded); err != nil {
		log.Warn("failed to update payment record", zap.Error(err))
	}

	log.Info("order refunded", zap.String("order_id", o.ID.String()))
	return o, nil
}

// ExpireStaleSessions marks pending sessions past their expiry as expired.
func (s *service) ExpireStaleSessions(ctx context.Context) (int64, error) {
	n, err := s.repo.ExpireCheckoutSessions(ctx, s.now())
	if err != nil {
		logger.FromCtx(ctx).Error("failed to expire checkout sessions", zap.Error(err))
		return 0, err
	}
	if n > 0 {
		logger.FromCtx(ctx).Info("expired checkout sessions", zap.Int64("count", n))
	}
	return n, nil
}
