package order

import (
	"context"
	"strings"
	"time"

	"storefront-be/internal/cart"
	"storefront-be/internal/logger"
	"storefront-be/internal/payment"
	"storefront-be/internal/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Service interface {
	// Checkout
	StartCheckout(ctx context.Context, params StartCheckoutParams) (*CheckoutResult, error)
	CreateOrder(ctx context.Context, c *cart.Cart, params CreateOrderParams) (*Order, error)

	// Payment confirmation intake, idempotent per payment reference.
	ConfirmPayment(ctx context.Context, paymentRef string, meta PaymentMetadata) (*Order, error)
	FailPayment(ctx context.Context, paymentRef string, reason string) error
	RefundPayment(ctx context.Context, paymentRef string) (*Order, error)
	ExpireStaleSessions(ctx context.Context) (int64, error)

	// Reads
	GetOrder(ctx context.Context, id uuid.UUID) (*Order, error)
	ListOrders(ctx context.Context, opts ListOptions) ([]*Order, error)

	// Admin
	UpdateOrderStatus(ctx context.Context, id uuid.UUID, status OrderStatus) (*Order, error)
	SetTrackingNumber(ctx context.Context, id uuid.UUID, tracking string) (*Order, error)
}

// CartStore is the part of the cart service checkout needs.
type CartStore interface {
	GetCart(ctx context.Context, userID uint) (*cart.Cart, error)
	ClearCart(ctx context.Context, userID uint) error
}

type service struct {
	repo       Repository
	carts      CartStore
	gateways   *payment.Registry
	payments   payment.Repository
	currency   string
	sessionTTL time.Duration
	now        func() time.Time
}

func NewService(
	repo Repository,
	carts CartStore,
	gateways *payment.Registry,
	payments payment.Repository,
	currency string,
	sessionTTL time.Duration,
) Service {
	if sessionTTL <= 0 {
		sessionTTL = 30 * time.Minute
	}
	return &service{
		repo:       repo,
		carts:      carts,
		gateways:   gateways,
		payments:   payments,
		currency:   strings.ToUpper(currency),
		sessionTTL: sessionTTL,
		now:        time.Now,
	}
}

// GetOrder returns the order to its owner or an admin. Other callers get
// ErrOrderNotFound so ids cannot be probed.
func (s *service) GetOrder(ctx context.Context, id uuid.UUID) (*Order, error) {
	userID, ok := utils.GetUserIDFromContext(ctx)
	if !ok {
		return nil, ErrUnauthorized
	}

	o, err := s.repo.GetOrderByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, ErrOrderNotFound
	}
	if !utils.IsAdmin(ctx) && !o.OwnedBy(userID) {
		logger.FromCtx(ctx).Warn("order access denied",
			zap.String("layer", "service"),
			zap.String("order_id", id.String()),
			zap.Uint("user_id", userID),
		)
		return nil, ErrOrderNotFound
	}
	return o, nil
}

// ListOrders scopes customers to their own orders. Admins may filter by
// any user or none.
func (s *service) ListOrders(ctx context.Context, opts ListOptions) ([]*Order, error) {
	userID, ok := utils.GetUserIDFromContext(ctx)
	if !ok {
		return nil, ErrUnauthorized
	}
	if !utils.IsAdmin(ctx) {
		opts.UserID = &userID
	}
	if opts.Status != "" && !opts.Status.Valid() {
		return nil, ErrInvalidStatus
	}
	return s.repo.ListOrders(ctx, opts)
}

func (s *service) UpdateOrderStatus(ctx context.Context, id uuid.UUID, status OrderStatus) (*Order, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "UpdateOrderStatus"),
		zap.String("order_id", id.String()),
		zap.String("status", string(status)),
	)

	if !utils.IsAdmin(ctx) {
		return nil, ErrForbidden
	}
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}

	o, err := s.repo.GetOrderByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, ErrOrderNotFound
	}
	if !o.Status.CanTransitionTo(status) {
		log.Warn("rejected status transition", zap.String("from", string(o.Status)))
		return nil, ErrInvalidTransition
	}

	var ps PaymentStatus
	if status == StatusRefunded {
		ps = PaymentStatusRefunded
	}
	if err := s.repo.UpdateOrderStatus(ctx, id, o.Status, status, ps); err != nil {
		log.Error("failed to update order status", zap.Error(err))
		return nil, err
	}

	log.Info("order status updated", zap.String("from", string(o.Status)))
	o.Status = status
	if ps != "" {
		o.PaymentStatus = ps
	}
	return o, nil
}

func (s *service) SetTrackingNumber(ctx context.Context, id uuid.UUID, tracking string) (*Order, error) {
	if !utils.IsAdmin(ctx) {
		return nil, ErrForbidden
	}

	tracking = strings.TrimSpace(tracking)
	if tracking == "" {
		return nil, ErrInvalidTrackingNumber
	}

	o, err := s.repo.GetOrderByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, ErrOrderNotFound
	}
	if o.Status == StatusPending || o.Status == StatusCancelled || o.Status == StatusRefunded {
		return nil, ErrNotShippable
	}

	if err := s.repo.SetTrackingNumber(ctx, id, tracking); err != nil {
		return nil, err
	}
	o.TrackingNumber = &tracking
	return o, nil
}
