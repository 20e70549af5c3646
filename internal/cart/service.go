package cart

import (
	"context"
	"strings"

	"storefront-be/internal/logger"
	"storefront-be/internal/pricing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Service interface {
	// Open loads the user's cart into a fresh aggregate.
	Open(ctx context.Context, userID uint) (*Aggregate, error)
	GetCart(ctx context.Context, userID uint) (*Cart, error)
	AddToCart(ctx context.Context, params AddToCartParams) (*CartLine, error)
	UpdateCartQuantity(ctx context.Context, params UpdateQuantityParams) error
	RemoveFromCart(ctx context.Context, userID uint, lineID uuid.UUID) error
	ClearCart(ctx context.Context, userID uint) error
	GetCartCount(ctx context.Context, userID uint) (int, error)
	IsInCart(ctx context.Context, userID uint, key Key) (bool, error)
}

type service struct {
	repo     Repository
	products ProductReader
	rates    pricing.Rates
}

func NewService(repo Repository, products ProductReader, rates pricing.Rates) Service {
	return &service{
		repo:     repo,
		products: products,
		rates:    rates,
	}
}

func (s *service) Open(ctx context.Context, userID uint) (*Aggregate, error) {
	if userID == 0 {
		return nil, ErrUserNotAuthenticated
	}

	agg := NewAggregate(userID, s.repo, s.products, s.rates)
	if err := agg.Load(ctx); err != nil {
		return nil, err
	}
	return agg, nil
}

func (s *service) GetCart(ctx context.Context, userID uint) (*Cart, error) {
	agg, err := s.Open(ctx, userID)
	if err != nil {
		return nil, err
	}
	return agg.Snapshot(decimal.Zero)
}

func (s *service) AddToCart(ctx context.Context, params AddToCartParams) (*CartLine, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "AddToCart"),
		zap.Uint("user_id", params.UserID),
		zap.String("product_id", params.ProductID),
	)

	if params.UserID == 0 {
		return nil, ErrUserNotAuthenticated
	}
	if params.Quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	productID := strings.TrimSpace(params.ProductID)
	if productID == "" {
		return nil, ErrProductNotFound
	}

	p, err := s.products.GetProductByID(ctx, productID)
	if err != nil {
		log.Error("failed to load product", zap.Error(err))
		return nil, err
	}
	if p == nil {
		return nil, ErrProductNotFound
	}

	agg, err := s.Open(ctx, params.UserID)
	if err != nil {
		return nil, err
	}

	line, err := agg.AddItem(ctx, p, params.Size, params.Color, params.Quantity)
	if err != nil {
		log.Warn("add to cart rejected", zap.Error(err))
		return nil, err
	}
	return line, nil
}

func (s *service) UpdateCartQuantity(ctx context.Context, params UpdateQuantityParams) error {
	if params.LineID == uuid.Nil {
		return ErrInvalidLineID
	}

	agg, err := s.Open(ctx, params.UserID)
	if err != nil {
		return err
	}
	return agg.UpdateQuantity(ctx, params.LineID, params.Quantity)
}

func (s *service) RemoveFromCart(ctx context.Context, userID uint, lineID uuid.UUID) error {
	if userID == 0 {
		return ErrUserNotAuthenticated
	}
	if lineID == uuid.Nil {
		return ErrInvalidLineID
	}
	return NewAggregate(userID, s.repo, s.products, s.rates).RemoveItem(ctx, lineID)
}

func (s *service) ClearCart(ctx context.Context, userID uint) error {
	if userID == 0 {
		return ErrUserNotAuthenticated
	}
	return NewAggregate(userID, s.repo, s.products, s.rates).Clear(ctx)
}

func (s *service) GetCartCount(ctx context.Context, userID uint) (int, error) {
	agg, err := s.Open(ctx, userID)
	if err != nil {
		return 0, err
	}
	return agg.ItemCount(), nil
}

func (s *service) IsInCart(ctx context.Context, userID uint, key Key) (bool, error) {
	agg, err := s.Open(ctx, userID)
	if err != nil {
		return false, err
	}
	return agg.IsInCart(key.ProductID, key.Size, key.Color), nil
}
