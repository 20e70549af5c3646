package product

import (
	"context"
	"strings"
)

type Service interface {
	GetProduct(ctx context.Context, id string) (*Product, error)
	ListProducts(ctx context.Context, opts ListOptions) ([]*Product, error)
}

type service struct {
	repo Repository
}

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

// GetProduct only exposes active products.
func (s *service) GetProduct(ctx context.Context, id string) (*Product, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrInvalidID
	}

	p, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil || !p.Active {
		return nil, ErrProductNotFound
	}
	return p, nil
}

func (s *service) ListProducts(ctx context.Context, opts ListOptions) ([]*Product, error) {
	opts.OnlyActive = true
	opts.Search = strings.TrimSpace(opts.Search)
	return s.repo.ListProducts(ctx, opts)
}
