package cart

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"storefront-be/internal/product"

	"github.com/google/uuid"
)

// memRepository is an in-memory Repository with the same merge semantics
// as the SQL upsert. GetCartLines joins products like the SQL query does.
type memRepository struct {
	mu       sync.Mutex
	lines    map[uuid.UUID]*CartLine
	products memProducts
	fail     error
	calls    int
}

func newMemRepository(products memProducts) *memRepository {
	return &memRepository{lines: make(map[uuid.UUID]*CartLine), products: products}
}

func (m *memRepository) GetCartLines(_ context.Context, userID uint) ([]*CartLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.fail != nil {
		return nil, m.fail
	}

	out := make([]*CartLine, 0)
	for _, l := range m.lines {
		if l.UserID == userID {
			c := *l
			c.Product = m.products[c.ProductID]
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AddedAt.Before(out[j].AddedAt) })
	return out, nil
}

func (m *memRepository) UpsertCartLine(_ context.Context, p UpsertCartLineParams) (*CartLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.fail != nil {
		return nil, m.fail
	}

	for _, l := range m.lines {
		if l.UserID == p.UserID && l.Key() == (Key{p.ProductID, p.Size, p.Color}) {
			if p.MaxQuantity > 0 && l.Quantity+p.Quantity > p.MaxQuantity {
				return nil, ErrInsufficientStock
			}
			l.Quantity += p.Quantity
			l.UpdatedAt = time.Now()
			c := *l
			return &c, nil
		}
	}

	now := time.Now()
	l := &CartLine{
		ID:        uuid.New(),
		UserID:    p.UserID,
		ProductID: p.ProductID,
		Size:      p.Size,
		Color:     p.Color,
		Quantity:  p.Quantity,
		AddedAt:   now,
		UpdatedAt: now,
	}
	m.lines[l.ID] = l
	c := *l
	return &c, nil
}

func (m *memRepository) UpdateCartLineQuantity(_ context.Context, userID uint, id uuid.UUID, q int) (*CartLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.fail != nil {
		return nil, m.fail
	}

	l, ok := m.lines[id]
	if !ok || l.UserID != userID {
		return nil, ErrCartItemNotFound
	}
	l.Quantity = q
	c := *l
	return &c, nil
}

func (m *memRepository) RemoveCartLine(_ context.Context, userID uint, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.fail != nil {
		return m.fail
	}
	if l, ok := m.lines[id]; ok && l.UserID == userID {
		delete(m.lines, id)
	}
	return nil
}

func (m *memRepository) ClearCart(_ context.Context, userID uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.fail != nil {
		return m.fail
	}
	for id, l := range m.lines {
		if l.UserID == userID {
			delete(m.lines, id)
		}
	}
	return nil
}

func (m *memRepository) setFail(err error) {
	m.mu.Lock()
	m.fail = err
	m.mu.Unlock()
}

type memProducts map[string]*product.Product

func (m memProducts) GetProductByID(_ context.Context, id string) (*product.Product, error) {
	if id == "broken" {
		return nil, errors.New("product store down")
	}
	return m[id], nil
}
