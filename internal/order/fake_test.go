package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"storefront-be/internal/cart"
	"storefront-be/internal/payment"
	"storefront-be/internal/pricing"
	"storefront-be/internal/product"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// memRepository mirrors the unique payment_id and the status guard of the
// SQL repository.
type memRepository struct {
	mu          sync.Mutex
	orders      map[uuid.UUID]*Order
	byPayment   map[string]uuid.UUID
	sessions    map[string]*CheckoutSession
	createCalls int
	createErr   error
}

func newMemRepository() *memRepository {
	return &memRepository{
		orders:    make(map[uuid.UUID]*Order),
		byPayment: make(map[string]uuid.UUID),
		sessions:  make(map[string]*CheckoutSession),
	}
}

func cloneOrder(o *Order) *Order {
	c := *o
	c.Items = append([]OrderItem(nil), o.Items...)
	return &c
}

func (r *memRepository) CreateOrderTx(_ context.Context, o *Order, sessionID *uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.createCalls++
	if r.createErr != nil {
		return false, r.createErr
	}
	if o.PaymentID != nil {
		if _, ok := r.byPayment[*o.PaymentID]; ok {
			return false, nil
		}
		r.byPayment[*o.PaymentID] = o.ID
	}

	now := time.Now()
	o.CreatedAt, o.UpdatedAt = now, now
	for i := range o.Items {
		o.Items[i].OrderID = o.ID
	}
	r.orders[o.ID] = cloneOrder(o)

	if sessionID != nil {
		for _, s := range r.sessions {
			if s.ID == *sessionID {
				s.Status = SessionCompleted
				s.CompletedAt = &now
			}
		}
	}
	return true, nil
}

func (r *memRepository) GetOrderByID(_ context.Context, id uuid.UUID) (*Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, nil
	}
	return cloneOrder(o), nil
}

func (r *memRepository) GetOrderByPaymentID(_ context.Context, paymentID string) (*Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byPayment[paymentID]
	if !ok {
		return nil, nil
	}
	return cloneOrder(r.orders[id]), nil
}

func (r *memRepository) ListOrders(_ context.Context, opts ListOptions) ([]*Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Order, 0)
	for _, o := range r.orders {
		if opts.UserID != nil && !o.OwnedBy(*opts.UserID) {
			continue
		}
		if opts.Status != "" && o.Status != opts.Status {
			continue
		}
		out = append(out, cloneOrder(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderNumber < out[j].OrderNumber })
	return out, nil
}

func (r *memRepository) UpdateOrderStatus(_ context.Context, id uuid.UUID, from, to OrderStatus, ps PaymentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok || o.Status != from {
		return ErrStatusConflict
	}
	o.Status = to
	if ps != "" {
		o.PaymentStatus = ps
	}
	return nil
}

func (r *memRepository) SetTrackingNumber(_ context.Context, id uuid.UUID, tracking string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return ErrOrderNotFound
	}
	o.TrackingNumber = &tracking
	return nil
}

func (r *memRepository) CreateCheckoutSession(_ context.Context, s *CheckoutSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s.CreatedAt = time.Now()
	c := *s
	r.sessions[s.PaymentRef] = &c
	return nil
}

func (r *memRepository) GetCheckoutSessionByPaymentRef(_ context.Context, ref string) (*CheckoutSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[ref]
	if !ok {
		return nil, nil
	}
	c := *s
	return &c, nil
}

func (r *memRepository) UpdateCheckoutSessionStatus(_ context.Context, id uuid.UUID, from, to SessionStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.ID == id && s.Status == from {
			s.Status = to
			return true, nil
		}
	}
	return false, nil
}

func (r *memRepository) ExpireCheckoutSessions(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, s := range r.sessions {
		if s.Status == SessionPending && s.ExpiresAt.Before(before) {
			s.Status = SessionExpired
			n++
		}
	}
	return n, nil
}

func (r *memRepository) orderCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.orders)
}

func (r *memRepository) session(ref string) *CheckoutSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[ref]
}

type fakeCarts struct {
	mu       sync.Mutex
	carts    map[uint]*cart.Cart
	cleared  map[uint]int
	clearErr error
}

func newFakeCarts() *fakeCarts {
	return &fakeCarts{carts: make(map[uint]*cart.Cart), cleared: make(map[uint]int)}
}

func (c *fakeCarts) GetCart(_ context.Context, userID uint) (*cart.Cart, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ct, ok := c.carts[userID]; ok {
		return ct, nil
	}
	return &cart.Cart{UserID: userID, Items: []*cart.CartLine{}}, nil
}

func (c *fakeCarts) ClearCart(_ context.Context, userID uint) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.clearErr != nil {
		return c.clearErr
	}
	delete(c.carts, userID)
	c.cleared[userID]++
	return nil
}

type fakeGateway struct {
	mu       sync.Mutex
	provider payment.Provider
	seq      int
	err      error
	requests []payment.IntentRequest
}

func (g *fakeGateway) Provider() payment.Provider { return g.provider }

func (g *fakeGateway) CreatePaymentIntent(_ context.Context, req payment.IntentRequest) (*payment.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	g.seq++
	g.requests = append(g.requests, req)
	ref := fmt.Sprintf("pi_%d", g.seq)
	return &payment.Intent{
		Provider:     g.provider,
		Reference:    ref,
		ClientSecret: ref + "_secret",
		Status:       "requires_payment_method",
	}, nil
}

func (g *fakeGateway) VerifyWebhook(context.Context, http.Header, []byte) error { return nil }

func (g *fakeGateway) ParseEvent([]byte) (*payment.Event, error) {
	return nil, errors.New("not implemented")
}

type fakePayments struct {
	mu        sync.Mutex
	created   []*payment.Payment
	statuses  map[string]payment.Status
	createErr error
}

func newFakePayments() *fakePayments {
	return &fakePayments{statuses: make(map[string]payment.Status)}
}

func (p *fakePayments) CreatePayment(_ context.Context, pay *payment.Payment) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.createErr != nil {
		return p.createErr
	}
	p.created = append(p.created, pay)
	p.statuses[pay.Reference] = pay.Status
	return nil
}

func (p *fakePayments) UpdatePaymentStatus(_ context.Context, _ payment.Provider, ref string, status payment.Status) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statuses[ref] = status
	return nil
}

func (p *fakePayments) GetPaymentByReference(context.Context, payment.Provider, string) (*payment.Payment, error) {
	return nil, nil
}

func (p *fakePayments) SavePaymentWebhook(context.Context, payment.Provider, string, string, string, json.RawMessage, bool) (int64, bool, error) {
	return 1, false, nil
}

func (p *fakePayments) MarkWebhookProcessed(context.Context, int64) error { return nil }

func (p *fakePayments) MarkWebhookFailed(context.Context, int64, string) error { return nil }

func (p *fakePayments) status(ref string) payment.Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.statuses[ref]
}

type testEnv struct {
	svc      *service
	repo     *memRepository
	carts    *fakeCarts
	gateway  *fakeGateway
	payments *fakePayments
	now      time.Time
}

func newTestEnv() *testEnv {
	env := &testEnv{
		repo:     newMemRepository(),
		carts:    newFakeCarts(),
		gateway:  &fakeGateway{provider: payment.ProviderStripe},
		payments: newFakePayments(),
		now:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	env.svc = NewService(
		env.repo,
		env.carts,
		payment.NewRegistry(env.gateway),
		env.payments,
		"mxn",
		15*time.Minute,
	).(*service)
	env.svc.now = func() time.Time { return env.now }
	return env
}

func testProduct(id string, price int64) *product.Product {
	return &product.Product{
		ID:     id,
		Name:   "Playera " + id,
		Price:  decimal.NewFromInt(price),
		Stock:  10,
		Sizes:  []string{"S", "M"},
		Colors: []string{"Negro"},
		Active: true,
	}
}

// testCart is two shirts at 150: 300 + 16% tax + 25 shipping = 373.
func testCart(userID uint) *cart.Cart {
	return &cart.Cart{
		UserID: userID,
		Items: []*cart.CartLine{{
			ID:        uuid.New(),
			UserID:    userID,
			ProductID: "prod-1",
			Size:      "M",
			Color:     "Negro",
			Quantity:  2,
			Product:   testProduct("prod-1", 150),
		}},
		Totals: pricing.Totals{
			Subtotal: decimal.NewFromInt(300),
			Tax:      decimal.NewFromInt(48),
			Shipping: decimal.NewFromInt(25),
			Discount: decimal.Zero,
			Total:    decimal.NewFromInt(373),
		},
	}
}
