package cart

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"storefront-be/internal/pricing"
	"storefront-be/internal/product"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProductReader is the product lookup the cart needs.
type ProductReader interface {
	GetProductByID(ctx context.Context, id string) (*product.Product, error)
}

// Aggregate is the in-memory view of one user's cart.
//
// Every mutation is write-through: the gateway is called first and memory
// is only updated after it succeeds, so a failed call leaves Lines unchanged.
// The last failure is kept in Err. The mutex only protects memory; two
// concurrent mutations are not serialized against each other, the store's
// atomic upsert is what prevents lost quantity updates.
type Aggregate struct {
	mu       sync.Mutex
	userID   uint
	repo     Repository
	products ProductReader
	rates    pricing.Rates
	lines    []*CartLine
	err      string
}

func NewAggregate(userID uint, repo Repository, products ProductReader, rates pricing.Rates) *Aggregate {
	return &Aggregate{
		userID:   userID,
		repo:     repo,
		products: products,
		rates:    rates,
	}
}

func (a *Aggregate) UserID() uint {
	return a.userID
}

// Err returns the message of the last failed operation, or "".
func (a *Aggregate) Err() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

func (a *Aggregate) fail(err error) error {
	a.mu.Lock()
	a.err = err.Error()
	a.mu.Unlock()
	return err
}

// Load replaces the in-memory lines with the stored ones.
func (a *Aggregate) Load(ctx context.Context) error {
	lines, err := a.repo.GetCartLines(ctx, a.userID)
	if err != nil {
		return a.fail(err)
	}

	a.mu.Lock()
	a.lines = lines
	a.err = ""
	a.mu.Unlock()
	return nil
}

func validateOption(value string, allowed []string, errInvalid error) error {
	if len(allowed) == 0 {
		if value != "" {
			return errInvalid
		}
		return nil
	}
	for _, v := range allowed {
		if v == value {
			return nil
		}
	}
	return errInvalid
}

func validateAdd(p *product.Product, size, color string, quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	if p == nil || !p.Active {
		return ErrProductNotFound
	}
	if err := validateOption(size, p.Sizes, ErrInvalidSize); err != nil {
		return err
	}
	if err := validateOption(color, p.Colors, ErrInvalidColor); err != nil {
		return err
	}
	if !p.InStock() {
		return ErrOutOfStock
	}
	return nil
}

// AddItem merges quantity into the line with the same (product, size, color)
// or inserts a new line. The merged quantity may not exceed p.Stock.
func (a *Aggregate) AddItem(ctx context.Context, p *product.Product, size, color string, quantity int) (*CartLine, error) {
	size = strings.TrimSpace(size)
	color = strings.TrimSpace(color)

	if err := validateAdd(p, size, color, quantity); err != nil {
		return nil, a.fail(err)
	}

	existing := 0
	if l := a.find(Key{ProductID: p.ID, Size: size, Color: color}); l != nil {
		existing = l.Quantity
	}
	if existing+quantity > p.Stock {
		return nil, a.fail(ErrInsufficientStock)
	}

	line, err := a.repo.UpsertCartLine(ctx, UpsertCartLineParams{
		UserID:      a.userID,
		ProductID:   p.ID,
		Size:        size,
		Color:       color,
		Quantity:    quantity,
		MaxQuantity: p.Stock,
	})
	if err != nil {
		return nil, a.fail(err)
	}
	line.Product = p

	a.mu.Lock()
	defer a.mu.Unlock()
	a.err = ""
	for i, l := range a.lines {
		if l.ID == line.ID || l.Key() == line.Key() {
			a.lines[i] = line
			return copyLine(line), nil
		}
	}
	a.lines = append(a.lines, line)
	return copyLine(line), nil
}

// UpdateQuantity sets a line's quantity. A quantity of zero or less removes
// the line. The new quantity is checked against the product's live stock.
func (a *Aggregate) UpdateQuantity(ctx context.Context, lineID uuid.UUID, quantity int) error {
	if quantity <= 0 {
		return a.RemoveItem(ctx, lineID)
	}

	line := a.findByID(lineID)
	if line == nil {
		return a.fail(ErrCartItemNotFound)
	}

	p, err := a.products.GetProductByID(ctx, line.ProductID)
	if err != nil {
		return a.fail(err)
	}
	if p == nil || !p.Active {
		return a.fail(ErrProductNotFound)
	}
	if quantity > p.Stock {
		return a.fail(ErrInsufficientStock)
	}

	updated, err := a.repo.UpdateCartLineQuantity(ctx, a.userID, lineID, quantity)
	if err != nil {
		return a.fail(err)
	}
	updated.Product = p

	a.mu.Lock()
	defer a.mu.Unlock()
	a.err = ""
	for i, l := range a.lines {
		if l.ID == lineID {
			a.lines[i] = updated
		}
	}
	return nil
}

// RemoveItem deletes a line. Removing an unknown id is a no-op.
func (a *Aggregate) RemoveItem(ctx context.Context, lineID uuid.UUID) error {
	if err := a.repo.RemoveCartLine(ctx, a.userID, lineID); err != nil {
		return a.fail(err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.err = ""
	kept := a.lines[:0]
	for _, l := range a.lines {
		if l.ID != lineID {
			kept = append(kept, l)
		}
	}
	a.lines = kept
	return nil
}

// Clear deletes every line of the user in one operation.
func (a *Aggregate) Clear(ctx context.Context) error {
	if err := a.repo.ClearCart(ctx, a.userID); err != nil {
		return a.fail(err)
	}

	a.mu.Lock()
	a.lines = nil
	a.err = ""
	a.mu.Unlock()
	return nil
}

func (a *Aggregate) ItemCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := 0
	for _, l := range a.lines {
		n += l.Quantity
	}
	return n
}

func (a *Aggregate) IsInCart(productID, size, color string) bool {
	return a.find(Key{
		ProductID: strings.TrimSpace(productID),
		Size:      strings.TrimSpace(size),
		Color:     strings.TrimSpace(color),
	}) != nil
}

// Lines returns copies of the current lines.
func (a *Aggregate) Lines() []*CartLine {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]*CartLine, 0, len(a.lines))
	for _, l := range a.lines {
		out = append(out, copyLine(l))
	}
	return out
}

// Snapshot derives the cart with totals for the given discount.
func (a *Aggregate) Snapshot(discount decimal.Decimal) (*Cart, error) {
	items := a.Lines()

	lines := make([]pricing.Line, 0, len(items))
	for _, l := range items {
		if l.Product == nil {
			return nil, a.fail(fmt.Errorf("%w: %s", ErrProductNotFound, l.ProductID))
		}
		lines = append(lines, pricing.Line{UnitPrice: l.UnitPrice(), Quantity: l.Quantity})
	}

	totals, err := pricing.ComputeTotals(lines, a.rates, discount)
	if err != nil {
		return nil, a.fail(err)
	}

	return &Cart{
		UserID: a.userID,
		Items:  items,
		Totals: totals,
	}, nil
}

func (a *Aggregate) find(k Key) *CartLine {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, l := range a.lines {
		if l.Key() == k {
			return copyLine(l)
		}
	}
	return nil
}

func (a *Aggregate) findByID(id uuid.UUID) *CartLine {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, l := range a.lines {
		if l.ID == id {
			return copyLine(l)
		}
	}
	return nil
}

func copyLine(l *CartLine) *CartLine {
	c := *l
	return &c
}
