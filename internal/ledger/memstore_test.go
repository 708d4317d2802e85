package ledger

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/joao-fontenele/shopledger/internal/domain"
)

// memStore serializes transactions behind one mutex and applies writes only
// on commit.
type memStore struct {
	mu       sync.Mutex
	products map[string]domain.Product
	carts    map[string]domain.Cart
	items    map[string]domain.CartItem
	orders   []domain.Order
	lockLog  [][]string
	failWith error
}

func newMemStore(products ...domain.Product) *memStore {
	s := &memStore{
		products: map[string]domain.Product{},
		carts:    map[string]domain.Cart{},
		items:    map[string]domain.CartItem{},
	}
	for _, p := range products {
		s.products[p.ID] = p
	}
	return s
}

func (s *memStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failWith != nil {
		return s.failWith
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memTx{
		products: make(map[string]domain.Product, len(s.products)),
		carts:    make(map[string]domain.Cart, len(s.carts)),
		items:    make(map[string]domain.CartItem, len(s.items)),
		orders:   append([]domain.Order(nil), s.orders...),
	}
	for k, v := range s.products {
		tx.products[k] = v
	}
	for k, v := range s.carts {
		tx.carts[k] = v
	}
	for k, v := range s.items {
		tx.items[k] = v
	}

	if err := fn(tx); err != nil {
		return err
	}

	s.products, s.carts, s.items, s.orders = tx.products, tx.carts, tx.items, tx.orders
	s.lockLog = append(s.lockLog, tx.locked...)
	return nil
}

func (s *memStore) stock(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.products[id].Stock
}

// reserved sums cart quantities for a product across all carts.
func (s *memStore) reserved(productID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, item := range s.items {
		if item.ProductID == productID {
			total += item.Quantity
		}
	}
	return total
}

func (s *memStore) cartQuantity(userID, productID string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cart, ok := s.carts[userID]
	if !ok {
		return 0, false
	}
	for _, item := range s.items {
		if item.CartID == cart.ID && item.ProductID == productID {
			return item.Quantity, true
		}
	}
	return 0, false
}

func (s *memStore) sales(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.products[id].SalesCount
}

func (s *memStore) orderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

type memTx struct {
	products map[string]domain.Product
	carts    map[string]domain.Cart
	items    map[string]domain.CartItem
	orders   []domain.Order
	locked   [][]string
}

func (t *memTx) LockProduct(_ context.Context, productID string) (*domain.Product, error) {
	p, ok := t.products[productID]
	if !ok {
		return nil, nil
	}
	t.locked = append(t.locked, []string{productID})
	return &p, nil
}

func (t *memTx) LockProducts(_ context.Context, productIDs []string) (map[string]*domain.Product, error) {
	ids := append([]string(nil), productIDs...)
	sort.Strings(ids)
	out := make(map[string]*domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := t.products[id]; ok {
			out[id] = &p
		}
	}
	t.locked = append(t.locked, productIDs)
	return out, nil
}

func (t *memTx) SetStock(_ context.Context, productID string, stock int) error {
	p := t.products[productID]
	if stock < 0 {
		panic("stock went negative for " + productID)
	}
	p.Stock = stock
	t.products[productID] = p
	return nil
}

func (t *memTx) AddSales(_ context.Context, productID string, quantity int) error {
	p := t.products[productID]
	p.SalesCount += quantity
	t.products[productID] = p
	return nil
}

func (t *memTx) FindCart(_ context.Context, userID string) (*domain.Cart, error) {
	cart, ok := t.carts[userID]
	if !ok {
		return nil, nil
	}
	return &cart, nil
}

func (t *memTx) LockCart(ctx context.Context, userID string) (*domain.Cart, error) {
	return t.FindCart(ctx, userID)
}

func (t *memTx) EnsureCart(ctx context.Context, userID string) (*domain.Cart, error) {
	if _, ok := t.carts[userID]; !ok {
		t.carts[userID] = domain.Cart{ID: uuid.New().String(), UserID: userID}
	}
	return t.FindCart(ctx, userID)
}

func (t *memTx) FindCartItem(_ context.Context, cartID, productID string) (*domain.CartItem, error) {
	for _, item := range t.items {
		if item.CartID == cartID && item.ProductID == productID {
			return &item, nil
		}
	}
	return nil, nil
}

func (t *memTx) ListCartItems(_ context.Context, cartID string) ([]domain.CartItem, error) {
	var out []domain.CartItem
	for _, item := range t.items {
		if item.CartID == cartID {
			p := t.products[item.ProductID]
			item.Product = &p
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}

func (t *memTx) InsertCartItem(_ context.Context, item *domain.CartItem) error {
	t.items[item.ID] = *item
	return nil
}

func (t *memTx) UpdateCartItemQuantity(_ context.Context, itemID string, quantity int) error {
	item := t.items[itemID]
	item.Quantity = quantity
	t.items[itemID] = item
	return nil
}

func (t *memTx) DeleteCartItems(_ context.Context, itemIDs []string) error {
	for _, id := range itemIDs {
		delete(t.items, id)
	}
	return nil
}

func (t *memTx) InsertOrder(_ context.Context, order *domain.Order) error {
	t.orders = append(t.orders, *order)
	return nil
}

type capturePublisher struct {
	mu     sync.Mutex
	keys   []string
	events []any
	err    error
}

func (p *capturePublisher) Publish(_ context.Context, key string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, key)
	p.events = append(p.events, event)
	return p.err
}
