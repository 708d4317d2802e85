package ledger

import (
	"context"

	"github.com/joao-fontenele/shopledger/internal/domain"
)

// Store runs fn inside one isolated transaction. A nil return commits,
// anything else rolls back every write made through tx.
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the set of reads and writes the ledger performs inside a transaction.
// Lookups that find nothing return (nil, nil).
type Tx interface {
	// LockProduct takes an exclusive row lock on the product.
	LockProduct(ctx context.Context, productID string) (*domain.Product, error)
	// LockProducts locks every listed product in ascending id order.
	LockProducts(ctx context.Context, productIDs []string) (map[string]*domain.Product, error)
	SetStock(ctx context.Context, productID string, stock int) error
	// AddSales bumps the product's sales counter; the product must already be locked.
	AddSales(ctx context.Context, productID string, quantity int) error

	FindCart(ctx context.Context, userID string) (*domain.Cart, error)
	// LockCart locks the user's cart row against other checkouts.
	LockCart(ctx context.Context, userID string) (*domain.Cart, error)
	EnsureCart(ctx context.Context, userID string) (*domain.Cart, error)

	FindCartItem(ctx context.Context, cartID, productID string) (*domain.CartItem, error)
	// ListCartItems returns the cart lines with Product populated, ordered by product id.
	ListCartItems(ctx context.Context, cartID string) ([]domain.CartItem, error)
	InsertCartItem(ctx context.Context, item *domain.CartItem) error
	UpdateCartItemQuantity(ctx context.Context, itemID string, quantity int) error
	DeleteCartItems(ctx context.Context, itemIDs []string) error

	InsertOrder(ctx context.Context, order *domain.Order) error
}

// EventPublisher is satisfied by *messaging.Producer.
type EventPublisher interface {
	Publish(ctx context.Context, key string, event any) error
}
