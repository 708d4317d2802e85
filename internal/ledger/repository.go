package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/joao-fontenele/shopledger/internal/domain"
	"github.com/joao-fontenele/shopledger/internal/pgtx"
)

// PostgresStore keeps products, carts and orders in one Postgres database so
// a single transaction can span all of them.
type PostgresStore struct {
	db          *sql.DB
	lockTimeout time.Duration
}

// NewPostgresStore bounds every row-lock wait by lockTimeout; zero leaves the
// server default in place.
func NewPostgresStore(db *sql.DB, lockTimeout time.Duration) *PostgresStore {
	return &PostgresStore{db: db, lockTimeout: lockTimeout}
}

func (s *PostgresStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	return storeError(pgtx.Run(ctx, s.db, s.lockTimeout, func(tx *sql.Tx) error {
		return fn(&postgresTx{tx: tx})
	}))
}

func storeError(err error) error {
	if err == nil {
		return nil
	}
	if isContention(err) && !errors.Is(err, ErrConflict) {
		return fmt.Errorf("%w: %w", ErrConflict, err)
	}
	return err
}

type postgresTx struct {
	tx *sql.Tx
}

const productColumns = `id, name, description, price, discount_percentage, discounted_price, stock, created_at`

func scanProduct(row interface{ Scan(...any) error }) (*domain.Product, error) {
	p := &domain.Product{}
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.DiscountPercentage, &p.DiscountedPrice, &p.Stock, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (t *postgresTx) LockProduct(ctx context.Context, productID string) (*domain.Product, error) {
	product, err := scanProduct(t.tx.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = $1
		FOR UPDATE
	`, productID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return product, nil
}

func (t *postgresTx) LockProducts(ctx context.Context, productIDs []string) (map[string]*domain.Product, error) {
	// Rows are locked in the order they are returned, so every caller
	// acquires them in the same order.
	rows, err := t.tx.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = ANY($1)
		ORDER BY id COLLATE "C"
		FOR UPDATE
	`, pq.Array(productIDs))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	products := make(map[string]*domain.Product, len(productIDs))
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products[product.ID] = product
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

func (t *postgresTx) SetStock(ctx context.Context, productID string, stock int) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE products SET stock = $2
		WHERE id = $1
	`, productID, stock)
	return err
}

func (t *postgresTx) AddSales(ctx context.Context, productID string, quantity int) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE products SET sales_count = sales_count + $2
		WHERE id = $1
	`, productID, quantity)
	return err
}

func (t *postgresTx) FindCart(ctx context.Context, userID string) (*domain.Cart, error) {
	return t.queryCart(ctx, `
		SELECT id, user_id, created_at, updated_at
		FROM carts
		WHERE user_id = $1
	`, userID)
}

// LockCart uses FOR NO KEY UPDATE so the KEY SHARE lock taken by cart_items
// foreign key checks in AddToCart does not wait on a checkout.
func (t *postgresTx) LockCart(ctx context.Context, userID string) (*domain.Cart, error) {
	return t.queryCart(ctx, `
		SELECT id, user_id, created_at, updated_at
		FROM carts
		WHERE user_id = $1
		FOR NO KEY UPDATE
	`, userID)
}

func (t *postgresTx) queryCart(ctx context.Context, query, userID string) (*domain.Cart, error) {
	cart := &domain.Cart{}
	err := t.tx.QueryRowContext(ctx, query, userID).Scan(&cart.ID, &cart.UserID, &cart.CreatedAt, &cart.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return cart, nil
}

func (t *postgresTx) EnsureCart(ctx context.Context, userID string) (*domain.Cart, error) {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO carts (id, user_id, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		ON CONFLICT (user_id) DO NOTHING
	`, uuid.New().String(), userID)
	if err != nil {
		return nil, err
	}

	cart, err := t.FindCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	if cart == nil {
		return nil, fmt.Errorf("cart for user %s vanished after insert", userID)
	}
	return cart, nil
}

func (t *postgresTx) FindCartItem(ctx context.Context, cartID, productID string) (*domain.CartItem, error) {
	item := &domain.CartItem{}
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, cart_id, product_id, quantity, added_at
		FROM cart_items
		WHERE cart_id = $1 AND product_id = $2
	`, cartID, productID).Scan(&item.ID, &item.CartID, &item.ProductID, &item.Quantity, &item.AddedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return item, nil
}

func (t *postgresTx) ListCartItems(ctx context.Context, cartID string) ([]domain.CartItem, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT ci.id, ci.cart_id, ci.product_id, ci.quantity, ci.added_at,
		       p.id, p.name, p.description, p.price, p.discount_percentage, p.discounted_price, p.stock, p.created_at
		FROM cart_items ci
		JOIN products p ON p.id = ci.product_id
		WHERE ci.cart_id = $1
		ORDER BY ci.product_id COLLATE "C"
	`, cartID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var items []domain.CartItem
	for rows.Next() {
		var item domain.CartItem
		p := &domain.Product{}
		if err := rows.Scan(&item.ID, &item.CartID, &item.ProductID, &item.Quantity, &item.AddedAt,
			&p.ID, &p.Name, &p.Description, &p.Price, &p.DiscountPercentage, &p.DiscountedPrice, &p.Stock, &p.CreatedAt); err != nil {
			return nil, err
		}
		item.Product = p
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return items, nil
}

func (t *postgresTx) InsertCartItem(ctx context.Context, item *domain.CartItem) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO cart_items (id, cart_id, product_id, quantity, added_at)
		VALUES ($1, $2, $3, $4, $5)
	`, item.ID, item.CartID, item.ProductID, item.Quantity, item.AddedAt)
	return err
}

func (t *postgresTx) UpdateCartItemQuantity(ctx context.Context, itemID string, quantity int) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE cart_items SET quantity = $2
		WHERE id = $1
	`, itemID, quantity)
	return err
}

func (t *postgresTx) DeleteCartItems(ctx context.Context, itemIDs []string) error {
	if len(itemIDs) == 0 {
		return nil
	}
	_, err := t.tx.ExecContext(ctx, `
		DELETE FROM cart_items
		WHERE id = ANY($1)
	`, pq.Array(itemIDs))
	return err
}

func (t *postgresTx) InsertOrder(ctx context.Context, order *domain.Order) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO orders (id, user_id, status, total_cost, shipping_address, payment_method, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7, $7)
	`, order.ID, order.UserID, order.Status, order.Total, order.ShippingAddress, order.PaymentMethod, order.CreatedAt)
	if err != nil {
		return err
	}

	for _, item := range order.Items {
		_, err = t.tx.ExecContext(ctx, `
			INSERT INTO order_items (id, order_id, product_id, product_name, product_price, quantity)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, uuid.New().String(), order.ID, item.ProductID, item.ProductName, item.Price, item.Quantity)
		if err != nil {
			return err
		}
	}

	return nil
}
