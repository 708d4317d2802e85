package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/shopledger/internal/domain"
	"github.com/joao-fontenele/shopledger/internal/pgtx"
)

var ErrDuplicateProduct = errors.New("product already exists")

// DefaultBestSellerLimit matches the storefront's top-ten shelf.
const DefaultBestSellerLimit = 10

type ProductRepository struct {
	db          *sql.DB
	lockTimeout time.Duration
}

// NewProductRepository bounds the row-lock waits of pricing, flag and stock
// writes by lockTimeout; zero leaves the server default in place.
func NewProductRepository(db *sql.DB, lockTimeout time.Duration) *ProductRepository {
	return &ProductRepository{db: db, lockTimeout: lockTimeout}
}

const productColumns = `id, name, description, price, discount_percentage, discounted_price, stock, sales_count, is_featured, is_trending, created_at`

func scanProduct(row interface{ Scan(...any) error }) (*domain.Product, error) {
	p := &domain.Product{}
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.DiscountPercentage, &p.DiscountedPrice,
		&p.Stock, &p.SalesCount, &p.IsFeatured, &p.IsTrending, &p.CreatedAt); err != nil {
		return nil, err
	}
	return p, nil
}

// Filter narrows a product listing. The zero value lists everything, newest first.
type Filter struct {
	Featured bool
	Trending bool
	// BestSellers keeps products with at least one sale, most sold first.
	BestSellers bool
	Limit       int
}

func (r *ProductRepository) List(ctx context.Context, f Filter) ([]domain.Product, error) {
	var where []string
	if f.Featured {
		where = append(where, "is_featured")
	}
	if f.Trending {
		where = append(where, "is_trending")
	}
	order := "created_at DESC, id"
	if f.BestSellers {
		where = append(where, "sales_count > 0")
		order = "sales_count DESC, id"
	}

	query := `SELECT ` + productColumns + ` FROM products`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY ` + order

	var args []any
	if f.Limit > 0 {
		query += ` LIMIT $1`
		args = append(args, f.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	products := []domain.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

// Get returns nil when the product does not exist.
func (r *ProductRepository) Get(ctx context.Context, id string) (*domain.Product, error) {
	p, err := scanProduct(r.db.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = $1
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

func (r *ProductRepository) Create(ctx context.Context, p *domain.Product) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	result, err := r.db.ExecContext(ctx, `
		INSERT INTO products (id, name, description, price, discount_percentage, discounted_price, stock, is_featured, is_trending, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
	`, p.ID, p.Name, p.Description, p.Price, p.DiscountPercentage, p.DiscountedPrice, p.Stock, p.IsFeatured, p.IsTrending, p.CreatedAt)
	if err != nil {
		return err
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if inserted == 0 {
		return fmt.Errorf("product %s: %w", p.ID, ErrDuplicateProduct)
	}
	return nil
}

// UpdatePricing rewrites price and discount under the product's row lock so
// the stored discounted price always matches them. Nil arguments keep the
// current value. Returns nil when the product does not exist.
func (r *ProductRepository) UpdatePricing(ctx context.Context, id string, price *decimal.Decimal, discountPercentage *int) (*domain.Product, error) {
	var updated *domain.Product
	err := pgtx.Run(ctx, r.db, r.lockTimeout, func(tx *sql.Tx) error {
		p, err := lockProduct(ctx, tx, id)
		if p == nil || err != nil {
			return err
		}

		newPrice, newDiscount := p.Price, p.DiscountPercentage
		if price != nil {
			newPrice = *price
		}
		if discountPercentage != nil {
			newDiscount = *discountPercentage
		}
		if err := p.SetPricing(newPrice, newDiscount); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE products
			SET price = $2, discount_percentage = $3, discounted_price = $4
			WHERE id = $1
		`, p.ID, p.Price, p.DiscountPercentage, p.DiscountedPrice); err != nil {
			return err
		}
		updated = p
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update pricing of %s: %w", id, err)
	}
	return updated, nil
}

// SetFlags marks the product featured or trending. Nil arguments keep the
// current value. Returns nil when the product does not exist.
func (r *ProductRepository) SetFlags(ctx context.Context, id string, featured, trending *bool) (*domain.Product, error) {
	var updated *domain.Product
	err := pgtx.Run(ctx, r.db, r.lockTimeout, func(tx *sql.Tx) error {
		p, err := scanProduct(tx.QueryRowContext(ctx, `
			UPDATE products
			SET is_featured = COALESCE($2, is_featured), is_trending = COALESCE($3, is_trending)
			WHERE id = $1
			RETURNING `+productColumns, id, featured, trending))
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		updated = p
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("set flags of %s: %w", id, err)
	}
	return updated, nil
}

// Restock adds units to the product's stock. The UPDATE takes the same row
// lock the cart operations do. Returns nil when the product does not exist.
func (r *ProductRepository) Restock(ctx context.Context, id string, quantity int) (*domain.Product, error) {
	var updated *domain.Product
	err := pgtx.Run(ctx, r.db, r.lockTimeout, func(tx *sql.Tx) error {
		p, err := scanProduct(tx.QueryRowContext(ctx, `
			UPDATE products
			SET stock = stock + $2
			WHERE id = $1
			RETURNING `+productColumns, id, quantity))
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		updated = p
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("restock %s: %w", id, err)
	}
	return updated, nil
}

// lockProduct returns nil when the product does not exist.
func lockProduct(ctx context.Context, tx *sql.Tx, id string) (*domain.Product, error) {
	p, err := scanProduct(tx.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = $1
		FOR UPDATE
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return p, err
}
