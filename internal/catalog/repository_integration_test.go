//go:build integration

package catalog_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/shopledger/internal/catalog"
	"github.com/joao-fontenele/shopledger/internal/domain"
	"github.com/joao-fontenele/shopledger/internal/pgtx"
	"github.com/joao-fontenele/shopledger/internal/testenv"
)

func TestProductRepository(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db := testenv.SetupPostgres(ctx, t)
	testenv.ResetShop(ctx, t, db)
	repo := catalog.NewProductRepository(db, time.Second)

	p := &domain.Product{ID: "p1", Name: "Kurta", Description: "cotton", Stock: 3}
	if err := p.SetPricing(decimal.RequireFromString("1999.00"), 10); err != nil {
		t.Fatalf("set pricing: %v", err)
	}
	if err := repo.Create(ctx, p); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.Create(ctx, p); !errors.Is(err, catalog.ErrDuplicateProduct) {
		t.Fatalf("expected ErrDuplicateProduct, got %v", err)
	}

	got, err := repo.Get(ctx, "p1")
	if err != nil || got == nil {
		t.Fatalf("get: %v %v", got, err)
	}
	if !got.DiscountedPrice.Equal(decimal.RequireFromString("1799.10")) {
		t.Errorf("expected discounted price 1799.10, got %s", got.DiscountedPrice)
	}

	discount := 25
	updated, err := repo.UpdatePricing(ctx, "p1", nil, &discount)
	if err != nil {
		t.Fatalf("update pricing: %v", err)
	}
	if !updated.DiscountedPrice.Equal(decimal.RequireFromString("1499.25")) {
		t.Errorf("expected discounted price 1499.25, got %s", updated.DiscountedPrice)
	}

	invalid := 150
	if _, err := repo.UpdatePricing(ctx, "p1", nil, &invalid); !errors.Is(err, domain.ErrInvalidDiscount) {
		t.Errorf("expected ErrInvalidDiscount, got %v", err)
	}

	restocked, err := repo.Restock(ctx, "p1", 4)
	if err != nil {
		t.Fatalf("restock: %v", err)
	}
	if restocked.Stock != 7 {
		t.Errorf("expected stock 7, got %d", restocked.Stock)
	}

	if missing, err := repo.Restock(ctx, "nope", 1); err != nil || missing != nil {
		t.Errorf("expected nil product for unknown id, got %v %v", missing, err)
	}

	products, err := repo.List(ctx, catalog.Filter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(products) != 1 {
		t.Errorf("expected 1 product, got %d", len(products))
	}
}

func TestProductRepository_Merchandising(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db := testenv.SetupPostgres(ctx, t)
	testenv.ResetShop(ctx, t, db,
		testenv.Product{ID: "p1", Name: "Kurta", Price: "10.00", Stock: 5},
		testenv.Product{ID: "p2", Name: "Saree", Price: "20.00", Stock: 5},
		testenv.Product{ID: "p3", Name: "Dupatta", Price: "5.00", Stock: 5},
	)
	repo := catalog.NewProductRepository(db, time.Second)

	if _, err := db.ExecContext(ctx, `UPDATE products SET sales_count = CASE id WHEN 'p1' THEN 3 WHEN 'p2' THEN 12 ELSE 0 END`); err != nil {
		t.Fatalf("seed sales: %v", err)
	}

	yes := true
	if p, err := repo.SetFlags(ctx, "p1", &yes, nil); err != nil || p == nil || !p.IsFeatured || p.IsTrending {
		t.Fatalf("set flags: %+v %v", p, err)
	}
	if p, err := repo.SetFlags(ctx, "nope", &yes, nil); err != nil || p != nil {
		t.Errorf("expected nil product for unknown id, got %v %v", p, err)
	}

	ids := func(f catalog.Filter) []string {
		t.Helper()
		products, err := repo.List(ctx, f)
		if err != nil {
			t.Fatalf("list %+v: %v", f, err)
		}
		out := []string{}
		for _, p := range products {
			out = append(out, p.ID)
		}
		return out
	}

	if got := ids(catalog.Filter{Featured: true}); len(got) != 1 || got[0] != "p1" {
		t.Errorf("expected featured [p1], got %v", got)
	}
	if got := ids(catalog.Filter{BestSellers: true, Limit: 10}); len(got) != 2 || got[0] != "p2" || got[1] != "p1" {
		t.Errorf("expected best sellers [p2 p1], got %v", got)
	}
	if got := ids(catalog.Filter{BestSellers: true, Limit: 1}); len(got) != 1 || got[0] != "p2" {
		t.Errorf("expected top seller [p2], got %v", got)
	}
}

func TestProductRepository_LockTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db := testenv.SetupPostgres(ctx, t)
	testenv.ResetShop(ctx, t, db, testenv.Product{ID: "p1", Name: "Kurta", Price: "10.00", Stock: 5})
	repo := catalog.NewProductRepository(db, 100*time.Millisecond)

	holder, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin holder tx: %v", err)
	}
	defer func() { _ = holder.Rollback() }()
	if _, err := holder.ExecContext(ctx, `SELECT id FROM products WHERE id = 'p1' FOR UPDATE`); err != nil {
		t.Fatalf("lock product: %v", err)
	}

	if _, err := repo.Restock(ctx, "p1", 1); !errors.Is(err, pgtx.ErrContention) {
		t.Errorf("restock: expected ErrContention, got %v", err)
	}
	discount := 10
	if _, err := repo.UpdatePricing(ctx, "p1", nil, &discount); !errors.Is(err, pgtx.ErrContention) {
		t.Errorf("update pricing: expected ErrContention, got %v", err)
	}
}
