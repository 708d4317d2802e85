package domain

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestProduct_SetPricing(t *testing.T) {
	tests := []struct {
		name       string
		price      string
		discount   int
		discounted string
		unit       string
	}{
		{name: "no discount keeps list price", price: "1999.00", discount: 0, discounted: "1999", unit: "1999"},
		{name: "ten percent", price: "1999.00", discount: 10, discounted: "1799.1", unit: "1799.1"},
		{name: "rounds half up to cents", price: "10.05", discount: 15, discounted: "8.54", unit: "8.54"},
		{name: "full discount is free", price: "49.99", discount: 100, discounted: "0", unit: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p Product
			if err := p.SetPricing(decimal.RequireFromString(tt.price), tt.discount); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !p.DiscountedPrice.Equal(decimal.RequireFromString(tt.discounted)) {
				t.Errorf("expected discounted price %s, got %s", tt.discounted, p.DiscountedPrice)
			}
			if !p.UnitPrice().Equal(decimal.RequireFromString(tt.unit)) {
				t.Errorf("expected unit price %s, got %s", tt.unit, p.UnitPrice())
			}
		})
	}

	t.Run("rejects discount above 100", func(t *testing.T) {
		var p Product
		err := p.SetPricing(decimal.NewFromInt(10), 101)
		if !errors.Is(err, ErrInvalidDiscount) {
			t.Fatalf("expected ErrInvalidDiscount, got %v", err)
		}
	})

	t.Run("rejects negative price", func(t *testing.T) {
		var p Product
		err := p.SetPricing(decimal.NewFromInt(-1), 0)
		if !errors.Is(err, ErrNegativePrice) {
			t.Fatalf("expected ErrNegativePrice, got %v", err)
		}
	})

	t.Run("recomputes on every write", func(t *testing.T) {
		var p Product
		_ = p.SetPricing(decimal.NewFromInt(100), 20)
		_ = p.SetPricing(decimal.NewFromInt(100), 0)
		if !p.DiscountedPrice.Equal(decimal.NewFromInt(100)) {
			t.Fatalf("expected discounted price reset to 100, got %s", p.DiscountedPrice)
		}
	})
}

func TestNewCartView(t *testing.T) {
	shirt := &Product{ID: "p1", Name: "Shirt"}
	_ = shirt.SetPricing(decimal.RequireFromString("0.10"), 0)
	suit := &Product{ID: "p2", Name: "Suit"}
	_ = suit.SetPricing(decimal.RequireFromString("33.33"), 10)

	view := NewCartView("u1", []CartItem{
		{ProductID: "p1", Quantity: 3, Product: shirt},
		{ProductID: "p2", Quantity: 2, Product: suit},
	})

	if len(view.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(view.Items))
	}
	if !view.Items[0].Total.Equal(decimal.RequireFromString("0.30")) {
		t.Errorf("expected first line 0.30, got %s", view.Items[0].Total)
	}
	// 33.33 * 0.9 = 29.997 -> 30.00
	if !view.Items[1].UnitPrice.Equal(decimal.RequireFromString("30")) {
		t.Errorf("expected discounted unit price 30, got %s", view.Items[1].UnitPrice)
	}
	if !view.Total.Equal(decimal.RequireFromString("60.30")) {
		t.Errorf("expected total 60.30, got %s", view.Total)
	}
}

func TestOrderStatus_Valid(t *testing.T) {
	for _, s := range []OrderStatus{"pending", "processing", "shipped", "delivered", "cancelled", "refunded"} {
		if !s.Valid() {
			t.Errorf("expected %q to be valid", s)
		}
	}
	if OrderStatus("confirmed").Valid() {
		t.Error("expected confirmed to be invalid")
	}
}
