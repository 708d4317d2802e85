package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Cart struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CartItem is one reserved line. Product is populated on reads that join the catalog.
type CartItem struct {
	ID        string    `json:"id"`
	CartID    string    `json:"cart_id"`
	ProductID string    `json:"product_id"`
	Quantity  int       `json:"quantity"`
	AddedAt   time.Time `json:"added_at"`
	Product   *Product  `json:"-"`
}

type CartItemView struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Total       decimal.Decimal `json:"total"`
}

type CartView struct {
	UserID string          `json:"user_id"`
	Items  []CartItemView  `json:"items"`
	Total  decimal.Decimal `json:"total"`
}

func NewCartItemView(item CartItem, product *Product) CartItemView {
	unit := product.UnitPrice()
	return CartItemView{
		ProductID:   item.ProductID,
		ProductName: product.Name,
		Quantity:    item.Quantity,
		UnitPrice:   unit,
		Total:       LineTotal(unit, item.Quantity),
	}
}

// NewCartView builds the view for items whose Product is populated.
func NewCartView(userID string, items []CartItem) CartView {
	view := CartView{UserID: userID, Items: make([]CartItemView, 0, len(items)), Total: decimal.Zero}
	for _, item := range items {
		line := NewCartItemView(item, item.Product)
		view.Items = append(view.Items, line)
		view.Total = view.Total.Add(line.Total)
	}
	view.Total = view.Total.Round(2)
	return view
}

func LineTotal(unitPrice decimal.Decimal, quantity int) decimal.Decimal {
	return unitPrice.Mul(decimal.NewFromInt(int64(quantity))).Round(2)
}
