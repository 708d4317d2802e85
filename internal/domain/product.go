package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var ErrInvalidDiscount = errors.New("discount percentage must be between 0 and 100")

var ErrNegativePrice = errors.New("price must not be negative")

var hundred = decimal.NewFromInt(100)

type Product struct {
	ID                 string          `json:"id"`
	Name               string          `json:"name"`
	Description        string          `json:"description"`
	Price              decimal.Decimal `json:"price"`
	DiscountPercentage int             `json:"discount_percentage"`
	DiscountedPrice    decimal.Decimal `json:"discounted_price"`
	Stock              int             `json:"stock"`
	SalesCount         int             `json:"sales_count"`
	IsFeatured         bool            `json:"is_featured"`
	IsTrending         bool            `json:"is_trending"`
	CreatedAt          time.Time       `json:"created_at"`
}

// SetPricing assigns price and discount and recomputes DiscountedPrice.
// It must be used for every price or discount write.
func (p *Product) SetPricing(price decimal.Decimal, discountPercentage int) error {
	if price.IsNegative() {
		return ErrNegativePrice
	}
	if discountPercentage < 0 || discountPercentage > 100 {
		return ErrInvalidDiscount
	}

	p.Price = price.Round(2)
	p.DiscountPercentage = discountPercentage
	p.DiscountedPrice = DiscountedPrice(p.Price, discountPercentage)
	return nil
}

// UnitPrice is the price a buyer pays for one unit right now.
func (p *Product) UnitPrice() decimal.Decimal {
	if p.DiscountPercentage > 0 {
		return p.DiscountedPrice
	}
	return p.Price
}

func DiscountedPrice(price decimal.Decimal, discountPercentage int) decimal.Decimal {
	if discountPercentage <= 0 {
		return price
	}
	off := price.Mul(decimal.NewFromInt(int64(discountPercentage))).Div(hundred)
	discounted := price.Sub(off).Round(2)
	if discounted.IsNegative() {
		return decimal.Zero
	}
	return discounted
}
