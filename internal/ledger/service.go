package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/joao-fontenele/shopledger/internal/domain"
)

var tracer = otel.Tracer("ledger")

// Service reconciles cart reservations with catalog stock. Stock is decremented
// when a unit enters a cart and is never touched again at checkout.
type Service struct {
	store     Store
	publisher EventPublisher
	logger    *slog.Logger
	metrics   *ledgerMetrics
	now       func() time.Time
}

// NewService builds a Service. publisher may be nil.
func NewService(store Store, publisher EventPublisher, logger *slog.Logger) (*Service, error) {
	m, err := newLedgerMetrics(otel.Meter("ledger"))
	if err != nil {
		return nil, fmt.Errorf("create ledger metrics: %w", err)
	}
	return &Service{
		store:     store,
		publisher: publisher,
		logger:    logger,
		metrics:   m,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

type PlaceOrderInput struct {
	ShippingAddress string
	PaymentMethod   string
	// ContactEmail receives the order confirmation. Empty means none is sent.
	ContactEmail string
}

func (s *Service) AddToCart(ctx context.Context, userID, productID string, quantity int) (domain.CartItemView, error) {
	ctx, span := s.start(ctx, "AddToCart", userID, productID, quantity)
	defer span.End()

	if err := validateLine(userID, productID, quantity); err != nil {
		return domain.CartItemView{}, s.finish(ctx, span, "add_to_cart", err)
	}

	var view domain.CartItemView
	err := s.store.InTx(ctx, func(tx Tx) error {
		product, err := tx.LockProduct(ctx, productID)
		if err != nil {
			return err
		}
		if product == nil {
			return fmt.Errorf("product %s: %w", productID, ErrNotFound)
		}

		cart, err := tx.FindCart(ctx, userID)
		if err != nil {
			return err
		}
		var item *domain.CartItem
		if cart != nil {
			if item, err = tx.FindCartItem(ctx, cart.ID, productID); err != nil {
				return err
			}
		}

		if item == nil {
			if quantity > product.Stock {
				return fmt.Errorf("product %s has %d left, requested %d: %w", productID, product.Stock, quantity, ErrOutOfStock)
			}
			if cart == nil {
				if cart, err = tx.EnsureCart(ctx, userID); err != nil {
					return err
				}
			}
			item = &domain.CartItem{
				ID:        uuid.New().String(),
				CartID:    cart.ID,
				ProductID: productID,
				Quantity:  quantity,
				AddedAt:   s.now(),
			}
			if err := tx.InsertCartItem(ctx, item); err != nil {
				return err
			}
		} else {
			// product.Stock no longer counts what this line already holds.
			if item.Quantity+quantity > product.Stock+item.Quantity {
				return fmt.Errorf("product %s has %d left beyond the %d in cart, requested %d more: %w",
					productID, product.Stock, item.Quantity, quantity, ErrExceedsStock)
			}
			item.Quantity += quantity
			if err := tx.UpdateCartItemQuantity(ctx, item.ID, item.Quantity); err != nil {
				return err
			}
		}

		product.Stock -= quantity
		if err := tx.SetStock(ctx, productID, product.Stock); err != nil {
			return err
		}

		view = domain.NewCartItemView(*item, product)
		return nil
	})
	if err != nil {
		return domain.CartItemView{}, s.finish(ctx, span, "add_to_cart", err)
	}

	s.metrics.reserved.Add(ctx, int64(quantity))
	s.logger.Info("item added to cart", "user_id", userID, "product_id", productID, "quantity", quantity, "cart_quantity", view.Quantity)
	return view, s.finish(ctx, span, "add_to_cart", nil)
}

// RemoveFromCart gives back up to quantity units. Removing at least the full
// line deletes it.
func (s *Service) RemoveFromCart(ctx context.Context, userID, productID string, quantity int) error {
	ctx, span := s.start(ctx, "RemoveFromCart", userID, productID, quantity)
	defer span.End()

	if err := validateLine(userID, productID, quantity); err != nil {
		return s.finish(ctx, span, "remove_from_cart", err)
	}

	var restored int
	err := s.store.InTx(ctx, func(tx Tx) error {
		product, err := tx.LockProduct(ctx, productID)
		if err != nil {
			return err
		}
		if product == nil {
			return fmt.Errorf("product %s: %w", productID, ErrNotFound)
		}

		item, err := s.findLine(ctx, tx, userID, productID)
		if err != nil {
			return err
		}

		if quantity >= item.Quantity {
			restored = item.Quantity
			if err := tx.DeleteCartItems(ctx, []string{item.ID}); err != nil {
				return err
			}
		} else {
			restored = quantity
			if err := tx.UpdateCartItemQuantity(ctx, item.ID, item.Quantity-quantity); err != nil {
				return err
			}
		}

		return tx.SetStock(ctx, productID, product.Stock+restored)
	})
	if err != nil {
		return s.finish(ctx, span, "remove_from_cart", err)
	}

	s.metrics.released.Add(ctx, int64(restored))
	s.logger.Info("item removed from cart", "user_id", userID, "product_id", productID, "restored", restored)
	return s.finish(ctx, span, "remove_from_cart", nil)
}

func (s *Service) SetQuantity(ctx context.Context, userID, productID string, newQuantity int) (domain.CartItemView, error) {
	ctx, span := s.start(ctx, "SetQuantity", userID, productID, newQuantity)
	defer span.End()

	if err := validateLine(userID, productID, newQuantity); err != nil {
		return domain.CartItemView{}, s.finish(ctx, span, "set_quantity", err)
	}

	var view domain.CartItemView
	var delta int
	err := s.store.InTx(ctx, func(tx Tx) error {
		product, err := tx.LockProduct(ctx, productID)
		if err != nil {
			return err
		}
		if product == nil {
			return fmt.Errorf("product %s: %w", productID, ErrNotFound)
		}

		item, err := s.findLine(ctx, tx, userID, productID)
		if err != nil {
			return err
		}

		available := product.Stock + item.Quantity
		if newQuantity > available {
			return fmt.Errorf("product %s has %d available, requested %d: %w", productID, available, newQuantity, ErrInsufficientStock)
		}

		delta = newQuantity - item.Quantity
		if delta != 0 {
			product.Stock = available - newQuantity
			if err := tx.SetStock(ctx, productID, product.Stock); err != nil {
				return err
			}
			item.Quantity = newQuantity
			if err := tx.UpdateCartItemQuantity(ctx, item.ID, newQuantity); err != nil {
				return err
			}
		}

		view = domain.NewCartItemView(*item, product)
		return nil
	})
	if err != nil {
		return domain.CartItemView{}, s.finish(ctx, span, "set_quantity", err)
	}

	if delta > 0 {
		s.metrics.reserved.Add(ctx, int64(delta))
	} else if delta < 0 {
		s.metrics.released.Add(ctx, int64(-delta))
	}
	s.logger.Info("cart quantity set", "user_id", userID, "product_id", productID, "quantity", newQuantity)
	return view, s.finish(ctx, span, "set_quantity", nil)
}

// ClearCart returns every reserved unit to stock and empties the cart.
func (s *Service) ClearCart(ctx context.Context, userID string) error {
	ctx, span := s.start(ctx, "ClearCart", userID, "", 0)
	defer span.End()

	if strings.TrimSpace(userID) == "" {
		return s.finish(ctx, span, "clear_cart", fmt.Errorf("missing user: %w", ErrInvalidInput))
	}

	var restored int
	err := s.store.InTx(ctx, func(tx Tx) error {
		items, products, err := s.lockCartLines(ctx, tx, userID)
		if err != nil {
			return err
		}

		ids := make([]string, 0, len(items))
		for _, item := range items {
			product := products[item.ProductID]
			product.Stock += item.Quantity
			if err := tx.SetStock(ctx, product.ID, product.Stock); err != nil {
				return err
			}
			restored += item.Quantity
			ids = append(ids, item.ID)
		}
		return tx.DeleteCartItems(ctx, ids)
	})
	if err != nil {
		return s.finish(ctx, span, "clear_cart", err)
	}

	s.metrics.released.Add(ctx, int64(restored))
	s.logger.Info("cart cleared", "user_id", userID, "restored", restored)
	return s.finish(ctx, span, "clear_cart", nil)
}

// PlaceOrder converts the cart into a pending order. Reservations made at
// add time become the sale; stock is not re-checked.
func (s *Service) PlaceOrder(ctx context.Context, userID string, in PlaceOrderInput) (domain.OrderView, error) {
	ctx, span := s.start(ctx, "PlaceOrder", userID, "", 0)
	defer span.End()

	if strings.TrimSpace(userID) == "" {
		return domain.OrderView{}, s.finish(ctx, span, "place_order", fmt.Errorf("missing user: %w", ErrInvalidInput))
	}

	var order *domain.Order
	err := s.store.InTx(ctx, func(tx Tx) error {
		items, products, err := s.lockCartLines(ctx, tx, userID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return fmt.Errorf("user %s has no cart: %w", userID, ErrEmptyCart)
			}
			return err
		}
		if len(items) == 0 {
			return fmt.Errorf("user %s: %w", userID, ErrEmptyCart)
		}

		order = &domain.Order{
			ID:              uuid.New().String(),
			UserID:          userID,
			Status:          domain.OrderStatusPending,
			ShippingAddress: strings.TrimSpace(in.ShippingAddress),
			PaymentMethod:   strings.TrimSpace(in.PaymentMethod),
			CreatedAt:       s.now(),
			Items:           make([]domain.OrderItem, 0, len(items)),
		}
		ids := make([]string, 0, len(items))
		for _, item := range items {
			product := products[item.ProductID]
			order.Items = append(order.Items, domain.OrderItem{
				ProductID:   product.ID,
				ProductName: product.Name,
				Price:       product.UnitPrice(),
				Quantity:    item.Quantity,
			})
			if err := tx.AddSales(ctx, product.ID, item.Quantity); err != nil {
				return err
			}
			ids = append(ids, item.ID)
		}
		order.Total = order.ComputeTotal()

		if err := tx.InsertOrder(ctx, order); err != nil {
			return err
		}
		return tx.DeleteCartItems(ctx, ids)
	})
	if err != nil {
		return domain.OrderView{}, s.finish(ctx, span, "place_order", err)
	}

	if s.publisher != nil {
		event := domain.OrderPlacedEvent{
			OrderID:   order.ID,
			UserID:    order.UserID,
			Email:     strings.TrimSpace(in.ContactEmail),
			Items:     order.Items,
			Total:     order.Total,
			Timestamp: order.CreatedAt,
		}
		if err := s.publisher.Publish(ctx, order.ID, event); err != nil {
			s.logger.Error("failed to publish order placed event", "error", err, "order_id", order.ID)
		}
	}

	s.logger.Info("order placed", "order_id", order.ID, "user_id", userID, "items", len(order.Items), "total", order.Total.StringFixed(2))
	return domain.NewOrderView(order), s.finish(ctx, span, "place_order", nil)
}

// GetCart returns the user's cart. A user without a cart gets an empty view.
func (s *Service) GetCart(ctx context.Context, userID string) (domain.CartView, error) {
	if strings.TrimSpace(userID) == "" {
		return domain.CartView{}, fmt.Errorf("get cart: missing user: %w", ErrInvalidInput)
	}

	var items []domain.CartItem
	err := s.store.InTx(ctx, func(tx Tx) error {
		cart, err := tx.FindCart(ctx, userID)
		if err != nil || cart == nil {
			return err
		}
		items, err = tx.ListCartItems(ctx, cart.ID)
		return err
	})
	if err != nil {
		return domain.CartView{}, classify("get cart", err)
	}
	return domain.NewCartView(userID, items), nil
}

func (s *Service) findLine(ctx context.Context, tx Tx, userID, productID string) (*domain.CartItem, error) {
	cart, err := tx.FindCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	if cart == nil {
		return nil, fmt.Errorf("cart of user %s: %w", userID, ErrNotFound)
	}
	item, err := tx.FindCartItem(ctx, cart.ID, productID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, fmt.Errorf("product %s not in cart: %w", productID, ErrNotFound)
	}
	return item, nil
}

// lockCartLines locks the cart row, then the products of its lines in
// ascending id order, then re-reads the lines now that their products are
// held. Lines for products added after the first read are left alone.
func (s *Service) lockCartLines(ctx context.Context, tx Tx, userID string) ([]domain.CartItem, map[string]*domain.Product, error) {
	cart, err := tx.LockCart(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	if cart == nil {
		return nil, nil, fmt.Errorf("cart of user %s: %w", userID, ErrNotFound)
	}

	seen, err := tx.ListCartItems(ctx, cart.ID)
	if err != nil {
		return nil, nil, err
	}
	if len(seen) == 0 {
		return nil, map[string]*domain.Product{}, nil
	}

	productIDs := make([]string, 0, len(seen))
	for _, item := range seen {
		productIDs = append(productIDs, item.ProductID)
	}
	slices.Sort(productIDs)

	products, err := tx.LockProducts(ctx, productIDs)
	if err != nil {
		return nil, nil, err
	}

	current, err := tx.ListCartItems(ctx, cart.ID)
	if err != nil {
		return nil, nil, err
	}
	items := current[:0]
	for _, item := range current {
		if _, locked := products[item.ProductID]; locked {
			items = append(items, item)
		}
	}
	return items, products, nil
}

func validateLine(userID, productID string, quantity int) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("missing user: %w", ErrInvalidInput)
	}
	if strings.TrimSpace(productID) == "" {
		return fmt.Errorf("missing product id: %w", ErrInvalidInput)
	}
	if quantity < 1 {
		return fmt.Errorf("quantity must be at least 1, got %d: %w", quantity, ErrInvalidInput)
	}
	return nil
}

func (s *Service) start(ctx context.Context, name, userID, productID string, quantity int) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{attribute.String("ledger.user_id", userID)}
	if productID != "" {
		attrs = append(attrs, attribute.String("ledger.product_id", productID), attribute.Int("ledger.quantity", quantity))
	}
	return tracer.Start(ctx, "ledger."+name, trace.WithAttributes(attrs...))
}

func (s *Service) finish(ctx context.Context, span trace.Span, op string, err error) error {
	err = classify(op, err)
	outcome := outcomeOf(err)
	s.metrics.operations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("outcome", outcome),
	))
	if err != nil {
		span.RecordError(err)
		if outcome == "conflict" {
			span.SetStatus(codes.Error, err.Error())
			s.logger.Warn("ledger operation conflicted", "op", op, "error", err)
		}
	}
	return err
}
