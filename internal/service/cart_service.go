package service

import (
	"context"
	"errors"
	"time"

	"storefront/internal/cart"
	"storefront/internal/models"
	"storefront/internal/redisclient"
	"storefront/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CartView is a cart with its derived values
type CartView struct {
	SessionID string          `json:"sessionId"`
	Items     []cart.Item     `json:"items"`
	Total     decimal.Decimal `json:"total"`
	Count     int             `json:"count"`
}

func newCartView(sessionID string, c *cart.Cart) *CartView {
	return &CartView{
		SessionID: sessionID,
		Items:     c.Items,
		Total:     c.Total(),
		Count:     c.Count(),
	}
}

// CheckoutRequest carries the customer details for a cart checkout
type CheckoutRequest struct {
	CustomerName   string `json:"customerName"`
	CustomerPhone  string `json:"customerPhone"`
	CustomerEmail  string `json:"customerEmail"`
	Notes          string `json:"notes"`
	IdempotencyKey string `json:"-"`
}

// CartService keeps one cart per session in Redis
type CartService struct {
	products ProductRepository
	sessions *redisclient.Client
	orders   *OrderService
	ttl      time.Duration
	logger   *zap.Logger
}

func NewCartService(products ProductRepository, sessions *redisclient.Client, orders *OrderService, ttl time.Duration) *CartService {
	return &CartService{
		products: products,
		sessions: sessions,
		orders:   orders,
		ttl:      ttl,
		logger:   util.GetLogger(),
	}
}

// NewSessionID issues a cart session id
func NewSessionID() string {
	return uuid.New().String()
}

func (s *CartService) load(ctx context.Context, sessionID string) (*cart.Cart, error) {
	if sessionID == "" {
		return nil, models.Validationf("cart session is required")
	}
	return s.sessions.GetCart(ctx, sessionID, s.ttl)
}

func (s *CartService) save(ctx context.Context, sessionID string, c *cart.Cart) (*CartView, error) {
	if err := s.sessions.SaveCart(ctx, sessionID, c, s.ttl); err != nil {
		return nil, err
	}
	return newCartView(sessionID, c), nil
}

// View returns the session's cart with every quantity capped at the
// persisted stock. The cart is saved again only when a quantity changed.
func (s *CartService) View(ctx context.Context, sessionID string) (*CartView, error) {
	ctx, span := util.StartSpan(ctx, "CartService.View")
	defer span.End()

	c, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if c.Empty() {
		return newCartView(sessionID, c), nil
	}

	changed, err := s.reclamp(ctx, c)
	if err != nil {
		return nil, err
	}
	if !changed {
		return newCartView(sessionID, c), nil
	}
	return s.save(ctx, sessionID, c)
}

// reclamp caps every entry at the stock currently persisted for it. Products
// that no longer exist count as out of stock.
func (s *CartService) reclamp(ctx context.Context, c *cart.Cart) (bool, error) {
	ids := make([]string, 0, len(c.Items))
	for _, item := range c.Items {
		ids = append(ids, item.ID)
	}

	products, err := s.products.GetProductsByIDs(ctx, ids)
	if err != nil {
		return false, err
	}

	stock := make(cart.StockMap, len(ids))
	for _, id := range ids {
		stock[id] = 0
	}
	for _, p := range products {
		stock[p.ID] = p.Stock
	}

	changed := false
	for _, id := range ids {
		item, _ := c.Get(id)
		if c.UpdateQuantity(id, item.Quantity, stock) != item.Quantity {
			s.logger.Info("Cart item clamped to stock",
				zap.String("product_id", id),
				zap.Int("requested", item.Quantity),
				zap.Int("stock", stock[id]))
			changed = true
		}
	}
	return changed, nil
}

// AddItem adds one unit of a product. added is false when the product is
// unavailable or already at its stock limit.
func (s *CartService) AddItem(ctx context.Context, sessionID, productID string) (view *CartView, added bool, err error) {
	ctx, span := util.StartSpan(ctx, "CartService.AddItem")
	defer span.End()

	c, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, false, err
	}

	product, err := s.products.GetProduct(ctx, productID)
	if err != nil {
		return nil, false, err
	}

	added = c.Add(*product)
	view, err = s.save(ctx, sessionID, c)
	return view, added, err
}

// UpdateItem sets an item's quantity, capped at the persisted stock. A
// product that no longer exists counts as out of stock.
func (s *CartService) UpdateItem(ctx context.Context, sessionID, productID string, quantity int) (*CartView, error) {
	ctx, span := util.StartSpan(ctx, "CartService.UpdateItem")
	defer span.End()

	c, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if _, ok := c.Get(productID); !ok {
		return nil, models.NotFoundf("product %s is not in the cart", productID)
	}

	stock := cart.StockMap{}
	product, err := s.products.GetProduct(ctx, productID)
	switch {
	case errors.Is(err, models.ErrNotFound):
		stock[productID] = 0
	case err != nil:
		return nil, err
	default:
		stock[productID] = product.Stock
	}

	c.UpdateQuantity(productID, quantity, stock)
	return s.save(ctx, sessionID, c)
}

// RemoveItem drops a product from the cart
func (s *CartService) RemoveItem(ctx context.Context, sessionID, productID string) (*CartView, error) {
	ctx, span := util.StartSpan(ctx, "CartService.RemoveItem")
	defer span.End()

	c, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	c.Remove(productID)
	return s.save(ctx, sessionID, c)
}

// Clear empties the cart
func (s *CartService) Clear(ctx context.Context, sessionID string) error {
	ctx, span := util.StartSpan(ctx, "CartService.Clear")
	defer span.End()

	if sessionID == "" {
		return models.Validationf("cart session is required")
	}
	return s.sessions.DeleteCart(ctx, sessionID)
}

// Checkout places an order from the cart and clears it once the order exists
func (s *CartService) Checkout(ctx context.Context, sessionID string, req *CheckoutRequest) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "CartService.Checkout")
	defer span.End()

	c, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if c.Empty() {
		return nil, models.Validationf("cart is empty")
	}

	total := c.Total()
	order, err := s.orders.CreateOrder(ctx, &CreateOrderRequest{
		Items:          c.OrderItems(),
		Total:          &total,
		CustomerName:   req.CustomerName,
		CustomerPhone:  req.CustomerPhone,
		CustomerEmail:  req.CustomerEmail,
		Notes:          req.Notes,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		return nil, err
	}

	if err := s.sessions.DeleteCart(ctx, sessionID); err != nil {
		s.logger.Warn("Failed to clear cart after checkout",
			zap.String("order_id", order.ID),
			zap.Error(err))
	}
	return order, nil
}
