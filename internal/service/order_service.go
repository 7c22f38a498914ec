package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"storefront/internal/inventory"
	"storefront/internal/models"
	"storefront/internal/redisclient"
	"storefront/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// OrderService handles order business logic
type OrderService struct {
	orders         OrderRepository
	redis          *redisclient.Client
	eventPublisher EventPublisher
	idempotencyTTL time.Duration
	logger         *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(
	orders OrderRepository,
	redis *redisclient.Client,
	eventPublisher EventPublisher,
	idempotencyTTL time.Duration,
) *OrderService {
	return &OrderService{
		orders:         orders,
		redis:          redis,
		eventPublisher: eventPublisher,
		idempotencyTTL: idempotencyTTL,
		logger:         util.GetLogger(),
	}
}

// CreateOrderRequest represents a checkout
type CreateOrderRequest struct {
	Items          models.OrderItems `json:"items"`
	Total          *decimal.Decimal  `json:"total"`
	CustomerName   string            `json:"customerName"`
	CustomerPhone  string            `json:"customerPhone"`
	CustomerEmail  string            `json:"customerEmail"`
	Notes          string            `json:"notes"`
	IdempotencyKey string            `json:"-"`
}

// UpdateStatusRequest represents an administrator status change
type UpdateStatusRequest struct {
	Status              string `json:"status" binding:"required"`
	SkipMissingProducts bool   `json:"skipMissingProducts"`
}

func (r *CreateOrderRequest) validate() error {
	r.CustomerName = strings.TrimSpace(r.CustomerName)
	r.CustomerPhone = strings.TrimSpace(r.CustomerPhone)

	if len(r.Items) == 0 {
		return models.Validationf("order must contain at least one item")
	}
	for _, item := range r.Items {
		if item.ProductID == "" {
			return models.Validationf("every item needs a product id")
		}
		if item.Quantity <= 0 {
			return models.Validationf("quantity for product %s must be positive", item.ProductID)
		}
		if !models.ValidMoney(item.Price) {
			return models.Validationf("price for product %s must be non-negative with at most %d decimals", item.ProductID, models.MoneyScale)
		}
	}
	if r.Total == nil {
		return models.Validationf("total is required")
	}
	if !r.Total.Equal(r.Items.Total()) {
		return models.Validationf("total %s does not match items %s", r.Total, r.Items.Total())
	}
	if r.CustomerName == "" {
		return models.Validationf("customer name is required")
	}
	if r.CustomerPhone == "" {
		return models.Validationf("customer phone is required")
	}
	return nil
}

// CreateOrder reserves stock and persists the order in one transaction. A
// repeated idempotency key returns the order it created first.
func (s *OrderService) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateOrder")
	defer span.End()

	existing, err := s.lookupIdempotent(ctx, req.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	if err := req.validate(); err != nil {
		util.CheckoutFailedTotal.WithLabelValues("invalid_request").Inc()
		return nil, err
	}

	order := &models.Order{
		ID:            uuid.New().String(),
		Items:         req.Items,
		Total:         *req.Total,
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		CustomerEmail: strings.TrimSpace(req.CustomerEmail),
		Notes:         strings.TrimSpace(req.Notes),
		Status:        models.OrderStatusPending,
	}

	start := time.Now()
	changes, err := s.orders.CreateOrder(ctx, order)
	util.StockReserveLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		switch {
		case errors.Is(err, models.ErrInsufficientStock):
			util.CheckoutFailedTotal.WithLabelValues("insufficient_stock").Inc()
		case errors.Is(err, models.ErrValidation):
			util.CheckoutFailedTotal.WithLabelValues("invalid_items").Inc()
		default:
			util.CheckoutFailedTotal.WithLabelValues("db_error").Inc()
			return nil, fmt.Errorf("failed to create order: %w", err)
		}
		return nil, err
	}

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order created",
		zap.String("order_id", order.ID),
		zap.String("total", order.Total.StringFixed(2)),
		zap.Int("lines", len(changes)))

	// The order is committed, so a client hanging up must not skip these.
	committed := context.WithoutCancel(ctx)
	invalidateCatalog(committed, s.redis, s.logger)

	if req.IdempotencyKey != "" && s.redis != nil {
		if err := s.redis.SetIdempotencyKey(committed, req.IdempotencyKey, order.ID, s.idempotencyTTL); err != nil {
			s.logger.Warn("Failed to store idempotency key",
				zap.String("idempotency_key", req.IdempotencyKey),
				zap.Error(err))
		}
	}

	publish(ctx, s.logger, s.eventPublisher, models.EventTypeOrderCreated, func(ctx context.Context, p EventPublisher) error {
		return p.PublishOrderCreated(ctx, &models.OrderCreatedEvent{
			BaseEvent: newBaseEvent(models.EventTypeOrderCreated),
			OrderID:   order.ID,
			Total:     order.Total,
			Items:     inventory.StockLines(changes),
		})
	})

	return order, nil
}

// lookupIdempotent returns the order a key already created, live or
// archived. Redis failures are logged and treated as an unseen key.
func (s *OrderService) lookupIdempotent(ctx context.Context, key string) (*models.Order, error) {
	if key == "" || s.redis == nil {
		return nil, nil
	}

	orderID, found, err := s.redis.GetIdempotencyKey(ctx, key)
	if err != nil {
		s.logger.Warn("Failed to check idempotency key", zap.String("idempotency_key", key), zap.Error(err))
		return nil, nil
	}
	if !found {
		return nil, nil
	}

	order, err := s.orders.GetOrder(ctx, orderID)
	if errors.Is(err, models.ErrNotFound) {
		archived, archErr := s.orders.GetArchivedOrder(ctx, orderID)
		if errors.Is(archErr, models.ErrNotFound) {
			s.logger.Warn("Idempotent order no longer exists",
				zap.String("idempotency_key", key),
				zap.String("order_id", orderID))
			return nil, nil
		}
		if archErr != nil {
			return nil, fmt.Errorf("failed to resolve idempotent order %s: %w", orderID, archErr)
		}
		order = &archived.Order
	} else if err != nil {
		return nil, fmt.Errorf("failed to resolve idempotent order %s: %w", orderID, err)
	}

	s.logger.Info("Duplicate order request detected",
		zap.String("idempotency_key", key),
		zap.String("order_id", orderID))
	return order, nil
}

// GetOrder retrieves an order by ID
func (s *OrderService) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.GetOrder")
	defer span.End()

	return s.orders.GetOrder(ctx, id)
}

// ListOrders retrieves live orders, newest first
func (s *OrderService) ListOrders(ctx context.Context) ([]models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.ListOrders")
	defer span.End()

	return s.orders.ListOrders(ctx)
}

// ListHistory retrieves archived orders
func (s *OrderService) ListHistory(ctx context.Context) ([]models.ArchivedOrder, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.ListHistory")
	defer span.End()

	return s.orders.ListOrderHistory(ctx)
}

// UpdateStatus moves an order to status. Cancelling restores stock in the
// same transaction; deleted products block the cancel unless skipMissing.
func (s *OrderService) UpdateStatus(ctx context.Context, id, status string, skipMissing bool) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.UpdateStatus")
	defer span.End()

	next := models.OrderStatus(status)
	if !next.Valid() {
		return nil, models.Validationf("invalid order status %q", status)
	}

	result, err := s.orders.TransitionOrder(ctx, id, next, skipMissing)
	if err != nil {
		if errors.Is(err, models.ErrRestoreTargetMissing) {
			s.logger.Warn("Cancel blocked by deleted products", zap.String("order_id", id), zap.Error(err))
		}
		return nil, err
	}
	if !result.Changed {
		return result.Order, nil
	}

	util.OrderTransitionsTotal.WithLabelValues(string(result.From), string(next)).Inc()
	s.logger.Info("Order status changed",
		zap.String("order_id", id),
		zap.String("from", string(result.From)),
		zap.String("to", string(next)))

	if next == models.OrderStatusCancelled {
		util.OrdersCancelledTotal.Inc()
		if len(result.Skipped) > 0 {
			s.logger.Warn("Stock not restored for deleted products",
				zap.String("order_id", id),
				zap.Strings("product_ids", result.Skipped))
		}
		if len(result.Restored) > 0 {
			invalidateCatalog(ctx, s.redis, s.logger)
		}
		publish(ctx, s.logger, s.eventPublisher, models.EventTypeOrderCancelled, func(ctx context.Context, p EventPublisher) error {
			return p.PublishOrderCancelled(ctx, &models.OrderCancelledEvent{
				BaseEvent: newBaseEvent(models.EventTypeOrderCancelled),
				OrderID:   id,
				Items:     inventory.StockLines(result.Restored),
				Skipped:   result.Skipped,
			})
		})
	}

	publish(ctx, s.logger, s.eventPublisher, models.EventTypeOrderStatusChanged, func(ctx context.Context, p EventPublisher) error {
		return p.PublishOrderStatusChanged(ctx, &models.OrderStatusChangedEvent{
			BaseEvent: newBaseEvent(models.EventTypeOrderStatusChanged),
			OrderID:   id,
			OldStatus: result.From,
			NewStatus: next,
		})
	})

	return result.Order, nil
}

// Advance moves an order one step along pending -> contacted -> completed
func (s *OrderService) Advance(ctx context.Context, id string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.Advance")
	defer span.End()

	order, err := s.orders.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}

	next, ok := order.Status.Next()
	if !ok {
		return nil, fmt.Errorf("%w: order %s is %s", models.ErrInvalidTransition, id, order.Status)
	}
	return s.UpdateStatus(ctx, id, string(next), false)
}

// Archive moves a completed or cancelled order to history
func (s *OrderService) Archive(ctx context.Context, id string) (*models.ArchivedOrder, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.Archive")
	defer span.End()

	release, err := acquireArchiveLock(ctx, s.redis, s.logger, "order:"+id)
	if err != nil {
		return nil, err
	}
	defer release()

	archived, err := s.orders.ArchiveOrder(ctx, id)
	if err != nil {
		return nil, err
	}

	util.OrdersArchivedTotal.Inc()
	s.logger.Info("Order archived", zap.String("order_id", id), zap.String("status", string(archived.Status)))

	publish(ctx, s.logger, s.eventPublisher, models.EventTypeOrderArchived, func(ctx context.Context, p EventPublisher) error {
		return p.PublishArchived(ctx, &models.ArchivedEvent{
			BaseEvent: newBaseEvent(models.EventTypeOrderArchived),
			ID:        id,
			Status:    string(archived.Status),
		})
	})

	return archived, nil
}

// acquireArchiveLock serialises archivers of the same record. Without Redis
// the database row lock alone guards the move.
func acquireArchiveLock(ctx context.Context, redis *redisclient.Client, logger *zap.Logger, key string) (func(), error) {
	if redis == nil {
		return func() {}, nil
	}

	lockKey := "archive:" + key
	token, ok, err := redis.AcquireLock(ctx, lockKey, archiveLockTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire archive lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s is already being archived", models.ErrInvalidTransition, key)
	}

	return func() {
		if err := redis.ReleaseLock(context.Background(), lockKey, token); err != nil {
			logger.Warn("Failed to release archive lock", zap.String("key", lockKey), zap.Error(err))
		}
	}, nil
}
