package service

import (
	"context"
	"time"

	"storefront/internal/inventory"
	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ProductRepository persists catalog products
type ProductRepository interface {
	GetProduct(ctx context.Context, id string) (*models.Product, error)
	GetProductsByIDs(ctx context.Context, ids []string) ([]models.Product, error)
	ListProducts(ctx context.Context, filter models.ProductFilter) ([]models.Product, error)
	ListLowStock(ctx context.Context, threshold int) ([]models.Product, error)
	CreateProduct(ctx context.Context, p *models.Product) error
	UpdateProduct(ctx context.Context, id string, patch models.ProductPatch) (*models.Product, error)
	ToggleAvailability(ctx context.Context, id string, value *bool) (*models.Product, error)
	DeleteProduct(ctx context.Context, id string) error
}

// TaxonomyRepository persists categories and brands
type TaxonomyRepository interface {
	ListCategories(ctx context.Context) ([]models.Category, error)
	CreateCategory(ctx context.Context, c *models.Category) error
	UpdateCategory(ctx context.Context, id, label string) (*models.Category, error)
	DeleteCategory(ctx context.Context, id string) error
	ListBrands(ctx context.Context) ([]models.Brand, error)
	CreateBrand(ctx context.Context, b *models.Brand) error
	UpdateBrand(ctx context.Context, id, name string) (*models.Brand, error)
	DeleteBrand(ctx context.Context, id string) error
}

// OrderRepository persists orders and applies their stock side effects
// transactionally.
type OrderRepository interface {
	CreateOrder(ctx context.Context, order *models.Order) ([]inventory.Change, error)
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	ListOrders(ctx context.Context) ([]models.Order, error)
	TransitionOrder(ctx context.Context, id string, next models.OrderStatus, skipMissing bool) (*store.OrderTransition, error)
	ArchiveOrder(ctx context.Context, id string) (*models.ArchivedOrder, error)
	GetArchivedOrder(ctx context.Context, id string) (*models.ArchivedOrder, error)
	ListOrderHistory(ctx context.Context) ([]models.ArchivedOrder, error)
}

// MessageRepository persists contact messages
type MessageRepository interface {
	CreateMessage(ctx context.Context, msg *models.ContactMessage) error
	GetMessage(ctx context.Context, id string) (*models.ContactMessage, error)
	ListMessages(ctx context.Context) ([]models.ContactMessage, error)
	TransitionMessage(ctx context.Context, id string, next models.MessageStatus) (*models.ContactMessage, models.MessageStatus, error)
	ArchiveMessage(ctx context.Context, id string) (*models.ArchivedMessage, error)
	ListMessageHistory(ctx context.Context) ([]models.ArchivedMessage, error)
}

// EventPublisher emits domain events after a write has committed
type EventPublisher interface {
	PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error
	PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error
	PublishOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error
	PublishMessageCreated(ctx context.Context, event *models.MessageCreatedEvent) error
	PublishMessageStatusChanged(ctx context.Context, event *models.MessageStatusChangedEvent) error
	PublishArchived(ctx context.Context, event *models.ArchivedEvent) error
}

// publishTimeout bounds how long a request waits on the broker after its
// write has committed
var publishTimeout = 2 * time.Second

// archiveLockTTL bounds how long a crashed archiver can block others
const archiveLockTTL = 30 * time.Second

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}

// publish runs fn when a publisher is configured. Failures are logged and
// counted; the write they describe has already committed.
func publish(ctx context.Context, logger *zap.Logger, p EventPublisher, eventType string, fn func(context.Context, EventPublisher) error) {
	if p == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := fn(ctx, p); err != nil {
		util.EventsPublishFailedTotal.WithLabelValues(eventType).Inc()
		logger.Error("Failed to publish event",
			zap.String("event_type", eventType),
			zap.Error(err))
	}
}
