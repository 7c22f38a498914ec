package worker

import (
	"context"
	"fmt"

	"storefront/internal/broker"
	"storefront/internal/models"
	"storefront/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventLedger records which events were already handled
type EventLedger interface {
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

// CacheInvalidator drops cached catalog reads
type CacheInvalidator interface {
	InvalidateCatalog(ctx context.Context) error
}

// CatalogWorker reacts to store events: it keeps the catalog cache fresh and
// raises low-stock warnings.
type CatalogWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	ledger       EventLedger
	cache        CacheInvalidator
	threshold    int
	logger       *zap.Logger
}

// NewCatalogWorker creates a new catalog worker
func NewCatalogWorker(
	consumer *broker.Consumer,
	ledger EventLedger,
	cache CacheInvalidator,
	lowStockThreshold int,
) *CatalogWorker {
	w := &CatalogWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		ledger:       ledger,
		cache:        cache,
		threshold:    lowStockThreshold,
		logger:       util.GetLogger().Named("catalog-worker"),
	}

	w.eventHandler.OnOrderCreated(w.HandleOrderCreated)
	w.eventHandler.OnOrderCancelled(w.HandleOrderCancelled)
	w.eventHandler.OnMessageCreated(w.HandleMessageCreated)
	return w
}

// Start starts the worker
func (w *CatalogWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting catalog worker")
	return w.consumer.StartConsuming(ctx, w.HandleMessage)
}

// Stop stops the worker
func (w *CatalogWorker) Stop() error {
	w.logger.Info("Stopping catalog worker")
	return w.consumer.Close()
}

// HandleMessage routes one Kafka message
func (w *CatalogWorker) HandleMessage(ctx context.Context, msg kafka.Message) error {
	return w.eventHandler.HandleMessage(ctx, msg)
}

// HandleOrderCreated invalidates the catalog and warns about products the
// order left at or below the low-stock threshold.
func (w *CatalogWorker) HandleOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error {
	return w.once(ctx, event.BaseEvent, func() error {
		if err := w.invalidate(ctx); err != nil {
			return err
		}

		for _, line := range event.Items {
			if line.Stock > w.threshold {
				continue
			}
			util.LowStockAlertsTotal.WithLabelValues(line.ProductID).Inc()
			w.logger.Warn("Product stock is low",
				zap.String("product_id", line.ProductID),
				zap.Int("stock", line.Stock),
				zap.Int("threshold", w.threshold),
				zap.String("order_id", event.OrderID))
		}
		return nil
	})
}

// HandleOrderCancelled invalidates the catalog after stock was restored
func (w *CatalogWorker) HandleOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error {
	return w.once(ctx, event.BaseEvent, func() error {
		if len(event.Skipped) > 0 {
			w.logger.Warn("Cancelled order referenced deleted products",
				zap.String("order_id", event.OrderID),
				zap.Strings("product_ids", event.Skipped))
		}
		return w.invalidate(ctx)
	})
}

// HandleMessageCreated notifies the back office of a new inquiry
func (w *CatalogWorker) HandleMessageCreated(ctx context.Context, event *models.MessageCreatedEvent) error {
	return w.once(ctx, event.BaseEvent, func() error {
		w.logger.Info("New contact message",
			zap.String("message_id", event.MessageID),
			zap.String("service", event.Service))
		return nil
	})
}

// once runs fn unless the event was already processed, then records it. A
// failure leaves the event unrecorded so redelivery retries it.
func (w *CatalogWorker) once(ctx context.Context, event models.BaseEvent, fn func() error) error {
	processed, err := w.ledger.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event %s: %w", event.EventID, err)
	}
	if processed {
		w.logger.Debug("Skipping processed event", zap.String("event_id", event.EventID))
		return nil
	}

	if err := fn(); err != nil {
		return err
	}

	if err := w.ledger.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
		return fmt.Errorf("failed to mark event %s: %w", event.EventID, err)
	}
	return nil
}

func (w *CatalogWorker) invalidate(ctx context.Context) error {
	if w.cache == nil {
		return nil
	}
	if err := w.cache.InvalidateCatalog(ctx); err != nil {
		return fmt.Errorf("failed to invalidate catalog cache: %w", err)
	}
	return nil
}
