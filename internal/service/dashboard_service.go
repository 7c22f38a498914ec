package service

import (
	"context"
	"fmt"

	"storefront/internal/models"
	"storefront/internal/util"

	"github.com/shopspring/decimal"
)

// OrderColumn is one kanban column of live orders
type OrderColumn struct {
	Status models.OrderStatus `json:"status"`
	Count  int                `json:"count"`
	Orders []models.Order     `json:"orders"`
}

// MessageColumn is one kanban column of live messages
type MessageColumn struct {
	Status   models.MessageStatus    `json:"status"`
	Count    int                     `json:"count"`
	Messages []models.ContactMessage `json:"messages"`
}

// Dashboard is the administrator's overview
type Dashboard struct {
	Orders            []OrderColumn    `json:"orders"`
	Messages          []MessageColumn  `json:"messages"`
	OpenOrdersTotal   decimal.Decimal  `json:"openOrdersTotal"`
	LowStock          []models.Product `json:"lowStock"`
	LowStockThreshold int              `json:"lowStockThreshold"`
}

// DashboardService composes orders, messages and inventory into one view
type DashboardService struct {
	orders    OrderRepository
	messages  MessageRepository
	products  ProductRepository
	threshold int
}

func NewDashboardService(orders OrderRepository, messages MessageRepository, products ProductRepository, lowStockThreshold int) *DashboardService {
	return &DashboardService{
		orders:    orders,
		messages:  messages,
		products:  products,
		threshold: lowStockThreshold,
	}
}

var (
	orderColumns   = []models.OrderStatus{models.OrderStatusPending, models.OrderStatusContacted, models.OrderStatusCompleted, models.OrderStatusCancelled}
	messageColumns = []models.MessageStatus{models.MessageStatusPending, models.MessageStatusRead, models.MessageStatusReplied}
)

func (s *DashboardService) Get(ctx context.Context) (*Dashboard, error) {
	ctx, span := util.StartSpan(ctx, "DashboardService.Get")
	defer span.End()

	orders, err := s.orders.ListOrders(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	messages, err := s.messages.ListMessages(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	lowStock, err := s.products.ListLowStock(ctx, s.threshold)
	if err != nil {
		return nil, fmt.Errorf("failed to list low stock: %w", err)
	}

	d := &Dashboard{
		OpenOrdersTotal:   decimal.Zero,
		LowStock:          lowStock,
		LowStockThreshold: s.threshold,
	}

	for _, status := range orderColumns {
		col := OrderColumn{Status: status, Orders: []models.Order{}}
		for _, o := range orders {
			if o.Status == status {
				col.Orders = append(col.Orders, o)
			}
		}
		col.Count = len(col.Orders)
		d.Orders = append(d.Orders, col)
	}
	for _, o := range orders {
		if !o.Status.Terminal() {
			d.OpenOrdersTotal = d.OpenOrdersTotal.Add(o.Total)
		}
	}

	for _, status := range messageColumns {
		col := MessageColumn{Status: status, Messages: []models.ContactMessage{}}
		for _, m := range messages {
			if m.Status == status {
				col.Messages = append(col.Messages, m)
			}
		}
		col.Count = len(col.Messages)
		d.Messages = append(d.Messages, col)
	}

	return d, nil
}
