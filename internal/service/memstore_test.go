package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"storefront/internal/inventory"
	"storefront/internal/models"
	"storefront/internal/redisclient"
	"storefront/internal/store"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
)

// memStore is an in-memory repository. A single mutex plays the role of the
// database transaction so multi-row writes are all-or-nothing.
type memStore struct {
	mu              sync.Mutex
	products        map[string]models.Product
	categories      []models.Category
	brands          []models.Brand
	orders          map[string]models.Order
	orderHistory    []models.ArchivedOrder
	messages        map[string]models.ContactMessage
	messageHistory  []models.ArchivedMessage
	failCreateOrder error
	seq             int
}

func newMemStore() *memStore {
	return &memStore{
		products: make(map[string]models.Product),
		orders:   make(map[string]models.Order),
		messages: make(map[string]models.ContactMessage),
	}
}

func (m *memStore) tick() time.Time {
	m.seq++
	return time.Date(2024, 1, 1, 0, 0, m.seq, 0, time.UTC)
}

func (m *memStore) addProduct(id string, price int64, stock int) models.Product {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := models.Product{ID: id, Name: "Product " + id, Price: decimal.NewFromInt(price), Image: "img", Category: "general"}
	p.SetStock(stock)
	p.CreatedAt = m.tick()
	m.products[id] = p
	return p
}

func (m *memStore) stock(id string) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.products[id]
	return p.Stock, p.Available
}

func (m *memStore) GetProduct(_ context.Context, id string) (*models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return nil, models.NotFoundf("product %s", id)
	}
	return &p, nil
}

func (m *memStore) GetProductsByIDs(_ context.Context, ids []string) ([]models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Product{}
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memStore) ListProducts(_ context.Context, filter models.ProductFilter) ([]models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Product{}
	for _, p := range m.products {
		if filter.Category != "" && p.Category != filter.Category {
			continue
		}
		if filter.Brand != "" && p.Brand != filter.Brand {
			continue
		}
		if filter.Available != nil && p.Available != *filter.Available {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memStore) ListLowStock(_ context.Context, threshold int) ([]models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Product{}
	for _, p := range m.products {
		if p.Stock <= threshold {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Stock < out[j].Stock })
	return out, nil
}

func (m *memStore) CreateProduct(_ context.Context, p *models.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.CreatedAt = m.tick()
	p.UpdatedAt = p.CreatedAt
	m.products[p.ID] = *p
	return nil
}

func (m *memStore) UpdateProduct(_ context.Context, id string, patch models.ProductPatch) (*models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return nil, models.NotFoundf("product %s", id)
	}
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.Price != nil {
		p.Price = *patch.Price
	}
	if patch.Stock != nil {
		p.SetStock(*patch.Stock)
	}
	if patch.Available != nil {
		p.Available = *patch.Available && p.Stock > 0
	}
	m.products[id] = p
	return &p, nil
}

func (m *memStore) ToggleAvailability(_ context.Context, id string, value *bool) (*models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return nil, models.NotFoundf("product %s", id)
	}
	next := !p.Available
	if value != nil {
		next = *value
	}
	p.Available = next && p.Stock > 0
	m.products[id] = p
	return &p, nil
}

func (m *memStore) DeleteProduct(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.products[id]; !ok {
		return models.NotFoundf("product %s", id)
	}
	delete(m.products, id)
	return nil
}

func (m *memStore) ListCategories(context.Context) ([]models.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Category{}, m.categories...), nil
}

func (m *memStore) CreateCategory(_ context.Context, c *models.Category) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.categories {
		if existing.ID == c.ID {
			return fmt.Errorf("%w: category %q", models.ErrDuplicateName, c.Label)
		}
	}
	m.categories = append(m.categories, *c)
	return nil
}

func (m *memStore) UpdateCategory(_ context.Context, id, label string) (*models.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.categories {
		if m.categories[i].ID == id {
			m.categories[i].Label = label
			c := m.categories[i]
			return &c, nil
		}
	}
	return nil, models.NotFoundf("category %s", id)
}

func (m *memStore) DeleteCategory(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.categories {
		if m.categories[i].ID == id {
			m.categories = append(m.categories[:i], m.categories[i+1:]...)
			return nil
		}
	}
	return models.NotFoundf("category %s", id)
}

func (m *memStore) ListBrands(context.Context) ([]models.Brand, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Brand{}, m.brands...), nil
}

func (m *memStore) CreateBrand(_ context.Context, b *models.Brand) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.brands = append(m.brands, *b)
	return nil
}

func (m *memStore) UpdateBrand(_ context.Context, id, name string) (*models.Brand, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.brands {
		if m.brands[i].ID == id {
			m.brands[i].Name = name
			b := m.brands[i]
			return &b, nil
		}
	}
	return nil, models.NotFoundf("brand %s", id)
}

func (m *memStore) DeleteBrand(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.brands {
		if m.brands[i].ID == id {
			m.brands = append(m.brands[:i], m.brands[i+1:]...)
			return nil
		}
	}
	return models.NotFoundf("brand %s", id)
}

func (m *memStore) levels(ids []string) map[string]inventory.Level {
	levels := make(map[string]inventory.Level, len(ids))
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			levels[id] = inventory.Level{ProductID: id, Name: p.Name, Stock: p.Stock}
		}
	}
	return levels
}

func (m *memStore) apply(changes []inventory.Change) {
	for _, c := range changes {
		p := m.products[c.ProductID]
		p.Stock = c.Stock
		p.Available = c.Available
		m.products[c.ProductID] = p
	}
}

func (m *memStore) CreateOrder(_ context.Context, order *models.Order) ([]inventory.Change, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failCreateOrder != nil {
		return nil, m.failCreateOrder
	}

	ids, qty := order.Items.Quantities()
	changes, err := inventory.Reserve(m.levels(ids), ids, qty)
	if err != nil {
		return nil, err
	}
	m.apply(changes)

	order.CreatedAt = m.tick()
	order.UpdatedAt = order.CreatedAt
	m.orders[order.ID] = *order
	return changes, nil
}

func (m *memStore) GetOrder(_ context.Context, id string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, models.NotFoundf("order %s", id)
	}
	return &o, nil
}

func (m *memStore) ListOrders(context.Context) ([]models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Order{}
	for _, o := range m.orders {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memStore) TransitionOrder(_ context.Context, id string, next models.OrderStatus, skipMissing bool) (*store.OrderTransition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[id]
	if !ok {
		return nil, models.NotFoundf("order %s", id)
	}
	result := &store.OrderTransition{From: o.Status, Order: &o}
	if o.Status == next {
		return result, nil
	}
	if !o.Status.CanTransitionTo(next) {
		return nil, fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, o.Status, next)
	}

	if next == models.OrderStatusCancelled {
		ids, qty := o.Items.Quantities()
		changes, missing, err := inventory.Restore(m.levels(ids), ids, qty, skipMissing)
		if err != nil {
			return nil, err
		}
		m.apply(changes)
		result.Restored = changes
		result.Skipped = missing
	}

	o.Status = next
	o.UpdatedAt = m.tick()
	m.orders[id] = o
	result.Order = &o
	result.Changed = true
	return result, nil
}

func (m *memStore) ArchiveOrder(_ context.Context, id string) (*models.ArchivedOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, models.NotFoundf("order %s", id)
	}
	if !o.Status.Terminal() {
		return nil, fmt.Errorf("%w: order %s is %s", models.ErrInvalidTransition, id, o.Status)
	}
	archived := models.ArchivedOrder{Order: o, ArchivedAt: m.tick()}
	m.orderHistory = append([]models.ArchivedOrder{archived}, m.orderHistory...)
	delete(m.orders, id)
	return &archived, nil
}

func (m *memStore) GetArchivedOrder(_ context.Context, id string) (*models.ArchivedOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.orderHistory {
		if a.ID == id {
			return &a, nil
		}
	}
	return nil, models.NotFoundf("archived order %s", id)
}

func (m *memStore) ListOrderHistory(context.Context) ([]models.ArchivedOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.ArchivedOrder{}, m.orderHistory...), nil
}

func (m *memStore) CreateMessage(_ context.Context, msg *models.ContactMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg.CreatedAt = m.tick()
	msg.UpdatedAt = msg.CreatedAt
	m.messages[msg.ID] = *msg
	return nil
}

func (m *memStore) GetMessage(_ context.Context, id string) (*models.ContactMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[id]
	if !ok {
		return nil, models.NotFoundf("message %s", id)
	}
	return &msg, nil
}

func (m *memStore) ListMessages(context.Context) ([]models.ContactMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.ContactMessage{}
	for _, msg := range m.messages {
		out = append(out, msg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memStore) TransitionMessage(_ context.Context, id string, next models.MessageStatus) (*models.ContactMessage, models.MessageStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[id]
	if !ok {
		return nil, "", models.NotFoundf("message %s", id)
	}
	from := msg.Status
	if from == next {
		return &msg, from, nil
	}
	if !from.CanTransitionTo(next) {
		return nil, "", fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, from, next)
	}
	msg.Status = next
	m.messages[id] = msg
	return &msg, from, nil
}

func (m *memStore) ArchiveMessage(_ context.Context, id string) (*models.ArchivedMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[id]
	if !ok {
		return nil, models.NotFoundf("message %s", id)
	}
	if msg.Status != models.MessageStatusReplied {
		return nil, fmt.Errorf("%w: message %s is %s", models.ErrInvalidTransition, id, msg.Status)
	}
	archived := models.ArchivedMessage{ContactMessage: msg, ArchivedAt: m.tick()}
	m.messageHistory = append([]models.ArchivedMessage{archived}, m.messageHistory...)
	delete(m.messages, id)
	return &archived, nil
}

func (m *memStore) ListMessageHistory(context.Context) ([]models.ArchivedMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.ArchivedMessage{}, m.messageHistory...), nil
}

// mockEventPublisher records every published event. Like the Kafka writer it
// fails once its context is done, and with hang set it blocks until then.
type mockEventPublisher struct {
	mu     sync.Mutex
	events []interface{}
	err    error
	hang   bool
}

func (p *mockEventPublisher) record(ctx context.Context, e interface{}) error {
	if p.hang {
		<-ctx.Done()
		return ctx.Err()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, e)
	return nil
}

func (p *mockEventPublisher) PublishOrderCreated(ctx context.Context, e *models.OrderCreatedEvent) error {
	return p.record(ctx, e)
}

func (p *mockEventPublisher) PublishOrderStatusChanged(ctx context.Context, e *models.OrderStatusChangedEvent) error {
	return p.record(ctx, e)
}

func (p *mockEventPublisher) PublishOrderCancelled(ctx context.Context, e *models.OrderCancelledEvent) error {
	return p.record(ctx, e)
}

func (p *mockEventPublisher) PublishMessageCreated(ctx context.Context, e *models.MessageCreatedEvent) error {
	return p.record(ctx, e)
}

func (p *mockEventPublisher) PublishMessageStatusChanged(ctx context.Context, e *models.MessageStatusChangedEvent) error {
	return p.record(ctx, e)
}

func (p *mockEventPublisher) PublishArchived(ctx context.Context, e *models.ArchivedEvent) error {
	return p.record(ctx, e)
}

func (p *mockEventPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		out = append(out, strings.TrimPrefix(fmt.Sprintf("%T", e), "*models."))
	}
	return out
}

func newTestRedis(t *testing.T) (*redisclient.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return redisclient.NewFromRedis(rdb), mr
}

var errBackend = errors.New("backend unavailable")
