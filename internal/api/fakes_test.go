package api

import (
	"context"
	"fmt"
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

// fakeRepo backs every repository with maps guarded by one mutex
type fakeRepo struct {
	mu         sync.Mutex
	products   map[string]models.Product
	categories []models.Category
	brands     []models.Brand
	orders     map[string]models.Order
	history    []models.ArchivedOrder
	messages   map[string]models.ContactMessage
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		products: map[string]models.Product{},
		orders:   map[string]models.Order{},
		messages: map[string]models.ContactMessage{},
	}
}

func (f *fakeRepo) addProduct(id string, price int64, stock int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := models.Product{ID: id, Name: id, Price: decimal.NewFromInt(price), Image: "img", Category: "general"}
	p.SetStock(stock)
	f.products[id] = p
}

func (f *fakeRepo) stockOf(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.products[id].Stock
}

func (f *fakeRepo) GetProduct(_ context.Context, id string) (*models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[id]
	if !ok {
		return nil, models.NotFoundf("product %s", id)
	}
	return &p, nil
}

func (f *fakeRepo) GetProductsByIDs(_ context.Context, ids []string) ([]models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []models.Product{}
	for _, id := range ids {
		if p, ok := f.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeRepo) ListProducts(_ context.Context, filter models.ProductFilter) ([]models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []models.Product{}
	for _, p := range f.products {
		if filter.Available != nil && p.Available != *filter.Available {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeRepo) ListLowStock(_ context.Context, threshold int) ([]models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []models.Product{}
	for _, p := range f.products {
		if p.Stock <= threshold {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeRepo) CreateProduct(_ context.Context, p *models.Product) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.products[p.ID] = *p
	return nil
}

func (f *fakeRepo) UpdateProduct(_ context.Context, id string, patch models.ProductPatch) (*models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[id]
	if !ok {
		return nil, models.NotFoundf("product %s", id)
	}
	if patch.Stock != nil {
		p.SetStock(*patch.Stock)
	}
	f.products[id] = p
	return &p, nil
}

func (f *fakeRepo) ToggleAvailability(_ context.Context, id string, value *bool) (*models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[id]
	if !ok {
		return nil, models.NotFoundf("product %s", id)
	}
	next := !p.Available
	if value != nil {
		next = *value
	}
	p.Available = next && p.Stock > 0
	f.products[id] = p
	return &p, nil
}

func (f *fakeRepo) DeleteProduct(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.products[id]; !ok {
		return models.NotFoundf("product %s", id)
	}
	delete(f.products, id)
	return nil
}

func (f *fakeRepo) ListCategories(context.Context) ([]models.Category, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Category{}, f.categories...), nil
}

func (f *fakeRepo) CreateCategory(_ context.Context, c *models.Category) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.categories = append(f.categories, *c)
	return nil
}

func (f *fakeRepo) UpdateCategory(_ context.Context, id, _ string) (*models.Category, error) {
	return nil, models.NotFoundf("category %s", id)
}

func (f *fakeRepo) DeleteCategory(_ context.Context, id string) error {
	return models.NotFoundf("category %s", id)
}

func (f *fakeRepo) ListBrands(context.Context) ([]models.Brand, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Brand{}, f.brands...), nil
}

func (f *fakeRepo) CreateBrand(_ context.Context, b *models.Brand) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.brands = append(f.brands, *b)
	return nil
}

func (f *fakeRepo) UpdateBrand(_ context.Context, id, _ string) (*models.Brand, error) {
	return nil, models.NotFoundf("brand %s", id)
}

func (f *fakeRepo) DeleteBrand(_ context.Context, id string) error {
	return models.NotFoundf("brand %s", id)
}

func (f *fakeRepo) levels(ids []string) map[string]inventory.Level {
	levels := map[string]inventory.Level{}
	for _, id := range ids {
		if p, ok := f.products[id]; ok {
			levels[id] = inventory.Level{ProductID: id, Name: p.Name, Stock: p.Stock}
		}
	}
	return levels
}

func (f *fakeRepo) apply(changes []inventory.Change) {
	for _, c := range changes {
		p := f.products[c.ProductID]
		p.Stock = c.Stock
		p.Available = c.Available
		f.products[c.ProductID] = p
	}
}

func (f *fakeRepo) CreateOrder(_ context.Context, order *models.Order) ([]inventory.Change, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids, qty := order.Items.Quantities()
	changes, err := inventory.Reserve(f.levels(ids), ids, qty)
	if err != nil {
		return nil, err
	}
	f.apply(changes)
	order.CreatedAt = time.Now()
	f.orders[order.ID] = *order
	return changes, nil
}

func (f *fakeRepo) GetOrder(_ context.Context, id string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return nil, models.NotFoundf("order %s", id)
	}
	return &o, nil
}

func (f *fakeRepo) ListOrders(context.Context) ([]models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []models.Order{}
	for _, o := range f.orders {
		out = append(out, o)
	}
	return out, nil
}

func (f *fakeRepo) TransitionOrder(_ context.Context, id string, next models.OrderStatus, skipMissing bool) (*store.OrderTransition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
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
		changes, missing, err := inventory.Restore(f.levels(ids), ids, qty, skipMissing)
		if err != nil {
			return nil, err
		}
		f.apply(changes)
		result.Restored, result.Skipped = changes, missing
	}
	o.Status = next
	f.orders[id] = o
	result.Order, result.Changed = &o, true
	return result, nil
}

func (f *fakeRepo) ArchiveOrder(_ context.Context, id string) (*models.ArchivedOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return nil, models.NotFoundf("order %s", id)
	}
	if !o.Status.Terminal() {
		return nil, fmt.Errorf("%w: order %s is %s", models.ErrInvalidTransition, id, o.Status)
	}
	delete(f.orders, id)
	archived := models.ArchivedOrder{Order: o, ArchivedAt: time.Now()}
	f.history = append(f.history, archived)
	return &archived, nil
}

func (f *fakeRepo) GetArchivedOrder(_ context.Context, id string) (*models.ArchivedOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.history {
		if a.ID == id {
			return &a, nil
		}
	}
	return nil, models.NotFoundf("archived order %s", id)
}

func (f *fakeRepo) ListOrderHistory(context.Context) ([]models.ArchivedOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.ArchivedOrder{}, f.history...), nil
}

func (f *fakeRepo) CreateMessage(_ context.Context, msg *models.ContactMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages[msg.ID] = *msg
	return nil
}

func (f *fakeRepo) GetMessage(_ context.Context, id string) (*models.ContactMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg, ok := f.messages[id]
	if !ok {
		return nil, models.NotFoundf("message %s", id)
	}
	return &msg, nil
}

func (f *fakeRepo) ListMessages(context.Context) ([]models.ContactMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []models.ContactMessage{}
	for _, msg := range f.messages {
		out = append(out, msg)
	}
	return out, nil
}

func (f *fakeRepo) TransitionMessage(_ context.Context, id string, next models.MessageStatus) (*models.ContactMessage, models.MessageStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg, ok := f.messages[id]
	if !ok {
		return nil, "", models.NotFoundf("message %s", id)
	}
	from := msg.Status
	if from != next && !from.CanTransitionTo(next) {
		return nil, "", fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, from, next)
	}
	msg.Status = next
	f.messages[id] = msg
	return &msg, from, nil
}

func (f *fakeRepo) ArchiveMessage(_ context.Context, id string) (*models.ArchivedMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg, ok := f.messages[id]
	if !ok {
		return nil, models.NotFoundf("message %s", id)
	}
	if msg.Status != models.MessageStatusReplied {
		return nil, fmt.Errorf("%w: message %s is %s", models.ErrInvalidTransition, id, msg.Status)
	}
	delete(f.messages, id)
	return &models.ArchivedMessage{ContactMessage: msg, ArchivedAt: time.Now()}, nil
}

func (f *fakeRepo) ListMessageHistory(context.Context) ([]models.ArchivedMessage, error) {
	return []models.ArchivedMessage{}, nil
}

func newTestRedis(t *testing.T) *redisclient.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return redisclient.NewFromRedis(rdb)
}
