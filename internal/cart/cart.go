// Package cart holds a shopper's in-progress selection. Quantities never
// exceed the product's known stock and never drop below one while an item is
// in the cart.
package cart

import (
	"storefront/internal/models"

	"github.com/shopspring/decimal"
)

// StockLookup resolves a product's current stock from the catalog.
type StockLookup interface {
	CurrentStock(productID string) (int, bool)
}

// StockMap is a StockLookup backed by a plain map
type StockMap map[string]int

// CurrentStock implements StockLookup.
func (m StockMap) CurrentStock(productID string) (int, bool) {
	stock, ok := m[productID]
	return stock, ok
}

// Item is a product snapshot plus the selected quantity
type Item struct {
	models.Product
	Quantity int `json:"quantity"`
}

// Subtotal returns price * quantity.
func (i Item) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Cart is a session-scoped product selection
type Cart struct {
	Items []Item `json:"items"`
}

// New returns an empty cart.
func New() *Cart {
	return &Cart{Items: []Item{}}
}

func (c *Cart) find(productID string) int {
	for i := range c.Items {
		if c.Items[i].ID == productID {
			return i
		}
	}
	return -1
}

// Get returns the entry for productID.
func (c *Cart) Get(productID string) (Item, bool) {
	if i := c.find(productID); i >= 0 {
		return c.Items[i], true
	}
	return Item{}, false
}

// Add puts one unit of product in the cart. It is a no-op, returning false,
// when the product is unavailable or one more unit would exceed its stock.
func (c *Cart) Add(product models.Product) bool {
	if !product.Purchasable() {
		return false
	}

	i := c.find(product.ID)
	if i < 0 {
		c.Items = append(c.Items, Item{Product: product, Quantity: 1})
		return true
	}

	next := c.Items[i].Quantity + 1
	if next > product.Stock {
		return false
	}
	c.Items[i].Product = product
	c.Items[i].Quantity = next
	return true
}

// UpdateQuantity sets the quantity for productID, capped at the stock reported
// by lookup rather than the cart's own snapshot. A quantity of zero or less,
// or a product whose stock dropped to zero, removes the entry. It returns the
// quantity actually applied.
func (c *Cart) UpdateQuantity(productID string, quantity int, lookup StockLookup) int {
	i := c.find(productID)
	if i < 0 {
		return 0
	}
	if quantity <= 0 {
		c.Remove(productID)
		return 0
	}

	stock := c.Items[i].Stock
	if lookup != nil {
		if current, ok := lookup.CurrentStock(productID); ok {
			stock = current
		}
	}
	if quantity > stock {
		quantity = stock
	}
	if quantity <= 0 {
		c.Remove(productID)
		return 0
	}

	c.Items[i].Stock = stock
	c.Items[i].Quantity = quantity
	return quantity
}

// Remove deletes the entry for productID. Removing an absent product is a no-op.
func (c *Cart) Remove(productID string) {
	if i := c.find(productID); i >= 0 {
		c.Items = append(c.Items[:i], c.Items[i+1:]...)
	}
}

// Clear empties the cart.
func (c *Cart) Clear() {
	c.Items = []Item{}
}

// Total is the sum of price * quantity over all entries.
func (c *Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.Items {
		total = total.Add(item.Subtotal())
	}
	return total
}

// Count is the sum of quantities.
func (c *Cart) Count() int {
	count := 0
	for _, item := range c.Items {
		count += item.Quantity
	}
	return count
}

// Empty reports whether the cart has no entries.
func (c *Cart) Empty() bool {
	return len(c.Items) == 0
}

// OrderItems snapshots the cart as order line items.
func (c *Cart) OrderItems() models.OrderItems {
	items := make(models.OrderItems, 0, len(c.Items))
	for _, item := range c.Items {
		items = append(items, models.OrderItem{
			ProductID: item.ID,
			Name:      item.Name,
			Price:     item.Price,
			Quantity:  item.Quantity,
			Image:     item.Image,
		})
	}
	return items
}
