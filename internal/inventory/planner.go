// Package inventory computes stock movements for order placement and
// cancellation. Plans are pure: callers read current levels inside their own
// transaction boundary, ask for a plan, and apply every change or none.
package inventory

import (
	"storefront/internal/models"
)

// Level is the persisted stock of a product as read inside a transaction
type Level struct {
	ProductID string
	Name      string
	Stock     int
}

// Change is one stock write produced by a plan
type Change struct {
	ProductID string
	Quantity  int
	Stock     int
	Available bool
}

// Reserve plans the decrement of every requested product. It fails without
// producing any change if a product is missing or would go below zero.
func Reserve(levels map[string]Level, ids []string, qty map[string]int) ([]Change, error) {
	changes := make([]Change, 0, len(ids))
	for _, id := range ids {
		requested := qty[id]
		if requested <= 0 {
			return nil, models.Validationf("quantity for product %s must be positive", id)
		}

		level, ok := levels[id]
		if !ok {
			return nil, models.Validationf("product %s not found", id)
		}

		remaining := level.Stock - requested
		if remaining < 0 {
			return nil, &models.StockError{
				ProductID: id,
				Name:      level.Name,
				Requested: requested,
				Available: level.Stock,
			}
		}

		changes = append(changes, Change{
			ProductID: id,
			Quantity:  requested,
			Stock:     remaining,
			Available: remaining > 0,
		})
	}
	return changes, nil
}

// Restore plans adding back the ordered quantities. Products that no longer
// exist are returned as missing; unless skipMissing is set they abort the plan.
func Restore(levels map[string]Level, ids []string, qty map[string]int, skipMissing bool) ([]Change, []string, error) {
	changes := make([]Change, 0, len(ids))
	var missing []string

	for _, id := range ids {
		level, ok := levels[id]
		if !ok {
			missing = append(missing, id)
			continue
		}

		restored := level.Stock + qty[id]
		changes = append(changes, Change{
			ProductID: id,
			Quantity:  qty[id],
			Stock:     restored,
			Available: restored > 0,
		})
	}

	if len(missing) > 0 && !skipMissing {
		return nil, missing, &models.MissingProductsError{ProductIDs: missing}
	}
	return changes, missing, nil
}

// StockLines converts applied changes into event payload lines.
func StockLines(changes []Change) []models.StockLine {
	lines := make([]models.StockLine, 0, len(changes))
	for _, c := range changes {
		lines = append(lines, models.StockLine{
			ProductID: c.ProductID,
			Quantity:  c.Quantity,
			Stock:     c.Stock,
		})
	}
	return lines
}
