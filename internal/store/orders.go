package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"storefront/internal/inventory"
	"storefront/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const orderColumns = `id, items, total, customer_name, customer_phone, customer_email, notes, status, created_at, updated_at`

// OrderTransition describes the outcome of a status change
type OrderTransition struct {
	Order    *models.Order
	From     models.OrderStatus
	Changed  bool
	Restored []inventory.Change
	Skipped  []string
}

type stockRow struct {
	ID    string `db:"id"`
	Name  string `db:"name"`
	Stock int    `db:"stock"`
}

// lockLevels reads and row-locks the given products (FOR UPDATE) in id order
// so that concurrent transactions always acquire locks in the same sequence.
func lockLevels(ctx context.Context, tx *sqlx.Tx, ids []string) (map[string]inventory.Level, error) {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)

	var rows []stockRow
	err := tx.SelectContext(ctx, &rows,
		"SELECT id, name, stock FROM products WHERE id = ANY($1) ORDER BY id FOR UPDATE",
		pq.Array(sorted))
	if err != nil {
		return nil, fmt.Errorf("failed to lock products: %w", err)
	}

	levels := make(map[string]inventory.Level, len(rows))
	for _, r := range rows {
		levels[r.ID] = inventory.Level{ProductID: r.ID, Name: r.Name, Stock: r.Stock}
	}
	return levels, nil
}

func applyChanges(ctx context.Context, tx *sqlx.Tx, changes []inventory.Change) error {
	for _, c := range changes {
		_, err := tx.ExecContext(ctx,
			"UPDATE products SET stock = $1, available = $2, updated_at = NOW() WHERE id = $3",
			c.Stock, c.Available, c.ProductID)
		if err != nil {
			return fmt.Errorf("failed to update stock for product %s: %w", c.ProductID, err)
		}
	}
	return nil
}

// CreateOrder reserves stock for every line item and inserts the order in a
// single transaction. Either every product is decremented and the order
// exists, or nothing changes.
func (s *Store) CreateOrder(ctx context.Context, order *models.Order) ([]inventory.Change, error) {
	ids, qty := order.Items.Quantities()

	var changes []inventory.Change
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		levels, err := lockLevels(ctx, tx, ids)
		if err != nil {
			return err
		}

		changes, err = inventory.Reserve(levels, ids, qty)
		if err != nil {
			return err
		}

		if err := applyChanges(ctx, tx, changes); err != nil {
			return err
		}

		query := `
			INSERT INTO orders (id, items, total, customer_name, customer_phone, customer_email, notes, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING created_at, updated_at`

		return tx.QueryRowxContext(ctx, query,
			order.ID, order.Items, order.Total, order.CustomerName, order.CustomerPhone,
			order.CustomerEmail, order.Notes, order.Status,
		).Scan(&order.CreatedAt, &order.UpdatedAt)
	})
	if err != nil {
		return nil, err
	}
	return changes, nil
}

// GetOrder retrieves an order by ID
func (s *Store) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT "+orderColumns+" FROM orders WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NotFoundf("order %s", id)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// ListOrders retrieves live orders, newest first
func (s *Store) ListOrders(ctx context.Context) ([]models.Order, error) {
	orders := []models.Order{}
	err := s.db.SelectContext(ctx, &orders,
		"SELECT "+orderColumns+" FROM orders ORDER BY created_at DESC")
	return orders, err
}

// TransitionOrder moves an order to next under a row lock. Moving into
// cancelled restores every line item's stock in the same transaction.
// Setting the current status again is a no-op.
func (s *Store) TransitionOrder(ctx context.Context, id string, next models.OrderStatus, skipMissing bool) (*OrderTransition, error) {
	result := &OrderTransition{}

	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var order models.Order
		err := tx.GetContext(ctx, &order,
			"SELECT "+orderColumns+" FROM orders WHERE id = $1 FOR UPDATE", id)
		if errors.Is(err, sql.ErrNoRows) {
			return models.NotFoundf("order %s", id)
		}
		if err != nil {
			return err
		}

		result.From = order.Status
		result.Order = &order

		if order.Status == next {
			return nil
		}
		if !order.Status.CanTransitionTo(next) {
			return fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, order.Status, next)
		}

		if next == models.OrderStatusCancelled {
			ids, qty := order.Items.Quantities()
			levels, err := lockLevels(ctx, tx, ids)
			if err != nil {
				return err
			}

			changes, missing, err := inventory.Restore(levels, ids, qty, skipMissing)
			if err != nil {
				return err
			}
			if err := applyChanges(ctx, tx, changes); err != nil {
				return err
			}
			result.Restored = changes
			result.Skipped = missing
		}

		var updated models.Order
		err = tx.GetContext(ctx, &updated,
			"UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2 RETURNING "+orderColumns,
			next, id)
		if err != nil {
			return fmt.Errorf("failed to update order status: %w", err)
		}

		result.Order = &updated
		result.Changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ArchiveOrder moves a terminal order into orders_history and removes it from
// the live table within one transaction.
func (s *Store) ArchiveOrder(ctx context.Context, id string) (*models.ArchivedOrder, error) {
	archived := &models.ArchivedOrder{}

	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &archived.Order,
			"SELECT "+orderColumns+" FROM orders WHERE id = $1 FOR UPDATE", id)
		if errors.Is(err, sql.ErrNoRows) {
			return models.NotFoundf("order %s", id)
		}
		if err != nil {
			return err
		}

		if !archived.Status.Terminal() {
			return fmt.Errorf("%w: order %s is %s", models.ErrInvalidTransition, id, archived.Status)
		}

		err = tx.QueryRowxContext(ctx,
			"INSERT INTO orders_history ("+orderColumns+") SELECT "+orderColumns+" FROM orders WHERE id = $1 RETURNING archived_at",
			id).Scan(&archived.ArchivedAt)
		if err != nil {
			return fmt.Errorf("failed to copy order to history: %w", err)
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM orders WHERE id = $1", id); err != nil {
			return fmt.Errorf("failed to delete archived order: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return archived, nil
}

// GetArchivedOrder retrieves an order from history
func (s *Store) GetArchivedOrder(ctx context.Context, id string) (*models.ArchivedOrder, error) {
	archived := &models.ArchivedOrder{}
	err := s.db.GetContext(ctx, archived,
		"SELECT "+orderColumns+", archived_at FROM orders_history WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NotFoundf("archived order %s", id)
	}
	if err != nil {
		return nil, err
	}
	return archived, nil
}

// ListOrderHistory retrieves archived orders, most recently archived first
func (s *Store) ListOrderHistory(ctx context.Context) ([]models.ArchivedOrder, error) {
	orders := []models.ArchivedOrder{}
	err := s.db.SelectContext(ctx, &orders,
		"SELECT "+orderColumns+", archived_at FROM orders_history ORDER BY archived_at DESC")
	return orders, err
}
