package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"storefront/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

//go:embed schema.sql
var schema string

// uniqueViolation is the PostgreSQL SQLSTATE for unique_violation.
const uniqueViolation = "23505"

const productColumns = `id, name, description, price, image, images, category, brand, stock, available, created_at, updated_at`

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// NewFromDB wraps an existing connection.
func NewFromDB(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate applies the schema. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// withTx runs fn inside a transaction, committing only if fn succeeds.
func (s *Store) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// GetProduct retrieves a product by ID
func (s *Store) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product,
		"SELECT "+productColumns+" FROM products WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NotFoundf("product %s", id)
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// ListProducts retrieves products, newest first
func (s *Store) ListProducts(ctx context.Context, filter models.ProductFilter) ([]models.Product, error) {
	var (
		conds []string
		args  []interface{}
	)
	if filter.Category != "" {
		args = append(args, filter.Category)
		conds = append(conds, fmt.Sprintf("category = $%d", len(args)))
	}
	if filter.Brand != "" {
		args = append(args, filter.Brand)
		conds = append(conds, fmt.Sprintf("brand = $%d", len(args)))
	}
	if filter.Available != nil {
		args = append(args, *filter.Available)
		conds = append(conds, fmt.Sprintf("available = $%d", len(args)))
	}

	query := "SELECT " + productColumns + " FROM products"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC"

	products := []models.Product{}
	err := s.db.SelectContext(ctx, &products, query, args...)
	return products, err
}

// GetProductsByIDs retrieves the products that still exist among ids
func (s *Store) GetProductsByIDs(ctx context.Context, ids []string) ([]models.Product, error) {
	products := []models.Product{}
	if len(ids) == 0 {
		return products, nil
	}

	err := s.db.SelectContext(ctx, &products,
		"SELECT "+productColumns+" FROM products WHERE id = ANY($1)", pq.Array(ids))
	return products, err
}

// ListLowStock retrieves products at or below the threshold, lowest first
func (s *Store) ListLowStock(ctx context.Context, threshold int) ([]models.Product, error) {
	products := []models.Product{}
	err := s.db.SelectContext(ctx, &products,
		"SELECT "+productColumns+" FROM products WHERE stock <= $1 ORDER BY stock, name", threshold)
	return products, err
}

// CreateProduct inserts a product
func (s *Store) CreateProduct(ctx context.Context, p *models.Product) error {
	if p.Images == nil {
		p.Images = pq.StringArray{}
	}

	query := `
		INSERT INTO products (id, name, description, price, image, images, category, brand, stock, available)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`

	return s.db.QueryRowxContext(ctx, query,
		p.ID, p.Name, p.Description, p.Price, p.Image, p.Images,
		p.Category, p.Brand, p.Stock, p.Available,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
}

// UpdateProduct applies a partial update in a single statement so concurrent
// stock reservations are never overwritten with stale values.
func (s *Store) UpdateProduct(ctx context.Context, id string, patch models.ProductPatch) (*models.Product, error) {
	var (
		sets []string
		args []interface{}
	)
	set := func(expr string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf(expr, len(args)))
	}

	if patch.Name != nil {
		set("name = $%d", *patch.Name)
	}
	if patch.Description != nil {
		set("description = $%d", *patch.Description)
	}
	if patch.Price != nil {
		set("price = $%d", *patch.Price)
	}
	if patch.Image != nil {
		set("image = $%d", *patch.Image)
	}
	if patch.Images != nil {
		set("images = $%d", pq.StringArray(*patch.Images))
	}
	if patch.Category != nil {
		set("category = $%d", *patch.Category)
	}
	if patch.Brand != nil {
		set("brand = $%d", *patch.Brand)
	}

	switch {
	case patch.Stock != nil:
		stock := *patch.Stock
		if stock < 0 {
			stock = 0
		}
		available := stock > 0
		if patch.Available != nil {
			available = *patch.Available && stock > 0
		}
		set("stock = $%d", stock)
		set("available = $%d", available)
	case patch.Available != nil:
		set("available = ($%d AND stock > 0)", *patch.Available)
	}

	if len(sets) == 0 {
		return s.GetProduct(ctx, id)
	}

	args = append(args, id)
	query := fmt.Sprintf(
		"UPDATE products SET %s, updated_at = NOW() WHERE id = $%d RETURNING %s",
		strings.Join(sets, ", "), len(args), productColumns)

	var product models.Product
	err := s.db.GetContext(ctx, &product, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NotFoundf("product %s", id)
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// ToggleAvailability sets availability explicitly, or flips it when value is
// nil. A product without stock always stays unavailable.
func (s *Store) ToggleAvailability(ctx context.Context, id string, value *bool) (*models.Product, error) {
	var (
		product models.Product
		err     error
	)
	if value != nil {
		err = s.db.GetContext(ctx, &product,
			"UPDATE products SET available = ($1 AND stock > 0), updated_at = NOW() WHERE id = $2 RETURNING "+productColumns,
			*value, id)
	} else {
		err = s.db.GetContext(ctx, &product,
			"UPDATE products SET available = (NOT available AND stock > 0), updated_at = NOW() WHERE id = $1 RETURNING "+productColumns,
			id)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NotFoundf("product %s", id)
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// DeleteProduct hard-deletes a product
func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM products WHERE id = $1", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.NotFoundf("product %s", id)
	}
	return nil
}

// IsEventProcessed checks if an event has been processed
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, err
}

// MarkEventProcessed marks an event as processed
func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	return err
}
