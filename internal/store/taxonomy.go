package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"storefront/internal/models"
)

// ListCategories retrieves categories in creation order
func (s *Store) ListCategories(ctx context.Context) ([]models.Category, error) {
	categories := []models.Category{}
	err := s.db.SelectContext(ctx, &categories,
		"SELECT id, label, created_at, updated_at FROM categories ORDER BY created_at ASC")
	return categories, err
}

// CreateCategory inserts a category
func (s *Store) CreateCategory(ctx context.Context, c *models.Category) error {
	err := s.db.QueryRowxContext(ctx,
		"INSERT INTO categories (id, label) VALUES ($1, $2) RETURNING created_at, updated_at",
		c.ID, c.Label,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: category %q", models.ErrDuplicateName, c.Label)
	}
	return err
}

// UpdateCategory relabels a category; its id is kept
func (s *Store) UpdateCategory(ctx context.Context, id, label string) (*models.Category, error) {
	var c models.Category
	err := s.db.GetContext(ctx, &c,
		"UPDATE categories SET label = $1, updated_at = NOW() WHERE id = $2 RETURNING id, label, created_at, updated_at",
		label, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NotFoundf("category %s", id)
	}
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("%w: category %q", models.ErrDuplicateName, label)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// DeleteCategory removes a category; products keep their reference
func (s *Store) DeleteCategory(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM categories WHERE id = $1", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.NotFoundf("category %s", id)
	}
	return nil
}

// ListBrands retrieves brands in creation order
func (s *Store) ListBrands(ctx context.Context) ([]models.Brand, error) {
	brands := []models.Brand{}
	err := s.db.SelectContext(ctx, &brands,
		"SELECT id, name, created_at, updated_at FROM brands ORDER BY created_at ASC")
	return brands, err
}

// CreateBrand inserts a brand
func (s *Store) CreateBrand(ctx context.Context, b *models.Brand) error {
	err := s.db.QueryRowxContext(ctx,
		"INSERT INTO brands (id, name) VALUES ($1, $2) RETURNING created_at, updated_at",
		b.ID, b.Name,
	).Scan(&b.CreatedAt, &b.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: brand %q", models.ErrDuplicateName, b.Name)
	}
	return err
}

// UpdateBrand renames a brand
func (s *Store) UpdateBrand(ctx context.Context, id, name string) (*models.Brand, error) {
	var b models.Brand
	err := s.db.GetContext(ctx, &b,
		"UPDATE brands SET name = $1, updated_at = NOW() WHERE id = $2 RETURNING id, name, created_at, updated_at",
		name, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NotFoundf("brand %s", id)
	}
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("%w: brand %q", models.ErrDuplicateName, name)
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// DeleteBrand removes a brand; products keep their reference
func (s *Store) DeleteBrand(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM brands WHERE id = $1", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.NotFoundf("brand %s", id)
	}
	return nil
}
