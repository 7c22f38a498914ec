package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"storefront/internal/models"
	"storefront/internal/redisclient"
	"storefront/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TaxonomyService manages categories and brands. Names are unique without
// regard to case.
type TaxonomyService struct {
	repo     TaxonomyRepository
	cache    *redisclient.Client
	cacheTTL time.Duration
	logger   *zap.Logger
}

func NewTaxonomyService(repo TaxonomyRepository, cache *redisclient.Client, cacheTTL time.Duration) *TaxonomyService {
	return &TaxonomyService{
		repo:     repo,
		cache:    cache,
		cacheTTL: cacheTTL,
		logger:   util.GetLogger(),
	}
}

func (s *TaxonomyService) ListCategories(ctx context.Context) ([]models.Category, error) {
	ctx, span := util.StartSpan(ctx, "TaxonomyService.ListCategories")
	defer span.End()

	var categories []models.Category
	if cacheGet(ctx, s.cache, s.logger, "categories", &categories) {
		return categories, nil
	}

	categories, err := s.repo.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	cacheSet(ctx, s.cache, s.logger, "categories", categories, s.cacheTTL)
	return categories, nil
}

// CreateCategory stores a category whose id is the slug of its label
func (s *TaxonomyService) CreateCategory(ctx context.Context, label string) (*models.Category, error) {
	ctx, span := util.StartSpan(ctx, "TaxonomyService.CreateCategory")
	defer span.End()

	label = strings.TrimSpace(label)
	id := models.Slugify(label)
	if id == "" {
		return nil, models.Validationf("category label is required")
	}

	existing, err := s.repo.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	for _, c := range existing {
		if c.ID == id || strings.EqualFold(c.Label, label) {
			return nil, fmt.Errorf("%w: category %q", models.ErrDuplicateName, label)
		}
	}

	category := &models.Category{ID: id, Label: label}
	if err := s.repo.CreateCategory(ctx, category); err != nil {
		return nil, err
	}

	s.logger.Info("Category created", zap.String("category_id", id))
	invalidateCatalog(ctx, s.cache, s.logger)
	return category, nil
}

// UpdateCategory relabels a category, keeping its id
func (s *TaxonomyService) UpdateCategory(ctx context.Context, id, label string) (*models.Category, error) {
	ctx, span := util.StartSpan(ctx, "TaxonomyService.UpdateCategory")
	defer span.End()

	label = strings.TrimSpace(label)
	if label == "" {
		return nil, models.Validationf("category label is required")
	}

	existing, err := s.repo.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	for _, c := range existing {
		if c.ID != id && strings.EqualFold(c.Label, label) {
			return nil, fmt.Errorf("%w: category %q", models.ErrDuplicateName, label)
		}
	}

	category, err := s.repo.UpdateCategory(ctx, id, label)
	if err != nil {
		return nil, err
	}
	invalidateCatalog(ctx, s.cache, s.logger)
	return category, nil
}

func (s *TaxonomyService) DeleteCategory(ctx context.Context, id string) error {
	ctx, span := util.StartSpan(ctx, "TaxonomyService.DeleteCategory")
	defer span.End()

	if err := s.repo.DeleteCategory(ctx, id); err != nil {
		return err
	}
	invalidateCatalog(ctx, s.cache, s.logger)
	return nil
}

func (s *TaxonomyService) ListBrands(ctx context.Context) ([]models.Brand, error) {
	ctx, span := util.StartSpan(ctx, "TaxonomyService.ListBrands")
	defer span.End()

	var brands []models.Brand
	if cacheGet(ctx, s.cache, s.logger, "brands", &brands) {
		return brands, nil
	}

	brands, err := s.repo.ListBrands(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list brands: %w", err)
	}
	cacheSet(ctx, s.cache, s.logger, "brands", brands, s.cacheTTL)
	return brands, nil
}

func (s *TaxonomyService) CreateBrand(ctx context.Context, name string) (*models.Brand, error) {
	ctx, span := util.StartSpan(ctx, "TaxonomyService.CreateBrand")
	defer span.End()

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, models.Validationf("brand name is required")
	}
	if err := s.ensureUniqueBrand(ctx, "", name); err != nil {
		return nil, err
	}

	brand := &models.Brand{ID: uuid.New().String(), Name: name}
	if err := s.repo.CreateBrand(ctx, brand); err != nil {
		return nil, err
	}

	s.logger.Info("Brand created", zap.String("brand_id", brand.ID))
	invalidateCatalog(ctx, s.cache, s.logger)
	return brand, nil
}

func (s *TaxonomyService) UpdateBrand(ctx context.Context, id, name string) (*models.Brand, error) {
	ctx, span := util.StartSpan(ctx, "TaxonomyService.UpdateBrand")
	defer span.End()

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, models.Validationf("brand name is required")
	}
	if err := s.ensureUniqueBrand(ctx, id, name); err != nil {
		return nil, err
	}

	brand, err := s.repo.UpdateBrand(ctx, id, name)
	if err != nil {
		return nil, err
	}
	invalidateCatalog(ctx, s.cache, s.logger)
	return brand, nil
}

func (s *TaxonomyService) DeleteBrand(ctx context.Context, id string) error {
	ctx, span := util.StartSpan(ctx, "TaxonomyService.DeleteBrand")
	defer span.End()

	if err := s.repo.DeleteBrand(ctx, id); err != nil {
		return err
	}
	invalidateCatalog(ctx, s.cache, s.logger)
	return nil
}

func (s *TaxonomyService) ensureUniqueBrand(ctx context.Context, id, name string) error {
	existing, err := s.repo.ListBrands(ctx)
	if err != nil {
		return err
	}
	for _, b := range existing {
		if b.ID != id && strings.EqualFold(b.Name, name) {
			return fmt.Errorf("%w: brand %q", models.ErrDuplicateName, name)
		}
	}
	return nil
}
