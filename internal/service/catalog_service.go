package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"storefront/internal/models"
	"storefront/internal/redisclient"
	"storefront/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CatalogService handles product business logic
type CatalogService struct {
	products ProductRepository
	cache    *redisclient.Client
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewCatalogService creates a new catalog service. cache may be nil.
func NewCatalogService(products ProductRepository, cache *redisclient.Client, cacheTTL time.Duration) *CatalogService {
	return &CatalogService{
		products: products,
		cache:    cache,
		cacheTTL: cacheTTL,
		logger:   util.GetLogger(),
	}
}

// CreateProductRequest represents a request to create a product
type CreateProductRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Image       string          `json:"image"`
	Images      []string        `json:"images"`
	Category    string          `json:"category"`
	Brand       string          `json:"brand"`
	Stock       int             `json:"stock"`
	Available   *bool           `json:"available"`
}

func (r *CreateProductRequest) validate() error {
	r.Name = strings.TrimSpace(r.Name)
	switch {
	case r.Name == "":
		return models.Validationf("name is required")
	case !models.ValidMoney(r.Price):
		return models.Validationf("price must be non-negative with at most %d decimals", models.MoneyScale)
	case strings.TrimSpace(r.Image) == "":
		return models.Validationf("image is required")
	case strings.TrimSpace(r.Category) == "":
		return models.Validationf("category is required")
	}
	return nil
}

// ListProducts returns the catalog, served from cache when possible
func (s *CatalogService) ListProducts(ctx context.Context, filter models.ProductFilter) ([]models.Product, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.ListProducts")
	defer span.End()

	key := productsCacheKey(filter)
	var products []models.Product
	if s.cacheGet(ctx, key, &products) {
		return products, nil
	}

	products, err := s.products.ListProducts(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}

	s.cacheSet(ctx, key, products)
	return products, nil
}

// GetProduct retrieves a product by ID
func (s *CatalogService) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.GetProduct")
	defer span.End()

	return s.products.GetProduct(ctx, id)
}

// CreateProduct validates and stores a new product
func (s *CatalogService) CreateProduct(ctx context.Context, req *CreateProductRequest) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.CreateProduct")
	defer span.End()

	if err := req.validate(); err != nil {
		return nil, err
	}

	product := &models.Product{
		ID:          uuid.New().String(),
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Image:       req.Image,
		Images:      req.Images,
		Category:    req.Category,
		Brand:       req.Brand,
	}
	product.SetStock(req.Stock)
	if req.Available != nil {
		product.Available = *req.Available && product.Stock > 0
	}

	if err := s.products.CreateProduct(ctx, product); err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}

	s.logger.Info("Product created",
		zap.String("product_id", product.ID),
		zap.Int("stock", product.Stock))
	s.invalidate(ctx)
	return product, nil
}

// UpdateProduct applies a partial update
func (s *CatalogService) UpdateProduct(ctx context.Context, id string, patch models.ProductPatch) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.UpdateProduct")
	defer span.End()

	if id == "" {
		return nil, models.Validationf("product id is required")
	}
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		return nil, models.Validationf("name must not be empty")
	}
	if patch.Price != nil && !models.ValidMoney(*patch.Price) {
		return nil, models.Validationf("price must be non-negative with at most %d decimals", models.MoneyScale)
	}

	product, err := s.products.UpdateProduct(ctx, id, patch)
	if err != nil {
		return nil, err
	}

	if patch.Stock != nil {
		s.logger.Info("Product stock set",
			zap.String("product_id", id),
			zap.Int("stock", product.Stock),
			zap.Bool("available", product.Available))
	}
	s.invalidate(ctx)
	return product, nil
}

// SetAvailability sets availability explicitly, or flips it when value is nil
func (s *CatalogService) SetAvailability(ctx context.Context, id string, value *bool) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.SetAvailability")
	defer span.End()

	product, err := s.products.ToggleAvailability(ctx, id, value)
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx)
	return product, nil
}

// DeleteProduct hard-deletes a product
func (s *CatalogService) DeleteProduct(ctx context.Context, id string) error {
	ctx, span := util.StartSpan(ctx, "CatalogService.DeleteProduct")
	defer span.End()

	if strings.TrimSpace(id) == "" {
		return models.Validationf("product id is required")
	}
	if err := s.products.DeleteProduct(ctx, id); err != nil {
		return err
	}

	s.logger.Info("Product deleted", zap.String("product_id", id))
	s.invalidate(ctx)
	return nil
}

func productsCacheKey(filter models.ProductFilter) string {
	available := "any"
	if filter.Available != nil {
		available = strconv.FormatBool(*filter.Available)
	}
	return fmt.Sprintf("products:%s:%s:%s", filter.Category, filter.Brand, available)
}

func (s *CatalogService) cacheGet(ctx context.Context, key string, dest interface{}) bool {
	return cacheGet(ctx, s.cache, s.logger, key, dest)
}

func (s *CatalogService) cacheSet(ctx context.Context, key string, value interface{}) {
	cacheSet(ctx, s.cache, s.logger, key, value, s.cacheTTL)
}

func (s *CatalogService) invalidate(ctx context.Context) {
	invalidateCatalog(ctx, s.cache, s.logger)
}

func cacheGet(ctx context.Context, cache *redisclient.Client, logger *zap.Logger, key string, dest interface{}) bool {
	if cache == nil {
		return false
	}
	hit, err := cache.GetCached(ctx, key, dest)
	if err != nil {
		logger.Warn("Catalog cache read failed", zap.String("key", key), zap.Error(err))
		return false
	}
	if hit {
		util.CatalogCacheTotal.WithLabelValues("hit").Inc()
	} else {
		util.CatalogCacheTotal.WithLabelValues("miss").Inc()
	}
	return hit
}

func cacheSet(ctx context.Context, cache *redisclient.Client, logger *zap.Logger, key string, value interface{}, ttl time.Duration) {
	if cache == nil || ttl <= 0 {
		return
	}
	if err := cache.SetCached(ctx, key, value, ttl); err != nil {
		logger.Warn("Catalog cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func invalidateCatalog(ctx context.Context, cache *redisclient.Client, logger *zap.Logger) {
	if cache == nil {
		return
	}
	if err := cache.InvalidateCatalog(ctx); err != nil {
		logger.Warn("Catalog cache invalidation failed", zap.Error(err))
	}
}
