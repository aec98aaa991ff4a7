package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/anurag-sv/bazaar-api/internal/common"
	"github.com/anurag-sv/bazaar-api/internal/store"
)

// Querier is the slice of the store the catalog service needs.
type Querier interface {
	ListProducts(ctx context.Context, f store.ProductFilter) ([]store.Product, int64, error)
	GetProduct(ctx context.Context, id uuid.UUID) (store.Product, error)
	GetProductBySlug(ctx context.Context, slug string) (store.Product, error)
	CreateProduct(ctx context.Context, p store.CreateProductParams) (store.Product, error)
	UpdateProduct(ctx context.Context, id uuid.UUID, p store.CreateProductParams) (store.Product, error)
	DeleteProduct(ctx context.Context, id uuid.UUID) error
	ListBrands(ctx context.Context) ([]store.Brand, error)
	CreateBrand(ctx context.Context, name, slug string) (store.Brand, error)
	DeleteBrand(ctx context.Context, id uuid.UUID) error
	ListCategories(ctx context.Context) ([]store.Category, error)
	CreateCategory(ctx context.Context, name, slug string) (store.Category, error)
	DeleteCategory(ctx context.Context, id uuid.UUID) error
}

// Service serves the public catalog with a versioned read-through cache.
// Admin writes bump the version key, which implicitly drops every cached
// page without scanning for keys.
type Service struct {
	Q     Querier
	Cache *redis.Client
	TTL   time.Duration
	Log   zerolog.Logger
}

const versionKey = "catalog:ver"

// ListResult is a cached page of products.
type ListResult struct {
	Products []store.Product `json:"products"`
	Total    int64           `json:"total"`
}

// List returns a filtered page of active products, served from cache when
// possible. Cache failures degrade to a direct database read.
func (s *Service) List(ctx context.Context, f store.ProductFilter) (ListResult, error) {
	f.ActiveOnly = true
	key, err := s.cacheKey(ctx, f)
	if err == nil {
		if raw, getErr := s.Cache.Get(ctx, key).Bytes(); getErr == nil {
			var cached ListResult
			if json.Unmarshal(raw, &cached) == nil {
				return cached, nil
			}
		}
	}

	products, total, err := s.Q.ListProducts(ctx, f)
	if err != nil {
		return ListResult{}, fmt.Errorf("list products: %w", err)
	}
	res := ListResult{Products: products, Total: total}
	if key != "" {
		if raw, mErr := json.Marshal(res); mErr == nil {
			if setErr := s.Cache.Set(ctx, key, raw, s.TTL).Err(); setErr != nil {
				s.Log.Debug().Err(setErr).Msg("catalog cache set failed")
			}
		}
	}
	return res, nil
}

func (s *Service) cacheKey(ctx context.Context, f store.ProductFilter) (string, error) {
	if s.Cache == nil {
		return "", errors.New("no cache")
	}
	ver, err := s.Cache.Get(ctx, versionKey).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", err
	}
	cat, brand := "", ""
	if f.CategoryID != nil {
		cat = f.CategoryID.String()
	}
	if f.BrandID != nil {
		brand = f.BrandID.String()
	}
	return fmt.Sprintf("catalog:%d:list:q=%s:c=%s:b=%s:l=%d:o=%d",
		ver, f.Search, cat, brand, f.Limit, f.Offset), nil
}

// invalidate bumps the cache version so stale pages stop matching.
func (s *Service) invalidate(ctx context.Context) {
	if s.Cache == nil {
		return
	}
	if err := s.Cache.Incr(ctx, versionKey).Err(); err != nil {
		s.Log.Warn().Err(err).Msg("catalog cache invalidation failed")
	}
}

// GetBySlug returns one active product.
func (s *Service) GetBySlug(ctx context.Context, slug string) (store.Product, error) {
	p, err := s.Q.GetProductBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Product{}, productNotFound(err)
		}
		return store.Product{}, err
	}
	return p, nil
}

// Get returns one product regardless of active state, for admin use.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (store.Product, error) {
	p, err := s.Q.GetProduct(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Product{}, productNotFound(err)
		}
		return store.Product{}, err
	}
	return p, nil
}

// CreateProduct inserts a product and invalidates cached pages.
func (s *Service) CreateProduct(ctx context.Context, p store.CreateProductParams) (store.Product, error) {
	created, err := s.Q.CreateProduct(ctx, p)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return store.Product{}, slugTaken(err)
		}
		return store.Product{}, err
	}
	s.invalidate(ctx)
	s.Log.Info().Str("product_id", created.ID.String()).Str("slug", created.Slug).Msg("product created")
	return created, nil
}

// UpdateProduct overwrites a product and invalidates cached pages.
func (s *Service) UpdateProduct(ctx context.Context, id uuid.UUID, p store.CreateProductParams) (store.Product, error) {
	updated, err := s.Q.UpdateProduct(ctx, id, p)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Product{}, productNotFound(err)
		}
		if errors.Is(err, store.ErrConflict) {
			return store.Product{}, slugTaken(err)
		}
		return store.Product{}, err
	}
	s.invalidate(ctx)
	return updated, nil
}

// DeleteProduct hides a product from the storefront.
func (s *Service) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	if err := s.Q.DeleteProduct(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return productNotFound(err)
		}
		return err
	}
	s.invalidate(ctx)
	return nil
}

// Brands lists all brands.
func (s *Service) Brands(ctx context.Context) ([]store.Brand, error) {
	return s.Q.ListBrands(ctx)
}

// CreateBrand inserts a brand.
func (s *Service) CreateBrand(ctx context.Context, name, slug string) (store.Brand, error) {
	b, err := s.Q.CreateBrand(ctx, name, slug)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return store.Brand{}, slugTaken(err)
		}
		return store.Brand{}, err
	}
	s.invalidate(ctx)
	return b, nil
}

// DeleteBrand removes a brand.
func (s *Service) DeleteBrand(ctx context.Context, id uuid.UUID) error {
	if err := s.Q.DeleteBrand(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return common.NewAppError("BRAND_NOT_FOUND", "Brand not found", http.StatusNotFound, err)
		}
		return err
	}
	s.invalidate(ctx)
	return nil
}

// Categories lists all categories.
func (s *Service) Categories(ctx context.Context) ([]store.Category, error) {
	return s.Q.ListCategories(ctx)
}

// CreateCategory inserts a category.
func (s *Service) CreateCategory(ctx context.Context, name, slug string) (store.Category, error) {
	c, err := s.Q.CreateCategory(ctx, name, slug)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return store.Category{}, slugTaken(err)
		}
		return store.Category{}, err
	}
	s.invalidate(ctx)
	return c, nil
}

// DeleteCategory removes a category.
func (s *Service) DeleteCategory(ctx context.Context, id uuid.UUID) error {
	if err := s.Q.DeleteCategory(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return common.NewAppError("CATEGORY_NOT_FOUND", "Category not found", http.StatusNotFound, err)
		}
		return err
	}
	s.invalidate(ctx)
	return nil
}

func productNotFound(err error) error {
	return common.NewAppError("PRODUCT_NOT_FOUND", "Product not found", http.StatusNotFound, err)
}

func slugTaken(err error) error {
	return common.NewAppError("SLUG_TAKEN", "Slug is already in use", http.StatusConflict, err)
}
