package coupon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/anurag-sv/bazaar-api/internal/common"
	"github.com/anurag-sv/bazaar-api/internal/pricing"
	"github.com/anurag-sv/bazaar-api/internal/store"
)

// FromStored converts a stored coupon into the engine's runtime rule.
func FromStored(c store.Coupon, perUserUsed int32) Rule {
	return Rule{
		Code:         c.Code,
		Type:         c.Type,
		Value:        c.Value,
		ProductIDs:   c.ApplicableProducts,
		CategoryIDs:  c.ApplicableCategories,
		BrandIDs:     c.ApplicableBrands,
		StartsAt:     c.StartsAt,
		ExpiresAt:    c.ExpiresAt,
		UsageLimit:   c.UsageLimit,
		UsedCount:    c.UsedCount,
		PerUserLimit: c.PerUserLimit,
		PerUserUsed:  perUserUsed,
		Active:       c.Active,
	}
}

// Querier is the slice of the store the coupon service needs.
type Querier interface {
	GetCouponByCode(ctx context.Context, code string) (store.Coupon, error)
	GetCoupon(ctx context.Context, id uuid.UUID) (store.Coupon, error)
	ListCoupons(ctx context.Context, limit, offset int32) ([]store.Coupon, error)
	CreateCoupon(ctx context.Context, p store.CouponParams) (store.Coupon, error)
	UpdateCoupon(ctx context.Context, id uuid.UUID, p store.CouponParams) (store.Coupon, error)
	DeleteCoupon(ctx context.Context, id uuid.UUID) error
	CountRedemptionsByUser(ctx context.Context, couponID, userID uuid.UUID) (int32, error)
	GetCartByUser(ctx context.Context, userID uuid.UUID) (store.Cart, error)
	CartItems(ctx context.Context, cartID uuid.UUID) ([]store.CartItem, error)
	ActiveProductsByIDs(ctx context.Context, ids []uuid.UUID) ([]store.Product, error)
}

// Service validates coupons against carts and manages the registry.
type Service struct {
	Q   Querier
	Log zerolog.Logger

	// Now is overridable in tests.
	Now func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// PreviewResult describes the effect of a coupon on the caller's cart
// without consuming any quota.
type PreviewResult struct {
	Code     string
	Type     string
	Discount float64
	Summary  pricing.Summary
}

// Preview resolves the coupon, checks it against the caller's current cart,
// and returns the totals the coupon would produce. Nothing is reserved; the
// authoritative check happens again at checkout.
func (s *Service) Preview(ctx context.Context, userID uuid.UUID, code string) (PreviewResult, error) {
	cart, err := s.Q.GetCartByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return PreviewResult{}, emptyCartErr()
		}
		return PreviewResult{}, fmt.Errorf("load cart: %w", err)
	}
	lines, err := s.Q.CartItems(ctx, cart.ID)
	if err != nil {
		return PreviewResult{}, fmt.Errorf("load cart items: %w", err)
	}
	if len(lines) == 0 {
		return PreviewResult{}, emptyCartErr()
	}

	c, err := s.Q.GetCouponByCode(ctx, NormalizeCode(code))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return PreviewResult{}, invalidErr(ErrInvalidCode)
		}
		return PreviewResult{}, fmt.Errorf("load coupon: %w", err)
	}
	var perUserUsed int32
	if c.PerUserLimit != nil {
		perUserUsed, err = s.Q.CountRedemptionsByUser(ctx, c.ID, userID)
		if err != nil {
			return PreviewResult{}, fmt.Errorf("count redemptions: %w", err)
		}
	}
	rule := FromStored(c, perUserUsed)
	if err := rule.Validate(s.now()); err != nil {
		return PreviewResult{}, invalidErr(err)
	}

	items, priceLines, err := s.cartScope(ctx, lines)
	if err != nil {
		return PreviewResult{}, err
	}
	applicable := ApplicableSubtotal(items, rule)
	if applicable <= 0 {
		return PreviewResult{}, invalidErr(ErrNotApplicable)
	}
	discount := Compute(applicable, rule)
	return PreviewResult{
		Code:     c.Code,
		Type:     c.Type,
		Discount: discount,
		Summary:  pricing.Compute(priceLines, discount),
	}, nil
}

// cartScope joins cart lines with product category and brand so scoped rules
// can match. Lines whose product vanished since being added are skipped.
func (s *Service) cartScope(ctx context.Context, lines []store.CartItem) ([]Item, []pricing.Item, error) {
	ids := make([]uuid.UUID, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ProductID)
	}
	products, err := s.Q.ActiveProductsByIDs(ctx, ids)
	if err != nil {
		return nil, nil, fmt.Errorf("load products: %w", err)
	}
	byID := make(map[uuid.UUID]store.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	var (
		items      []Item
		priceLines []pricing.Item
	)
	for _, l := range lines {
		p, ok := byID[l.ProductID]
		if !ok {
			continue
		}
		items = append(items, Item{
			ProductID:  p.ID,
			CategoryID: p.CategoryID,
			BrandID:    p.BrandID,
			Price:      l.Price,
			Qty:        int(l.Qty),
		})
		priceLines = append(priceLines, pricing.Item{Qty: int(l.Qty), UnitPrice: l.Price})
	}
	return items, priceLines, nil
}

// RegistryParams carries validated admin input for coupon writes.
type RegistryParams struct {
	Code                 string
	Type                 string
	Value                float64
	ApplicableProducts   []uuid.UUID
	ApplicableCategories []uuid.UUID
	ApplicableBrands     []uuid.UUID
	StartsAt             *time.Time
	ExpiresAt            *time.Time
	UsageLimit           *int32
	PerUserLimit         *int32
	Active               bool
}

func (p RegistryParams) check() error {
	switch p.Type {
	case TypePercentage:
		if p.Value <= 0 || p.Value > 100 {
			return common.NewAppError("VALIDATION",
				"Percentage value must be between 0 and 100", http.StatusBadRequest, nil)
		}
	case TypeFlat:
		if p.Value <= 0 {
			return common.NewAppError("VALIDATION",
				"Flat value must be positive", http.StatusBadRequest, nil)
		}
	default:
		return common.NewAppError("VALIDATION",
			"Coupon type must be percentage or flat", http.StatusBadRequest, nil)
	}
	if NormalizeCode(p.Code) == "" {
		return common.NewAppError("VALIDATION", "Coupon code is required", http.StatusBadRequest, nil)
	}
	if p.StartsAt != nil && p.ExpiresAt != nil && !p.StartsAt.Before(*p.ExpiresAt) {
		return common.NewAppError("VALIDATION",
			"Coupon start must precede expiry", http.StatusBadRequest, nil)
	}
	return nil
}

func (p RegistryParams) stored() store.CouponParams {
	return store.CouponParams{
		Code:                 NormalizeCode(p.Code),
		Type:                 p.Type,
		Value:                p.Value,
		ApplicableProducts:   p.ApplicableProducts,
		ApplicableCategories: p.ApplicableCategories,
		ApplicableBrands:     p.ApplicableBrands,
		StartsAt:             p.StartsAt,
		ExpiresAt:            p.ExpiresAt,
		UsageLimit:           p.UsageLimit,
		PerUserLimit:         p.PerUserLimit,
		Active:               p.Active,
	}
}

// CreateRegistry inserts a new coupon.
func (s *Service) CreateRegistry(ctx context.Context, p RegistryParams) (store.Coupon, error) {
	if err := p.check(); err != nil {
		return store.Coupon{}, err
	}
	c, err := s.Q.CreateCoupon(ctx, p.stored())
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return store.Coupon{}, common.NewAppError("COUPON_EXISTS",
				"A coupon with this code already exists", http.StatusConflict, err)
		}
		return store.Coupon{}, err
	}
	s.Log.Info().Str("code", c.Code).Msg("coupon created")
	return c, nil
}

// UpdateRegistry overwrites a coupon's writable fields.
func (s *Service) UpdateRegistry(ctx context.Context, id uuid.UUID, p RegistryParams) (store.Coupon, error) {
	if err := p.check(); err != nil {
		return store.Coupon{}, err
	}
	c, err := s.Q.UpdateCoupon(ctx, id, p.stored())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Coupon{}, notFoundErr(err)
		}
		if errors.Is(err, store.ErrConflict) {
			return store.Coupon{}, common.NewAppError("COUPON_EXISTS",
				"A coupon with this code already exists", http.StatusConflict, err)
		}
		return store.Coupon{}, err
	}
	return c, nil
}

// DeleteRegistry removes a coupon.
func (s *Service) DeleteRegistry(ctx context.Context, id uuid.UUID) error {
	if err := s.Q.DeleteCoupon(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return notFoundErr(err)
		}
		return err
	}
	return nil
}

// ListRegistry returns a page of coupons.
func (s *Service) ListRegistry(ctx context.Context, limit, offset int32) ([]store.Coupon, error) {
	return s.Q.ListCoupons(ctx, limit, offset)
}

func invalidErr(err error) error {
	return common.NewAppError("COUPON_INVALID", err.Error(), http.StatusBadRequest, err)
}

func notFoundErr(err error) error {
	return common.NewAppError("COUPON_NOT_FOUND", "Coupon not found", http.StatusNotFound, err)
}

func emptyCartErr() error {
	return common.NewAppError("CART_EMPTY", "Cart is empty", http.StatusBadRequest, nil)
}
