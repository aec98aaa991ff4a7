package coupon

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anurag-sv/bazaar-api/internal/common"
	"github.com/anurag-sv/bazaar-api/internal/store"
)

type fakeRegistry struct {
	coupons  map[string]store.Coupon
	products map[uuid.UUID]store.Product
	cart     *store.Cart
	lines    []store.CartItem
	redeemed map[string]int32
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{
		coupons:  map[string]store.Coupon{},
		products: map[uuid.UUID]store.Product{},
		redeemed: map[string]int32{},
	}
}

func (f *fakeRegistry) GetCouponByCode(_ context.Context, code string) (store.Coupon, error) {
	c, ok := f.coupons[code]
	if !ok {
		return store.Coupon{}, store.ErrNotFound
	}
	return c, nil
}

func (f *fakeRegistry) GetCoupon(_ context.Context, id uuid.UUID) (store.Coupon, error) {
	for _, c := range f.coupons {
		if c.ID == id {
			return c, nil
		}
	}
	return store.Coupon{}, store.ErrNotFound
}

func (f *fakeRegistry) ListCoupons(_ context.Context, _, _ int32) ([]store.Coupon, error) {
	var out []store.Coupon
	for _, c := range f.coupons {
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeRegistry) CreateCoupon(_ context.Context, p store.CouponParams) (store.Coupon, error) {
	if _, exists := f.coupons[p.Code]; exists {
		return store.Coupon{}, store.ErrConflict
	}
	c := store.Coupon{
		ID: uuid.New(), Code: p.Code, Type: p.Type, Value: p.Value,
		ApplicableProducts:   p.ApplicableProducts,
		ApplicableCategories: p.ApplicableCategories,
		ApplicableBrands:     p.ApplicableBrands,
		StartsAt:             p.StartsAt, ExpiresAt: p.ExpiresAt,
		UsageLimit: p.UsageLimit, PerUserLimit: p.PerUserLimit, Active: p.Active,
	}
	f.coupons[p.Code] = c
	return c, nil
}

func (f *fakeRegistry) UpdateCoupon(_ context.Context, id uuid.UUID, p store.CouponParams) (store.Coupon, error) {
	for code, c := range f.coupons {
		if c.ID == id {
			delete(f.coupons, code)
			c.Code = p.Code
			c.Type = p.Type
			c.Value = p.Value
			c.Active = p.Active
			f.coupons[p.Code] = c
			return c, nil
		}
	}
	return store.Coupon{}, store.ErrNotFound
}

func (f *fakeRegistry) DeleteCoupon(_ context.Context, id uuid.UUID) error {
	for code, c := range f.coupons {
		if c.ID == id {
			delete(f.coupons, code)
			return nil
		}
	}
	return store.ErrNotFound
}

func (f *fakeRegistry) CountRedemptionsByUser(_ context.Context, couponID, userID uuid.UUID) (int32, error) {
	return f.redeemed[couponID.String()+"|"+userID.String()], nil
}

func (f *fakeRegistry) GetCartByUser(_ context.Context, userID uuid.UUID) (store.Cart, error) {
	if f.cart != nil && f.cart.UserID == userID {
		return *f.cart, nil
	}
	return store.Cart{}, store.ErrNotFound
}

func (f *fakeRegistry) CartItems(_ context.Context, _ uuid.UUID) ([]store.CartItem, error) {
	return f.lines, nil
}

func (f *fakeRegistry) ActiveProductsByIDs(_ context.Context, ids []uuid.UUID) ([]store.Product, error) {
	var out []store.Product
	for _, id := range ids {
		if p, ok := f.products[id]; ok && p.IsActive {
			out = append(out, p)
		}
	}
	return out, nil
}

func seedCart(f *fakeRegistry, userID uuid.UUID, price float64, qty int32) store.Product {
	p := store.Product{ID: uuid.New(), Title: "Widget", Price: price, Stock: 100, IsActive: true}
	f.products[p.ID] = p
	if f.cart == nil {
		f.cart = &store.Cart{ID: uuid.New(), UserID: userID}
	}
	f.lines = append(f.lines, store.CartItem{
		ID: uuid.New(), CartID: f.cart.ID, ProductID: p.ID, Title: p.Title, Price: price, Qty: qty,
	})
	return p
}

func testService(f *fakeRegistry) *Service {
	return &Service{
		Q:   f,
		Now: func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) },
	}
}

func TestPreviewComputesDiscountAndTotals(t *testing.T) {
	f := newFakeRegistry()
	userID := uuid.New()
	seedCart(f, userID, 500, 2)
	f.coupons["SAVE10"] = store.Coupon{ID: uuid.New(), Code: "SAVE10", Type: TypePercentage, Value: 10, Active: true}

	res, err := testService(f).Preview(context.Background(), userID, " save10 ")
	require.NoError(t, err)
	assert.Equal(t, "SAVE10", res.Code)
	assert.Equal(t, float64(100), res.Discount)
	assert.Equal(t, float64(1000), res.Summary.Subtotal)
	assert.Equal(t, float64(1080), res.Summary.Total)
}

func TestPreviewEmptyCart(t *testing.T) {
	f := newFakeRegistry()
	userID := uuid.New()
	f.cart = &store.Cart{ID: uuid.New(), UserID: userID}

	_, err := testService(f).Preview(context.Background(), userID, "SAVE10")
	appErr, ok := common.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, "CART_EMPTY", appErr.Code)
}

func TestPreviewInvalidCode(t *testing.T) {
	f := newFakeRegistry()
	userID := uuid.New()
	seedCart(f, userID, 500, 1)

	_, err := testService(f).Preview(context.Background(), userID, "NOPE")
	appErr, ok := common.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, "COUPON_INVALID", appErr.Code)
	assert.Equal(t, "Invalid coupon code", appErr.Message)
}

func TestPreviewScopedCouponNoMatch(t *testing.T) {
	f := newFakeRegistry()
	userID := uuid.New()
	seedCart(f, userID, 500, 1)
	f.coupons["BRANDX"] = store.Coupon{
		ID: uuid.New(), Code: "BRANDX", Type: TypeFlat, Value: 50, Active: true,
		ApplicableBrands: []uuid.UUID{uuid.New()},
	}

	_, err := testService(f).Preview(context.Background(), userID, "BRANDX")
	appErr, ok := common.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, "Coupon not applicable to cart items", appErr.Message)
}

func TestPreviewDoesNotConsumeQuota(t *testing.T) {
	f := newFakeRegistry()
	userID := uuid.New()
	seedCart(f, userID, 500, 1)
	limit := int32(1)
	f.coupons["LAST"] = store.Coupon{
		ID: uuid.New(), Code: "LAST", Type: TypeFlat, Value: 50, Active: true, UsageLimit: &limit,
	}

	svc := testService(f)
	for i := 0; i < 3; i++ {
		_, err := svc.Preview(context.Background(), userID, "LAST")
		require.NoError(t, err)
	}
	assert.Equal(t, int32(0), f.coupons["LAST"].UsedCount)
}

func TestCreateRegistryRejectsOverHundredPercent(t *testing.T) {
	svc := testService(newFakeRegistry())
	_, err := svc.CreateRegistry(context.Background(), RegistryParams{
		Code: "BIG", Type: TypePercentage, Value: 150, Active: true,
	})
	appErr, ok := common.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, "VALIDATION", appErr.Code)
}

func TestCreateRegistryNormalizesCode(t *testing.T) {
	svc := testService(newFakeRegistry())
	c, err := svc.CreateRegistry(context.Background(), RegistryParams{
		Code: "  fresh50 ", Type: TypeFlat, Value: 50, Active: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "FRESH50", c.Code)
}

func TestCreateRegistryDuplicateCode(t *testing.T) {
	f := newFakeRegistry()
	svc := testService(f)
	_, err := svc.CreateRegistry(context.Background(), RegistryParams{
		Code: "DUP", Type: TypeFlat, Value: 50, Active: true,
	})
	require.NoError(t, err)
	_, err = svc.CreateRegistry(context.Background(), RegistryParams{
		Code: "DUP", Type: TypeFlat, Value: 60, Active: true,
	})
	appErr, ok := common.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, "COUPON_EXISTS", appErr.Code)
}

func TestCreateRegistryRejectsInvertedWindow(t *testing.T) {
	svc := testService(newFakeRegistry())
	start := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(-time.Hour)
	_, err := svc.CreateRegistry(context.Background(), RegistryParams{
		Code: "WINDOW", Type: TypeFlat, Value: 50, Active: true,
		StartsAt: &start, ExpiresAt: &end,
	})
	appErr, ok := common.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, "VALIDATION", appErr.Code)
}
