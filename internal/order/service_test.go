package order

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

type fakeStore struct {
	products map[uuid.UUID]store.Product
	coupons  map[string]store.Coupon
	redeemed map[string]int32

	orders      []store.Order
	orderItems  map[uuid.UUID][]store.OrderItem
	cart        *store.Cart
	cartCleared bool

	reserveDenied bool
	reserveCalls  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		products:   map[uuid.UUID]store.Product{},
		coupons:    map[string]store.Coupon{},
		redeemed:   map[string]int32{},
		orderItems: map[uuid.UUID][]store.OrderItem{},
	}
}

func (f *fakeStore) LockActiveProductsByIDs(_ context.Context, ids []uuid.UUID) ([]store.Product, error) {
	var out []store.Product
	for _, id := range ids {
		if p, ok := f.products[id]; ok && p.IsActive {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeStore) DecrementStock(_ context.Context, id uuid.UUID, qty int32) (bool, error) {
	p, ok := f.products[id]
	if !ok || p.Stock < qty {
		return false, nil
	}
	p.Stock -= qty
	f.products[id] = p
	return true, nil
}

func (f *fakeStore) RestoreStock(_ context.Context, id uuid.UUID, qty int32) error {
	p := f.products[id]
	p.Stock += qty
	f.products[id] = p
	return nil
}

func (f *fakeStore) GetCouponByCode(_ context.Context, code string) (store.Coupon, error) {
	c, ok := f.coupons[code]
	if !ok {
		return store.Coupon{}, store.ErrNotFound
	}
	return c, nil
}

func (f *fakeStore) CountRedemptionsByUser(_ context.Context, couponID, userID uuid.UUID) (int32, error) {
	return f.redeemed[couponID.String()+"|"+userID.String()], nil
}

func (f *fakeStore) ReserveCouponUsage(_ context.Context, id uuid.UUID) (bool, error) {
	f.reserveCalls++
	if f.reserveDenied {
		return false, nil
	}
	for code, c := range f.coupons {
		if c.ID == id {
			c.UsedCount++
			f.coupons[code] = c
		}
	}
	return true, nil
}

func (f *fakeStore) InsertRedemption(_ context.Context, couponID, userID, _ uuid.UUID) error {
	f.redeemed[couponID.String()+"|"+userID.String()]++
	return nil
}

func (f *fakeStore) InsertOrder(_ context.Context, o store.Order) (store.Order, error) {
	o.ID = uuid.New()
	o.CreatedAt = time.Now()
	f.orders = append(f.orders, o)
	return o, nil
}

func (f *fakeStore) InsertOrderItems(_ context.Context, orderID uuid.UUID, items []store.OrderItem) error {
	f.orderItems[orderID] = append(f.orderItems[orderID], items...)
	return nil
}

func (f *fakeStore) GetOrderForUser(_ context.Context, orderID, userID uuid.UUID) (store.Order, error) {
	for _, o := range f.orders {
		if o.ID == orderID && o.UserID == userID {
			return o, nil
		}
	}
	return store.Order{}, store.ErrNotFound
}

func (f *fakeStore) GetOrder(_ context.Context, orderID uuid.UUID) (store.Order, error) {
	for _, o := range f.orders {
		if o.ID == orderID {
			return o, nil
		}
	}
	return store.Order{}, store.ErrNotFound
}

func (f *fakeStore) UpdatePaymentStatus(_ context.Context, orderID uuid.UUID, status string) error {
	for i, o := range f.orders {
		if o.ID == orderID {
			f.orders[i].PaymentStatus = status
			return nil
		}
	}
	return store.ErrNotFound
}

func (f *fakeStore) ListOrdersByUser(_ context.Context, userID uuid.UUID, _, _ int32) ([]store.Order, int64, error) {
	var out []store.Order
	for _, o := range f.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	return out, int64(len(out)), nil
}

func (f *fakeStore) OrderItems(_ context.Context, orderID uuid.UUID) ([]store.OrderItem, error) {
	return f.orderItems[orderID], nil
}

func (f *fakeStore) UpdateOrderStatus(_ context.Context, orderID uuid.UUID, fromStatus, toStatus string) (bool, error) {
	for i, o := range f.orders {
		if o.ID == orderID && (fromStatus == "" || o.Status == fromStatus) {
			f.orders[i].Status = toStatus
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) GetCartByUser(_ context.Context, userID uuid.UUID) (store.Cart, error) {
	if f.cart != nil && f.cart.UserID == userID {
		return *f.cart, nil
	}
	return store.Cart{}, store.ErrNotFound
}

func (f *fakeStore) ClearCart(_ context.Context, _ uuid.UUID) error {
	f.cartCleared = true
	return nil
}

type fakeTx struct{ q *fakeStore }

func (f fakeTx) RunTx(_ context.Context, fn func(q Querier) error) error {
	return fn(f.q)
}

type deniedLocker struct{}

func (deniedLocker) Acquire(context.Context, string) (func(context.Context), bool, error) {
	return nil, false, nil
}

func newService(f *fakeStore) *Service {
	return &Service{
		Q:   f,
		Tx:  fakeTx{q: f},
		Now: func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) },
	}
}

func addProduct(f *fakeStore, price float64, stock int32, title string) store.Product {
	p := store.Product{
		ID:       uuid.New(),
		Title:    title,
		Price:    price,
		Stock:    stock,
		IsActive: true,
	}
	f.products[p.ID] = p
	return p
}

func requireAppError(t *testing.T, err error, code string) *common.AppError {
	t.Helper()
	require.Error(t, err)
	appErr, ok := common.AsAppError(err)
	require.True(t, ok, "expected AppError, got %v", err)
	require.Equal(t, code, appErr.Code)
	return appErr
}

func TestCreateFreeShippingAboveThreshold(t *testing.T) {
	f := newFakeStore()
	p := addProduct(f, 500, 10, "Desk Lamp")
	svc := newService(f)

	det, err := svc.Create(context.Background(), uuid.New(), CreateRequest{
		Items: []LineInput{{ProductID: p.ID, Qty: 2}},
	})
	require.NoError(t, err)
	assert.Equal(t, float64(1000), det.Order.Subtotal)
	assert.Equal(t, float64(0), det.Order.Shipping)
	assert.Equal(t, float64(180), det.Order.Tax)
	assert.Equal(t, float64(1180), det.Order.Total)
	assert.Equal(t, StatusPending, det.Order.Status)
}

func TestCreateChargesShippingBelowThreshold(t *testing.T) {
	f := newFakeStore()
	p := addProduct(f, 300, 10, "Mug")
	svc := newService(f)

	det, err := svc.Create(context.Background(), uuid.New(), CreateRequest{
		Items: []LineInput{{ProductID: p.ID, Qty: 2}},
	})
	require.NoError(t, err)
	assert.Equal(t, float64(49), det.Order.Shipping)
	assert.Equal(t, float64(108), det.Order.Tax)
	assert.Equal(t, float64(757), det.Order.Total)
}

func TestCreateAppliesPercentageCoupon(t *testing.T) {
	f := newFakeStore()
	p := addProduct(f, 500, 10, "Desk Lamp")
	f.coupons["SAVE10"] = store.Coupon{
		ID: uuid.New(), Code: "SAVE10", Type: "percentage", Value: 10, Active: true,
	}
	svc := newService(f)

	det, err := svc.Create(context.Background(), uuid.New(), CreateRequest{
		Items:      []LineInput{{ProductID: p.ID, Qty: 2}},
		CouponCode: "save10",
	})
	require.NoError(t, err)
	assert.Equal(t, float64(100), det.Order.Discount)
	assert.Equal(t, float64(1080), det.Order.Total)
	require.NotNil(t, det.Order.CouponCode)
	assert.Equal(t, "SAVE10", *det.Order.CouponCode)
	assert.Equal(t, int32(1), f.coupons["SAVE10"].UsedCount)
}

func TestCreateFlatCouponCappedAtScopedSubtotal(t *testing.T) {
	f := newFakeStore()
	cheap := addProduct(f, 100, 10, "Keyring")
	pricey := addProduct(f, 900, 10, "Backpack")
	f.coupons["FLAT500"] = store.Coupon{
		ID: uuid.New(), Code: "FLAT500", Type: "flat", Value: 500, Active: true,
		ApplicableProducts: []uuid.UUID{cheap.ID},
	}
	svc := newService(f)

	det, err := svc.Create(context.Background(), uuid.New(), CreateRequest{
		Items: []LineInput{
			{ProductID: cheap.ID, Qty: 1},
			{ProductID: pricey.ID, Qty: 1},
		},
		CouponCode: "FLAT500",
	})
	require.NoError(t, err)
	// Only the 100 line qualifies, so the 500 coupon caps at 100.
	assert.Equal(t, float64(100), det.Order.Discount)
}

func TestCreateGlobalFlatCouponLargerThanSubtotal(t *testing.T) {
	f := newFakeStore()
	p := addProduct(f, 1000, 10, "Headphones")
	f.coupons["FLAT5000"] = store.Coupon{
		ID: uuid.New(), Code: "FLAT5000", Type: "flat", Value: 5000, Active: true,
	}
	svc := newService(f)

	det, err := svc.Create(context.Background(), uuid.New(), CreateRequest{
		Items:      []LineInput{{ProductID: p.ID, Qty: 1}},
		CouponCode: "FLAT5000",
	})
	require.NoError(t, err)
	assert.Equal(t, float64(1000), det.Order.Discount)
	assert.Equal(t, float64(180), det.Order.Total)
}

func TestCreateScopedCouponWithNoMatchingItems(t *testing.T) {
	f := newFakeStore()
	p := addProduct(f, 500, 10, "Desk Lamp")
	f.coupons["SHOES20"] = store.Coupon{
		ID: uuid.New(), Code: "SHOES20", Type: "percentage", Value: 20, Active: true,
		ApplicableCategories: []uuid.UUID{uuid.New()},
	}
	svc := newService(f)

	_, err := svc.Create(context.Background(), uuid.New(), CreateRequest{
		Items:      []LineInput{{ProductID: p.ID, Qty: 1}},
		CouponCode: "SHOES20",
	})
	appErr := requireAppError(t, err, "COUPON_INVALID")
	assert.Equal(t, "Coupon not applicable to cart items", appErr.Message)
	assert.Zero(t, f.reserveCalls)
}

func TestCreateUnknownCouponCode(t *testing.T) {
	f := newFakeStore()
	p := addProduct(f, 500, 10, "Desk Lamp")
	svc := newService(f)

	_, err := svc.Create(context.Background(), uuid.New(), CreateRequest{
		Items:      []LineInput{{ProductID: p.ID, Qty: 1}},
		CouponCode: "NOPE",
	})
	appErr := requireAppError(t, err, "COUPON_INVALID")
	assert.Equal(t, "Invalid coupon code", appErr.Message)
}

func TestCreateExpiredCoupon(t *testing.T) {
	f := newFakeStore()
	p := addProduct(f, 500, 10, "Desk Lamp")
	expired := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	f.coupons["OLD"] = store.Coupon{
		ID: uuid.New(), Code: "OLD", Type: "flat", Value: 50, Active: true, ExpiresAt: &expired,
	}
	svc := newService(f)

	_, err := svc.Create(context.Background(), uuid.New(), CreateRequest{
		Items:      []LineInput{{ProductID: p.ID, Qty: 1}},
		CouponCode: "OLD",
	})
	appErr := requireAppError(t, err, "COUPON_INVALID")
	assert.Equal(t, "Coupon has expired", appErr.Message)
}

func TestCreateCouponQuotaRaceRollsBack(t *testing.T) {
	f := newFakeStore()
	p := addProduct(f, 500, 10, "Desk Lamp")
	limit := int32(100)
	f.coupons["SAVE10"] = store.Coupon{
		ID: uuid.New(), Code: "SAVE10", Type: "percentage", Value: 10,
		Active: true, UsageLimit: &limit, UsedCount: 99,
	}
	f.reserveDenied = true
	svc := newService(f)

	_, err := svc.Create(context.Background(), uuid.New(), CreateRequest{
		Items:      []LineInput{{ProductID: p.ID, Qty: 1}},
		CouponCode: "SAVE10",
	})
	appErr := requireAppError(t, err, "COUPON_INVALID")
	assert.Equal(t, "Coupon usage limit exceeded", appErr.Message)
	assert.Equal(t, 1, f.reserveCalls)
}

func TestCreatePerUserLimitReached(t *testing.T) {
	f := newFakeStore()
	p := addProduct(f, 500, 10, "Desk Lamp")
	perUser := int32(1)
	c := store.Coupon{
		ID: uuid.New(), Code: "ONCE", Type: "flat", Value: 50, Active: true, PerUserLimit: &perUser,
	}
	f.coupons["ONCE"] = c
	userID := uuid.New()
	f.redeemed[c.ID.String()+"|"+userID.String()] = 1
	svc := newService(f)

	_, err := svc.Create(context.Background(), userID, CreateRequest{
		Items:      []LineInput{{ProductID: p.ID, Qty: 1}},
		CouponCode: "ONCE",
	})
	appErr := requireAppError(t, err, "COUPON_INVALID")
	assert.Equal(t, "Coupon usage limit reached for this account", appErr.Message)
}

func TestCreateInsufficientStock(t *testing.T) {
	f := newFakeStore()
	p := addProduct(f, 500, 2, "Desk Lamp")
	svc := newService(f)

	_, err := svc.Create(context.Background(), uuid.New(), CreateRequest{
		Items: []LineInput{{ProductID: p.ID, Qty: 3}},
	})
	appErr := requireAppError(t, err, "INSUFFICIENT_STOCK")
	assert.Equal(t, "Insufficient stock for Desk Lamp. Available: 2", appErr.Message)
}

func TestCreateInactiveProduct(t *testing.T) {
	f := newFakeStore()
	p := addProduct(f, 500, 10, "Desk Lamp")
	hidden := f.products[p.ID]
	hidden.IsActive = false
	f.products[p.ID] = hidden
	svc := newService(f)

	_, err := svc.Create(context.Background(), uuid.New(), CreateRequest{
		Items: []LineInput{{ProductID: p.ID, Qty: 1}},
	})
	requireAppError(t, err, "PRODUCT_UNAVAILABLE")
}

func TestCreateEmptyItems(t *testing.T) {
	svc := newService(newFakeStore())
	_, err := svc.Create(context.Background(), uuid.New(), CreateRequest{})
	requireAppError(t, err, "VALIDATION")
}

func TestCreateMergesDuplicateLines(t *testing.T) {
	f := newFakeStore()
	p := addProduct(f, 300, 10, "Mug")
	svc := newService(f)

	det, err := svc.Create(context.Background(), uuid.New(), CreateRequest{
		Items: []LineInput{
			{ProductID: p.ID, Qty: 1},
			{ProductID: p.ID, Qty: 2},
		},
	})
	require.NoError(t, err)
	require.Len(t, det.Items, 1)
	assert.Equal(t, int32(3), det.Items[0].Qty)
	assert.Equal(t, int32(7), f.products[p.ID].Stock)
}

func TestCreateDecrementsStockAndClearsCart(t *testing.T) {
	f := newFakeStore()
	p := addProduct(f, 500, 10, "Desk Lamp")
	userID := uuid.New()
	f.cart = &store.Cart{ID: uuid.New(), UserID: userID}
	svc := newService(f)

	_, err := svc.Create(context.Background(), userID, CreateRequest{
		Items: []LineInput{{ProductID: p.ID, Qty: 4}},
	})
	require.NoError(t, err)
	assert.Equal(t, int32(6), f.products[p.ID].Stock)
	assert.True(t, f.cartCleared)
}

func TestCreateBlockedByCheckoutLock(t *testing.T) {
	f := newFakeStore()
	p := addProduct(f, 500, 10, "Desk Lamp")
	svc := newService(f)
	svc.Locker = deniedLocker{}

	_, err := svc.Create(context.Background(), uuid.New(), CreateRequest{
		Items: []LineInput{{ProductID: p.ID, Qty: 1}},
	})
	requireAppError(t, err, "CHECKOUT_IN_PROGRESS")
}

func TestCancelRestoresStock(t *testing.T) {
	f := newFakeStore()
	p := addProduct(f, 500, 10, "Desk Lamp")
	userID := uuid.New()
	svc := newService(f)

	det, err := svc.Create(context.Background(), userID, CreateRequest{
		Items: []LineInput{{ProductID: p.ID, Qty: 4}},
	})
	require.NoError(t, err)
	require.Equal(t, int32(6), f.products[p.ID].Stock)

	require.NoError(t, svc.Cancel(context.Background(), userID, det.Order.ID))
	assert.Equal(t, int32(10), f.products[p.ID].Stock)

	got, err := svc.Get(context.Background(), userID, det.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Order.Status)
}

func TestCancelRejectsNonPendingOrder(t *testing.T) {
	f := newFakeStore()
	p := addProduct(f, 500, 10, "Desk Lamp")
	userID := uuid.New()
	svc := newService(f)

	det, err := svc.Create(context.Background(), userID, CreateRequest{
		Items: []LineInput{{ProductID: p.ID, Qty: 1}},
	})
	require.NoError(t, err)
	_, err = f.UpdateOrderStatus(context.Background(), det.Order.ID, "", StatusShipped)
	require.NoError(t, err)

	err = svc.Cancel(context.Background(), userID, det.Order.ID)
	requireAppError(t, err, "ORDER_NOT_CANCELLABLE")
}

func TestUpdateStatusMarksPaid(t *testing.T) {
	f := newFakeStore()
	p := addProduct(f, 500, 10, "Desk Lamp")
	svc := newService(f)

	det, err := svc.Create(context.Background(), uuid.New(), CreateRequest{
		Items: []LineInput{{ProductID: p.ID, Qty: 1}},
	})
	require.NoError(t, err)

	o, err := svc.UpdateStatus(context.Background(), det.Order.ID, StatusPaid)
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, o.Status)
	assert.Equal(t, "paid", o.PaymentStatus)
	assert.Equal(t, "paid", f.orders[0].PaymentStatus)
}

func TestUpdateStatusRejectsSkippingSteps(t *testing.T) {
	f := newFakeStore()
	p := addProduct(f, 500, 10, "Desk Lamp")
	svc := newService(f)

	det, err := svc.Create(context.Background(), uuid.New(), CreateRequest{
		Items: []LineInput{{ProductID: p.ID, Qty: 1}},
	})
	require.NoError(t, err)

	_, err = svc.UpdateStatus(context.Background(), det.Order.ID, StatusShipped)
	requireAppError(t, err, "INVALID_STATUS_TRANSITION")
}

func TestUpdateStatusUnknownOrder(t *testing.T) {
	svc := newService(newFakeStore())
	_, err := svc.UpdateStatus(context.Background(), uuid.New(), StatusPaid)
	requireAppError(t, err, "ORDER_NOT_FOUND")
}

func TestGetUnknownOrder(t *testing.T) {
	svc := newService(newFakeStore())
	_, err := svc.Get(context.Background(), uuid.New(), uuid.New())
	requireAppError(t, err, "ORDER_NOT_FOUND")
}
