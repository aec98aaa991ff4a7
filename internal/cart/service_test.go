package cart

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anurag-sv/bazaar-api/internal/common"
	"github.com/anurag-sv/bazaar-api/internal/store"
)

type fakeCartStore struct {
	products map[uuid.UUID]store.Product
	cart     store.Cart
	lines    map[uuid.UUID]store.CartItem
}

func newFakeCartStore(userID uuid.UUID) *fakeCartStore {
	return &fakeCartStore{
		products: map[uuid.UUID]store.Product{},
		cart:     store.Cart{ID: uuid.New(), UserID: userID},
		lines:    map[uuid.UUID]store.CartItem{},
	}
}

func (f *fakeCartStore) GetOrCreateCart(_ context.Context, _ uuid.UUID) (store.Cart, error) {
	return f.cart, nil
}

func (f *fakeCartStore) CartItems(_ context.Context, _ uuid.UUID) ([]store.CartItem, error) {
	var out []store.CartItem
	for _, it := range f.lines {
		out = append(out, it)
	}
	return out, nil
}

func (f *fakeCartStore) UpsertCartItem(_ context.Context, it store.CartItem) error {
	if existing, ok := f.lines[it.ProductID]; ok {
		existing.Qty += it.Qty
		existing.Price = it.Price
		f.lines[it.ProductID] = existing
		return nil
	}
	it.ID = uuid.New()
	f.lines[it.ProductID] = it
	return nil
}

func (f *fakeCartStore) SetCartItemQty(_ context.Context, _, productID uuid.UUID, qty int32) error {
	it, ok := f.lines[productID]
	if !ok {
		return store.ErrNotFound
	}
	it.Qty = qty
	f.lines[productID] = it
	return nil
}

func (f *fakeCartStore) DeleteCartItem(_ context.Context, _, productID uuid.UUID) error {
	if _, ok := f.lines[productID]; !ok {
		return store.ErrNotFound
	}
	delete(f.lines, productID)
	return nil
}

func (f *fakeCartStore) ClearCart(_ context.Context, _ uuid.UUID) error {
	f.lines = map[uuid.UUID]store.CartItem{}
	f.cart.Total = 0
	return nil
}

func (f *fakeCartStore) UpdateCartTotal(_ context.Context, _ uuid.UUID, total float64) error {
	f.cart.Total = total
	return nil
}

func (f *fakeCartStore) GetProduct(_ context.Context, id uuid.UUID) (store.Product, error) {
	p, ok := f.products[id]
	if !ok {
		return store.Product{}, store.ErrNotFound
	}
	return p, nil
}

func seedProduct(f *fakeCartStore, price float64, stock int32) store.Product {
	p := store.Product{
		ID: uuid.New(), Title: "Widget", Price: price, Stock: stock, IsActive: true,
		Images: []string{"https://cdn.example.com/widget.jpg"},
	}
	f.products[p.ID] = p
	return p
}

func TestAddItemSnapshotsProduct(t *testing.T) {
	userID := uuid.New()
	f := newFakeCartStore(userID)
	p := seedProduct(f, 250, 10)
	svc := &Service{Q: f}

	v, err := svc.AddItem(context.Background(), userID, p.ID, 2)
	require.NoError(t, err)
	require.Len(t, v.Items, 1)
	assert.Equal(t, "Widget", v.Items[0].Title)
	assert.Equal(t, float64(250), v.Items[0].Price)
	assert.Equal(t, "https://cdn.example.com/widget.jpg", v.Items[0].Image)
	assert.Equal(t, float64(500), v.Cart.Total)
}

func TestAddItemMergesQuantities(t *testing.T) {
	userID := uuid.New()
	f := newFakeCartStore(userID)
	p := seedProduct(f, 100, 10)
	svc := &Service{Q: f}

	_, err := svc.AddItem(context.Background(), userID, p.ID, 1)
	require.NoError(t, err)
	v, err := svc.AddItem(context.Background(), userID, p.ID, 2)
	require.NoError(t, err)
	require.Len(t, v.Items, 1)
	assert.Equal(t, int32(3), v.Items[0].Qty)
	assert.Equal(t, float64(300), v.Cart.Total)
}

func TestAddItemRejectsInactiveProduct(t *testing.T) {
	userID := uuid.New()
	f := newFakeCartStore(userID)
	p := seedProduct(f, 100, 10)
	hidden := f.products[p.ID]
	hidden.IsActive = false
	f.products[p.ID] = hidden
	svc := &Service{Q: f}

	_, err := svc.AddItem(context.Background(), userID, p.ID, 1)
	appErr, ok := common.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, "PRODUCT_UNAVAILABLE", appErr.Code)
}

func TestAddItemRejectsOverStock(t *testing.T) {
	userID := uuid.New()
	f := newFakeCartStore(userID)
	p := seedProduct(f, 100, 2)
	svc := &Service{Q: f}

	_, err := svc.AddItem(context.Background(), userID, p.ID, 3)
	appErr, ok := common.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, "INSUFFICIENT_STOCK", appErr.Code)
}

func TestUpdateItemZeroRemovesLine(t *testing.T) {
	userID := uuid.New()
	f := newFakeCartStore(userID)
	p := seedProduct(f, 100, 10)
	svc := &Service{Q: f}

	_, err := svc.AddItem(context.Background(), userID, p.ID, 2)
	require.NoError(t, err)
	v, err := svc.UpdateItem(context.Background(), userID, p.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, v.Items)
	assert.Equal(t, float64(0), v.Cart.Total)
}

func TestUpdateItemUnknownProduct(t *testing.T) {
	userID := uuid.New()
	f := newFakeCartStore(userID)
	svc := &Service{Q: f}

	_, err := svc.UpdateItem(context.Background(), userID, uuid.New(), 2)
	appErr, ok := common.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, "ITEM_NOT_IN_CART", appErr.Code)
}

func TestTotalRecomputedOnEveryMutation(t *testing.T) {
	userID := uuid.New()
	f := newFakeCartStore(userID)
	a := seedProduct(f, 199.99, 10)
	b := seedProduct(f, 50, 10)
	svc := &Service{Q: f}

	_, err := svc.AddItem(context.Background(), userID, a.ID, 2)
	require.NoError(t, err)
	v, err := svc.AddItem(context.Background(), userID, b.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 449.98, v.Cart.Total)

	v, err = svc.RemoveItem(context.Background(), userID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, float64(50), v.Cart.Total)
}
