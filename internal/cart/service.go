package cart

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/anurag-sv/bazaar-api/internal/common"
	"github.com/anurag-sv/bazaar-api/internal/pricing"
	"github.com/anurag-sv/bazaar-api/internal/store"
)

// Querier is the slice of the store the cart service needs.
type Querier interface {
	GetOrCreateCart(ctx context.Context, userID uuid.UUID) (store.Cart, error)
	CartItems(ctx context.Context, cartID uuid.UUID) ([]store.CartItem, error)
	UpsertCartItem(ctx context.Context, it store.CartItem) error
	SetCartItemQty(ctx context.Context, cartID, productID uuid.UUID, qty int32) error
	DeleteCartItem(ctx context.Context, cartID, productID uuid.UUID) error
	ClearCart(ctx context.Context, cartID uuid.UUID) error
	UpdateCartTotal(ctx context.Context, cartID uuid.UUID, total float64) error
	GetProduct(ctx context.Context, id uuid.UUID) (store.Product, error)
}

// Service manages the per-user cart. Product title, price, and image are
// snapshotted into the line when it is added; the stored total is recomputed
// from the snapshots after every mutation.
type Service struct {
	Q   Querier
	Log zerolog.Logger
}

// View is a cart with its lines and derived total.
type View struct {
	Cart  store.Cart
	Items []store.CartItem
}

// Get returns the caller's cart, creating an empty one on first use.
func (s *Service) Get(ctx context.Context, userID uuid.UUID) (View, error) {
	cart, err := s.Q.GetOrCreateCart(ctx, userID)
	if err != nil {
		return View{}, fmt.Errorf("load cart: %w", err)
	}
	items, err := s.Q.CartItems(ctx, cart.ID)
	if err != nil {
		return View{}, fmt.Errorf("load cart items: %w", err)
	}
	return View{Cart: cart, Items: items}, nil
}

// AddItem puts qty units of a product into the cart, merging with an
// existing line for the same product.
func (s *Service) AddItem(ctx context.Context, userID, productID uuid.UUID, qty int32) (View, error) {
	if qty <= 0 {
		return View{}, common.NewAppError("VALIDATION",
			"Item quantity must be positive", http.StatusBadRequest, nil)
	}
	p, err := s.Q.GetProduct(ctx, productID)
	if err != nil || !p.IsActive {
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return View{}, fmt.Errorf("load product: %w", err)
		}
		return View{}, common.NewAppError("PRODUCT_UNAVAILABLE",
			"Product not found or unavailable", http.StatusBadRequest, err)
	}
	if p.Stock < qty {
		return View{}, common.NewAppError("INSUFFICIENT_STOCK",
			fmt.Sprintf("Insufficient stock for %s. Available: %d", p.Title, p.Stock),
			http.StatusBadRequest, nil)
	}
	cart, err := s.Q.GetOrCreateCart(ctx, userID)
	if err != nil {
		return View{}, fmt.Errorf("load cart: %w", err)
	}
	image := ""
	if len(p.Images) > 0 {
		image = p.Images[0]
	}
	err = s.Q.UpsertCartItem(ctx, store.CartItem{
		CartID:    cart.ID,
		ProductID: p.ID,
		Title:     p.Title,
		Price:     p.Price,
		Qty:       qty,
		Image:     image,
	})
	if err != nil {
		return View{}, fmt.Errorf("upsert cart item: %w", err)
	}
	return s.refresh(ctx, cart)
}

// UpdateItem replaces the quantity of a line. A zero quantity removes it.
func (s *Service) UpdateItem(ctx context.Context, userID, productID uuid.UUID, qty int32) (View, error) {
	if qty < 0 {
		return View{}, common.NewAppError("VALIDATION",
			"Item quantity must not be negative", http.StatusBadRequest, nil)
	}
	cart, err := s.Q.GetOrCreateCart(ctx, userID)
	if err != nil {
		return View{}, fmt.Errorf("load cart: %w", err)
	}
	if qty == 0 {
		err = s.Q.DeleteCartItem(ctx, cart.ID, productID)
	} else {
		err = s.Q.SetCartItemQty(ctx, cart.ID, productID, qty)
	}
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return View{}, common.NewAppError("ITEM_NOT_IN_CART",
				"Product is not in the cart", http.StatusNotFound, err)
		}
		return View{}, fmt.Errorf("update cart item: %w", err)
	}
	return s.refresh(ctx, cart)
}

// RemoveItem deletes a line from the cart.
func (s *Service) RemoveItem(ctx context.Context, userID, productID uuid.UUID) (View, error) {
	cart, err := s.Q.GetOrCreateCart(ctx, userID)
	if err != nil {
		return View{}, fmt.Errorf("load cart: %w", err)
	}
	if err := s.Q.DeleteCartItem(ctx, cart.ID, productID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return View{}, common.NewAppError("ITEM_NOT_IN_CART",
				"Product is not in the cart", http.StatusNotFound, err)
		}
		return View{}, fmt.Errorf("delete cart item: %w", err)
	}
	return s.refresh(ctx, cart)
}

// Clear empties the cart.
func (s *Service) Clear(ctx context.Context, userID uuid.UUID) error {
	cart, err := s.Q.GetOrCreateCart(ctx, userID)
	if err != nil {
		return fmt.Errorf("load cart: %w", err)
	}
	return s.Q.ClearCart(ctx, cart.ID)
}

// refresh recomputes and persists the cart total from its lines.
func (s *Service) refresh(ctx context.Context, cart store.Cart) (View, error) {
	items, err := s.Q.CartItems(ctx, cart.ID)
	if err != nil {
		return View{}, fmt.Errorf("load cart items: %w", err)
	}
	var total float64
	for _, it := range items {
		if it.Qty > 0 {
			total += it.Price * float64(it.Qty)
		}
	}
	total = pricing.Round2(total)
	if err := s.Q.UpdateCartTotal(ctx, cart.ID, total); err != nil {
		return View{}, fmt.Errorf("update cart total: %w", err)
	}
	cart.Total = total
	return View{Cart: cart, Items: items}, nil
}
