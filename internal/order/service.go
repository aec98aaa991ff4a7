package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/anurag-sv/bazaar-api/internal/common"
	"github.com/anurag-sv/bazaar-api/internal/coupon"
	"github.com/anurag-sv/bazaar-api/internal/obs"
	"github.com/anurag-sv/bazaar-api/internal/pricing"
	"github.com/anurag-sv/bazaar-api/internal/store"
)

// Order lifecycle states.
const (
	StatusPending   = "pending"
	StatusPaid      = "paid"
	StatusShipped   = "shipped"
	StatusDelivered = "delivered"
	StatusCancelled = "cancelled"
)

// Querier is the slice of the store the order flow needs. The checkout
// methods run against a transaction-scoped instance.
type Querier interface {
	LockActiveProductsByIDs(ctx context.Context, ids []uuid.UUID) ([]store.Product, error)
	DecrementStock(ctx context.Context, id uuid.UUID, qty int32) (bool, error)
	RestoreStock(ctx context.Context, id uuid.UUID, qty int32) error
	GetCouponByCode(ctx context.Context, code string) (store.Coupon, error)
	CountRedemptionsByUser(ctx context.Context, couponID, userID uuid.UUID) (int32, error)
	ReserveCouponUsage(ctx context.Context, id uuid.UUID) (bool, error)
	InsertRedemption(ctx context.Context, couponID, userID, orderID uuid.UUID) error
	InsertOrder(ctx context.Context, o store.Order) (store.Order, error)
	InsertOrderItems(ctx context.Context, orderID uuid.UUID, items []store.OrderItem) error
	GetOrderForUser(ctx context.Context, orderID, userID uuid.UUID) (store.Order, error)
	GetOrder(ctx context.Context, orderID uuid.UUID) (store.Order, error)
	ListOrdersByUser(ctx context.Context, userID uuid.UUID, limit, offset int32) ([]store.Order, int64, error)
	OrderItems(ctx context.Context, orderID uuid.UUID) ([]store.OrderItem, error)
	UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, fromStatus, toStatus string) (bool, error)
	UpdatePaymentStatus(ctx context.Context, orderID uuid.UUID, status string) error
	GetCartByUser(ctx context.Context, userID uuid.UUID) (store.Cart, error)
	ClearCart(ctx context.Context, cartID uuid.UUID) error
}

// TxRunner executes fn inside a single database transaction.
type TxRunner interface {
	RunTx(ctx context.Context, fn func(q Querier) error) error
}

// Locker serialises checkouts per user so a double-submitted request cannot
// race itself.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(context.Context), ok bool, err error)
}

// Notifier enqueues post-checkout notifications.
type Notifier interface {
	EnqueueOrderConfirmation(ctx context.Context, userID, orderID uuid.UUID) error
}

// Service implements checkout and order management.
type Service struct {
	Q       Querier
	Tx      TxRunner
	Locker  Locker
	Notify  Notifier
	Metrics *obs.OrderMetrics
	Log     zerolog.Logger

	// Now is overridable in tests.
	Now func() time.Time
}

// LineInput is one requested order line.
type LineInput struct {
	ProductID uuid.UUID
	Qty       int32
}

// CreateRequest carries everything needed to place an order.
type CreateRequest struct {
	Items           []LineInput
	CouponCode      string
	ShippingAddress json.RawMessage
	PaymentMethod   string
}

// Detail is an order together with its frozen lines.
type Detail struct {
	Order store.Order
	Items []store.OrderItem
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Create places an order. Stock verification, stock decrement, order insert,
// and coupon counter reservation all happen in one transaction with the
// affected product rows locked, so concurrent checkouts cannot oversell
// stock or overspend a coupon quota.
func (s *Service) Create(ctx context.Context, userID uuid.UUID, req CreateRequest) (Detail, error) {
	if s.Tx == nil {
		return Detail{}, errors.New("order: Tx is required")
	}
	now := s.now()

	lines, err := normalizeLines(req.Items)
	if err != nil {
		s.reject("validation")
		return Detail{}, err
	}

	if s.Locker != nil {
		release, ok, lockErr := s.Locker.Acquire(ctx, "checkout:"+userID.String())
		if lockErr != nil {
			return Detail{}, fmt.Errorf("acquire checkout lock: %w", lockErr)
		}
		if !ok {
			s.reject("conflict")
			return Detail{}, common.NewAppError("CHECKOUT_IN_PROGRESS",
				"Another checkout is already in progress", http.StatusConflict, nil)
		}
		defer release(ctx)
	}

	var det Detail
	err = s.Tx.RunTx(ctx, func(q Querier) error {
		ids := make([]uuid.UUID, 0, len(lines))
		for _, l := range lines {
			ids = append(ids, l.ProductID)
		}
		products, err := q.LockActiveProductsByIDs(ctx, ids)
		if err != nil {
			return fmt.Errorf("load products: %w", err)
		}
		byID := make(map[uuid.UUID]store.Product, len(products))
		for _, p := range products {
			byID[p.ID] = p
		}

		var (
			priceLines  []pricing.Item
			couponLines []coupon.Item
			snapshots   []store.OrderItem
		)
		for _, l := range lines {
			p, found := byID[l.ProductID]
			if !found {
				return common.NewAppError("PRODUCT_UNAVAILABLE",
					"Product not found or unavailable", http.StatusBadRequest, nil)
			}
			if p.Stock < l.Qty {
				return common.NewAppError("INSUFFICIENT_STOCK",
					fmt.Sprintf("Insufficient stock for %s. Available: %d", p.Title, p.Stock),
					http.StatusBadRequest, nil)
			}
			priceLines = append(priceLines, pricing.Item{Qty: int(l.Qty), UnitPrice: p.Price})
			couponLines = append(couponLines, coupon.Item{
				ProductID:  p.ID,
				CategoryID: p.CategoryID,
				BrandID:    p.BrandID,
				Price:      p.Price,
				Qty:        int(l.Qty),
			})
			snapshots = append(snapshots, store.OrderItem{
				ProductID: p.ID,
				Title:     p.Title,
				Price:     p.Price,
				Qty:       l.Qty,
				Image:     firstImage(p.Images),
			})
		}

		var (
			discount float64
			applied  *store.Coupon
		)
		if req.CouponCode != "" {
			c, rule, err := s.resolveCoupon(ctx, q, req.CouponCode, userID)
			if err != nil {
				return err
			}
			if err := rule.Validate(now); err != nil {
				return couponError(err)
			}
			applicable := coupon.ApplicableSubtotal(couponLines, rule)
			if applicable <= 0 {
				return couponError(coupon.ErrNotApplicable)
			}
			discount = coupon.Compute(applicable, rule)
			applied = &c
		}

		summary := pricing.Compute(priceLines, discount)

		for _, l := range lines {
			ok, err := q.DecrementStock(ctx, l.ProductID, l.Qty)
			if err != nil {
				return fmt.Errorf("decrement stock: %w", err)
			}
			if !ok {
				p := byID[l.ProductID]
				return common.NewAppError("INSUFFICIENT_STOCK",
					fmt.Sprintf("Insufficient stock for %s. Available: %d", p.Title, p.Stock),
					http.StatusBadRequest, nil)
			}
		}

		addr := req.ShippingAddress
		if len(addr) == 0 {
			addr = json.RawMessage(`{}`)
		}
		method := req.PaymentMethod
		if method == "" {
			method = "cod"
		}
		o := store.Order{
			UserID:          userID,
			Subtotal:        summary.Subtotal,
			Shipping:        summary.Shipping,
			Tax:             summary.Tax,
			OriginalTotal:   summary.OriginalTotal,
			Discount:        summary.Discount,
			Total:           summary.Total,
			ShippingAddress: addr,
			PaymentMethod:   method,
			PaymentStatus:   "pending",
			Status:          StatusPending,
		}
		if applied != nil {
			o.CouponCode = &applied.Code
			id := applied.ID
			o.CouponID = &id
		}

		stored, err := q.InsertOrder(ctx, o)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		if err := q.InsertOrderItems(ctx, stored.ID, snapshots); err != nil {
			return fmt.Errorf("insert order items: %w", err)
		}

		// The counter reservation is conditional on the limit, so a
		// concurrent transaction that already consumed the last slot rolls
		// this whole order back.
		if applied != nil {
			ok, err := q.ReserveCouponUsage(ctx, applied.ID)
			if err != nil {
				return fmt.Errorf("reserve coupon usage: %w", err)
			}
			if !ok {
				return couponError(coupon.ErrUsageLimitReached)
			}
			if err := q.InsertRedemption(ctx, applied.ID, userID, stored.ID); err != nil {
				return fmt.Errorf("insert redemption: %w", err)
			}
		}

		cart, err := q.GetCartByUser(ctx, userID)
		switch {
		case err == nil:
			if err := q.ClearCart(ctx, cart.ID); err != nil {
				return fmt.Errorf("clear cart: %w", err)
			}
		case !errors.Is(err, store.ErrNotFound):
			return fmt.Errorf("load cart: %w", err)
		}

		for i := range snapshots {
			snapshots[i].OrderID = stored.ID
		}
		det = Detail{Order: stored, Items: snapshots}
		return nil
	})
	if err != nil {
		s.rejectFor(err)
		return Detail{}, err
	}

	if s.Metrics != nil {
		s.Metrics.Created.Inc()
	}
	if s.Notify != nil {
		if err := s.Notify.EnqueueOrderConfirmation(ctx, userID, det.Order.ID); err != nil {
			s.Log.Warn().Err(err).Str("order_id", det.Order.ID.String()).
				Msg("enqueue order confirmation failed")
		}
	}
	s.Log.Info().
		Str("order_id", det.Order.ID.String()).
		Str("user_id", userID.String()).
		Float64("total", det.Order.Total).
		Msg("order created")
	return det, nil
}

// resolveCoupon loads the coupon row and builds the runtime rule, including
// the caller's redemption count when a per-user limit is set.
func (s *Service) resolveCoupon(ctx context.Context, q Querier, code string, userID uuid.UUID) (store.Coupon, coupon.Rule, error) {
	c, err := q.GetCouponByCode(ctx, coupon.NormalizeCode(code))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Coupon{}, coupon.Rule{}, couponError(coupon.ErrInvalidCode)
		}
		return store.Coupon{}, coupon.Rule{}, fmt.Errorf("load coupon: %w", err)
	}
	var perUserUsed int32
	if c.PerUserLimit != nil {
		perUserUsed, err = q.CountRedemptionsByUser(ctx, c.ID, userID)
		if err != nil {
			return store.Coupon{}, coupon.Rule{}, fmt.Errorf("count redemptions: %w", err)
		}
	}
	return c, coupon.FromStored(c, perUserUsed), nil
}

// List returns a page of the user's orders, newest first.
func (s *Service) List(ctx context.Context, userID uuid.UUID, limit, offset int32) ([]store.Order, int64, error) {
	return s.Q.ListOrdersByUser(ctx, userID, limit, offset)
}

// Get returns an order owned by the user along with its lines.
func (s *Service) Get(ctx context.Context, userID, orderID uuid.UUID) (Detail, error) {
	o, err := s.Q.GetOrderForUser(ctx, orderID, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Detail{}, common.NewAppError("ORDER_NOT_FOUND", "Order not found", http.StatusNotFound, err)
		}
		return Detail{}, err
	}
	items, err := s.Q.OrderItems(ctx, orderID)
	if err != nil {
		return Detail{}, err
	}
	return Detail{Order: o, Items: items}, nil
}

// Cancel transitions a pending order to cancelled and restores the stock it
// reserved. The redeemed coupon slot is not returned.
func (s *Service) Cancel(ctx context.Context, userID, orderID uuid.UUID) error {
	return s.Tx.RunTx(ctx, func(q Querier) error {
		if _, err := q.GetOrderForUser(ctx, orderID, userID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return common.NewAppError("ORDER_NOT_FOUND", "Order not found", http.StatusNotFound, err)
			}
			return err
		}
		ok, err := q.UpdateOrderStatus(ctx, orderID, StatusPending, StatusCancelled)
		if err != nil {
			return fmt.Errorf("update order status: %w", err)
		}
		if !ok {
			return common.NewAppError("ORDER_NOT_CANCELLABLE",
				"Only pending orders can be cancelled", http.StatusConflict, nil)
		}
		items, err := q.OrderItems(ctx, orderID)
		if err != nil {
			return err
		}
		for _, it := range items {
			if err := q.RestoreStock(ctx, it.ProductID, it.Qty); err != nil {
				return fmt.Errorf("restore stock: %w", err)
			}
		}
		return nil
	})
}

// statusFlow is the forward-only fulfilment sequence. Cancellation goes
// through Cancel so stock is restored.
var statusFlow = map[string]string{
	StatusPending: StatusPaid,
	StatusPaid:    StatusShipped,
	StatusShipped: StatusDelivered,
}

// UpdateStatus moves an order one step along the fulfilment flow. Back
// office only; ownership is not checked.
func (s *Service) UpdateStatus(ctx context.Context, orderID uuid.UUID, next string) (store.Order, error) {
	o, err := s.Q.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Order{}, common.NewAppError("ORDER_NOT_FOUND", "Order not found", http.StatusNotFound, err)
		}
		return store.Order{}, err
	}
	if statusFlow[o.Status] != next {
		return store.Order{}, common.NewAppError("INVALID_STATUS_TRANSITION",
			fmt.Sprintf("Cannot move order from %s to %s", o.Status, next),
			http.StatusConflict, nil)
	}
	ok, err := s.Q.UpdateOrderStatus(ctx, orderID, o.Status, next)
	if err != nil {
		return store.Order{}, fmt.Errorf("update order status: %w", err)
	}
	if !ok {
		return store.Order{}, common.NewAppError("INVALID_STATUS_TRANSITION",
			"Order status changed concurrently", http.StatusConflict, nil)
	}
	if next == StatusPaid {
		if err := s.Q.UpdatePaymentStatus(ctx, orderID, "paid"); err != nil {
			return store.Order{}, fmt.Errorf("update payment status: %w", err)
		}
		o.PaymentStatus = "paid"
	}
	o.Status = next
	s.Log.Info().Str("order_id", orderID.String()).Str("status", next).Msg("order status updated")
	return o, nil
}

func normalizeLines(items []LineInput) ([]LineInput, error) {
	if len(items) == 0 {
		return nil, common.NewAppError("VALIDATION",
			"Order must contain at least one item", http.StatusBadRequest, nil)
	}
	merged := make([]LineInput, 0, len(items))
	index := make(map[uuid.UUID]int, len(items))
	for _, it := range items {
		if it.Qty <= 0 {
			return nil, common.NewAppError("VALIDATION",
				"Item quantity must be positive", http.StatusBadRequest, nil)
		}
		if it.ProductID == uuid.Nil {
			return nil, common.NewAppError("VALIDATION",
				"Item product id is required", http.StatusBadRequest, nil)
		}
		if i, seen := index[it.ProductID]; seen {
			merged[i].Qty += it.Qty
			continue
		}
		index[it.ProductID] = len(merged)
		merged = append(merged, it)
	}
	return merged, nil
}

func couponError(err error) error {
	return common.NewAppError("COUPON_INVALID", err.Error(), http.StatusBadRequest, err)
}

func firstImage(images []string) string {
	if len(images) == 0 {
		return ""
	}
	return images[0]
}

func (s *Service) reject(reason string) {
	if s.Metrics != nil {
		s.Metrics.Rejected.WithLabelValues(reason).Inc()
	}
}

func (s *Service) rejectFor(err error) {
	appErr, ok := common.AsAppError(err)
	if !ok {
		s.reject("internal")
		return
	}
	switch appErr.Code {
	case "VALIDATION":
		s.reject("validation")
	case "PRODUCT_UNAVAILABLE":
		s.reject("product_unavailable")
	case "INSUFFICIENT_STOCK":
		s.reject("insufficient_stock")
	case "COUPON_INVALID":
		s.reject("coupon_invalid")
	case "CHECKOUT_IN_PROGRESS":
		s.reject("conflict")
	default:
		s.reject("internal")
	}
}
