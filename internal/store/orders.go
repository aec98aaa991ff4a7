package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const orderColumns = `id::text, user_id::text, subtotal, shipping, tax, original_total,
	discount, total, coupon_code, coupon_id::text, shipping_address, payment_method,
	payment_status, status, created_at`

func scanOrder(row pgx.Row) (Order, error) {
	var (
		o            Order
		id, userID   string
		couponID     *string
		shippingAddr []byte
	)
	err := row.Scan(&id, &userID, &o.Subtotal, &o.Shipping, &o.Tax, &o.OriginalTotal,
		&o.Discount, &o.Total, &o.CouponCode, &couponID, &shippingAddr,
		&o.PaymentMethod, &o.PaymentStatus, &o.Status, &o.CreatedAt)
	if err != nil {
		return Order{}, wrapErr(err)
	}
	if o.ID, err = uuid.Parse(id); err != nil {
		return Order{}, fmt.Errorf("parse order id: %w", err)
	}
	if o.UserID, err = uuid.Parse(userID); err != nil {
		return Order{}, fmt.Errorf("parse order user id: %w", err)
	}
	o.CouponID = optionalUUID(couponID)
	o.ShippingAddress = json.RawMessage(shippingAddr)
	return o, nil
}

// InsertOrder persists an order header and returns the stored row.
func (q *Queries) InsertOrder(ctx context.Context, o Order) (Order, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO orders (user_id, subtotal, shipping, tax, original_total, discount, total,
			coupon_code, coupon_id, shipping_address, payment_method, payment_status, status)
		VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9::uuid, $10, $11, $12, $13)
		RETURNING `+orderColumns,
		o.UserID.String(), o.Subtotal, o.Shipping, o.Tax, o.OriginalTotal, o.Discount, o.Total,
		o.CouponCode, uuidPtrString(o.CouponID), []byte(o.ShippingAddress),
		o.PaymentMethod, o.PaymentStatus, o.Status)
	return scanOrder(row)
}

// InsertOrderItems persists the frozen lines of an order.
func (q *Queries) InsertOrderItems(ctx context.Context, orderID uuid.UUID, items []OrderItem) error {
	for _, it := range items {
		_, err := q.db.Exec(ctx, `
			INSERT INTO order_items (order_id, product_id, title, price, qty, image)
			VALUES ($1::uuid, $2::uuid, $3, $4, $5, $6)`,
			orderID.String(), it.ProductID.String(), it.Title, it.Price, it.Qty, it.Image)
		if err != nil {
			return wrapErr(err)
		}
	}
	return nil
}

// GetOrderForUser fetches an order owned by the given user.
func (q *Queries) GetOrderForUser(ctx context.Context, orderID, userID uuid.UUID) (Order, error) {
	row := q.db.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1::uuid AND user_id = $2::uuid`,
		orderID.String(), userID.String())
	return scanOrder(row)
}

// GetOrder fetches any order by id.
func (q *Queries) GetOrder(ctx context.Context, orderID uuid.UUID) (Order, error) {
	row := q.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1::uuid`, orderID.String())
	return scanOrder(row)
}

// ListOrdersByUser returns the user's orders, newest first.
func (q *Queries) ListOrdersByUser(ctx context.Context, userID uuid.UUID, limit, offset int32) ([]Order, int64, error) {
	var total int64
	if err := q.db.QueryRow(ctx,
		`SELECT count(*) FROM orders WHERE user_id = $1::uuid`, userID.String()).Scan(&total); err != nil {
		return nil, 0, wrapErr(err)
	}
	rows, err := q.db.Query(ctx, `
		SELECT `+orderColumns+` FROM orders WHERE user_id = $1::uuid
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		userID.String(), limit, offset)
	if err != nil {
		return nil, 0, wrapErr(err)
	}
	defer rows.Close()
	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, o)
	}
	return out, total, wrapErr(rows.Err())
}

// OrderItems returns the frozen lines of an order.
func (q *Queries) OrderItems(ctx context.Context, orderID uuid.UUID) ([]OrderItem, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id::text, order_id::text, product_id::text, title, price, qty, image
		FROM order_items WHERE order_id = $1::uuid ORDER BY id`, orderID.String())
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()
	var out []OrderItem
	for rows.Next() {
		var (
			it                    OrderItem
			id, orderRef, prodRef string
		)
		if err := rows.Scan(&id, &orderRef, &prodRef, &it.Title, &it.Price, &it.Qty, &it.Image); err != nil {
			return nil, wrapErr(err)
		}
		if it.ID, err = uuid.Parse(id); err != nil {
			return nil, err
		}
		if it.OrderID, err = uuid.Parse(orderRef); err != nil {
			return nil, err
		}
		if it.ProductID, err = uuid.Parse(prodRef); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, wrapErr(rows.Err())
}

// UpdateOrderStatus transitions an order's status, optionally constrained to
// a current status. An empty fromStatus matches any.
func (q *Queries) UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, fromStatus, toStatus string) (bool, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE orders SET status = $3 WHERE id = $1::uuid AND ($2 = '' OR status = $2)`,
		orderID.String(), fromStatus, toStatus)
	if err != nil {
		return false, wrapErr(err)
	}
	return tag.RowsAffected() == 1, nil
}

// UpdatePaymentStatus records a payment status change.
func (q *Queries) UpdatePaymentStatus(ctx context.Context, orderID uuid.UUID, status string) error {
	tag, err := q.db.Exec(ctx,
		`UPDATE orders SET payment_status = $2 WHERE id = $1::uuid`, orderID.String(), status)
	if err != nil {
		return wrapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
