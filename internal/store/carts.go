package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// GetOrCreateCart returns the user's cart, creating an empty one on first use.
func (q *Queries) GetOrCreateCart(ctx context.Context, userID uuid.UUID) (Cart, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO carts (user_id) VALUES ($1::uuid)
		ON CONFLICT (user_id) DO UPDATE SET user_id = excluded.user_id
		RETURNING id::text, user_id::text, total, created_at, updated_at`,
		userID.String())
	return scanCart(row)
}

// GetCartByUser fetches the user's cart without creating one.
func (q *Queries) GetCartByUser(ctx context.Context, userID uuid.UUID) (Cart, error) {
	row := q.db.QueryRow(ctx, `
		SELECT id::text, user_id::text, total, created_at, updated_at
		FROM carts WHERE user_id = $1::uuid`, userID.String())
	return scanCart(row)
}

func scanCart(row pgx.Row) (Cart, error) {
	var (
		c          Cart
		id, userID string
	)
	if err := row.Scan(&id, &userID, &c.Total, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return Cart{}, wrapErr(err)
	}
	var err error
	if c.ID, err = uuid.Parse(id); err != nil {
		return Cart{}, fmt.Errorf("parse cart id: %w", err)
	}
	if c.UserID, err = uuid.Parse(userID); err != nil {
		return Cart{}, fmt.Errorf("parse cart user id: %w", err)
	}
	return c, nil
}

// CartItems returns all lines in a cart, oldest first.
func (q *Queries) CartItems(ctx context.Context, cartID uuid.UUID) ([]CartItem, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id::text, cart_id::text, product_id::text, title, price, qty, image
		FROM cart_items WHERE cart_id = $1::uuid ORDER BY created_at`, cartID.String())
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()
	var out []CartItem
	for rows.Next() {
		var (
			it                   CartItem
			id, cartRef, prodRef string
		)
		if err := rows.Scan(&id, &cartRef, &prodRef, &it.Title, &it.Price, &it.Qty, &it.Image); err != nil {
			return nil, wrapErr(err)
		}
		if it.ID, err = uuid.Parse(id); err != nil {
			return nil, err
		}
		if it.CartID, err = uuid.Parse(cartRef); err != nil {
			return nil, err
		}
		if it.ProductID, err = uuid.Parse(prodRef); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, wrapErr(rows.Err())
}

// UpsertCartItem adds a product line or bumps its quantity when the product
// is already in the cart. Title, price, and image are refreshed from the
// supplied snapshot on every call.
func (q *Queries) UpsertCartItem(ctx context.Context, it CartItem) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO cart_items (cart_id, product_id, title, price, qty, image)
		VALUES ($1::uuid, $2::uuid, $3, $4, $5, $6)
		ON CONFLICT (cart_id, product_id) DO UPDATE
		SET qty = cart_items.qty + excluded.qty, title = excluded.title,
			price = excluded.price, image = excluded.image`,
		it.CartID.String(), it.ProductID.String(), it.Title, it.Price, it.Qty, it.Image)
	return wrapErr(err)
}

// SetCartItemQty replaces the quantity of a line. Zero affected rows means
// the product is not in the cart.
func (q *Queries) SetCartItemQty(ctx context.Context, cartID, productID uuid.UUID, qty int32) error {
	tag, err := q.db.Exec(ctx,
		`UPDATE cart_items SET qty = $3 WHERE cart_id = $1::uuid AND product_id = $2::uuid`,
		cartID.String(), productID.String(), qty)
	if err != nil {
		return wrapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteCartItem removes a line from the cart.
func (q *Queries) DeleteCartItem(ctx context.Context, cartID, productID uuid.UUID) error {
	tag, err := q.db.Exec(ctx,
		`DELETE FROM cart_items WHERE cart_id = $1::uuid AND product_id = $2::uuid`,
		cartID.String(), productID.String())
	if err != nil {
		return wrapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ClearCart removes every line and zeroes the stored total.
func (q *Queries) ClearCart(ctx context.Context, cartID uuid.UUID) error {
	if _, err := q.db.Exec(ctx, `DELETE FROM cart_items WHERE cart_id = $1::uuid`, cartID.String()); err != nil {
		return wrapErr(err)
	}
	_, err := q.db.Exec(ctx,
		`UPDATE carts SET total = 0, updated_at = now() WHERE id = $1::uuid`, cartID.String())
	return wrapErr(err)
}

// UpdateCartTotal persists the recomputed cart total.
func (q *Queries) UpdateCartTotal(ctx context.Context, cartID uuid.UUID, total float64) error {
	_, err := q.db.Exec(ctx,
		`UPDATE carts SET total = $2, updated_at = now() WHERE id = $1::uuid`, cartID.String(), total)
	return wrapErr(err)
}
