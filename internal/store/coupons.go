package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const couponColumns = `id::text, code, type, value,
	coalesce(applicable_products, '{}')::text[],
	coalesce(applicable_categories, '{}')::text[],
	coalesce(applicable_brands, '{}')::text[],
	starts_at, expires_at, usage_limit, used_count, per_user_limit, active, created_at, updated_at`

func scanCoupon(row pgx.Row) (Coupon, error) {
	var (
		c                      Coupon
		id                     string
		products, cats, brands []string
	)
	err := row.Scan(&id, &c.Code, &c.Type, &c.Value, &products, &cats, &brands,
		&c.StartsAt, &c.ExpiresAt, &c.UsageLimit, &c.UsedCount, &c.PerUserLimit,
		&c.Active, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return Coupon{}, wrapErr(err)
	}
	if c.ID, err = uuid.Parse(id); err != nil {
		return Coupon{}, fmt.Errorf("parse coupon id: %w", err)
	}
	c.ApplicableProducts = parseUUIDs(products)
	c.ApplicableCategories = parseUUIDs(cats)
	c.ApplicableBrands = parseUUIDs(brands)
	return c, nil
}

// GetCouponByCode looks up a coupon by its canonical (uppercase) code.
func (q *Queries) GetCouponByCode(ctx context.Context, code string) (Coupon, error) {
	row := q.db.QueryRow(ctx, `SELECT `+couponColumns+` FROM coupons WHERE code = $1`, code)
	return scanCoupon(row)
}

// GetCoupon fetches a coupon by id.
func (q *Queries) GetCoupon(ctx context.Context, id uuid.UUID) (Coupon, error) {
	row := q.db.QueryRow(ctx, `SELECT `+couponColumns+` FROM coupons WHERE id = $1::uuid`, id.String())
	return scanCoupon(row)
}

// ListCoupons returns all coupons, newest first.
func (q *Queries) ListCoupons(ctx context.Context, limit, offset int32) ([]Coupon, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+couponColumns+` FROM coupons ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()
	var out []Coupon
	for rows.Next() {
		c, err := scanCoupon(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, wrapErr(rows.Err())
}

// CouponParams carries the writable coupon fields. Code must already be
// normalised to uppercase.
type CouponParams struct {
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

// CreateCoupon inserts a coupon.
func (q *Queries) CreateCoupon(ctx context.Context, p CouponParams) (Coupon, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO coupons (code, type, value, applicable_products, applicable_categories,
			applicable_brands, starts_at, expires_at, usage_limit, per_user_limit, active)
		VALUES ($1, $2, $3, $4::uuid[], $5::uuid[], $6::uuid[], $7, $8, $9, $10, $11)
		RETURNING `+couponColumns,
		p.Code, p.Type, p.Value,
		uuidStrings(p.ApplicableProducts), uuidStrings(p.ApplicableCategories), uuidStrings(p.ApplicableBrands),
		p.StartsAt, p.ExpiresAt, p.UsageLimit, p.PerUserLimit, p.Active)
	return scanCoupon(row)
}

// UpdateCoupon overwrites the writable fields of a coupon. The usage counter
// is never writable through this path.
func (q *Queries) UpdateCoupon(ctx context.Context, id uuid.UUID, p CouponParams) (Coupon, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE coupons SET code = $2, type = $3, value = $4, applicable_products = $5::uuid[],
			applicable_categories = $6::uuid[], applicable_brands = $7::uuid[], starts_at = $8,
			expires_at = $9, usage_limit = $10, per_user_limit = $11, active = $12, updated_at = now()
		WHERE id = $1::uuid
		RETURNING `+couponColumns,
		id.String(), p.Code, p.Type, p.Value,
		uuidStrings(p.ApplicableProducts), uuidStrings(p.ApplicableCategories), uuidStrings(p.ApplicableBrands),
		p.StartsAt, p.ExpiresAt, p.UsageLimit, p.PerUserLimit, p.Active)
	return scanCoupon(row)
}

// DeleteCoupon removes a coupon and, via cascade, its redemption history.
func (q *Queries) DeleteCoupon(ctx context.Context, id uuid.UUID) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM coupons WHERE id = $1::uuid`, id.String())
	if err != nil {
		return wrapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ReserveCouponUsage increments the global usage counter only while it is
// below the limit. A false return means the quota was exhausted by a
// concurrent order.
func (q *Queries) ReserveCouponUsage(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE coupons SET used_count = used_count + 1, updated_at = now()
		WHERE id = $1::uuid AND (usage_limit IS NULL OR used_count < usage_limit)`,
		id.String())
	if err != nil {
		return false, wrapErr(err)
	}
	return tag.RowsAffected() == 1, nil
}

// InsertRedemption records one use of a coupon by a user on an order.
func (q *Queries) InsertRedemption(ctx context.Context, couponID, userID, orderID uuid.UUID) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO coupon_redemptions (coupon_id, user_id, order_id)
		VALUES ($1::uuid, $2::uuid, $3::uuid)`,
		couponID.String(), userID.String(), orderID.String())
	return wrapErr(err)
}

// CountRedemptionsByUser returns how many times a user has redeemed a coupon.
func (q *Queries) CountRedemptionsByUser(ctx context.Context, couponID, userID uuid.UUID) (int32, error) {
	var n int32
	err := q.db.QueryRow(ctx,
		`SELECT count(*) FROM coupon_redemptions WHERE coupon_id = $1::uuid AND user_id = $2::uuid`,
		couponID.String(), userID.String()).Scan(&n)
	return n, wrapErr(err)
}
