package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const productColumns = `id::text, title, slug, description, price, stock,
	coalesce(images, '{}'), category_id::text, brand_id::text, is_active, created_at, updated_at`

func scanProduct(row pgx.Row) (Product, error) {
	var (
		p                 Product
		id                string
		categoryID, brand *string
	)
	err := row.Scan(&id, &p.Title, &p.Slug, &p.Description, &p.Price, &p.Stock,
		&p.Images, &categoryID, &brand, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return Product{}, wrapErr(err)
	}
	p.ID, err = uuid.Parse(id)
	if err != nil {
		return Product{}, fmt.Errorf("parse product id: %w", err)
	}
	p.CategoryID = optionalUUID(categoryID)
	p.BrandID = optionalUUID(brand)
	return p, nil
}

func collectProducts(rows pgx.Rows) ([]Product, error) {
	defer rows.Close()
	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, wrapErr(rows.Err())
}

// ProductFilter narrows ListProducts.
type ProductFilter struct {
	Search     string
	CategoryID *uuid.UUID
	BrandID    *uuid.UUID
	ActiveOnly bool
	Limit      int32
	Offset     int32
}

// ListProducts returns a page of products plus the total row count for the
// same filter.
func (q *Queries) ListProducts(ctx context.Context, f ProductFilter) ([]Product, int64, error) {
	where := []string{"true"}
	args := []any{}
	idx := 1
	if f.ActiveOnly {
		where = append(where, "is_active")
	}
	if f.Search != "" {
		where = append(where, fmt.Sprintf("(title ILIKE $%d OR description ILIKE $%d)", idx, idx))
		args = append(args, "%"+f.Search+"%")
		idx++
	}
	if f.CategoryID != nil {
		where = append(where, fmt.Sprintf("category_id = $%d::uuid", idx))
		args = append(args, f.CategoryID.String())
		idx++
	}
	if f.BrandID != nil {
		where = append(where, fmt.Sprintf("brand_id = $%d::uuid", idx))
		args = append(args, f.BrandID.String())
		idx++
	}
	cond := strings.Join(where, " AND ")

	var total int64
	if err := q.db.QueryRow(ctx, "SELECT count(*) FROM products WHERE "+cond, args...).Scan(&total); err != nil {
		return nil, 0, wrapErr(err)
	}

	sql := fmt.Sprintf(`SELECT %s FROM products WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		productColumns, cond, idx, idx+1)
	args = append(args, f.Limit, f.Offset)
	rows, err := q.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, wrapErr(err)
	}
	items, err := collectProducts(rows)
	return items, total, err
}

// GetProduct fetches a single product by id.
func (q *Queries) GetProduct(ctx context.Context, id uuid.UUID) (Product, error) {
	row := q.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1::uuid`, id.String())
	return scanProduct(row)
}

// GetProductBySlug fetches a single active product by slug.
func (q *Queries) GetProductBySlug(ctx context.Context, slug string) (Product, error) {
	row := q.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE slug = $1 AND is_active`, slug)
	return scanProduct(row)
}

// ActiveProductsByIDs loads the active products among ids, in no particular
// order. Missing and inactive ids are simply absent from the result.
func (q *Queries) ActiveProductsByIDs(ctx context.Context, ids []uuid.UUID) ([]Product, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+productColumns+` FROM products WHERE is_active AND id = ANY($1::uuid[])`,
		uuidStrings(ids))
	if err != nil {
		return nil, wrapErr(err)
	}
	return collectProducts(rows)
}

// LockActiveProductsByIDs is ActiveProductsByIDs with FOR UPDATE row locks.
// It must run inside a transaction; the locks serialise concurrent checkouts
// touching the same stock rows.
func (q *Queries) LockActiveProductsByIDs(ctx context.Context, ids []uuid.UUID) ([]Product, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+productColumns+` FROM products WHERE is_active AND id = ANY($1::uuid[]) ORDER BY id FOR UPDATE`,
		uuidStrings(ids))
	if err != nil {
		return nil, wrapErr(err)
	}
	return collectProducts(rows)
}

// DecrementStock subtracts qty from a product's stock. The guard keeps the
// decrement from racing below zero; callers must treat zero affected rows as
// insufficient stock.
func (q *Queries) DecrementStock(ctx context.Context, id uuid.UUID, qty int32) (bool, error) {
	tag, err := q.db.Exec(ctx,
		`UPDATE products SET stock = stock - $2, updated_at = now() WHERE id = $1::uuid AND stock >= $2`,
		id.String(), qty)
	if err != nil {
		return false, wrapErr(err)
	}
	return tag.RowsAffected() == 1, nil
}

// RestoreStock adds qty back to a product's stock after a cancellation.
func (q *Queries) RestoreStock(ctx context.Context, id uuid.UUID, qty int32) error {
	_, err := q.db.Exec(ctx,
		`UPDATE products SET stock = stock + $2, updated_at = now() WHERE id = $1::uuid`,
		id.String(), qty)
	return wrapErr(err)
}

// CreateProductParams carries the writable product fields.
type CreateProductParams struct {
	Title       string
	Slug        string
	Description string
	Price       float64
	Stock       int32
	Images      []string
	CategoryID  *uuid.UUID
	BrandID     *uuid.UUID
	IsActive    bool
}

// CreateProduct inserts a product and returns the stored row.
func (q *Queries) CreateProduct(ctx context.Context, p CreateProductParams) (Product, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO products (title, slug, description, price, stock, images, category_id, brand_id, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7::uuid, $8::uuid, $9)
		RETURNING `+productColumns,
		p.Title, p.Slug, p.Description, p.Price, p.Stock, p.Images,
		uuidPtrString(p.CategoryID), uuidPtrString(p.BrandID), p.IsActive)
	return scanProduct(row)
}

// UpdateProduct overwrites the writable fields of a product.
func (q *Queries) UpdateProduct(ctx context.Context, id uuid.UUID, p CreateProductParams) (Product, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE products SET title = $2, slug = $3, description = $4, price = $5, stock = $6,
			images = $7, category_id = $8::uuid, brand_id = $9::uuid, is_active = $10, updated_at = now()
		WHERE id = $1::uuid
		RETURNING `+productColumns,
		id.String(), p.Title, p.Slug, p.Description, p.Price, p.Stock, p.Images,
		uuidPtrString(p.CategoryID), uuidPtrString(p.BrandID), p.IsActive)
	return scanProduct(row)
}

// DeleteProduct soft-deletes by marking the product inactive so existing
// order items keep a valid reference.
func (q *Queries) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	tag, err := q.db.Exec(ctx,
		`UPDATE products SET is_active = false, updated_at = now() WHERE id = $1::uuid`, id.String())
	if err != nil {
		return wrapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func uuidPtrString(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}
