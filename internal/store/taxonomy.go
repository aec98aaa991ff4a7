package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

func scanNamed(row pgx.Row) (uuid.UUID, string, string, error) {
	var (
		id         string
		name, slug string
	)
	if err := row.Scan(&id, &name, &slug); err != nil {
		return uuid.Nil, "", "", wrapErr(err)
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, "", "", err
	}
	return parsed, name, slug, nil
}

// ListBrands returns all brands ordered by name.
func (q *Queries) ListBrands(ctx context.Context) ([]Brand, error) {
	rows, err := q.db.Query(ctx, `SELECT id::text, name, slug, created_at FROM brands ORDER BY name`)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()
	var out []Brand
	for rows.Next() {
		var (
			b  Brand
			id string
		)
		if err := rows.Scan(&id, &b.Name, &b.Slug, &b.CreatedAt); err != nil {
			return nil, wrapErr(err)
		}
		if b.ID, err = uuid.Parse(id); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, wrapErr(rows.Err())
}

// CreateBrand inserts a brand.
func (q *Queries) CreateBrand(ctx context.Context, name, slug string) (Brand, error) {
	row := q.db.QueryRow(ctx,
		`INSERT INTO brands (name, slug) VALUES ($1, $2) RETURNING id::text, name, slug`, name, slug)
	id, gotName, gotSlug, err := scanNamed(row)
	if err != nil {
		return Brand{}, err
	}
	return Brand{ID: id, Name: gotName, Slug: gotSlug}, nil
}

// DeleteBrand removes a brand; products referencing it keep a NULL brand.
func (q *Queries) DeleteBrand(ctx context.Context, id uuid.UUID) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM brands WHERE id = $1::uuid`, id.String())
	if err != nil {
		return wrapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListCategories returns all categories ordered by name.
func (q *Queries) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := q.db.Query(ctx, `SELECT id::text, name, slug, created_at FROM categories ORDER BY name`)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()
	var out []Category
	for rows.Next() {
		var (
			c  Category
			id string
		)
		if err := rows.Scan(&id, &c.Name, &c.Slug, &c.CreatedAt); err != nil {
			return nil, wrapErr(err)
		}
		if c.ID, err = uuid.Parse(id); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, wrapErr(rows.Err())
}

// CreateCategory inserts a category.
func (q *Queries) CreateCategory(ctx context.Context, name, slug string) (Category, error) {
	row := q.db.QueryRow(ctx,
		`INSERT INTO categories (name, slug) VALUES ($1, $2) RETURNING id::text, name, slug`, name, slug)
	id, gotName, gotSlug, err := scanNamed(row)
	if err != nil {
		return Category{}, err
	}
	return Category{ID: id, Name: gotName, Slug: gotSlug}, nil
}

// DeleteCategory removes a category; products referencing it keep a NULL category.
func (q *Queries) DeleteCategory(ctx context.Context, id uuid.UUID) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM categories WHERE id = $1::uuid`, id.String())
	if err != nil {
		return wrapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
