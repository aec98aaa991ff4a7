package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const userColumns = `id::text, email, coalesce(name, ''), coalesce(roles, '{user}'), created_at, updated_at`

func scanUser(row pgx.Row) (User, error) {
	var (
		u  User
		id string
	)
	if err := row.Scan(&id, &u.Email, &u.Name, &u.Roles, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return User{}, wrapErr(err)
	}
	var err error
	if u.ID, err = uuid.Parse(id); err != nil {
		return User{}, fmt.Errorf("parse user id: %w", err)
	}
	return u, nil
}

// GetOrCreateUserByEmail finds a user by email, creating the account on
// first OTP verification.
func (q *Queries) GetOrCreateUserByEmail(ctx context.Context, email string) (User, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO users (email) VALUES ($1)
		ON CONFLICT (email) DO UPDATE SET email = excluded.email
		RETURNING `+userColumns, email)
	return scanUser(row)
}

// GetUser fetches a user by id.
func (q *Queries) GetUser(ctx context.Context, id uuid.UUID) (User, error) {
	row := q.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1::uuid`, id.String())
	return scanUser(row)
}

// UpdateUserName sets the profile display name.
func (q *Queries) UpdateUserName(ctx context.Context, id uuid.UUID, name string) (User, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE users SET name = $2, updated_at = now() WHERE id = $1::uuid
		RETURNING `+userColumns, id.String(), name)
	return scanUser(row)
}
