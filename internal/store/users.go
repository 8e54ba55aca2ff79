package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/stefanposs/webmacs/infrastructure/database"
	"github.com/stefanposs/webmacs/infrastructure/errors"
	"github.com/stefanposs/webmacs/internal/model"
)

// CreateUser inserts a new User with an already-hashed password.
func (s *Store) CreateUser(ctx context.Context, u model.User) (model.User, error) {
	u.PublicID = newPublicID()
	row := s.gw.Querier(ctx).QueryRowContext(ctx, `
		INSERT INTO users (public_id, email, username, password_hash, role)
		VALUES ($1, $2, $3, $4, $5) RETURNING id
	`, u.PublicID, u.Email, u.Username, u.PasswordHash, u.Role)
	if err := row.Scan(&u.ID); err != nil {
		if database.IsUniqueViolation(err) {
			return model.User{}, errors.Conflict("a user with this email already exists")
		}
		return model.User{}, err
	}
	return u, nil
}

// GetUserByEmail fetches a single User by login email, for the login flow.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (model.User, error) {
	var u model.User
	err := s.gw.Querier(ctx).GetContext(ctx, &u, `
		SELECT id, public_id, email, username, password_hash, role FROM users WHERE email=$1
	`, email)
	if err == sql.ErrNoRows {
		return model.User{}, errors.NotFound("user", email)
	}
	return u, err
}

// GetUserByPublicID fetches a single User, for resolving a verified
// JWT's subject into a role.
func (s *Store) GetUserByPublicID(ctx context.Context, publicID string) (model.User, error) {
	var u model.User
	err := s.gw.Querier(ctx).GetContext(ctx, &u, `
		SELECT id, public_id, email, username, password_hash, role FROM users WHERE public_id=$1
	`, publicID)
	if err == sql.ErrNoRows {
		return model.User{}, errors.NotFound("user", publicID)
	}
	return u, err
}

// GetUserByID fetches a single User by surrogate key, for resolving an
// opaque API token's owning user (ApiToken only carries the surrogate
// user_id).
func (s *Store) GetUserByID(ctx context.Context, id int64) (model.User, error) {
	var u model.User
	err := s.gw.Querier(ctx).GetContext(ctx, &u, `
		SELECT id, public_id, email, username, password_hash, role FROM users WHERE id=$1
	`, id)
	if err == sql.ErrNoRows {
		return model.User{}, errors.NotFound("user", fmt.Sprintf("%d", id))
	}
	return u, err
}

// ListUsers returns a page of Users.
func (s *Store) ListUsers(ctx context.Context, page database.Page) ([]model.User, int, error) {
	var total int
	if err := s.gw.Querier(ctx).GetContext(ctx, &total, `SELECT COUNT(*) FROM users`); err != nil {
		return nil, 0, err
	}
	var users []model.User
	err := s.gw.Querier(ctx).SelectContext(ctx, &users, `
		SELECT id, public_id, email, username, password_hash, role
		FROM users ORDER BY username LIMIT $1 OFFSET $2
	`, page.PageSize, (page.Page-1)*page.PageSize)
	return users, total, err
}
