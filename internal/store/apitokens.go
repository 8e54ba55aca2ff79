package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/stefanposs/webmacs/infrastructure/database"
	"github.com/stefanposs/webmacs/infrastructure/errors"
	"github.com/stefanposs/webmacs/internal/model"
)

// CreateApiToken stores a token's SHA-256 hash; the plaintext "wm_"-prefixed
// token itself is never persisted (§6/§12).
func (s *Store) CreateApiToken(ctx context.Context, userID int64, tokenHash string, expiresAt *time.Time) (model.ApiToken, error) {
	t := model.ApiToken{
		PublicID:  newPublicID(),
		UserID:    userID,
		TokenHash: tokenHash,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now().UTC(),
	}
	row := s.gw.Querier(ctx).QueryRowContext(ctx, `
		INSERT INTO api_tokens (public_id, user_id, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5) RETURNING id
	`, t.PublicID, t.UserID, t.TokenHash, t.ExpiresAt, t.CreatedAt)
	if err := row.Scan(&t.ID); err != nil {
		return model.ApiToken{}, err
	}
	return t, nil
}

// GetApiTokenByHash looks up a token by its hash for verification, and
// reports errors.KindNotFound if it is missing, revoked, or expired.
func (s *Store) GetApiTokenByHash(ctx context.Context, tokenHash string) (model.ApiToken, error) {
	var t model.ApiToken
	err := s.gw.Querier(ctx).GetContext(ctx, &t, `
		SELECT id, public_id, user_id, token_hash, expires_at, created_at
		FROM api_tokens
		WHERE token_hash=$1 AND (expires_at IS NULL OR expires_at > now())
	`, tokenHash)
	if err == sql.ErrNoRows {
		return model.ApiToken{}, errors.NotFound("api_token", tokenHash)
	}
	return t, err
}

// RevokeApiToken deletes a token, immediately invalidating it.
func (s *Store) RevokeApiToken(ctx context.Context, publicID string) error {
	result, err := s.gw.Querier(ctx).ExecContext(ctx, `DELETE FROM api_tokens WHERE public_id=$1`, publicID)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return errors.NotFound("api_token", publicID)
	}
	return nil
}

// ListApiTokensForUser returns a page of a user's tokens.
func (s *Store) ListApiTokensForUser(ctx context.Context, userID int64, page database.Page) ([]model.ApiToken, int, error) {
	var total int
	if err := s.gw.Querier(ctx).GetContext(ctx, &total, `SELECT COUNT(*) FROM api_tokens WHERE user_id=$1`, userID); err != nil {
		return nil, 0, err
	}
	var tokens []model.ApiToken
	err := s.gw.Querier(ctx).SelectContext(ctx, &tokens, `
		SELECT id, public_id, user_id, token_hash, expires_at, created_at
		FROM api_tokens WHERE user_id=$1 ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, userID, page.PageSize, (page.Page-1)*page.PageSize)
	return tokens, total, err
}
