package store

import (
	"context"
	"time"
)

// BlacklistJWT records a revoked JWT's jti. Idempotent: re-blacklisting an
// already-blacklisted jti is a no-op, not an error.
func (s *Store) BlacklistJWT(ctx context.Context, jti string) error {
	_, err := s.gw.Querier(ctx).ExecContext(ctx, `
		INSERT INTO blacklist_tokens (token_jti, blacklisted_on)
		VALUES ($1, $2) ON CONFLICT (token_jti) DO NOTHING
	`, jti, time.Now().UTC())
	return err
}

// IsJWTBlacklisted reports whether a jti has been revoked.
func (s *Store) IsJWTBlacklisted(ctx context.Context, jti string) (bool, error) {
	var count int
	err := s.gw.Querier(ctx).GetContext(ctx, &count, `
		SELECT COUNT(*) FROM blacklist_tokens WHERE token_jti=$1
	`, jti)
	return count > 0, err
}

// PurgeExpiredBlacklistEntries deletes blacklist rows older than
// retention, reclaiming entries whose original JWT would have expired on
// its own by now regardless (§12's janitor, using
// access_token_expire_minutes as the retention window).
func (s *Store) PurgeExpiredBlacklistEntries(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention)
	result, err := s.gw.Querier(ctx).ExecContext(ctx, `
		DELETE FROM blacklist_tokens WHERE blacklisted_on < $1
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
