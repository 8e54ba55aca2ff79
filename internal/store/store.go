// Package store implements the persistence gateway (spec §4.B) against
// PostgreSQL via sqlx. Every exported method accepts a context that may or
// may not carry an active transaction (see infrastructure/database.Gateway);
// callers at the HTTP boundary wrap a request's full sequence of store
// calls in a single WithTx session, while background work (webhook
// retries, OTA downloads, janitors) calls the gateway directly as its own
// independent session.
package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/stefanposs/webmacs/infrastructure/database"
)

// Store is the persistence gateway. It is safe for concurrent use; all
// state is the underlying connection pool.
type Store struct {
	gw *database.Gateway
}

// New wraps a Gateway as a Store.
func New(gw *database.Gateway) *Store {
	return &Store{gw: gw}
}

// WithTx runs fn inside a single exclusive database session: commits on
// success, rolls back on error. This is the per-request session contract
// of the persistence gateway (spec §4.B).
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.gw.WithTx(ctx, fn)
}

// newPublicID mints a fresh opaque public_id (spec §3/§12).
func newPublicID() string {
	return uuid.New().String()
}
