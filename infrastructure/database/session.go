package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

// Querier is satisfied by both *sqlx.DB and *sqlx.Tx, letting store methods
// run unmodified whether or not a transaction is active.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error)
}

// Gateway is the persistence gateway's transactional session abstraction.
// Each external request obtains an exclusive session (WithTx) that commits
// on success and rolls back on any unhandled error; background work (the
// webhook dispatcher, OTA downloads, janitors) uses the Gateway directly
// as its own independent, request-outliving session.
type Gateway struct {
	db *sqlx.DB
}

// NewGateway wraps an open *sqlx.DB as a persistence gateway.
func NewGateway(db *sqlx.DB) *Gateway {
	return &Gateway{db: db}
}

// DB returns the underlying pooled connection, for background sessions
// that intentionally outlive a single request.
func (g *Gateway) DB() *sqlx.DB { return g.db }

type txKey struct{}

// TxFromContext extracts an active transaction from ctx, if any.
func TxFromContext(ctx context.Context) *sqlx.Tx {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return nil
}

func contextWithTx(ctx context.Context, tx *sqlx.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// Querier returns the transaction in ctx if present, otherwise the pooled
// connection directly. Store methods call this once per operation so they
// transparently participate in a caller's transaction.
func (g *Gateway) Querier(ctx context.Context) Querier {
	if tx := TxFromContext(ctx); tx != nil {
		return tx
	}
	return g.db
}

// WithTx runs fn inside a single exclusive database session: begins a
// transaction, commits it if fn returns nil, and rolls back otherwise.
// This is the per-request session contract of the persistence gateway.
func (g *Gateway) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if TxFromContext(ctx) != nil {
		// Already inside a session; nest by reusing it rather than
		// opening a second transaction the driver would reject.
		return fn(ctx)
	}

	tx, err := g.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	txCtx := contextWithTx(ctx, tx)
	if err := fn(txCtx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Page carries a paginated SQL fragment: "LIMIT n OFFSET m" plus the
// values needed to also run a COUNT(*) query for the Total field.
type Page struct {
	Page     int
	PageSize int
}

// LimitOffsetSQL renders the LIMIT/OFFSET clause for this page.
func (p Page) LimitOffsetSQL(argIndexStart int) (clause string, limit, offset int) {
	limit = p.PageSize
	offset = (p.Page - 1) * p.PageSize
	return fmt.Sprintf("LIMIT $%d OFFSET $%d", argIndexStart, argIndexStart+1), limit, offset
}

// Rebind is a convenience passthrough for building the `$1,$2,...` style
// placeholders sqlx.In returns into the Postgres bindvar style.
func Rebind(db *sqlx.DB, query string, args ...interface{}) (string, []interface{}, error) {
	q, a, err := sqlx.In(query, args...)
	if err != nil {
		return "", nil, err
	}
	return db.Rebind(q), a, nil
}

// --- Null-type conversion helpers (used by store scan/bind code) ---

// NullTimeToPtr converts sql.NullTime to *time.Time.
func NullTimeToPtr(nt sql.NullTime) *time.Time {
	if nt.Valid {
		return &nt.Time
	}
	return nil
}

// PtrToNullTime converts *time.Time to sql.NullTime.
func PtrToNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// NullStringToPtr converts sql.NullString to *string.
func NullStringToPtr(ns sql.NullString) *string {
	if ns.Valid {
		return &ns.String
	}
	return nil
}

// PtrToNullString converts *string to sql.NullString.
func PtrToNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// NullInt64ToPtr converts sql.NullInt64 to *int64.
func NullInt64ToPtr(ni sql.NullInt64) *int64 {
	if ni.Valid {
		return &ni.Int64
	}
	return nil
}

// PtrToNullInt64 converts *int64 to sql.NullInt64.
func PtrToNullInt64(i *int64) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *i, Valid: true}
}

// IsUniqueViolation reports whether err is a Postgres unique_violation
// (SQLSTATE 23505), the signal the persistence gateway maps to
// errors.KindConflict on partial update / insert.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "23505") || strings.Contains(strings.ToLower(err.Error()), "unique constraint")
}
