// Package store is the pgx-backed persistence layer. State transitions are
// expressed as single transactions whose first statement re-checks the
// transition precondition (status, idempotence marker); a lost race commits
// nothing and surfaces as applied=false.
package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type Store struct {
	Pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{Pool: pool}
}

// errPreconditionFailed aborts a transition transaction whose optimistic
// precondition no longer holds. Never returned to callers.
var errPreconditionFailed = errors.New("transition precondition failed")

func (s *Store) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// applyTx runs a transition transaction and reports whether it committed.
// A failed precondition rolls back and reports applied=false with no error.
func (s *Store) applyTx(ctx context.Context, fn func(tx pgx.Tx) error) (bool, error) {
	err := s.withTx(ctx, fn)
	if errors.Is(err, errPreconditionFailed) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Amounts are stored as NUMERIC and travel as text on the wire.

func parseDec(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(s)
}

func parseDecPtr(s *string) (*decimal.Decimal, error) {
	if s == nil {
		return nil, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func decArg(d decimal.Decimal) string {
	return d.String()
}

func decArgPtr(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}
