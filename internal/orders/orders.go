// Package orders is the order-creation collaborator consumed by the claim
// workflow. The engine only needs the narrow Creator surface; the Postgres
// implementation backs it here.
package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/niota4/ageless-literature-sub006/internal/models"
)

type Creator interface {
	Create(ctx context.Context, buyerID uuid.UUID, ref models.ItemRef, amount decimal.Decimal) (uuid.UUID, error)
	Void(ctx context.Context, orderID uuid.UUID) error
	MarkPaid(ctx context.Context, orderID uuid.UUID) error
}

type PGCreator struct {
	Pool *pgxpool.Pool
}

func NewPGCreator(pool *pgxpool.Pool) *PGCreator {
	return &PGCreator{Pool: pool}
}

func (c *PGCreator) Create(ctx context.Context, buyerID uuid.UUID, ref models.ItemRef, amount decimal.Decimal) (uuid.UUID, error) {
	id := uuid.New()
	now := time.Now().UTC()
	_, err := c.Pool.Exec(ctx, `
		INSERT INTO orders (id, buyer_id, item_id, item_type, amount, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $7)
	`, id, buyerID, ref.ID, ref.Type, amount.String(), models.OrderCreated, now)
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

func (c *PGCreator) Void(ctx context.Context, orderID uuid.UUID) error {
	_, err := c.Pool.Exec(ctx, `
		UPDATE orders SET status = 'void', updated_at = now()
		WHERE id = $1 AND status = 'created'
	`, orderID)
	return err
}

func (c *PGCreator) MarkPaid(ctx context.Context, orderID uuid.UUID) error {
	_, err := c.Pool.Exec(ctx, `
		UPDATE orders SET status = 'paid', updated_at = now()
		WHERE id = $1 AND status = 'created'
	`, orderID)
	return err
}
