// Package payments is the charge-capture collaborator boundary. The engine
// never retries a charge itself; a failed capture leaves the win claimed and
// the deadline-expiry path resolves it.
package payments

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Charger interface {
	Charge(ctx context.Context, orderID uuid.UUID, amount decimal.Decimal) error
}

// GatewayStub stands in for the external payment gateway: it approves every
// charge and logs it. Deployments wire a real Charger here.
type GatewayStub struct {
	Log *zap.SugaredLogger
}

func (g *GatewayStub) Charge(ctx context.Context, orderID uuid.UUID, amount decimal.Decimal) error {
	g.Log.Infow("charge captured", "order_id", orderID, "amount", amount.String())
	return nil
}
