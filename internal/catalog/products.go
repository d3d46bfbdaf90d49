package catalog

import (
	"context"

	"microtx-service/internal/models"
	"microtx-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// GoldPack is an example sellable product. Duplicate and adapt it for
// real goods ("medium gold pack", "premium for a month", "no ads", ...).
type GoldPack struct{}

func (GoldPack) ProductID() uint32 { return 1 }

// UnitCost is per single unit, in currency units rather than cents.
func (GoldPack) UnitCost() map[string]decimal.Decimal {
	return map[string]decimal.Decimal{
		"USD": decimal.RequireFromString("5.00"),
		"EUR": decimal.RequireFromString("4.25"),
	}
}

// Description is shown to the payer by the authority during checkout.
func (GoldPack) Description() map[string]string {
	return map[string]string{
		"en": "A pack of 1000 gold coins.",
		"de": "Ein Paket mit 1000 Goldmünzen.",
	}
}

func (GoldPack) Category() string { return "currency" }

// Deliver credits one pack of gold to the paying account. Replace the
// body with the real crediting logic of the integrating application.
func (GoldPack) Deliver(ctx context.Context, tx *models.Transaction) error {
	util.GetLogger().Info("Delivering gold pack",
		zap.Uint64("order_id", tx.OrderID),
		zap.Uint64("payer_external_id", tx.PayerExternalID))
	return nil
}

// DefaultProducts lists the products registered at process start.
func DefaultProducts() []Product {
	return []Product{
		GoldPack{},
	}
}
