package catalog

import (
	"context"
	"fmt"
	"sync"

	"microtx-service/internal/models"

	"github.com/shopspring/decimal"
)

// Product is a virtual good that can be purchased through the payment
// authority. Unit costs are in currency units, not minor units; the
// description is what the authority shows the payer during checkout.
type Product interface {
	ProductID() uint32
	UnitCost() map[string]decimal.Decimal
	Description() map[string]string
	Category() string

	// Deliver hands one unit of the product to the payer. It is called
	// exactly once per purchased unit after the authority settles the
	// payment. Implementations carry their own side effects; there is
	// no rollback.
	Deliver(ctx context.Context, tx *models.Transaction) error
}

// Registry maps product ids to their delivery handlers. Products are
// registered once at process start; fulfillment never resolves
// handlers dynamically.
type Registry struct {
	mu       sync.RWMutex
	products map[uint32]Product
}

// NewRegistry creates an empty product registry.
func NewRegistry() *Registry {
	return &Registry{products: make(map[uint32]Product)}
}

// Register adds a product to the registry. Registering the same
// product id twice is a configuration error.
func (r *Registry) Register(p Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.products[p.ProductID()]; exists {
		return fmt.Errorf("product %d is already registered", p.ProductID())
	}
	r.products[p.ProductID()] = p
	return nil
}

// Lookup resolves a product by id.
func (r *Registry) Lookup(productID uint32) (Product, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.products[productID]
	return p, ok
}

// AddProduct appends the given quantity of a product to a transaction
// proposal, resolving the description and unit cost against the
// proposal's language and currency. The line total is rounded up to
// whole minor units.
func AddProduct(tx *models.Transaction, p Product, quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("%w: product quantity must be positive, got %d",
			models.ErrInvalidProposal, quantity)
	}

	description, ok := p.Description()[tx.Language]
	if !ok {
		return fmt.Errorf("%w: product %d defines no description in language %q",
			models.ErrInvalidProposal, p.ProductID(), tx.Language)
	}

	unitCost, ok := p.UnitCost()[tx.Currency]
	if !ok {
		return fmt.Errorf("%w: product %d defines no unit cost in currency %q",
			models.ErrInvalidProposal, p.ProductID(), tx.Currency)
	}

	amount := unitCost.
		Mul(decimal.NewFromInt(int64(quantity))).
		Mul(decimal.NewFromInt(100)).
		Ceil().
		IntPart()

	tx.Items = append(tx.Items, models.Item{
		ProductID:     p.ProductID(),
		Quantity:      quantity,
		AmountInCents: amount,
		Description:   description,
		Category:      p.Category(),
	})
	return nil
}
