package service

import (
	"context"
	"fmt"
	"time"

	"microtx-service/internal/auth"
	"microtx-service/internal/catalog"
	"microtx-service/internal/models"
	"microtx-service/internal/steam"
	"microtx-service/internal/util"

	"go.uber.org/zap"
)

// TransactionStore persists transaction records. Every state
// transition is saved before and after the corresponding authority
// call; the store is the only recovery log the protocol has.
type TransactionStore interface {
	SaveTransaction(ctx context.Context, tx *models.Transaction) error
	FindInitiatedByOrderID(ctx context.Context, orderID uint64) (*models.Transaction, error)
}

// ProductLookup resolves delivery handlers for purchased items.
type ProductLookup interface {
	Lookup(productID uint32) (catalog.Product, bool)
}

// FinalizeLocker serializes concurrent finalizations of one order.
type FinalizeLocker interface {
	AcquireFinalizeLock(ctx context.Context, orderID uint64) (bool, error)
	ReleaseFinalizeLock(ctx context.Context, orderID uint64) error
}

// EventPublisher emits transaction lifecycle events, best-effort.
type EventPublisher interface {
	PublishTransactionInitiated(ctx context.Context, tx *models.Transaction) error
	PublishTransactionCompleted(ctx context.Context, tx *models.Transaction) error
	PublishTransactionAborted(ctx context.Context, tx *models.Transaction) error
	PublishTransactionFailed(ctx context.Context, tx *models.Transaction, stage string) error
}

// Orchestrator owns the transaction state machine and the two-phase
// exchange with the payment authority.
type Orchestrator struct {
	store     TransactionStore
	authority steam.Client
	products  ProductLookup
	locks     FinalizeLocker
	events    EventPublisher
	logger    *zap.Logger
}

// NewOrchestrator creates a transaction orchestrator.
func NewOrchestrator(
	store TransactionStore,
	authority steam.Client,
	products ProductLookup,
	locks FinalizeLocker,
	events EventPublisher,
) *Orchestrator {
	return &Orchestrator{
		store:     store,
		authority: authority,
		products:  products,
		locks:     locks,
		events:    events,
		logger:    util.GetLogger(),
	}
}

// InitiateTransaction validates the proposal, persists it, and proposes
// it to the payment authority. On success the record is left in the
// initiated state and the payer is expected to authorize or abort the
// purchase out-of-band.
func (o *Orchestrator) InitiateTransaction(ctx context.Context, tx *models.Transaction) error {
	ctx, span := util.StartSpan(ctx, "Orchestrator.InitiateTransaction")
	defer span.End()

	if err := validateProposal(tx); err != nil {
		util.TransactionsFailedTotal.WithLabelValues("proposal").Inc()
		return err
	}

	// The principal comes from the authenticated session, never from
	// the proposal itself.
	tx.PrincipalID = auth.PrincipalID(ctx)

	tx.State = models.StateBeingPrepared
	if err := o.store.SaveTransaction(ctx, tx); err != nil {
		return fmt.Errorf("failed to store new transaction: %w", err)
	}

	result, err := o.authority.Initiate(ctx, tx)
	if err != nil {
		// Transport failure: no structured response was obtained, so
		// the record keeps its pre-call state.
		util.TransactionsFailedTotal.WithLabelValues("initiation_transport").Inc()
		return fmt.Errorf("transaction initiation request failed: %w", err)
	}

	if !result.OK {
		return o.storeInitiationError(ctx, tx, result.ErrorCode, result.ErrorDescription)
	}

	if err := tx.Transition(models.StateInitiated); err != nil {
		return err
	}
	tx.ExternalTransactionID = result.ExternalTransactionID
	if err := o.store.SaveTransaction(ctx, tx); err != nil {
		return fmt.Errorf("failed to mark transaction as initiated: %w", err)
	}

	util.TransactionsInitiatedTotal.Inc()
	o.logger.Info("Transaction initiated",
		zap.Uint64("order_id", tx.OrderID),
		zap.Uint64("external_transaction_id", tx.ExternalTransactionID))

	if err := o.events.PublishTransactionInitiated(ctx, tx); err != nil {
		o.logger.Error("Failed to publish TransactionInitiated event", zap.Error(err))
	}
	return nil
}

// FinalizeTransaction resolves the payer's decision for an initiated
// order: aborts the record, or commits the payment at the authority and
// delivers the purchased goods.
func (o *Orchestrator) FinalizeTransaction(ctx context.Context, orderID uint64, authorized bool) (*models.Transaction, error) {
	ctx, span := util.StartSpan(ctx, "Orchestrator.FinalizeTransaction")
	defer span.End()

	if o.locks != nil {
		acquired, err := o.locks.AcquireFinalizeLock(ctx, orderID)
		if err != nil {
			// The store's state filter still guards against a double
			// finalize, so a lock outage only loses serialization of
			// an in-flight race.
			o.logger.Warn("Finalize lock unavailable, proceeding without it",
				zap.Uint64("order_id", orderID), zap.Error(err))
		} else if !acquired {
			return nil, fmt.Errorf("%w: order %d", models.ErrFinalizationInProgress, orderID)
		} else {
			defer func() {
				if err := o.locks.ReleaseFinalizeLock(ctx, orderID); err != nil {
					o.logger.Warn("Failed to release finalize lock",
						zap.Uint64("order_id", orderID), zap.Error(err))
				}
			}()
		}
	}

	tx, err := o.store.FindInitiatedByOrderID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up transaction: %w", err)
	}
	if tx == nil {
		return nil, fmt.Errorf("%w: order %d", models.ErrTransactionNotFound, orderID)
	}

	if !authorized {
		return o.abortTransaction(ctx, tx)
	}

	result, err := o.authority.Finalize(ctx, orderID)
	if err != nil {
		util.TransactionsFailedTotal.WithLabelValues("finalization_transport").Inc()
		return nil, fmt.Errorf("transaction finalization request failed: %w", err)
	}

	if !result.OK {
		return nil, o.storeFinalizationError(ctx, tx, result.ErrorCode, result.ErrorDescription)
	}

	if err := tx.Transition(models.StateAuthorized); err != nil {
		return nil, err
	}
	if err := o.store.SaveTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("failed to mark transaction as authorized: %w", err)
	}

	if err := o.deliverItems(ctx, tx); err != nil {
		// The record is left at authorized for manual remediation:
		// some units may already have been delivered and there is no
		// rollback for delivery side effects.
		util.TransactionsFailedTotal.WithLabelValues("fulfillment").Inc()
		o.logger.Error("Fulfillment failed, transaction stranded at authorized",
			zap.Uint64("order_id", tx.OrderID), zap.Error(err))
		return nil, err
	}

	if err := tx.Transition(models.StateCompleted); err != nil {
		return nil, err
	}
	if err := o.store.SaveTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("failed to mark transaction as completed: %w", err)
	}

	util.TransactionsCompletedTotal.Inc()
	o.logger.Info("Transaction completed", zap.Uint64("order_id", tx.OrderID))

	if err := o.events.PublishTransactionCompleted(ctx, tx); err != nil {
		o.logger.Error("Failed to publish TransactionCompleted event", zap.Error(err))
	}
	return tx, nil
}

func validateProposal(tx *models.Transaction) error {
	if tx.ID != 0 {
		return fmt.Errorf("%w: transaction has already been initiated",
			models.ErrInvalidProposal)
	}
	if tx.PayerExternalID == 0 {
		return fmt.Errorf("%w: payer external id is not specified",
			models.ErrInvalidProposal)
	}
	if len(tx.Items) == 0 {
		return fmt.Errorf("%w: transaction has no items",
			models.ErrInvalidProposal)
	}
	return nil
}

func (o *Orchestrator) abortTransaction(ctx context.Context, tx *models.Transaction) (*models.Transaction, error) {
	if err := tx.Transition(models.StateAborted); err != nil {
		return nil, err
	}
	if err := o.store.SaveTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("failed to mark transaction as aborted: %w", err)
	}

	util.TransactionsAbortedTotal.Inc()
	o.logger.Info("Transaction aborted by payer", zap.Uint64("order_id", tx.OrderID))

	if err := o.events.PublishTransactionAborted(ctx, tx); err != nil {
		o.logger.Error("Failed to publish TransactionAborted event", zap.Error(err))
	}
	return tx, nil
}

func (o *Orchestrator) storeInitiationError(ctx context.Context, tx *models.Transaction, code, description string) error {
	if err := tx.Transition(models.StateInitiationError); err != nil {
		return err
	}
	tx.ErrorCode = code
	tx.ErrorDescription = description
	if err := o.store.SaveTransaction(ctx, tx); err != nil {
		return fmt.Errorf("failed to persist initiation error: %w", err)
	}

	util.TransactionsFailedTotal.WithLabelValues("initiation").Inc()
	o.logger.Warn("Authority rejected transaction initiation",
		zap.Uint64("order_id", tx.OrderID),
		zap.String("error_code", code),
		zap.String("error_description", description))

	if err := o.events.PublishTransactionFailed(ctx, tx, "initiation"); err != nil {
		o.logger.Error("Failed to publish TransactionFailed event", zap.Error(err))
	}

	return &models.AuthorityError{OrderID: tx.OrderID, Code: code, Description: description}
}

func (o *Orchestrator) storeFinalizationError(ctx context.Context, tx *models.Transaction, code, description string) error {
	if err := tx.Transition(models.StateFinalizationError); err != nil {
		return err
	}
	tx.ErrorCode = code
	tx.ErrorDescription = description
	if err := o.store.SaveTransaction(ctx, tx); err != nil {
		return fmt.Errorf("failed to persist finalization error: %w", err)
	}

	util.TransactionsFailedTotal.WithLabelValues("finalization").Inc()
	o.logger.Warn("Authority rejected transaction finalization",
		zap.Uint64("order_id", tx.OrderID),
		zap.String("error_code", code),
		zap.String("error_description", description))

	if err := o.events.PublishTransactionFailed(ctx, tx, "finalization"); err != nil {
		o.logger.Error("Failed to publish TransactionFailed event", zap.Error(err))
	}

	return &models.AuthorityError{OrderID: tx.OrderID, Code: code, Description: description}
}

// deliverItems hands out every purchased unit in record order. A
// missing handler or a delivery failure aborts the remaining loop.
func (o *Orchestrator) deliverItems(ctx context.Context, tx *models.Transaction) error {
	start := time.Now()
	defer func() {
		util.FulfillmentLatency.Observe(time.Since(start).Seconds())
	}()

	for _, item := range tx.Items {
		product, ok := o.products.Lookup(item.ProductID)
		if !ok {
			return fmt.Errorf("%w: no delivery handler registered for product %d",
				models.ErrUnknownProduct, item.ProductID)
		}

		for unit := 0; unit < item.Quantity; unit++ {
			if err := product.Deliver(ctx, tx); err != nil {
				return fmt.Errorf("delivery of product %d failed after %d of %d units: %w",
					item.ProductID, unit, item.Quantity, err)
			}
			util.ItemsDeliveredTotal.Inc()
		}

		o.logger.Info("Product delivered",
			zap.Uint64("order_id", tx.OrderID),
			zap.Uint32("product_id", item.ProductID),
			zap.Int("quantity", item.Quantity))
	}
	return nil
}
