package client

import (
	"context"
	"sync"

	"microtx-service/internal/models"
	"microtx-service/internal/util"

	"go.uber.org/zap"
)

// TransactionService is the server-side orchestrator surface the
// coordinator drives.
type TransactionService interface {
	InitiateTransaction(ctx context.Context, tx *models.Transaction) error
	FinalizeTransaction(ctx context.Context, orderID uint64, authorized bool) (*models.Transaction, error)
}

// Guard is a single-flight guard: at most one purchase flow may be in
// progress at a time within the owning component.
type Guard struct {
	mu   sync.Mutex
	held bool
}

// NewGuard creates a released guard.
func NewGuard() *Guard {
	return &Guard{}
}

// TryAcquire takes the guard, or reports false when it is already held.
func (g *Guard) TryAcquire() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.held {
		return false
	}
	g.held = true
	return true
}

// Release frees the guard.
func (g *Guard) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.held = false
}

// waitHandle is a one-shot slot for the flow's result. Resolve wins
// exactly once; later attempts report false.
type waitHandle struct {
	once sync.Once
	ch   chan *TransactionResult
}

func newWaitHandle() *waitHandle {
	return &waitHandle{ch: make(chan *TransactionResult, 1)}
}

func (w *waitHandle) resolve(result *TransactionResult) bool {
	resolved := false
	w.once.Do(func() {
		w.ch <- result
		resolved = true
	})
	return resolved
}

// Coordinator runs in the purchasing application. It bridges the
// call-and-forget initiation with the asynchronously delivered
// authorization event, producing one awaited TransactionResult.
type Coordinator struct {
	service TransactionService
	source  AuthorizationSource
	guard   *Guard
	logger  *zap.Logger
}

// NewCoordinator creates a coordinator. The guard is injected so tests
// and independent components can run without shared global state.
func NewCoordinator(service TransactionService, source AuthorizationSource, guard *Guard) *Coordinator {
	return &Coordinator{
		service: service,
		source:  source,
		guard:   guard,
		logger:  util.GetLogger(),
	}
}

// StartTransaction initiates the proposal and blocks until the payer's
// decision has been finalized, the initiation fails, or ctx expires.
// Every outcome is normalized into the returned result; no error
// escapes the call. Only one transaction may be in flight at a time.
func (c *Coordinator) StartTransaction(ctx context.Context, proposal *models.Transaction) *TransactionResult {
	ctx, span := util.StartSpan(ctx, "Coordinator.StartTransaction")
	defer span.End()

	if !c.guard.TryAcquire() {
		return resultFromError(models.ErrConcurrentTransaction)
	}
	defer c.guard.Release()

	wait := newWaitHandle()

	// Subscribe before initiating so an early authorization event
	// cannot be missed.
	cancel := c.source.Subscribe(func(event models.AuthorizationEvent) {
		c.handleAuthorization(ctx, event, wait)
	})
	defer cancel()

	if err := c.service.InitiateTransaction(ctx, proposal); err != nil {
		return resultFromError(err)
	}

	select {
	case result := <-wait.ch:
		return result
	case <-ctx.Done():
		return resultFromError(ctx.Err())
	}
}

// handleAuthorization finalizes the transaction for the received event
// and resolves the pending wait. A finalization error wins over the
// event's authorized flag; a declined event yields the abort outcome.
func (c *Coordinator) handleAuthorization(ctx context.Context, event models.AuthorizationEvent, wait *waitHandle) {
	tx, err := c.service.FinalizeTransaction(ctx, event.OrderID, event.Authorized)

	var result *TransactionResult
	switch {
	case err != nil:
		result = resultFromError(err)
	case !event.Authorized:
		result = resultFromAbort()
	default:
		result = resultFromSuccess(tx)
	}

	if !wait.resolve(result) {
		c.logger.Warn("Duplicate authorization event ignored",
			zap.Uint64("order_id", event.OrderID),
			zap.Bool("authorized", event.Authorized))
	}
}
