package client

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"microtx-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeService scripts the orchestrator. When authorize is non-nil, the
// initiate call schedules an authorization event on the bus, imitating
// the payer deciding in the external overlay.
type fakeService struct {
	mu            sync.Mutex
	bus           *Bus
	initiateErr   error
	finalizeErr   error
	finalizeCalls int
	authorize     *bool
}

func (s *fakeService) InitiateTransaction(_ context.Context, tx *models.Transaction) error {
	if s.initiateErr != nil {
		return s.initiateErr
	}
	if s.authorize != nil {
		authorized := *s.authorize
		go s.bus.Publish(models.AuthorizationEvent{
			OrderID:    tx.OrderID,
			Authorized: authorized,
		})
	}
	return nil
}

func (s *fakeService) FinalizeTransaction(_ context.Context, orderID uint64, authorized bool) (*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finalizeCalls++
	if s.finalizeErr != nil {
		return nil, s.finalizeErr
	}
	tx := models.NewTransaction(1)
	tx.OrderID = orderID
	if authorized {
		tx.State = models.StateCompleted
	} else {
		tx.State = models.StateAborted
	}
	return tx, nil
}

func boolPtr(b bool) *bool { return &b }

func newCoordinatorFixture(authorize *bool) (*Coordinator, *fakeService, *Bus) {
	bus := NewBus()
	service := &fakeService{bus: bus, authorize: authorize}
	return NewCoordinator(service, bus, NewGuard()), service, bus
}

func TestStartTransactionAuthorized(t *testing.T) {
	coordinator, service, _ := newCoordinatorFixture(boolPtr(true))
	proposal := models.NewTransaction(76561197960287930)

	result := coordinator.StartTransaction(context.Background(), proposal)

	require.True(t, result.Success())
	require.NotNil(t, result.Transaction)
	assert.Equal(t, models.StateCompleted, result.Transaction.State)
	assert.Equal(t, proposal.OrderID, result.Transaction.OrderID)
	assert.Equal(t, 1, service.finalizeCalls)
}

func TestStartTransactionAborted(t *testing.T) {
	coordinator, service, _ := newCoordinatorFixture(boolPtr(false))

	result := coordinator.StartTransaction(context.Background(), models.NewTransaction(1))

	assert.True(t, result.Aborted)
	assert.NoError(t, result.Err)
	assert.Nil(t, result.Transaction)
	assert.Equal(t, 1, service.finalizeCalls, "abort is still finalized server-side")
}

func TestStartTransactionInitiateFailure(t *testing.T) {
	coordinator, service, _ := newCoordinatorFixture(nil)
	initiateErr := errors.New("authority unreachable")
	service.initiateErr = initiateErr

	result := coordinator.StartTransaction(context.Background(), models.NewTransaction(1))

	assert.ErrorIs(t, result.Err, initiateErr)
	assert.False(t, result.Success())
	assert.False(t, result.Aborted)
	assert.Zero(t, service.finalizeCalls, "finalization is never attempted")
}

func TestStartTransactionFinalizeErrorWinsOverAuthorizedFlag(t *testing.T) {
	coordinator, service, _ := newCoordinatorFixture(boolPtr(true))
	finalizeErr := errors.New("authority rejected finalization")
	service.finalizeErr = finalizeErr

	result := coordinator.StartTransaction(context.Background(), models.NewTransaction(1))

	assert.ErrorIs(t, result.Err, finalizeErr)
	assert.False(t, result.Aborted)
	assert.Nil(t, result.Transaction)
}

func TestStartTransactionSingleFlight(t *testing.T) {
	bus := NewBus()
	service := &fakeService{bus: bus}
	coordinator := NewCoordinator(service, bus, NewGuard())

	firstStarted := make(chan struct{})
	firstResult := make(chan *TransactionResult, 1)
	first := models.NewTransaction(1)

	go func() {
		close(firstStarted)
		firstResult <- coordinator.StartTransaction(context.Background(), first)
	}()
	<-firstStarted
	// Wait for the first flow to hold the guard and subscribe.
	require.Eventually(t, func() bool {
		bus.mu.Lock()
		defer bus.mu.Unlock()
		return bus.handler != nil
	}, time.Second, time.Millisecond)

	second := coordinator.StartTransaction(context.Background(), models.NewTransaction(2))
	assert.ErrorIs(t, second.Err, models.ErrConcurrentTransaction)

	// The pending flow is unaffected and still completes normally.
	bus.Publish(models.AuthorizationEvent{OrderID: first.OrderID, Authorized: true})
	result := <-firstResult
	assert.True(t, result.Success())
}

func TestStartTransactionGuardReleasedAfterEveryOutcome(t *testing.T) {
	coordinator, service, _ := newCoordinatorFixture(boolPtr(true))

	result := coordinator.StartTransaction(context.Background(), models.NewTransaction(1))
	require.True(t, result.Success())

	// A failed flow must release the guard as well.
	service.initiateErr = errors.New("boom")
	result = coordinator.StartTransaction(context.Background(), models.NewTransaction(2))
	require.Error(t, result.Err)

	service.initiateErr = nil
	result = coordinator.StartTransaction(context.Background(), models.NewTransaction(3))
	assert.True(t, result.Success())
}

func TestStartTransactionContextCancellation(t *testing.T) {
	coordinator, _, _ := newCoordinatorFixture(nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	result := coordinator.StartTransaction(ctx, models.NewTransaction(1))

	assert.ErrorIs(t, result.Err, context.DeadlineExceeded)
}

func TestDuplicateAuthorizationEventIsIgnored(t *testing.T) {
	bus := NewBus()
	service := &fakeService{bus: bus}
	coordinator := NewCoordinator(service, bus, NewGuard())

	wait := newWaitHandle()
	event := models.AuthorizationEvent{OrderID: 7, Authorized: true}

	coordinator.handleAuthorization(context.Background(), event, wait)
	coordinator.handleAuthorization(context.Background(), event, wait)

	assert.Equal(t, 2, service.finalizeCalls)
	// Only one result may ever be delivered.
	<-wait.ch
	select {
	case <-wait.ch:
		t.Fatal("wait handle resolved twice")
	default:
	}
}

func TestBusDropsEventWithoutSubscriber(t *testing.T) {
	bus := NewBus()

	// Must not panic or block.
	bus.Publish(models.AuthorizationEvent{OrderID: 1, Authorized: true})

	delivered := 0
	cancel := bus.Subscribe(func(models.AuthorizationEvent) { delivered++ })
	bus.Publish(models.AuthorizationEvent{OrderID: 2, Authorized: true})
	assert.Equal(t, 1, delivered)

	cancel()
	bus.Publish(models.AuthorizationEvent{OrderID: 3, Authorized: true})
	assert.Equal(t, 1, delivered, "cancelled subscription receives nothing")
}

func TestGuard(t *testing.T) {
	guard := NewGuard()

	assert.True(t, guard.TryAcquire())
	assert.False(t, guard.TryAcquire())

	guard.Release()
	assert.True(t, guard.TryAcquire())
}
