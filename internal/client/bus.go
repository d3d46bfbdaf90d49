package client

import (
	"sync"

	"microtx-service/internal/models"
	"microtx-service/internal/util"

	"go.uber.org/zap"
)

// AuthorizationSource delivers the payer's asynchronous decision.
// Subscribe must be called before the transaction is initiated so no
// event can slip between initiation and subscription.
type AuthorizationSource interface {
	Subscribe(handler func(models.AuthorizationEvent)) (cancel func())
}

// Bus is an in-process AuthorizationSource fed by whatever transport
// the embedding application receives authorization events on. It
// carries at most one subscriber, matching the single-flight
// coordinator.
type Bus struct {
	mu      sync.Mutex
	handler func(models.AuthorizationEvent)
}

// NewBus creates an empty authorization event bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers the handler and returns its cancel function.
func (b *Bus) Subscribe(handler func(models.AuthorizationEvent)) (cancel func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handler = handler

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.handler = nil
	}
}

// Publish dispatches an event to the current subscriber. An event with
// nobody waiting is dropped; that happens when the flow already
// finished before the transport delivered a duplicate.
func (b *Bus) Publish(event models.AuthorizationEvent) {
	b.mu.Lock()
	handler := b.handler
	b.mu.Unlock()

	if handler == nil {
		util.GetLogger().Warn("Authorization event arrived with no pending transaction",
			zap.Uint64("order_id", event.OrderID),
			zap.Bool("authorized", event.Authorized))
		return
	}
	handler(event)
}
