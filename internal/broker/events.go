package broker

import (
	"context"
	"fmt"
	"time"

	"microtx-service/internal/models"

	"github.com/google/uuid"
)

// EventPublisher publishes transaction lifecycle events. Publishing is
// best-effort; the orchestrator logs failures and continues.
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}

func orderKey(orderID uint64) string {
	return fmt.Sprintf("txn-%d", orderID)
}

// PublishTransactionInitiated publishes a TransactionInitiated event.
func (ep *EventPublisher) PublishTransactionInitiated(ctx context.Context, tx *models.Transaction) error {
	event := &models.TransactionInitiatedEvent{
		BaseEvent:             newBaseEvent(models.EventTypeTransactionInitiated),
		OrderID:               tx.OrderID,
		PayerExternalID:       tx.PayerExternalID,
		ExternalTransactionID: tx.ExternalTransactionID,
		TotalAmountInCents:    tx.TotalAmountInCents(),
		Currency:              tx.Currency,
	}
	return ep.producer.PublishEvent(ctx, orderKey(tx.OrderID), event)
}

// PublishTransactionCompleted publishes a TransactionCompleted event.
func (ep *EventPublisher) PublishTransactionCompleted(ctx context.Context, tx *models.Transaction) error {
	event := &models.TransactionCompletedEvent{
		BaseEvent:          newBaseEvent(models.EventTypeTransactionCompleted),
		OrderID:            tx.OrderID,
		PayerExternalID:    tx.PayerExternalID,
		TotalAmountInCents: tx.TotalAmountInCents(),
	}
	return ep.producer.PublishEvent(ctx, orderKey(tx.OrderID), event)
}

// PublishTransactionAborted publishes a TransactionAborted event.
func (ep *EventPublisher) PublishTransactionAborted(ctx context.Context, tx *models.Transaction) error {
	event := &models.TransactionAbortedEvent{
		BaseEvent: newBaseEvent(models.EventTypeTransactionAborted),
		OrderID:   tx.OrderID,
	}
	return ep.producer.PublishEvent(ctx, orderKey(tx.OrderID), event)
}

// PublishTransactionFailed publishes a TransactionFailed event for the
// given protocol stage ("initiation" or "finalization").
func (ep *EventPublisher) PublishTransactionFailed(ctx context.Context, tx *models.Transaction, stage string) error {
	event := &models.TransactionFailedEvent{
		BaseEvent:        newBaseEvent(models.EventTypeTransactionFailed),
		OrderID:          tx.OrderID,
		Stage:            stage,
		ErrorCode:        tx.ErrorCode,
		ErrorDescription: tx.ErrorDescription,
	}
	return ep.producer.PublishEvent(ctx, orderKey(tx.OrderID), event)
}
