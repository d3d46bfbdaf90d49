package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"microtx-service/internal/broker"
	"microtx-service/internal/models"

	"github.com/segmentio/kafka-go"
)

// Finalizer resolves the payer's decision for an initiated order.
type Finalizer interface {
	FinalizeTransaction(ctx context.Context, orderID uint64, authorized bool) (*models.Transaction, error)
}

// AuthorizationWorker consumes externally delivered purchase
// authorization events and drives transaction finalization.
type AuthorizationWorker struct {
	consumer  *broker.Consumer
	finalizer Finalizer
}

// NewAuthorizationWorker creates a new authorization worker
func NewAuthorizationWorker(consumer *broker.Consumer, finalizer Finalizer) *AuthorizationWorker {
	return &AuthorizationWorker{
		consumer:  consumer,
		finalizer: finalizer,
	}
}

// Start starts the worker
func (w *AuthorizationWorker) Start(ctx context.Context) error {
	log.Println("Starting authorization worker...")
	return w.consumer.StartConsuming(ctx, w.handleMessage)
}

// Stop stops the worker
func (w *AuthorizationWorker) Stop() error {
	log.Println("Stopping authorization worker...")
	return w.consumer.Close()
}

func (w *AuthorizationWorker) handleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		log.Printf("Failed to unmarshal event: %v", err)
		return nil
	}

	if baseEvent.EventType != models.EventTypePurchaseAuthorized {
		log.Printf("Unhandled event type: %s", baseEvent.EventType)
		return nil
	}

	var event models.PurchaseAuthorizationEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		log.Printf("Failed to unmarshal PurchaseAuthorization event: %v", err)
		return nil
	}

	log.Printf("Finalizing transaction: order_id=%d authorized=%t",
		event.OrderID, event.Authorized)

	_, err := w.finalizer.FinalizeTransaction(ctx, event.OrderID, event.Authorized)
	switch {
	case err == nil:
	case errors.Is(err, models.ErrTransactionNotFound):
		// Duplicate or stale delivery; the record already left the
		// initiated state. Commit and move on.
		log.Printf("No initiated transaction for order %d, dropping event", event.OrderID)
	default:
		// Authority rejections are terminal and persisted; retrying
		// the message would not change the outcome.
		log.Printf("Finalization failed for order %d: %v", event.OrderID, err)
	}
	return nil
}
