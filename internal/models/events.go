package models

import "time"

// Event types
const (
	EventTypeTransactionInitiated = "TRANSACTION_INITIATED"
	EventTypeTransactionCompleted = "TRANSACTION_COMPLETED"
	EventTypeTransactionAborted   = "TRANSACTION_ABORTED"
	EventTypeTransactionFailed    = "TRANSACTION_FAILED"
	EventTypePurchaseAuthorized   = "PURCHASE_AUTHORIZATION"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// TransactionInitiatedEvent is published when the authority accepts
// transaction initiation.
type TransactionInitiatedEvent struct {
	BaseEvent
	OrderID               uint64 `json:"order_id,string"`
	PayerExternalID       uint64 `json:"payer_external_id,string"`
	ExternalTransactionID uint64 `json:"external_transaction_id,string"`
	TotalAmountInCents    int64  `json:"total_amount_in_cents"`
	Currency              string `json:"currency"`
}

// TransactionCompletedEvent is published after all goods were delivered.
type TransactionCompletedEvent struct {
	BaseEvent
	OrderID            uint64 `json:"order_id,string"`
	PayerExternalID    uint64 `json:"payer_external_id,string"`
	TotalAmountInCents int64  `json:"total_amount_in_cents"`
}

// TransactionAbortedEvent is published when the payer declines the purchase.
type TransactionAbortedEvent struct {
	BaseEvent
	OrderID uint64 `json:"order_id,string"`
}

// TransactionFailedEvent is published when the authority rejects either
// protocol phase.
type TransactionFailedEvent struct {
	BaseEvent
	OrderID          uint64 `json:"order_id,string"`
	Stage            string `json:"stage"`
	ErrorCode        string `json:"error_code"`
	ErrorDescription string `json:"error_description"`
}

// AuthorizationEvent is the externally delivered decision of the payer,
// at most one per live transaction.
type AuthorizationEvent struct {
	OrderID    uint64 `json:"order_id,string"`
	Authorized bool   `json:"authorized"`
}

// PurchaseAuthorizationEvent is the broker envelope of an
// AuthorizationEvent.
type PurchaseAuthorizationEvent struct {
	BaseEvent
	OrderID    uint64 `json:"order_id,string"`
	Authorized bool   `json:"authorized"`
}
