package models

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidProposal marks a caller error in the transaction
	// proposal (already initiated, zero payer id, no items, or a
	// missing catalog entry for the requested language/currency).
	ErrInvalidProposal = errors.New("invalid transaction proposal")

	// ErrTransactionNotFound means no initiated transaction matches
	// the requested order id.
	ErrTransactionNotFound = errors.New("initiated transaction not found")

	// ErrUnknownProduct means fulfillment could not resolve a delivery
	// handler for a purchased item.
	ErrUnknownProduct = errors.New("unknown product")

	// ErrConcurrentTransaction means another transaction is already in
	// flight in this process.
	ErrConcurrentTransaction = errors.New("concurrent transaction not allowed")

	// ErrFinalizationInProgress means another finalization currently
	// holds the lock for the same order id.
	ErrFinalizationInProgress = errors.New("finalization already in progress")
)

// AuthorityError is a structured non-OK response from the payment
// authority. It is terminal for the transaction.
type AuthorityError struct {
	OrderID     uint64
	Code        string
	Description string
}

func (e *AuthorityError) Error() string {
	return fmt.Sprintf("payment authority rejected order %d: [%s] %s",
		e.OrderID, e.Code, e.Description)
}

// InvalidTransitionError reports a state machine step that is not
// permitted.
type InvalidTransitionError struct {
	From State
	To   State
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transaction state transition %q -> %q", e.From, e.To)
}
