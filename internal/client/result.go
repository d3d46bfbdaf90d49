package client

import "microtx-service/internal/models"

// TransactionResult is the single normalized outcome of a purchase
// flow. Exactly one of the three outcomes holds: success (Err nil,
// Aborted false), aborted, or error. The caller inspects the result
// instead of catching errors.
type TransactionResult struct {
	// Transaction is the record at its latest known state; nil unless
	// the flow succeeded.
	Transaction *models.Transaction

	// Err is set when any step of the flow failed.
	Err error

	// Aborted is set when the payer declined the purchase.
	Aborted bool
}

// Success reports whether the transaction finished completely.
func (r *TransactionResult) Success() bool {
	return r.Err == nil && !r.Aborted
}

func resultFromSuccess(tx *models.Transaction) *TransactionResult {
	return &TransactionResult{Transaction: tx}
}

func resultFromAbort() *TransactionResult {
	return &TransactionResult{Aborted: true}
}

func resultFromError(err error) *TransactionResult {
	return &TransactionResult{Err: err}
}
