package models

import (
	"math/rand"
	"time"
)

// State of a purchase transaction. Transitions are one-directional,
// see Transition.
type State string

const (
	// StateBeingPrepared means the transaction has not yet been
	// announced to the payment authority.
	StateBeingPrepared State = "being-prepared"

	// StateInitiated means the authority accepted the transaction and
	// we now wait for the payer to authorize or abort it.
	StateInitiated State = "initiated"

	// StateAuthorized means the authority settled the payment but the
	// purchased goods have not all been delivered yet.
	StateAuthorized State = "authorized"

	// StateCompleted means the goods were delivered. Terminal.
	StateCompleted State = "completed"

	// StateAborted means the payer declined the purchase. Terminal.
	StateAborted State = "aborted"

	// StateInitiationError means the authority rejected initiation. Terminal.
	StateInitiationError State = "initiation-error"

	// StateFinalizationError means the authority rejected finalization. Terminal.
	StateFinalizationError State = "finalization-error"
)

// transitions lists the states reachable from each state. Absent key
// means terminal.
var transitions = map[State][]State{
	StateBeingPrepared: {StateInitiated, StateInitiationError},
	StateInitiated:     {StateAuthorized, StateAborted, StateFinalizationError},
	StateAuthorized:    {StateCompleted},
}

// Terminal reports whether no further transition is permitted from s.
func (s State) Terminal() bool {
	return len(transitions[s]) == 0
}

// Transaction is one purchase attempt against the payment authority.
// Records are never deleted; terminal states are permanent history.
type Transaction struct {
	// ID is assigned by the store on first save. Zero means the
	// transaction has not been initiated yet.
	ID int64 `db:"id" json:"id"`

	State State `db:"state" json:"state"`

	// PayerExternalID identifies the paying account at the payment
	// authority. Must be non-zero before initiation.
	PayerExternalID uint64 `db:"payer_external_id" json:"payer_external_id,string"`

	// PrincipalID identifies the authenticated application session that
	// started the purchase. Attached server-side, never trusted from
	// the client.
	PrincipalID string `db:"principal_id" json:"principal_id,omitempty"`

	// OrderID is generated locally at construction and correlates both
	// protocol phases. Immutable once set.
	OrderID uint64 `db:"order_id" json:"order_id,string"`

	// ExternalTransactionID is assigned by the authority upon successful
	// initiation. Write-once.
	ExternalTransactionID uint64 `db:"external_transaction_id" json:"external_transaction_id,string"`

	Language string `db:"language" json:"language"`
	Currency string `db:"currency" json:"currency"`

	Items []Item `db:"-" json:"items"`

	ErrorCode        string `db:"error_code" json:"error_code,omitempty"`
	ErrorDescription string `db:"error_description" json:"error_description,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Item is one purchased line of a transaction.
type Item struct {
	ID            int64  `db:"id" json:"-"`
	TransactionID int64  `db:"transaction_id" json:"-"`
	ProductID     uint32 `db:"product_id" json:"product_id"`
	Quantity      int    `db:"quantity" json:"quantity"`

	// AmountInCents is the total price of the line in minor currency
	// units, rounded up from unit cost * quantity.
	AmountInCents int64  `db:"amount_in_cents" json:"amount_in_cents"`
	Description   string `db:"description" json:"description"`
	Category      string `db:"category" json:"category,omitempty"`
}

// NewTransaction creates a purchase proposal for the given payer. The
// order id comes from a non-cryptographic random source; uniqueness
// among live transactions is probabilistic.
func NewTransaction(payerExternalID uint64) *Transaction {
	return &Transaction{
		State:           StateBeingPrepared,
		PayerExternalID: payerExternalID,
		OrderID:         rand.Uint64(),
		Language:        "en",
		Currency:        "USD",
	}
}

// Transition moves the transaction to the given state, or fails when
// the step is not permitted by the state machine.
func (t *Transaction) Transition(to State) error {
	for _, next := range transitions[t.State] {
		if next == to {
			t.State = to
			return nil
		}
	}
	return &InvalidTransitionError{From: t.State, To: to}
}

// TotalAmountInCents sums all item line totals.
func (t *Transaction) TotalAmountInCents() int64 {
	var total int64
	for _, item := range t.Items {
		total += item.AmountInCents
	}
	return total
}
